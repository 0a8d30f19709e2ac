package verification

import (
	"context"
	"fmt"

	"github.com/curtbushko/zoom-sync/internal/filename"
	"github.com/curtbushko/zoom-sync/internal/ledger"
	"github.com/curtbushko/zoom-sync/internal/logging"
	"github.com/curtbushko/zoom-sync/internal/storage"
	"github.com/curtbushko/zoom-sync/internal/zoom"
)

// State classifies a whole recording after verification
type State string

const (
	// StateVerified means every file matched its expected size
	StateVerified State = "verified"

	// StateMismatch means at least one file exists with the wrong size
	StateMismatch State = "mismatch"

	// StateMissing means at least one file is absent from storage
	StateMissing State = "missing"

	// StateError means verification could not complete for some file
	StateError State = "error"

	// StateInTrash means the recording is no longer active but sits in the
	// Zoom trash and could be restored
	StateInTrash State = "in_trash"

	// StateNotAccessible means Zoom no longer knows the recording at all
	StateNotAccessible State = "not_accessible"
)

// RecordingResult is the verification outcome for one ledger entry
type RecordingResult struct {
	UUID  string
	Topic string
	State State
	Files []FileRecord
}

// Summary aggregates one verification run
type Summary struct {
	Results []RecordingResult
}

// ByState returns the results in the given state
func (s *Summary) ByState(state State) []RecordingResult {
	var out []RecordingResult
	for _, r := range s.Results {
		if r.State == state {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many recordings landed in the given state
func (s *Summary) Count(state State) int {
	return len(s.ByState(state))
}

// BrokenUUIDs returns the recordings whose ledger entries lie: files that
// were marked complete but are mismatched or missing in storage
func (s *Summary) BrokenUUIDs() []string {
	var uuids []string
	for _, r := range s.Results {
		if r.State == StateMismatch || r.State == StateMissing {
			uuids = append(uuids, r.UUID)
		}
	}
	return uuids
}

// RecordingSource is the slice of the Zoom API verification needs
type RecordingSource interface {
	ListUsers(ctx context.Context, includeInactive bool) ([]zoom.User, error)
	GetRecordingByUUID(ctx context.Context, uuid string) (*zoom.Recording, error)
	ListTrashRecordings(ctx context.Context, userID string) ([]zoom.Recording, error)
	DeleteRecording(ctx context.Context, uuid string) error
}

// Workflow verifies every ledger entry against the storage backend
type Workflow struct {
	source  RecordingSource
	backend storage.Backend
	ledger  ledger.CompletionLedger
	store   *Store
	namer   filename.Namer

	// uuids overrides the ledger as the verification scope (used in tests
	// and for spot checks); nil means verify every ledger entry
	uuids []string

	includeInactive bool
}

// NewWorkflow creates a verification workflow
func NewWorkflow(source RecordingSource, backend storage.Backend, completionLedger ledger.CompletionLedger, store *Store, namer filename.Namer, includeInactive bool) *Workflow {
	return &Workflow{
		source:          source,
		backend:         backend,
		ledger:          completionLedger,
		store:           store,
		namer:           namer,
		includeInactive: includeInactive,
	}
}

// VerifyUUIDs runs verification over an explicit set of recording UUIDs
func (w *Workflow) VerifyUUIDs(ctx context.Context, uuids []string) (*Summary, error) {
	w.uuids = uuids
	return w.Run(ctx)
}

// Run verifies each recording and persists per-file results to the store
func (w *Workflow) Run(ctx context.Context) (*Summary, error) {
	uuids := w.uuids
	if uuids == nil {
		uuids = w.ledger.UUIDs()
	}

	users, err := w.source.ListUsers(ctx, w.includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list users for verification: %w", err)
	}
	emailByHostID := make(map[string]string, len(users))
	for _, u := range users {
		emailByHostID[u.ID] = u.Email
	}

	trashed, err := w.trashUUIDs(ctx, users)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, uuid := range uuids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := w.verifyOne(ctx, uuid, emailByHostID, trashed)
		summary.Results = append(summary.Results, result)

		if len(result.Files) > 0 {
			if err := w.store.Record(uuid, result.Files); err != nil {
				logging.Warn("Could not persist verification result for %s: %v", uuid, err)
			}
		}

		logging.Debug("Verified %s: %s", uuid, result.State)
	}

	return summary, nil
}

// verifyOne classifies a single ledger entry
func (w *Workflow) verifyOne(ctx context.Context, uuid string, emailByHostID map[string]string, trashed map[string]bool) RecordingResult {
	recording, err := w.source.GetRecordingByUUID(ctx, uuid)
	if err != nil {
		logging.Warn("Could not fetch recording %s: %v", uuid, err)
		return RecordingResult{UUID: uuid, State: StateError}
	}

	if recording == nil {
		if trashed[uuid] {
			return RecordingResult{UUID: uuid, State: StateInTrash}
		}
		return RecordingResult{UUID: uuid, State: StateNotAccessible}
	}

	owner := emailByHostID[recording.HostID]
	if owner == "" {
		owner = recording.HostID
	}
	folder := owner + "/" + w.namer.FolderName(*recording)

	state := StateVerified
	var files []FileRecord
	for _, file := range recording.RecordingFiles {
		if !file.SizeVerifiable() {
			continue
		}

		name := w.namer.FileName(*recording, file)
		verify := w.backend.VerifySize(ctx, folder, name, file.FileSize)

		files = append(files, FileRecord{
			FileID:       file.ID,
			Filename:     name,
			Folder:       folder,
			ExpectedSize: file.FileSize,
			ActualSize:   verify.ActualSize,
			Status:       verify.Status,
			Storage:      w.backend.Name(),
		})

		state = worseState(state, verify.Status)
	}

	return RecordingResult{
		UUID:  uuid,
		Topic: recording.Topic,
		State: state,
		Files: files,
	}
}

// worseState keeps the most severe classification seen so far. Error beats
// missing beats mismatch beats verified.
func worseState(current State, status storage.Status) State {
	rank := map[State]int{StateVerified: 0, StateMismatch: 1, StateMissing: 2, StateError: 3}

	var next State
	switch status {
	case storage.StatusVerified:
		next = StateVerified
	case storage.StatusMismatch:
		next = StateMismatch
	case storage.StatusMissing:
		next = StateMissing
	default:
		next = StateError
	}

	if rank[next] > rank[current] {
		return next
	}
	return current
}

// trashUUIDs builds the set of trashed recording UUIDs across all users
func (w *Workflow) trashUUIDs(ctx context.Context, users []zoom.User) (map[string]bool, error) {
	trashed := make(map[string]bool)
	for _, user := range users {
		recordings, err := w.source.ListTrashRecordings(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list trash for %s: %w", user.Email, err)
		}
		for _, rec := range recordings {
			trashed[rec.UUID] = true
		}
	}
	return trashed, nil
}

// FixLedger purges ledger entries whose files turned out mismatched or
// missing so the next sync run reprocesses them
func (w *Workflow) FixLedger(summary *Summary) ([]string, error) {
	broken := summary.BrokenUUIDs()
	if len(broken) == 0 {
		return nil, nil
	}

	if err := w.ledger.RemoveMany(broken); err != nil {
		return nil, fmt.Errorf("failed to purge ledger entries: %w", err)
	}
	if err := w.store.Remove(broken); err != nil {
		logging.Warn("Could not drop purged entries from verification log: %v", err)
	}

	logging.Info("Purged %d entries from the completion ledger for re-sync", len(broken))
	return broken, nil
}

// DeleteVerified removes fully verified recordings from Zoom cloud storage.
// Individual failures are logged and skipped, never fatal.
func (w *Workflow) DeleteVerified(ctx context.Context, summary *Summary) (int, error) {
	deleted := 0
	for _, result := range summary.ByState(StateVerified) {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		if err := w.source.DeleteRecording(ctx, result.UUID); err != nil {
			logging.Warn("Could not delete verified recording %s (%s): %v", result.UUID, result.Topic, err)
			continue
		}
		deleted++
		logging.Info("Deleted verified recording %s (%s) from Zoom", result.UUID, result.Topic)
	}

	return deleted, nil
}
