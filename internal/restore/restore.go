// Package restore recovers recordings from the Zoom trash and reconciles
// the completion ledger so restored meetings can be re-synced
package restore

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/curtbushko/zoom-sync/internal/ledger"
	"github.com/curtbushko/zoom-sync/internal/logging"
	"github.com/curtbushko/zoom-sync/internal/zoom"
)

// TrashSource is the slice of the Zoom API restore needs
type TrashSource interface {
	ListUsers(ctx context.Context, includeInactive bool) ([]zoom.User, error)
	ListTrashRecordings(ctx context.Context, userID string) ([]zoom.Recording, error)
	RestoreRecording(ctx context.Context, uuid string) error
}

// Options configures a restore run
type Options struct {
	// AutoConfirm skips the interactive prompts (--yes)
	AutoConfirm bool

	// IncludeInactive also searches inactive users' trash
	IncludeInactive bool

	// Input is where confirmation answers are read from (default stdin)
	Input io.Reader

	// Output is where the candidate list and prompts go (default stdout)
	Output io.Writer
}

// Outcome summarizes a restore run
type Outcome struct {
	Found    int
	Restored []string
	Failed   []string
	Purged   []string
}

// Workflow lists trashed recordings in a date range and restores them
type Workflow struct {
	source TrashSource
	ledger ledger.CompletionLedger
	opts   Options
	in     *bufio.Reader
	out    io.Writer
}

// NewWorkflow creates a restore workflow
func NewWorkflow(source TrashSource, completionLedger ledger.CompletionLedger, opts Options) *Workflow {
	if opts.Input == nil {
		opts.Input = strings.NewReader("")
	}

	return &Workflow{
		source: source,
		ledger: completionLedger,
		opts:   opts,
		in:     bufio.NewReader(opts.Input),
		out:    opts.Output,
	}
}

// Run finds trashed recordings in [start, end], shows them, and restores
// them after confirmation. Restored recordings can then be purged from the
// completion ledger so the next sync re-downloads them.
func (w *Workflow) Run(ctx context.Context, start, end time.Time) (*Outcome, error) {
	candidates, err := w.collect(ctx, start, end)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Found: len(candidates)}
	if len(candidates) == 0 {
		fmt.Fprintln(w.out, "No trashed recordings found in the date range.")
		return outcome, nil
	}

	fmt.Fprintf(w.out, "Found %d trashed recordings between %s and %s:\n\n",
		len(candidates), start.Format("2006-01-02"), end.Format("2006-01-02"))
	for _, rec := range candidates {
		fmt.Fprintf(w.out, "  %s  %-40s %s (%s)\n",
			rec.StartTime.Format("2006-01-02 15:04"), rec.Topic, rec.HostEmail, rec.UUID)
	}
	fmt.Fprintln(w.out)

	if !w.confirm(fmt.Sprintf("Restore %d recordings from trash?", len(candidates))) {
		fmt.Fprintln(w.out, "Restore cancelled.")
		return outcome, nil
	}

	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		if err := w.source.RestoreRecording(ctx, rec.UUID); err != nil {
			// A 404 here means the trash retention window already expired
			logging.Warn("Could not restore %s (%s): %v", rec.Topic, rec.UUID, err)
			outcome.Failed = append(outcome.Failed, rec.UUID)
			continue
		}
		logging.Info("Restored %s (%s) from trash", rec.Topic, rec.UUID)
		outcome.Restored = append(outcome.Restored, rec.UUID)
	}

	fmt.Fprintf(w.out, "Restored %d recordings, %d failed.\n", len(outcome.Restored), len(outcome.Failed))

	if len(outcome.Restored) > 0 {
		purge := w.ledgerOverlap(outcome.Restored)
		if len(purge) > 0 && w.confirm(fmt.Sprintf(
			"%d restored recordings are marked complete in the ledger. Purge them so the next sync re-downloads?", len(purge))) {
			if err := w.ledger.RemoveMany(purge); err != nil {
				return outcome, fmt.Errorf("failed to purge ledger entries: %w", err)
			}
			outcome.Purged = purge
			fmt.Fprintf(w.out, "Purged %d ledger entries.\n", len(purge))
		}
	}

	return outcome, nil
}

// collect gathers trashed recordings across users, stamped with their
// owner's email, filtered by start time inclusive on both ends
func (w *Workflow) collect(ctx context.Context, start, end time.Time) ([]zoom.Recording, error) {
	users, err := w.source.ListUsers(ctx, w.opts.IncludeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var candidates []zoom.Recording
	for _, user := range users {
		recordings, err := w.source.ListTrashRecordings(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list trash for %s: %w", user.Email, err)
		}

		for _, rec := range recordings {
			day := rec.StartTime
			if day.Before(start) || day.After(end.Add(24*time.Hour-time.Nanosecond)) {
				continue
			}
			rec.HostEmail = user.Email
			candidates = append(candidates, rec)
		}
	}

	return candidates, nil
}

// ledgerOverlap returns the restored UUIDs the ledger already marks complete
func (w *Workflow) ledgerOverlap(uuids []string) []string {
	var overlap []string
	for _, uuid := range uuids {
		if w.ledger.Contains(uuid) {
			overlap = append(overlap, uuid)
		}
	}
	return overlap
}

// confirm asks a yes/no question, defaulting to no
func (w *Workflow) confirm(question string) bool {
	if w.opts.AutoConfirm {
		return true
	}

	fmt.Fprintf(w.out, "%s [y/N]: ", question)
	answer, err := w.in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
