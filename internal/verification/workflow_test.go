package verification

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/curtbushko/zoom-sync/internal/filename"
	"github.com/curtbushko/zoom-sync/internal/ledger"
	"github.com/curtbushko/zoom-sync/internal/storage"
	"github.com/curtbushko/zoom-sync/internal/zoom"
)

// fakeSource serves canned recordings, trash contents and delete results
type fakeSource struct {
	users      []zoom.User
	recordings map[string]*zoom.Recording
	trash      map[string][]zoom.Recording
	deleted    []string
	deleteErr  error
}

func (f *fakeSource) ListUsers(ctx context.Context, includeInactive bool) ([]zoom.User, error) {
	return f.users, nil
}

func (f *fakeSource) GetRecordingByUUID(ctx context.Context, uuid string) (*zoom.Recording, error) {
	return f.recordings[uuid], nil
}

func (f *fakeSource) ListTrashRecordings(ctx context.Context, userID string) ([]zoom.Recording, error) {
	return f.trash[userID], nil
}

func (f *fakeSource) DeleteRecording(ctx context.Context, uuid string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, uuid)
	return nil
}

func testRecordingWithFile(uuid, topic string, size int64) *zoom.Recording {
	return &zoom.Recording{
		UUID:      uuid,
		HostID:    "host-1",
		Topic:     topic,
		StartTime: time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
		RecordingFiles: []zoom.RecordingFile{
			{
				ID:            "f1",
				FileType:      "MP4",
				FileExtension: "mp4",
				FileSize:      size,
				RecordingType: "shared_screen_with_speaker_view",
			},
		},
	}
}

type workflowFixture struct {
	workflow    *Workflow
	ledger      ledger.CompletionLedger
	source      *fakeSource
	downloadDir string
	namer       filename.Namer
}

func newWorkflowFixture(t *testing.T, source *fakeSource) *workflowFixture {
	t.Helper()

	dir := t.TempDir()
	backend := storage.NewLocalBackend(dir)
	namer := filename.NewNamer(filename.NamerOptions{})

	completionLedger, err := ledger.NewCompletionLedger(filepath.Join(dir, "completed.log"), true)
	if err != nil {
		t.Fatalf("NewCompletionLedger failed: %v", err)
	}

	store := NewStore(filepath.Join(dir, "verification-log.json"))
	workflow := NewWorkflow(source, backend, completionLedger, store, namer, false)

	return &workflowFixture{
		workflow:    workflow,
		ledger:      completionLedger,
		source:      source,
		downloadDir: dir,
		namer:       namer,
	}
}

// placeFile writes a file where the backend expects it for the recording
func (fx *workflowFixture) placeFile(t *testing.T, rec *zoom.Recording, ownerEmail string, size int) {
	t.Helper()

	folder := ownerEmail + "/" + fx.namer.FolderName(*rec)
	name := fx.namer.FileName(*rec, rec.RecordingFiles[0])
	path := filepath.Join(fx.downloadDir, folder, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

func TestWorkflowClassifiesFiveWays(t *testing.T) {
	source := &fakeSource{
		users: []zoom.User{{ID: "host-1", Email: "alice@example.com"}},
		recordings: map[string]*zoom.Recording{
			"ok":       testRecordingWithFile("ok", "Good Meeting", 10),
			"short":    testRecordingWithFile("short", "Truncated Meeting", 10),
			"gone":     testRecordingWithFile("gone", "Unstored Meeting", 10),
			"trashed":  nil,
			"vanished": nil,
		},
		trash: map[string][]zoom.Recording{
			"host-1": {{UUID: "trashed"}},
		},
	}

	fx := newWorkflowFixture(t, source)
	fx.placeFile(t, source.recordings["ok"], "alice@example.com", 10)
	fx.placeFile(t, source.recordings["short"], "alice@example.com", 7)

	for _, uuid := range []string{"ok", "short", "gone", "trashed", "vanished"} {
		fx.ledger.Add(uuid)
	}

	summary, err := fx.workflow.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stateOf := map[string]State{}
	for _, r := range summary.Results {
		stateOf[r.UUID] = r.State
	}

	expected := map[string]State{
		"ok":       StateVerified,
		"short":    StateMismatch,
		"gone":     StateMissing,
		"trashed":  StateInTrash,
		"vanished": StateNotAccessible,
	}
	for uuid, want := range expected {
		if stateOf[uuid] != want {
			t.Errorf("Expected %s classified %s, got %s", uuid, want, stateOf[uuid])
		}
	}
}

func TestWorkflowFixLedgerPurgesBrokenEntries(t *testing.T) {
	source := &fakeSource{
		users: []zoom.User{{ID: "host-1", Email: "alice@example.com"}},
		recordings: map[string]*zoom.Recording{
			"ok":    testRecordingWithFile("ok", "Good Meeting", 10),
			"short": testRecordingWithFile("short", "Truncated Meeting", 10),
		},
	}

	fx := newWorkflowFixture(t, source)
	fx.placeFile(t, source.recordings["ok"], "alice@example.com", 10)
	fx.placeFile(t, source.recordings["short"], "alice@example.com", 3)

	fx.ledger.Add("ok")
	fx.ledger.Add("short")

	summary, err := fx.workflow.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	purged, err := fx.workflow.FixLedger(summary)
	if err != nil {
		t.Fatalf("FixLedger failed: %v", err)
	}
	if len(purged) != 1 || purged[0] != "short" {
		t.Errorf("Expected only short purged, got %v", purged)
	}

	if fx.ledger.Contains("short") {
		t.Error("Expected short removed from ledger")
	}
	if !fx.ledger.Contains("ok") {
		t.Error("Expected ok to survive the purge")
	}
}

func TestWorkflowDeleteVerifiedOnlyTouchesVerified(t *testing.T) {
	source := &fakeSource{
		users: []zoom.User{{ID: "host-1", Email: "alice@example.com"}},
		recordings: map[string]*zoom.Recording{
			"ok":   testRecordingWithFile("ok", "Good Meeting", 5),
			"gone": testRecordingWithFile("gone", "Unstored Meeting", 5),
		},
	}

	fx := newWorkflowFixture(t, source)
	fx.placeFile(t, source.recordings["ok"], "alice@example.com", 5)

	fx.ledger.Add("ok")
	fx.ledger.Add("gone")

	summary, err := fx.workflow.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	deleted, err := fx.workflow.DeleteVerified(context.Background(), summary)
	if err != nil {
		t.Fatalf("DeleteVerified failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deletion, got %d", deleted)
	}
	if len(source.deleted) != 1 || source.deleted[0] != "ok" {
		t.Errorf("Expected only ok deleted from Zoom, got %v", source.deleted)
	}
}

func TestWorkflowDeleteFailureIsNotFatal(t *testing.T) {
	source := &fakeSource{
		users: []zoom.User{{ID: "host-1", Email: "alice@example.com"}},
		recordings: map[string]*zoom.Recording{
			"ok": testRecordingWithFile("ok", "Good Meeting", 5),
		},
		deleteErr: errors.New("rate limited"),
	}

	fx := newWorkflowFixture(t, source)
	fx.placeFile(t, source.recordings["ok"], "alice@example.com", 5)
	fx.ledger.Add("ok")

	summary, err := fx.workflow.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	deleted, err := fx.workflow.DeleteVerified(context.Background(), summary)
	if err != nil {
		t.Fatalf("Expected delete failure to be skipped, got %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected 0 deletions, got %d", deleted)
	}
}

func TestReportSections(t *testing.T) {
	summary := &Summary{
		Results: []RecordingResult{
			{UUID: "a", State: StateVerified},
			{
				UUID:  "b",
				State: StateMismatch,
				Files: []FileRecord{{
					Filename:     "meeting.mp4",
					Folder:       "alice@example.com/Meeting",
					ExpectedSize: 100,
					ActualSize:   60,
					Status:       storage.StatusMismatch,
				}},
			},
			{
				UUID:  "c",
				State: StateMissing,
				Files: []FileRecord{{
					Filename:     "lost.mp4",
					Folder:       "bob@example.com/Lost",
					ExpectedSize: 50,
					Status:       storage.StatusMissing,
				}},
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, summary); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	report := buf.String()
	if !strings.Contains(report, "SIZE MISMATCHES:") {
		t.Error("Expected SIZE MISMATCHES section")
	}
	if !strings.Contains(report, "meeting.mp4: expected 100 bytes, found 60") {
		t.Errorf("Expected mismatch detail, got:\n%s", report)
	}
	if !strings.Contains(report, "MISSING FILES:") {
		t.Error("Expected MISSING FILES section")
	}
	if !strings.Contains(report, "lost.mp4: expected 50 bytes") {
		t.Errorf("Expected missing detail, got:\n%s", report)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verification-log.json")
	store := NewStore(path)

	files := []FileRecord{{
		FileID:       "f1",
		Filename:     "a.mp4",
		Folder:       "alice/Meeting",
		ExpectedSize: 10,
		ActualSize:   10,
		Status:       storage.StatusVerified,
		Storage:      "local",
	}}

	if err := store.Record("uuid-1", files); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// A second store over the same file must see and preserve the entry
	other := NewStore(path)
	if err := other.Record("uuid-2", files); err != nil {
		t.Fatalf("Record through second store failed: %v", err)
	}

	got, ok, err := store.Get("uuid-1")
	if err != nil || !ok {
		t.Fatalf("Expected uuid-1 present, ok=%v err=%v", ok, err)
	}
	if got[0].Filename != "a.mp4" || got[0].Status != storage.StatusVerified {
		t.Errorf("Unexpected stored record: %+v", got[0])
	}
	if got[0].Timestamp == "" {
		t.Error("Expected timestamp filled on record")
	}

	if err := store.Remove([]string{"uuid-1"}); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := store.Get("uuid-1"); ok {
		t.Error("Expected uuid-1 removed")
	}
	if _, ok, _ := store.Get("uuid-2"); !ok {
		t.Error("Expected uuid-2 to survive removal")
	}
}
