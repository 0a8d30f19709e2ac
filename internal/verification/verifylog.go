// Package verification checks completed recordings against the storage
// backend and reconciles the completion ledger with reality
package verification

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/curtbushko/zoom-sync/internal/storage"
)

// FileRecord is the persisted verification result for one recording file
type FileRecord struct {
	FileID       string         `json:"file_id"`
	Filename     string         `json:"filename"`
	Folder       string         `json:"folder"`
	ExpectedSize int64          `json:"expected_size"`
	ActualSize   int64          `json:"actual_size"`
	Status       storage.Status `json:"status"`
	Storage      string         `json:"storage"`
	Timestamp    string         `json:"timestamp"`
}

// recordingEntry is the per-UUID value in the log file
type recordingEntry struct {
	Files []FileRecord `json:"files"`
}

// Store persists verification results as a JSON document keyed by recording
// UUID. Every update rereads the file so concurrent runs never lose entries.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStore creates a verification log store at the given path
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Record merges the file results for one recording into the log
func (s *Store) Record(uuid string, files []FileRecord) error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}

	stamp := s.now().Format(time.RFC3339)
	for i := range files {
		if files[i].Timestamp == "" {
			files[i].Timestamp = stamp
		}
	}
	entries[uuid] = recordingEntry{Files: files}

	return s.write(entries)
}

// RecordFile merges a single file's verification outcome into the
// recording's entry, replacing any earlier result for the same file. The
// sync pass uses this to persist what it observes file by file.
func (s *Store) RecordFile(uuid string, file FileRecord) error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}

	if file.Timestamp == "" {
		file.Timestamp = s.now().Format(time.RFC3339)
	}

	entry := entries[uuid]
	replaced := false
	for i := range entry.Files {
		if entry.Files[i].FileID == file.FileID {
			entry.Files[i] = file
			replaced = true
			break
		}
	}
	if !replaced {
		entry.Files = append(entry.Files, file)
	}
	entries[uuid] = entry

	return s.write(entries)
}

// Get returns the stored results for one recording
func (s *Store) Get(uuid string) ([]FileRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, false, err
	}

	entry, ok := entries[uuid]
	return entry.Files, ok, nil
}

// Remove drops recordings from the log, typically after their ledger entries
// were purged
func (s *Store) Remove(uuids []string) error {
	if s.path == "" || len(uuids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}

	changed := false
	for _, uuid := range uuids {
		if _, ok := entries[uuid]; ok {
			delete(entries, uuid)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return s.write(entries)
}

func (s *Store) read() (map[string]recordingEntry, error) {
	entries := make(map[string]recordingEntry)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read verification log %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return entries, nil
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt verification log %s: %w", s.path, err)
	}

	return entries, nil
}

func (s *Store) write(entries map[string]recordingEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create verification log directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode verification log: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write verification log: %w", err)
	}

	return nil
}
