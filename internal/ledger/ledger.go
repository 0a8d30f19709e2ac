// Package ledger persists which recordings have already been synchronized so
// reruns skip completed work
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CompletionLedger tracks recordings that finished syncing end to end
type CompletionLedger interface {
	// Contains reports whether a recording UUID has been marked complete
	Contains(uuid string) bool

	// Add marks a recording complete and persists it immediately
	Add(uuid string) error

	// RemoveMany drops UUIDs from the ledger and rewrites the backing file.
	// Unknown UUIDs are ignored.
	RemoveMany(uuids []string) error

	// Len returns the number of completed recordings
	Len() int

	// UUIDs returns a snapshot of every completed recording UUID
	UUIDs() []string
}

// completionLedger is backed by a newline-delimited UUID file. Lookups hit an
// in-memory set; additions append a single line.
type completionLedger struct {
	mu      sync.Mutex
	path    string
	entries map[string]bool
	enabled bool
}

// NewCompletionLedger loads (or creates) the ledger file at path. When
// enabled is false the ledger ignores all reads and writes, which forces
// every recording to be reprocessed.
func NewCompletionLedger(path string, enabled bool) (CompletionLedger, error) {
	l := &completionLedger{
		path:    path,
		entries: make(map[string]bool),
		enabled: enabled,
	}

	if !enabled {
		return l, nil
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	return l, nil
}

// load reads the backing file into the in-memory set
func (l *completionLedger) load() error {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open completion ledger %s: %w", l.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		uuid := strings.TrimSpace(scanner.Text())
		if uuid != "" {
			l.entries[uuid] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read completion ledger %s: %w", l.path, err)
	}

	return nil
}

func (l *completionLedger) Contains(uuid string) bool {
	if !l.enabled {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[uuid]
}

// Add appends the UUID to the ledger file. The append happens under the lock
// so concurrent workers cannot interleave lines.
func (l *completionLedger) Add(uuid string) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entries[uuid] {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open completion ledger for append: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(uuid + "\n"); err != nil {
		return fmt.Errorf("failed to append to completion ledger: %w", err)
	}

	l.entries[uuid] = true
	return nil
}

// RemoveMany rewrites the ledger file without the given UUIDs
func (l *completionLedger) RemoveMany(uuids []string) error {
	if !l.enabled || len(uuids) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := false
	for _, uuid := range uuids {
		if l.entries[uuid] {
			delete(l.entries, uuid)
			removed = true
		}
	}
	if !removed {
		return nil
	}

	var sb strings.Builder
	for uuid := range l.entries {
		sb.WriteString(uuid)
		sb.WriteString("\n")
	}

	if err := os.WriteFile(l.path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to rewrite completion ledger: %w", err)
	}

	return nil
}

func (l *completionLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *completionLedger) UUIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	uuids := make([]string, 0, len(l.entries))
	for uuid := range l.entries {
		uuids = append(uuids, uuid)
	}
	return uuids
}

// LastRunMarker remembers when the previous successful run finished so the
// next run can pick up from that point automatically.
type LastRunMarker struct {
	path string
}

// NewLastRunMarker creates a marker backed by the given file path
func NewLastRunMarker(path string) *LastRunMarker {
	return &LastRunMarker{path: path}
}

// Read returns the recorded timestamp of the previous run. A missing file
// returns a zero time and no error.
func (m *LastRunMarker) Read() (time.Time, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read last-run marker %s: %w", m.path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last-run timestamp %q: %w", text, err)
	}

	return t, nil
}

// Write records the timestamp of the current run, replacing any prior value
func (m *LastRunMarker) Write(t time.Time) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create last-run marker directory: %w", err)
	}

	content := t.Format(time.RFC3339) + "\n"
	if err := os.WriteFile(m.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write last-run marker: %w", err)
	}

	return nil
}
