package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FailureLog appends one line per terminally failed file transfer so an
// operator can retry or investigate later
type FailureLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFailureLog creates a failure log backed by the given file path.
// An empty path disables logging.
func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path, now: time.Now}
}

// Record appends a failure line:
//
//	<timestamp>: Failed to upload <filename> to <backend> - <error>
func (f *FailureLog) Record(filename, backend string, cause error) error {
	if f.path == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create failure log directory: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open failure log: %w", err)
	}
	defer file.Close()

	line := fmt.Sprintf("%s: Failed to upload %s to %s - %v\n",
		f.now().Format(time.RFC3339), filename, backend, cause)
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to failure log: %w", err)
	}

	return nil
}
