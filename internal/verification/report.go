package verification

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/curtbushko/zoom-sync/internal/storage"
)

// WriteReport renders a human-readable verification report. Mismatched and
// missing files get their own sections so an operator can act on them.
func WriteReport(w io.Writer, summary *Summary) error {
	fmt.Fprintf(w, "VERIFICATION REPORT - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "==========================================\n\n")

	fmt.Fprintf(w, "Recordings checked:  %d\n", len(summary.Results))
	fmt.Fprintf(w, "Verified:            %d\n", summary.Count(StateVerified))
	fmt.Fprintf(w, "Size mismatches:     %d\n", summary.Count(StateMismatch))
	fmt.Fprintf(w, "Missing files:       %d\n", summary.Count(StateMissing))
	fmt.Fprintf(w, "Errors:              %d\n", summary.Count(StateError))
	fmt.Fprintf(w, "In Zoom trash:       %d\n", summary.Count(StateInTrash))
	fmt.Fprintf(w, "Not accessible:      %d\n", summary.Count(StateNotAccessible))
	fmt.Fprintln(w)

	if mismatches := summary.ByState(StateMismatch); len(mismatches) > 0 {
		fmt.Fprintln(w, "SIZE MISMATCHES:")
		for _, result := range mismatches {
			for _, file := range result.Files {
				if file.Status != storage.StatusMismatch {
					continue
				}
				fmt.Fprintf(w, "  %s/%s: expected %d bytes, found %d (recording %s)\n",
					file.Folder, file.Filename, file.ExpectedSize, file.ActualSize, result.UUID)
			}
		}
		fmt.Fprintln(w)
	}

	if missing := summary.ByState(StateMissing); len(missing) > 0 {
		fmt.Fprintln(w, "MISSING FILES:")
		for _, result := range missing {
			for _, file := range result.Files {
				if file.Status != storage.StatusMissing {
					continue
				}
				fmt.Fprintf(w, "  %s/%s: expected %d bytes (recording %s)\n",
					file.Folder, file.Filename, file.ExpectedSize, result.UUID)
			}
		}
		fmt.Fprintln(w)
	}

	if trashed := summary.ByState(StateInTrash); len(trashed) > 0 {
		fmt.Fprintln(w, "IN ZOOM TRASH (restorable with --restore-deleted):")
		for _, result := range trashed {
			fmt.Fprintf(w, "  %s\n", result.UUID)
		}
		fmt.Fprintln(w)
	}

	if gone := summary.ByState(StateNotAccessible); len(gone) > 0 {
		fmt.Fprintln(w, "NOT ACCESSIBLE (gone from Zoom entirely):")
		for _, result := range gone {
			fmt.Fprintf(w, "  %s\n", result.UUID)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// SaveReport writes the report to a file, creating parent directories
func SaveReport(path string, summary *Summary) error {
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	return WriteReport(file, summary)
}
