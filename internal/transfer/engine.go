// Package transfer moves individual recording files from Zoom into the
// configured storage backend with bounded retries
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/curtbushko/zoom-sync/internal/filename"
	"github.com/curtbushko/zoom-sync/internal/logging"
	"github.com/curtbushko/zoom-sync/internal/storage"
	"github.com/curtbushko/zoom-sync/internal/verification"
	"github.com/curtbushko/zoom-sync/internal/zoom"
)

// Downloader streams recording files from Zoom
type Downloader interface {
	DownloadFile(ctx context.Context, downloadURL string, w io.Writer) (int64, error)
}

// VerificationRecorder persists the per-file size checks observed while
// transferring, so the verification log reflects the sync pass too
type VerificationRecorder interface {
	RecordFile(uuid string, file verification.FileRecord) error
}

// Options configures a transfer engine
type Options struct {
	// DownloadDir is where files land before upload
	DownloadDir string

	// MaxAttempts bounds how many times one file is tried (default 3)
	MaxAttempts int

	// RetryDelay is the fixed pause between attempts (default 5s)
	RetryDelay time.Duration

	// VerifyOnDownload checks the local file size against the API size
	VerifyOnDownload bool

	// VerifyOnUpload checks the stored size after upload
	VerifyOnUpload bool
}

// Engine transfers recording files through download, verify, upload, verify
type Engine struct {
	downloader Downloader
	backend    storage.Backend
	namer      filename.Namer
	failures   *FailureLog
	recorder   VerificationRecorder
	opts       Options

	// sleep is replaceable in tests so retry pauses cost nothing
	sleep func(time.Duration)
}

// NewEngine creates a transfer engine. recorder may be nil when verification
// results should not be persisted.
func NewEngine(downloader Downloader, backend storage.Backend, namer filename.Namer, failures *FailureLog, recorder VerificationRecorder, opts Options) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}

	return &Engine{
		downloader: downloader,
		backend:    backend,
		namer:      namer,
		failures:   failures,
		recorder:   recorder,
		opts:       opts,
		sleep:      time.Sleep,
	}
}

// TransferFile moves one recording file end to end, retrying the whole
// sequence on failure. A terminal failure is recorded in the failure log.
func (e *Engine) TransferFile(ctx context.Context, recording zoom.Recording, file zoom.RecordingFile, folder string) error {
	name := e.namer.FileName(recording, file)

	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		bytes, err := e.transferOnce(ctx, recording, file, folder, name)

		event := logging.TransferEvent{
			RecordingUUID: recording.UUID,
			FileID:        file.ID,
			Filename:      name,
			Backend:       e.backend.Name(),
			Bytes:         bytes,
			Duration:      time.Since(start),
			Success:       err == nil,
		}
		if err != nil {
			event.Error = err.Error()
		}
		logging.LogTransfer(event)

		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < e.opts.MaxAttempts {
			logging.Warn("Transfer of %s failed (attempt %d/%d), retrying in %s: %v",
				name, attempt, e.opts.MaxAttempts, e.opts.RetryDelay, err)
			e.sleep(e.opts.RetryDelay)
		}
	}

	if logErr := e.failures.Record(name, e.backend.Name(), lastErr); logErr != nil {
		logging.Error("Could not record failure for %s: %v", name, logErr)
	}

	return fmt.Errorf("transfer of %s failed after %d attempts: %w", name, e.opts.MaxAttempts, lastErr)
}

// transferOnce runs a single download-verify-upload-verify pass
func (e *Engine) transferOnce(ctx context.Context, recording zoom.Recording, file zoom.RecordingFile, folder, name string) (int64, error) {
	localPath := filepath.Join(e.opts.DownloadDir, folder, name)
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create download folder: %w", err)
	}

	written, err := e.download(ctx, file.DownloadURL, localPath)
	if err != nil {
		os.Remove(localPath)
		return written, err
	}

	if e.opts.VerifyOnDownload && file.SizeVerifiable() {
		if written != file.FileSize {
			e.recordVerification(recording, file, folder, name, written, storage.StatusMismatch)
			os.Remove(localPath)
			return written, fmt.Errorf("downloaded %d bytes, expected %d", written, file.FileSize)
		}
		e.recordVerification(recording, file, folder, name, written, storage.StatusVerified)
	}

	if err := e.backend.Upload(ctx, localPath, folder, name); err != nil {
		return written, err
	}

	if e.opts.VerifyOnUpload && file.SizeVerifiable() {
		result := e.backend.VerifySize(ctx, folder, name, file.FileSize)
		e.recordVerification(recording, file, folder, name, result.ActualSize, result.Status)
		if result.Status != storage.StatusVerified {
			if result.Err != nil {
				return written, fmt.Errorf("post-upload verification failed: %w", result.Err)
			}
			return written, fmt.Errorf("post-upload verification failed: %s", result.Status)
		}
	}

	if e.backend.Remote() {
		e.cleanupLocal(localPath)
	}

	return written, nil
}

// recordVerification persists a size-check outcome to the verification log.
// Logging failures here are not fatal to the transfer itself.
func (e *Engine) recordVerification(recording zoom.Recording, file zoom.RecordingFile, folder, name string, actual int64, status storage.Status) {
	if e.recorder == nil {
		return
	}

	record := verification.FileRecord{
		FileID:       file.ID,
		Filename:     name,
		Folder:       folder,
		ExpectedSize: file.FileSize,
		ActualSize:   actual,
		Status:       status,
		Storage:      e.backend.Name(),
	}
	if err := e.recorder.RecordFile(recording.UUID, record); err != nil {
		logging.Warn("Could not record verification result for %s: %v", name, err)
	}
}

// download streams the file to disk through a temporary name so a partial
// download can never be mistaken for a finished one
func (e *Engine) download(ctx context.Context, downloadURL, localPath string) (int64, error) {
	tmpPath := localPath + ".part"

	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	written, err := e.downloader.DownloadFile(ctx, downloadURL, out)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return written, err
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("failed to flush %s: %w", tmpPath, closeErr)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("failed to finalize download: %w", err)
	}

	return written, nil
}

// cleanupLocal removes the uploaded local copy and prunes the folder if it
// is now empty. Failures here are logged, not fatal: the transfer succeeded.
func (e *Engine) cleanupLocal(localPath string) {
	if err := os.Remove(localPath); err != nil {
		logging.Warn("Could not remove local copy %s: %v", localPath, err)
		return
	}

	dir := filepath.Dir(localPath)
	for dir != e.opts.DownloadDir && dir != "." && dir != "/" {
		if err := os.Remove(dir); err != nil {
			// Not empty or not removable, either way stop pruning
			return
		}
		dir = filepath.Dir(dir)
	}
}
