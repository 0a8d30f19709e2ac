package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// localBackend keeps recordings on the local filesystem. Downloads already
// land in the download directory, so Upload only has to confirm the file is
// where the folder layout says it should be.
type localBackend struct {
	downloadDir string
}

// NewLocalBackend creates a backend rooted at the download directory
func NewLocalBackend(downloadDir string) Backend {
	return &localBackend{downloadDir: downloadDir}
}

func (b *localBackend) Name() string { return "local" }

func (b *localBackend) Remote() bool { return false }

// Upload verifies the downloaded file sits at the expected path. Files are
// downloaded directly into place, so there is nothing to move.
func (b *localBackend) Upload(ctx context.Context, localPath, folder, filename string) error {
	expected := filepath.Join(b.downloadDir, folder, filename)
	if localPath == expected {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(expected), 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	if err := os.Rename(localPath, expected); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", localPath, err)
	}

	return nil
}

// VerifySize stats the file on disk and compares sizes
func (b *localBackend) VerifySize(ctx context.Context, folder, filename string, expectedSize int64) VerifyResult {
	info, err := os.Stat(filepath.Join(b.downloadDir, folder, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return VerifyResult{Status: StatusMissing}
		}
		return VerifyResult{Status: StatusError, Err: err}
	}

	return classifySize(info.Size(), expectedSize)
}
