package storage

import (
	"context"
	"fmt"

	"github.com/curtbushko/zoom-sync/internal/config"
)

// NewBackend builds the storage backend named by the configuration
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Storage.Backend {
	case "local", "":
		return NewLocalBackend(cfg.Storage.DownloadDir), nil
	case "s3":
		return NewS3Backend(ctx, cfg.S3)
	case "drive":
		return NewDriveBackend(cfg.Drive)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected local, s3 or drive)", cfg.Storage.Backend)
	}
}
