// Package storage provides the pluggable backends recording files are
// synchronized into, plus size-based verification against each backend
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Status classifies the outcome of verifying one file against a backend
type Status string

const (
	// StatusVerified means the stored size matches the expected size
	StatusVerified Status = "verified"

	// StatusMismatch means the file exists but its size differs
	StatusMismatch Status = "mismatch"

	// StatusMissing means the backend has no file at the expected location
	StatusMissing Status = "missing"

	// StatusError means verification itself failed and proves nothing
	StatusError Status = "error"
)

// VerifyResult holds the outcome of a single file verification
type VerifyResult struct {
	Status     Status
	ActualSize int64
	Err        error
}

// Backend is a destination recording files are uploaded to and verified against
type Backend interface {
	// Name identifies the backend in logs and reports ("local", "s3", "drive")
	Name() string

	// Remote reports whether files end up off the local disk, which lets the
	// pipeline delete the local copy after a successful upload.
	Remote() bool

	// Upload stores the file at localPath under folder/filename
	Upload(ctx context.Context, localPath, folder, filename string) error

	// VerifySize checks that folder/filename exists with the expected size
	VerifySize(ctx context.Context, folder, filename string, expectedSize int64) VerifyResult
}

// rootPrefix builds the top-level folder a run writes under. With timestamps
// enabled each run gets its own prefix, so reruns never overwrite.
func rootPrefix(rootFolderName string, useTimestamp bool, now time.Time) string {
	if rootFolderName == "" {
		return ""
	}
	if useTimestamp {
		return rootFolderName + "-" + now.Format("20060102-150405")
	}
	return rootFolderName
}

// objectKey joins the root prefix, folder and filename into a backend path
func objectKey(prefix, folder, filename string) string {
	return path.Join(prefix, folder, filename)
}

// contentTypeForFilename maps a recording filename to its MIME type
func contentTypeForFilename(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".m4a":
		return "audio/mp4"
	case ".json":
		return "application/json"
	case ".vtt":
		return "text/vtt"
	case ".txt":
		return "text/plain"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// classifySize turns an observed size into a verification result
func classifySize(actual, expected int64) VerifyResult {
	if actual == expected {
		return VerifyResult{Status: StatusVerified, ActualSize: actual}
	}
	return VerifyResult{
		Status:     StatusMismatch,
		ActualSize: actual,
		Err:        fmt.Errorf("size mismatch: expected %d bytes, found %d", expected, actual),
	}
}
