// Package sync orchestrates the recording pipeline: listing users and
// recordings, fanning work out to a bounded pool and recording completions
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/curtbushko/zoom-sync/internal/filename"
	"github.com/curtbushko/zoom-sync/internal/ledger"
	"github.com/curtbushko/zoom-sync/internal/logging"
	"github.com/curtbushko/zoom-sync/internal/zoom"
)

// ErrAlreadySynced marks a recording the ledger says is complete
var ErrAlreadySynced = errors.New("recording already synced")

// ErrNoFiles marks a recording the API returned without any files
var ErrNoFiles = errors.New("recording has no files")

// FileTransferrer moves one recording file into storage
type FileTransferrer interface {
	TransferFile(ctx context.Context, recording zoom.Recording, file zoom.RecordingFile, folder string) error
}

// RecordingDeleter removes recordings from Zoom cloud storage
type RecordingDeleter interface {
	DeleteRecording(ctx context.Context, uuid string) error
}

// Result describes what happened to one recording
type Result struct {
	UUID  string
	Topic string
	User  string
	Bytes int64
	Err   error
}

// Processor syncs one recording at a time: every file must transfer before
// the recording is marked complete
type Processor struct {
	transferrer     FileTransferrer
	deleter         RecordingDeleter
	ledger          ledger.CompletionLedger
	namer           filename.Namer
	deleteAfterSync bool
}

// NewProcessor creates a recording processor
func NewProcessor(transferrer FileTransferrer, deleter RecordingDeleter, completionLedger ledger.CompletionLedger, namer filename.Namer, deleteAfterSync bool) *Processor {
	return &Processor{
		transferrer:     transferrer,
		deleter:         deleter,
		ledger:          completionLedger,
		namer:           namer,
		deleteAfterSync: deleteAfterSync,
	}
}

// Process syncs a single recording for a user. Completion is all or
// nothing: one failed file leaves the recording out of the ledger so the
// next run retries every file.
func (p *Processor) Process(ctx context.Context, user zoom.User, recording zoom.Recording) error {
	if p.ledger.Contains(recording.UUID) {
		logging.Debug("Skipping %s (%s), already synced", recording.Topic, recording.UUID)
		return ErrAlreadySynced
	}

	if len(recording.RecordingFiles) == 0 {
		return fmt.Errorf("%w: %s (%s)", ErrNoFiles, recording.Topic, recording.UUID)
	}

	folder := user.Email + "/" + p.namer.FolderName(recording)

	var failed []string
	attempted := 0
	for _, file := range recording.RecordingFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if file.DownloadURL == "" {
			logging.Warn("Skipping file %s of %s, no download URL", file.ID, recording.UUID)
			continue
		}
		attempted++

		if err := p.transferrer.TransferFile(ctx, recording, file, folder); err != nil {
			logging.Error("File %s of %s failed: %v", file.ID, recording.UUID, err)
			failed = append(failed, file.ID)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed for %s (%s)",
			len(failed), len(recording.RecordingFiles), recording.Topic, recording.UUID)
	}

	// Every file lacking a download URL means nothing was stored, so the
	// recording must not be marked complete
	if attempted == 0 {
		return fmt.Errorf("%w: %s (%s) has no downloadable files", ErrNoFiles, recording.Topic, recording.UUID)
	}

	if err := p.ledger.Add(recording.UUID); err != nil {
		return fmt.Errorf("synced %s but could not update ledger: %w", recording.UUID, err)
	}

	logging.Info("Synced %s (%s) for %s", recording.Topic, recording.UUID, user.Email)

	if p.deleteAfterSync {
		// The recording is safely stored; a failed cloud delete is an
		// inconvenience, not a sync failure
		if err := p.deleter.DeleteRecording(ctx, recording.UUID); err != nil {
			logging.Warn("Could not delete %s from Zoom after sync: %v", recording.UUID, err)
		} else {
			logging.Info("Deleted %s from Zoom cloud storage", recording.UUID)
		}
	}

	return nil
}
