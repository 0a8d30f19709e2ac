package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/curtbushko/zoom-sync/internal/logging"
	"github.com/curtbushko/zoom-sync/internal/progress"
	"github.com/curtbushko/zoom-sync/internal/zoom"
)

// DefaultWorkers is the pool size used when none is configured
const DefaultWorkers = 3

// Catalog is the slice of the Zoom API the scheduler needs
type Catalog interface {
	ListUsers(ctx context.Context, includeInactive bool) ([]zoom.User, error)
	ListRecordings(ctx context.Context, userID string, start, end time.Time) ([]zoom.Recording, error)
}

// UserFilter limits which users are synced; nil means everyone
type UserFilter interface {
	Allowed(email string) bool
}

// Scheduler fans recordings out to a fixed pool of workers
type Scheduler struct {
	catalog         Catalog
	processor       *Processor
	reporter        progress.Reporter
	filter          UserFilter
	workers         int
	includeInactive bool
}

// NewScheduler creates a scheduler with the given pool size
func NewScheduler(catalog Catalog, processor *Processor, reporter progress.Reporter, filter UserFilter, workers int, includeInactive bool) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Scheduler{
		catalog:         catalog,
		processor:       processor,
		reporter:        reporter,
		filter:          filter,
		workers:         workers,
		includeInactive: includeInactive,
	}
}

type job struct {
	user      zoom.User
	recording zoom.Recording
}

// Run syncs every recording in [start, end] across all account users and
// returns the run summary. Cancelling the context drains the pool.
func (s *Scheduler) Run(ctx context.Context, start, end time.Time) (*progress.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users, err := s.catalog.ListUsers(ctx, s.includeInactive)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, errors.New("no users found in the account")
	}

	var jobs []job
	for _, user := range users {
		if s.filter != nil && !s.filter.Allowed(user.Email) {
			logging.Debug("Skipping user %s, not in allowlist", user.Email)
			continue
		}

		recordings, err := s.catalog.ListRecordings(ctx, user.ID, start, end)
		if err != nil {
			if zoom.IsAuthFailure(err) || ctx.Err() != nil {
				return nil, err
			}
			logging.Warn("Skipping user %s, recording listing failed: %v", user.DisplayName(), err)
			continue
		}
		logging.Info("Found %d recordings for %s", len(recordings), user.DisplayName())

		for _, recording := range recordings {
			jobs = append(jobs, job{user: user, recording: recording})
		}
	}

	s.reporter.Start(len(jobs))
	logging.Info("Syncing %d recordings from %s to %s with %d workers",
		len(jobs), start.Format("2006-01-02"), end.Format("2006-01-02"), s.workers)

	jobCh := make(chan job)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			for j := range jobCh {
				s.runJob(ctx, slot, j)
			}
		}(i)
	}

	for _, j := range jobs {
		select {
		case jobCh <- j:
		case <-ctx.Done():
			close(jobCh)
			wg.Wait()
			s.reporter.Finish()
			return nil, ctx.Err()
		}
	}
	close(jobCh)
	wg.Wait()

	return s.reporter.Finish(), nil
}

func (s *Scheduler) runJob(ctx context.Context, slot int, j job) {
	logging.Debug("Worker %d processing %s (%s)", slot, j.recording.Topic, j.recording.UUID)

	err := s.processor.Process(ctx, j.user, j.recording)
	switch {
	case err == nil:
		s.reporter.Completed(j.user.Email, j.recording.TotalSize)
	case errors.Is(err, ErrAlreadySynced):
		s.reporter.Skipped(j.user.Email, progress.SkipReasonAlreadySynced)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.reporter.Failed(j.user.Email, err)
	default:
		logging.Error("Recording %s (%s) failed: %v", j.recording.Topic, j.recording.UUID, err)
		s.reporter.Failed(j.user.Email, err)
	}
}
