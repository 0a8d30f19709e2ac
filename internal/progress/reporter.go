// Package progress provides run-level progress reporting for recording sync
package progress

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// SkipReason represents why a recording was skipped
type SkipReason int

const (
	SkipReasonAlreadySynced SkipReason = iota
	SkipReasonNoFiles
	SkipReasonUserFiltered
)

func (r SkipReason) String() string {
	switch r {
	case SkipReasonAlreadySynced:
		return "already_synced"
	case SkipReasonNoFiles:
		return "no_files"
	case SkipReasonUserFiltered:
		return "user_filtered"
	default:
		return "unknown"
	}
}

// UserStats aggregates per-user outcomes for the end-of-run summary
type UserStats struct {
	Completed int
	Skipped   int
	Failed    int
	Bytes     int64
}

// Summary is the final tally for one sync run
type Summary struct {
	Total     int
	Completed int
	Skipped   int
	Failed    int
	Bytes     int64
	Duration  time.Duration
	ByUser    map[string]UserStats
}

// Reporter tracks sync outcomes as workers report them
type Reporter interface {
	// Start begins a reporting session covering total recordings
	Start(total int)

	// Completed records a successfully synced recording
	Completed(user string, bytes int64)

	// Skipped records a recording that needed no work
	Skipped(user string, reason SkipReason)

	// Failed records a recording that could not be synced
	Failed(user string, err error)

	// Finish closes the session, prints the summary and returns it
	Finish() *Summary
}

// reporterImpl is safe for concurrent use by sync workers
type reporterImpl struct {
	mu        sync.Mutex
	writer    io.Writer
	total     int
	completed int
	skipped   int
	failed    int
	bytes     int64
	byUser    map[string]UserStats
	startTime time.Time
}

// NewReporter creates a reporter writing its summary to w (default stdout)
func NewReporter(w io.Writer) Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &reporterImpl{
		writer: w,
		byUser: make(map[string]UserStats),
	}
}

func (r *reporterImpl) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	r.startTime = time.Now()
}

func (r *reporterImpl) Completed(user string, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed++
	r.bytes += bytes
	stats := r.byUser[user]
	stats.Completed++
	stats.Bytes += bytes
	r.byUser[user] = stats
}

func (r *reporterImpl) Skipped(user string, reason SkipReason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.skipped++
	stats := r.byUser[user]
	stats.Skipped++
	r.byUser[user] = stats
}

func (r *reporterImpl) Failed(user string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed++
	stats := r.byUser[user]
	stats.Failed++
	r.byUser[user] = stats
}

func (r *reporterImpl) Finish() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := &Summary{
		Total:     r.total,
		Completed: r.completed,
		Skipped:   r.skipped,
		Failed:    r.failed,
		Bytes:     r.bytes,
		Duration:  time.Since(r.startTime),
		ByUser:    make(map[string]UserStats, len(r.byUser)),
	}
	for user, stats := range r.byUser {
		summary.ByUser[user] = stats
	}

	r.printSummary(summary)
	return summary
}

func (r *reporterImpl) printSummary(s *Summary) {
	fmt.Fprintln(r.writer)
	fmt.Fprintln(r.writer, "Sync summary")
	fmt.Fprintln(r.writer, "------------")
	fmt.Fprintf(r.writer, "Recordings: %d total, %d synced, %d skipped, %d failed\n",
		s.Total, s.Completed, s.Skipped, s.Failed)
	fmt.Fprintf(r.writer, "Transferred: %s in %s\n", formatBytes(s.Bytes), s.Duration.Round(time.Second))

	if len(s.ByUser) > 0 {
		users := make([]string, 0, len(s.ByUser))
		for user := range s.ByUser {
			users = append(users, user)
		}
		sort.Strings(users)

		fmt.Fprintln(r.writer)
		for _, user := range users {
			stats := s.ByUser[user]
			fmt.Fprintf(r.writer, "  %s: %d synced, %d skipped, %d failed, %s\n",
				user, stats.Completed, stats.Skipped, stats.Failed, formatBytes(stats.Bytes))
		}
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
