// Package daterange splits date intervals into API-sized query windows
package daterange

import "time"

// MaxWindowDays is the largest date span the Zoom recordings endpoint
// accepts in a single query.
const MaxWindowDays = 30

// Window represents one inclusive sub-interval of a date range
type Window struct {
	Start time.Time
	End   time.Time
}

// Split partitions the inclusive interval [start, end] into consecutive
// windows no longer than maxWindow. Adjacent windows share their boundary
// day so the union covers the full interval with no gaps. start == end
// yields a single trivial window; start after end yields nothing.
func Split(start, end time.Time, maxWindow time.Duration) []Window {
	if start.After(end) {
		return nil
	}
	if maxWindow <= 0 {
		maxWindow = MaxWindowDays * 24 * time.Hour
	}

	var windows []Window
	curr := start
	for curr.Before(end) {
		next := curr.Add(maxWindow)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: curr, End: next})
		curr = next
	}

	if len(windows) == 0 {
		// start == end
		windows = append(windows, Window{Start: start, End: end})
	}

	return windows
}

// SplitDefault partitions using the Zoom API's maximum query window.
func SplitDefault(start, end time.Time) []Window {
	return Split(start, end, MaxWindowDays*24*time.Hour)
}
