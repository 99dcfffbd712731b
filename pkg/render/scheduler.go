// Package render is the CPU execution strategy: rows of the viewport are
// claimed by worker goroutines from a shared guided scheduler and written
// straight into one reusable RGBA frame.
package render

import "sync/atomic"

// Scheduler hands out contiguous chunks of rows. Each claim takes
// max(1, remaining/(2*workers)) rows, so chunks shrink as the frame drains.
// Every row in [0, total) is claimed exactly once.
type Scheduler struct {
	next    atomic.Int64
	total   int64
	workers int64
}

// NewScheduler creates a scheduler over total rows shared by workers
func NewScheduler(total, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{total: int64(total), workers: int64(workers)}
}

// Next claims the next chunk [start, end). ok is false once every row has
// been handed out.
func (s *Scheduler) Next() (start, end int, ok bool) {
	for {
		cur := s.next.Load()
		remaining := s.total - cur
		if remaining <= 0 {
			return 0, 0, false
		}
		chunk := remaining / (2 * s.workers)
		if chunk < 1 {
			chunk = 1
		}
		if s.next.CompareAndSwap(cur, cur+chunk) {
			return int(cur), int(cur + chunk), true
		}
	}
}
