package service

import (
	"sync"
	"time"
)

// EnqueueGuard bounds queue growth: a cap on outstanding Pending jobs and a
// sliding one-minute window on accepted enqueues.
type EnqueueGuard struct {
	mu sync.Mutex

	maxPending   int
	maxPerMinute int

	windowCount int
	windowEnd   time.Time
}

// NewEnqueueGuard creates a guard. A limit of zero or less disables the
// corresponding check.
func NewEnqueueGuard(maxPending, maxPerMinute int) *EnqueueGuard {
	return &EnqueueGuard{
		maxPending:   maxPending,
		maxPerMinute: maxPerMinute,
	}
}

// CheckPendingCap rejects the enqueue when the store already holds the
// maximum number of Pending jobs.
func (g *EnqueueGuard) CheckPendingCap(currentPending int) error {
	if g.maxPending > 0 && currentPending >= g.maxPending {
		return ErrQueueFull
	}
	return nil
}

// CheckRate counts one enqueue against the current window and rejects it
// when the window is exhausted.
func (g *EnqueueGuard) CheckRate() error {
	if g.maxPerMinute <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if g.windowEnd.IsZero() || now.After(g.windowEnd) {
		g.windowCount = 1
		g.windowEnd = now.Add(time.Minute)
		return nil
	}

	if g.windowCount >= g.maxPerMinute {
		return ErrRateLimited
	}

	g.windowCount++
	return nil
}
