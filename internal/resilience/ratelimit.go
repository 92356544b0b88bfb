package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiter caps call volume inside a sliding time window. Wait sleeps the
// caller rather than rejecting, so third-party quotas are respected without
// surfacing errors.
type RateLimiter struct {
	mu sync.Mutex

	limit  int
	window time.Duration
	calls  []time.Time
}

// NewRateLimiter allows at most limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
	}
}

// Wait blocks until the caller may proceed or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := rl.reserve()
		if wait <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// reserve records the call if capacity exists, otherwise returns how long
// until the oldest call slides out of the window.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.calls[:0]
	for _, t := range rl.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.calls = kept

	if len(rl.calls) < rl.limit {
		rl.calls = append(rl.calls, now)
		return 0
	}

	return rl.calls[0].Sub(cutoff)
}
