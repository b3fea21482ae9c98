package debate

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by participant.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewRateLimiter allows limit events per interval. A non-positive limit
// disables limiting.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(participantID string) bool {
	if rl == nil || rl.limit <= 0 || rl.interval <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[participantID]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[participantID] = fresh
		return false
	}

	rl.history[participantID] = append(fresh, now)
	return true
}

// Forget drops the history of a participant.
func (rl *RateLimiter) Forget(participantID string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, participantID)
	rl.mu.Unlock()
}
