package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key exceeds its message budget.
var ErrRateLimited = errors.New("security: rate limit exceeded")

// RateLimiter is a sliding-window limiter keyed by caller, typically the
// user ID of a chat request.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter allows perMinute events per key. A non-positive value
// disables limiting and NewRateLimiter returns nil, which allows everything.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:   perMinute,
		window:  time.Minute,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one event for key, or returns ErrRateLimited.
func (rl *RateLimiter) Allow(key string) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	events := evict(rl.windows[key], now.Add(-rl.window))
	if len(events) >= rl.limit {
		rl.windows[key] = events
		return ErrRateLimited
	}
	rl.windows[key] = append(events, now)

	// Drop idle keys so the map does not grow with every user ever seen.
	if len(rl.windows) > 4096 {
		for k, ev := range rl.windows {
			if len(evict(ev, now.Add(-rl.window))) == 0 {
				delete(rl.windows, k)
			}
		}
	}
	return nil
}

// evict drops events older than cutoff. Events are chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
