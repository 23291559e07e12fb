package api

import (
	"sync"
	"time"
)

// rateWindow is the sliding window over which requests are counted.
const rateWindow = time.Minute

// RateLimiter tracks request timestamps per client over a sliding
// window. Old timestamps are discarded on each check, so no background
// sweeper is needed. One instance belongs to one gateway; there is no
// process-wide singleton.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per client
// per minute. A limit of zero or less disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  rateWindow,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one request for the client and reports whether it fits
// within the window.
func (rl *RateLimiter) Allow(client string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	kept := rl.clients[client][:0]
	for _, t := range rl.clients[client] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.limit {
		rl.clients[client] = kept
		return false
	}

	rl.clients[client] = append(kept, now)
	return true
}
