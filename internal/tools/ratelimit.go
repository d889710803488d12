package tools

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// RateLimiter enforces a per-session tool execution budget using token
// buckets. Idle sessions are pruned to bound memory.
type RateLimiter struct {
	mu       sync.Mutex
	sessions map[string]*sessionLimiter
	limit    rate.Limit
	burst    int
}

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 30 * time.Minute

// NewRateLimiter creates a limiter allowing perMinute executions per
// session. Returns nil when perMinute <= 0, disabling rate limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		sessions: make(map[string]*sessionLimiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

// Allow reserves one execution for the session, failing when the session's
// budget is exhausted.
func (rl *RateLimiter) Allow(sessionID string) error {
	rl.mu.Lock()
	sl, ok := rl.sessions[sessionID]
	if !ok {
		sl = &sessionLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.sessions[sessionID] = sl
	}
	sl.lastSeen = time.Now()
	rl.mu.Unlock()

	if !sl.limiter.Allow() {
		return xerr.New(xerr.Infrastructure, "tool rate limit exceeded for session %s", sessionID)
	}
	return nil
}

// Cleanup drops limiters idle longer than the TTL. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-limiterIdleTTL)
	for key, sl := range rl.sessions {
		if sl.lastSeen.Before(cutoff) {
			delete(rl.sessions, key)
		}
	}
}
