package rpcrouter

import (
	"sync"

	"golang.org/x/time/rate"
)

// actorLimiter throttles requests per authenticated actor with a
// token-bucket limiter, grounded on the teacher's internal/middleware
// IPRateLimiter, rekeyed from client IP to actor identity since every
// request here already carries one via the Authorization header. A nil
// *actorLimiter (perMinute <= 0) allows everything, matching the config
// default of unlimited.
type actorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newActorLimiter builds a limiter allowing perMinute requests per minute
// per actor, bursting up to burst. perMinute <= 0 returns nil, meaning
// unlimited (every allow call below on a nil receiver returns true).
func newActorLimiter(perMinute, burst int) *actorLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &actorLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

// allow reports whether actor may proceed now, consuming a token if so.
func (l *actorLimiter) allow(actor string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[actor]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[actor] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
