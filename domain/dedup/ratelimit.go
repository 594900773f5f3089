package dedup

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ActorRateLimiter manages per-actor token buckets for resolve calls.
// Merges are expensive and irreversible in practice, so a runaway script
// hammering the resolve endpoint gets throttled per actor, not globally.
type ActorRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter

	perMinute int
	burst     int
}

// NewActorRateLimiter creates a limiter manager with the given budget.
func NewActorRateLimiter(perMinute, burst int) *ActorRateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 10
	}
	return &ActorRateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
		burst:     burst,
	}
}

// Allow reports whether the actor may make another resolve call now.
func (m *ActorRateLimiter) Allow(actor string) bool {
	return m.getLimiter(actor).Allow()
}

func (m *ActorRateLimiter) getLimiter(actor string) *rate.Limiter {
	m.mu.RLock()
	limiter, exists := m.limiters[actor]
	m.mu.RUnlock()
	if exists {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double check to prevent race condition
	limiter, exists = m.limiters[actor]
	if exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.perMinute)), m.burst)
	m.limiters[actor] = limiter
	return limiter
}
