package api

import (
	"sync"
	"time"
)

// rateLimiter implements a simple token bucket rate limiter.
type rateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func newRateLimiter(maxTokens, refillRate int) *rateLimiter {
	return &rateLimiter{
		tokens:     float64(maxTokens),
		maxTokens:  float64(maxTokens),
		refillRate: float64(refillRate),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if elapsed := now.Sub(r.lastRefill); elapsed > 0 {
		r.tokens += elapsed.Seconds() * r.refillRate
		if r.tokens > r.maxTokens {
			r.tokens = r.maxTokens
		}
		r.lastRefill = now
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}
