package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds outbound rate limiting configuration.
// RequestsPerSecond <= 0 disables throttling.
type Config struct {
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
}

// DefaultConfig returns the default rate limit configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 0,
		Burst:             1,
	}
}

// RateLimiter throttles outbound requests with a token bucket shared by all
// goroutines using the client
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config Config) *RateLimiter {
	r := &RateLimiter{}
	r.SetConfig(config)
	return r
}

// SetConfig replaces the configuration and resets the bucket
func (r *RateLimiter) SetConfig(config Config) {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	r.mu.Lock()
	r.limiter = rate.NewLimiter(limit, burst)
	r.mu.Unlock()
}

// Throttle blocks until a request may be sent or ctx is done.
// Call this before making a request
func (r *RateLimiter) Throttle(ctx context.Context) error {
	r.mu.RLock()
	limiter := r.limiter
	r.mu.RUnlock()
	return limiter.Wait(ctx)
}
