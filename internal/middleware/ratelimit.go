package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/digitalservices/queue-service/config"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimiterConfig returns default rate limiting settings
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
	}
}

// RateLimiterConfigFrom maps the rate_limit section, keeping defaults for
// unset values
func RateLimiterConfigFrom(cfg config.RateLimitConfig) RateLimiterConfig {
	out := DefaultRateLimiterConfig()
	if cfg.RequestsPerSecond > 0 {
		out.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.Burst > 0 {
		out.BurstSize = cfg.Burst
	}
	return out
}

// IPRateLimiter tracks rate limiters per IP address
type IPRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	config   RateLimiterConfig
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(config RateLimiterConfig) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

// GetLimiter returns the rate limiter for the given IP address
func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
		rl.limiters[ip] = limiter
	}

	return limiter
}

// CleanupOldLimiters drops every limiter so the map cannot grow without bound
func (rl *IPRateLimiter) CleanupOldLimiters() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters = make(map[string]*rate.Limiter)
}

// RateLimitMiddleware applies rate limiting based on client IP
func RateLimitMiddleware(config ...RateLimiterConfig) gin.HandlerFunc {
	cfg := DefaultRateLimiterConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	limiter := NewIPRateLimiter(cfg)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.CleanupOldLimiters()
		}
	}()

	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// ServiceRateLimitMiddleware applies one shared limiter to every caller. The
// run routes use it since all schedulers hit them from the same hosts.
func ServiceRateLimitMiddleware(requestsPerSecond float64, burstSize int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Service rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// RunRateLimitMiddleware builds the shared limiter of the run routes from the
// rate_limit section. It returns nil when run_requests_per_second is unset.
func RunRateLimitMiddleware(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RunRequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.RunBurst
	if burst <= 0 {
		burst = 1
	}
	return ServiceRateLimitMiddleware(cfg.RunRequestsPerSecond, burst)
}
