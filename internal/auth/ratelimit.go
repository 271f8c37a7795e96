package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"avmcp/internal/config"
)

// RateLimitConfig configures rate limiting behavior
type RateLimitConfig struct {
	Enabled         bool
	DefaultLimit    int           // Requests per minute
	BurstSize       int           // Token bucket burst
	CleanupInterval time.Duration // Between cleanup runs
	IdleTimeout     time.Duration // Buckets unused this long are dropped
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:         false,
		DefaultLimit:    60,
		BurstSize:       10,
		CleanupInterval: 5 * time.Minute,
		IdleTimeout:     10 * time.Minute,
	}
}

// RateLimitConfigFrom converts the server rate limit settings.
func RateLimitConfigFrom(cfg config.RateLimitConfig) RateLimitConfig {
	rl := DefaultRateLimitConfig()
	rl.Enabled = cfg.Enabled
	rl.DefaultLimit = cfg.RequestsPerMinute
	rl.BurstSize = cfg.Burst
	return rl
}

// RateLimiter implements token bucket rate limiting
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*tokenBucket
	mu      sync.RWMutex
	logger  *slog.Logger
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 60
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 10
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}

	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*tokenBucket),
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled reports whether requests are being limited.
func (r *RateLimiter) Enabled() bool {
	return r.config.Enabled
}

// Allow checks if a request is allowed and consumes a token
// Returns: allowed (bool), retryAfter (seconds until next token available)
func (r *RateLimiter) Allow(key string) (bool, int) {
	if !r.config.Enabled {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket, exists := r.buckets[key]
	if !exists {
		bucket = &tokenBucket{
			tokens:     float64(r.config.BurstSize),
			lastRefill: now,
		}
		r.buckets[key] = bucket
	}

	// Refill tokens based on elapsed time (limit per minute = limit/60 per second)
	elapsed := now.Sub(bucket.lastRefill)
	bucket.lastRefill = now
	bucket.tokens += elapsed.Seconds() * r.perSecond()

	if bucket.tokens > float64(r.config.BurstSize) {
		bucket.tokens = float64(r.config.BurstSize)
	}

	// Try to consume a token
	if bucket.tokens >= 1.0 {
		bucket.tokens -= 1.0
		return true, 0
	}

	// Calculate retry-after (time until we have 1 token)
	tokensNeeded := 1.0 - bucket.tokens
	secondsUntilToken := tokensNeeded / r.perSecond()
	retryAfter := int(secondsUntilToken) + 1 // Round up

	return false, retryAfter
}

func (r *RateLimiter) perSecond() float64 {
	return float64(r.config.DefaultLimit) / 60.0
}

// GetRemaining returns the number of tokens remaining for a key
func (r *RateLimiter) GetRemaining(key string) int {
	if !r.config.Enabled {
		return -1 // Unlimited
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.buckets[key]
	if !exists {
		return r.config.BurstSize
	}

	tokens := bucket.tokens + r.now().Sub(bucket.lastRefill).Seconds()*r.perSecond()
	if tokens > float64(r.config.BurstSize) {
		tokens = float64(r.config.BurstSize)
	}

	return int(tokens)
}

// Reset drops the bucket for a key
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.buckets, key)
}

// StartCleanup starts a background goroutine to clean up stale buckets
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	if !r.config.Enabled {
		return
	}

	go func() {
		ticker := time.NewTicker(r.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup removes buckets that haven't been used recently
func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.config.IdleTimeout)
	removed := 0

	for key, bucket := range r.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(r.buckets, key)
			removed++
		}
	}

	if removed > 0 && r.logger != nil {
		r.logger.Debug("Rate limit cleanup",
			"removed_buckets", removed,
			"remaining", len(r.buckets),
		)
	}
}

// Stats returns rate limiter statistics
func (r *RateLimiter) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]interface{}{
		"enabled":       r.config.Enabled,
		"default_limit": r.config.DefaultLimit,
		"burst_size":    r.config.BurstSize,
		"active_keys":   len(r.buckets),
	}
}
