package server

import (
	"math"
	"sync"
	"time"
)

// Pre-parse admission control for the UDP listener. Two token buckets
// gate each packet: a server-wide bucket and a per-source-IP bucket.
// Token buckets allow short bursts while holding the long-term average
// to the configured rate.

// RateLimiter combines the global and per-client rate limits. A request
// must pass both to be allowed.
type RateLimiter struct {
	global *TokenBucketRateLimiter
	client *TokenBucketRateLimiter
}

// RateLimitSettings contains rate limiting configuration values.
type RateLimitSettings struct {
	CleanupSeconds float64
	MaxClients     int
	GlobalQPS      float64
	GlobalBurst    int
	ClientQPS      float64
	ClientBurst    int
}

// NewRateLimiter creates a RateLimiter from the provided settings.
func NewRateLimiter(s RateLimitSettings) *RateLimiter {
	cleanupInterval := time.Duration(math.Max(0.0, s.CleanupSeconds) * float64(time.Second))
	if cleanupInterval <= 0 {
		cleanupInterval = 60 * time.Second
	}

	return &RateLimiter{
		global: NewTokenBucketRateLimiter(TokenBucketConfig{
			Rate:            s.GlobalQPS,
			Burst:           s.GlobalBurst,
			CleanupInterval: cleanupInterval,
			MaxEntries:      1,
		}),
		client: NewTokenBucketRateLimiter(TokenBucketConfig{
			Rate:            s.ClientQPS,
			Burst:           s.ClientBurst,
			CleanupInterval: cleanupInterval,
			MaxEntries:      s.MaxClients,
		}),
	}
}

// Allow checks if a request from srcIP should be allowed. The global
// limit is checked first so an over-limit server refuses uniformly.
func (r *RateLimiter) Allow(srcIP string) bool {
	if r == nil {
		return true
	}
	if !r.global.Allow("*") {
		return false
	}
	return r.client.Allow(srcIP)
}

// TokenBucketConfig configures a token bucket rate limiter.
type TokenBucketConfig struct {
	Rate            float64       // Tokens replenished per second (queries per second)
	Burst           int           // Maximum tokens (burst capacity)
	CleanupInterval time.Duration // How often to clean up stale entries
	MaxEntries      int           // Maximum tracked keys (prevents memory exhaustion)
}

// TokenBucketRateLimiter implements the token bucket algorithm keyed by
// an arbitrary string (here, source IPs).
//
// Each key has a bucket of up to Burst tokens replenished at Rate tokens
// per second. A request consumes one token and is denied when the bucket
// is empty.
type TokenBucketRateLimiter struct {
	rate            float64
	burst           float64
	cleanupInterval time.Duration
	maxEntries      int

	mu          sync.Mutex
	lastCleanup time.Time
	lastUpdate  map[string]time.Time
	tokens      map[string]float64
}

// NewTokenBucketRateLimiter creates a new rate limiter with the given configuration.
func NewTokenBucketRateLimiter(cfg TokenBucketConfig) *TokenBucketRateLimiter {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1
	}
	ci := cfg.CleanupInterval
	if ci <= 0 {
		ci = 60 * time.Second
	}
	return &TokenBucketRateLimiter{
		rate:            cfg.Rate,
		burst:           float64(cfg.Burst),
		cleanupInterval: ci,
		maxEntries:      maxEntries,
		lastCleanup:     time.Now(),
		lastUpdate:      map[string]time.Time{},
		tokens:          map[string]float64{},
	}
}

// Allow checks if a request for the given key should be allowed.
// Returns true and consumes a token if allowed, false otherwise.
//
// Rate limiting is disabled if rate or burst is <= 0.
func (l *TokenBucketRateLimiter) Allow(key string) bool {
	if l == nil || l.rate <= 0.0 || l.burst <= 0.0 {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) > l.cleanupInterval {
		l.cleanupLocked(now)
	}

	last, exists := l.lastUpdate[key]

	if !exists && len(l.lastUpdate) >= l.maxEntries {
		l.cleanupLocked(now)
		if len(l.lastUpdate) >= l.maxEntries {
			// Still at capacity, deny new entries
			return false
		}
		l.lastUpdate[key] = now
		l.tokens[key] = l.burst - 1.0
		return true
	}

	// Replenish tokens for the elapsed time, capped at burst
	elapsed := now.Sub(last).Seconds()
	l.lastUpdate[key] = now

	tokens := l.tokens[key]
	if elapsed > 0 {
		tokens = math.Min(l.burst, tokens+(elapsed*l.rate))
	}

	if tokens >= 1.0 {
		l.tokens[key] = tokens - 1.0
		return true
	}

	l.tokens[key] = tokens
	return false
}

// cleanupLocked removes entries that haven't been accessed recently.
// Must be called with l.mu held.
func (l *TokenBucketRateLimiter) cleanupLocked(now time.Time) {
	staleBefore := now.Add(-l.cleanupInterval)
	for k, last := range l.lastUpdate {
		if !last.After(staleBefore) {
			delete(l.lastUpdate, k)
			delete(l.tokens, k)
		}
	}
	l.lastCleanup = now
}
