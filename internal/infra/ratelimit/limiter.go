// Package ratelimit provides keyed token-bucket limiters.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds limiter configuration.
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// RequestsPerSecond is the sustained rate per key.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	// Burst is the bucket size per key.
	Burst int `mapstructure:"burst"`
	// IdleTTL is how long an unused key keeps its bucket.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		RequestsPerSecond: 2,
		Burst:             10,
		IdleTTL:           3 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key.
type KeyedLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// New creates a keyed limiter.
func New(cfg *Config) *KeyedLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 3 * time.Minute
	}
	return &KeyedLimiter{
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		idleTTL:  idle,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Burst returns the bucket size.
func (l *KeyedLimiter) Burst() int {
	return l.burst
}

// Allow reports whether a request for key may proceed, and the whole tokens left.
func (l *KeyedLimiter) Allow(key string) (bool, int) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	allowed := v.limiter.AllowN(now, 1)
	remaining := int(v.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

// RetryAfter returns how long until one token is available at the configured rate.
func (l *KeyedLimiter) RetryAfter() time.Duration {
	if l.limit <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

// Sweep drops buckets idle for longer than the idle TTL and returns how many were removed.
func (l *KeyedLimiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Run sweeps idle buckets every minute until ctx is done.
func (l *KeyedLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
