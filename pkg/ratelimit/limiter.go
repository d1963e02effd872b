package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config defines one rate limit
type Config struct {
	// RequestsPerWindow is the sustained number of requests per window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// CredentialConfig limits password endpoints per client
func CredentialConfig() Config {
	return Config{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         5,
	}
}

// PartnerConfig limits the secret-guarded server-to-server endpoints. The
// partner calls from a handful of addresses, so it is generous.
func PartnerConfig() Config {
	return Config{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         100,
	}
}

// Capacity is the most requests a fresh key may make at once
func (c Config) Capacity() int {
	return c.RequestsPerWindow + c.BurstSize
}

func (c Config) normalize() Config {
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 1
	}
	if c.WindowDuration <= 0 {
		c.WindowDuration = time.Minute
	}
	if c.BurstSize < 0 {
		c.BurstSize = 0
	}
	return c
}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryLimiter is a per-process token bucket limiter
type MemoryLimiter struct {
	config  Config
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewMemoryLimiter creates an in-memory limiter
func NewMemoryLimiter(config Config) *MemoryLimiter {
	return &MemoryLimiter{
		config:  config.normalize(),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.config.Capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Refill whole tokens only; the remainder stays in lastUpdate
	perToken := rl.config.WindowDuration / time.Duration(rl.config.RequestsPerWindow)
	if elapsed := now.Sub(b.lastUpdate); elapsed >= perToken {
		add := int(elapsed / perToken)
		b.tokens += add
		b.lastUpdate = b.lastUpdate.Add(time.Duration(add) * perToken)
		if b.tokens >= rl.config.Capacity() {
			b.tokens = rl.config.Capacity()
			b.lastUpdate = now
		}
	}

	d := Decision{Limit: rl.config.Capacity()}
	if b.tokens > 0 {
		b.tokens--
		d.Allowed = true
		d.Remaining = b.tokens
		return d, nil
	}
	d.RetryAfter = perToken - now.Sub(b.lastUpdate)
	return d, nil
}

// Cleanup drops buckets that have been idle long enough to be full again
func (rl *MemoryLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup runs Cleanup once per window until ctx is done
func (rl *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Len returns the number of tracked keys
func (rl *MemoryLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
