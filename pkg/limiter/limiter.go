// Package limiter rate-limits receipt ingestion per key (a namespace
// or an authenticated producer). The local limiter serves a single
// process; the Redis limiter shares one budget across every ingest
// instance.
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter answers whether one more receipt may pass for a key right
// now. Implementations are safe for concurrent use and never block.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config sizes a token bucket.
type Config struct {
	PerSecond int `json:"per_second" yaml:"per_second"`
	Burst     int `json:"burst" yaml:"burst"`
}

// DefaultConfig allows 100 receipts per second with a burst of 200.
func DefaultConfig() Config {
	return Config{PerSecond: 100, Burst: 200}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PerSecond <= 0 {
		c.PerSecond = d.PerSecond
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	return c
}

const (
	sweepInterval = time.Minute
	bucketMaxIdle = 3 * time.Minute
)

// bucket pairs one key's limiter with when it was last consulted.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps an in-process token bucket per key. Buckets idle
// longer than bucketMaxIdle are swept so abandoned keys do not
// accumulate.
type LocalLimiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLocalLimiter starts the limiter and its background sweeper.
// Callers own Close.
func NewLocalLimiter(cfg Config) *LocalLimiter {
	l := &LocalLimiter{
		cfg:     cfg.withDefaults(),
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow consumes one token for key. It never errors.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.bucketFor(key).Allow(), nil
}

func (l *LocalLimiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// Close stops the background sweeper.
func (l *LocalLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *LocalLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle(bucketMaxIdle)
		}
	}
}

func (l *LocalLimiter) evictIdle(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if time.Since(b.lastSeen) > maxIdle {
			delete(l.buckets, key)
		}
	}
}
