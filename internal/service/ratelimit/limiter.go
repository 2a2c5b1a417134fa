package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CandleInsight/pkg/cache"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type bucket struct {
	tokens float64
	last   time.Time
}

// TokenBucket is a per-key in-process token bucket.
type TokenBucket struct {
	mu       sync.Mutex
	m        map[string]*bucket
	capacity float64
	refill   float64 // tokens per second
	now      func() time.Time
}

func NewTokenBucket(capacity, refillPerSec float64) *TokenBucket {
	return &TokenBucket{
		m:        make(map[string]*bucket),
		capacity: capacity,
		refill:   refillPerSec,
		now:      time.Now,
	}
}

func (l *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Sweep forgets buckets idle for longer than idle; a full bucket is equivalent to none.
func (l *TokenBucket) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.m {
		if b.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// WindowLimiter is a fixed-window counter kept in a shared cache, so that
// several replicas enforce one budget.
type WindowLimiter struct {
	store  cache.Service
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewWindowLimiter(store cache.Service, limit int64, window time.Duration) *WindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{store: store, limit: limit, window: window, now: time.Now}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	k := cache.GenerateKey("ratelimit", key, slot)
	n, err := l.store.Increment(ctx, k)
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	if n == 1 {
		if _, err := l.store.Expire(ctx, k, l.window); err != nil {
			return false, fmt.Errorf("rate limit expiry: %w", err)
		}
	}
	return n <= l.limit, nil
}

var (
	_ Limiter = (*TokenBucket)(nil)
	_ Limiter = (*WindowLimiter)(nil)
)
