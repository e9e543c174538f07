package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*bucket
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), now: time.Now, sleep: sleepCtx}
}

// Configure sets key's bucket to calls per period, starting full.
func (l *Limiter) Configure(key string, calls int, period time.Duration) {
	if calls <= 0 || period <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[key] = &bucket{
		tokens:     float64(calls),
		capacity:   float64(calls),
		refillRate: float64(calls) / period.Seconds(),
		last:       l.now(),
	}
}

// Allow returns true if one token can be consumed for key. Keys that were
// never configured are unlimited.
func (l *Limiter) Allow(key string) bool {
	_, ok := l.reserve(key)
	return ok
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		wait, ok := l.reserve(key)
		if ok {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve takes a token, or reports how long until one is available.
func (l *Limiter) reserve(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		return 0, true
	}
	now := l.now()
	// refill
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return 0, true
	}
	missing := 1 - b.tokens
	return time.Duration(missing / b.refillRate * float64(time.Second)), false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
