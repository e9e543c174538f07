package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter() (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New()
	l.now = clk.now
	l.sleep = func(_ context.Context, d time.Duration) error {
		clk.t = clk.t.Add(d)
		return nil
	}
	return l, clk
}

func TestAllowDrainsAndRefills(t *testing.T) {
	l, clk := newTestLimiter()
	l.Configure("yahoo", 3, 3*time.Second)

	for i := 0; i < 3; i++ {
		if !l.Allow("yahoo") {
			t.Fatalf("call %d should pass", i)
		}
	}
	if l.Allow("yahoo") {
		t.Fatal("bucket should be empty")
	}
	clk.t = clk.t.Add(time.Second)
	if !l.Allow("yahoo") {
		t.Fatal("one token should have refilled")
	}
	if !l.Allow("unconfigured") {
		t.Fatal("unconfigured keys are unlimited")
	}
}

func TestWaitAdvancesUntilToken(t *testing.T) {
	l, clk := newTestLimiter()
	l.Configure("google", 2000, 10*time.Minute)
	start := clk.t
	for i := 0; i < 2001; i++ {
		if err := l.Wait(context.Background(), "google"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	waited := clk.t.Sub(start)
	if waited < 250*time.Millisecond || waited > 350*time.Millisecond {
		t.Errorf("waited %v, want one refill interval (~300ms)", waited)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New()
	l.Configure("csi", 1, time.Hour)
	l.Allow("csi")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "csi"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
