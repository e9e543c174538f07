package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" default:"5" validate:"gte=1"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
}

// DefaultPolicy is used when a zero Policy is supplied.
var DefaultPolicy = Policy{MaxAttempts: 5, BackoffMin: 100 * time.Millisecond, BackoffMax: 5 * time.Second}

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent stops the retry loop and returns err as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, ctx is done or
// MaxAttempts is reached. onRetry, when set, is called before each sleep.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry ...func(attempt int, err error)) error {
	if p.MaxAttempts <= 0 {
		p = DefaultPolicy
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		var perm *permanent
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == p.MaxAttempts {
			break
		}

		for _, cb := range onRetry {
			cb(attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(Backoff(p.BackoffMin, p.BackoffMax, attempt)):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, p.MaxAttempts, err)
}

// Backoff returns an exponential delay for attempt (1-based) capped at max,
// minus up to 50% jitter.
func Backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if e := min * time.Duration(1<<uint(attempt-1)); e > 0 && e < max {
			exp = e
		}
	}
	if half := int64(exp) / 2; half > 0 {
		return exp - time.Duration(rand.Int63n(half))
	}
	return exp
}
