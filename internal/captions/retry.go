package captions

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Retry policy defaults, shared by every engine call site.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
	DefaultMaxJitter  = 500 * time.Millisecond
)

// Policy is a reusable retry policy: capped exponential backoff with jitter,
// applied only to transient failures. A server-supplied retry-after hint
// overrides the computed backoff for that attempt.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the backoff for the first retry; each further retry doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// MaxJitter bounds the random addition to every wait.
	MaxJitter time.Duration

	// OnRetry, when set, is called once per retry (metrics).
	OnRetry func()

	// sleep is swapped out by tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the standard policy with maxRetries retries, or
// DefaultMaxRetries when maxRetries < 0.
func DefaultPolicy(maxRetries int) Policy {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		MaxJitter:  DefaultMaxJitter,
	}
}

// Do runs fn, retrying transient failures until success, a permanent error,
// context cancellation, or retry exhaustion. On exhaustion the last transient
// error is returned wrapped, so IsTransient still reports true and the caller
// can surface it as a retryable failure.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return fmt.Errorf("retry budget exhausted after %d attempts: %w", attempt+1, lastErr)
		}
		if err := sleep(ctx, p.wait(attempt, retryAfterHint(lastErr))); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
		if p.OnRetry != nil {
			p.OnRetry()
		}
	}
}

// wait computes the delay before retry number attempt+1. A positive
// retry-after hint wins over the exponential backoff; jitter is added either way.
func (p Policy) wait(attempt int, retryAfter time.Duration) time.Duration {
	d := retryAfter
	if d <= 0 {
		d = p.BaseDelay << uint(attempt)
		if d > p.MaxDelay || d <= 0 {
			d = p.MaxDelay
		}
	}
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return d
}
