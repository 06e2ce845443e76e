package captions

import (
	"context"
	"errors"
	"testing"
	"time"
)

// instantPolicy waits nowhere and records each computed delay.
func instantPolicy(maxRetries int, delays *[]time.Duration) Policy {
	p := DefaultPolicy(maxRetries)
	p.MaxJitter = 0
	p.sleep = func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	return p
}

func TestPolicy_Do_succeedsAfterRateLimits(t *testing.T) {
	calls := 0
	p := instantPolicy(5, nil)

	err := p.Do(context.Background(), func() error {
		calls++
		if calls <= 2 {
			return &TransientError{Reason: "rate limited"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("upstream calls = %d, want exactly 3", calls)
	}
}

func TestPolicy_Do_exhaustion_staysTransient(t *testing.T) {
	calls := 0
	p := instantPolicy(3, nil)

	err := p.Do(context.Background(), func() error {
		calls++
		return &TransientError{Reason: "engine returned 503"}
	})
	if err == nil {
		t.Fatal("Do should fail after exhausting the budget")
	}
	if calls != 4 {
		t.Errorf("upstream calls = %d, want initial + 3 retries", calls)
	}
	// The caller can still tell this apart from a permanent failure.
	if !IsTransient(err) {
		t.Errorf("exhaustion error should remain transient, got %v", err)
	}
}

func TestPolicy_Do_permanentError_noRetry(t *testing.T) {
	calls := 0
	p := instantPolicy(5, nil)
	permanent := errors.New("engine returned 400")

	err := p.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Do = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1 (no retry)", calls)
	}
}

func TestPolicy_Do_honorsRetryAfter(t *testing.T) {
	var delays []time.Duration
	calls := 0
	p := instantPolicy(5, &delays)

	_ = p.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &TransientError{Reason: "rate limited", RetryAfter: 7 * time.Second}
		}
		return nil
	})
	if len(delays) != 1 || delays[0] != 7*time.Second {
		t.Errorf("delays = %v, want [7s] from the server hint", delays)
	}
}

func TestPolicy_Do_cappedExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	p := instantPolicy(6, &delays)

	_ = p.Do(context.Background(), func() error {
		return &TransientError{Reason: "flaky"}
	})

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 16 * time.Second, 30 * time.Second,
	}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %d entries", delays, len(want))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestPolicy_Do_onRetryCallback(t *testing.T) {
	retries := 0
	p := instantPolicy(5, nil)
	p.OnRetry = func() { retries++ }

	calls := 0
	_ = p.Do(context.Background(), func() error {
		calls++
		if calls <= 3 {
			return &TransientError{Reason: "flaky"}
		}
		return nil
	})
	if retries != 3 {
		t.Errorf("OnRetry fired %d times, want 3", retries)
	}
}

func TestPolicy_Do_contextCancelAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := DefaultPolicy(5)
	err := p.Do(ctx, func() error {
		return &TransientError{Reason: "flaky"}
	})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Errorf("Do with canceled context = %v, want context.Canceled", err)
	}
}

func TestPolicy_wait_jitterBounds(t *testing.T) {
	p := DefaultPolicy(5)
	for i := 0; i < 50; i++ {
		d := p.wait(0, 0)
		if d < p.BaseDelay || d >= p.BaseDelay+p.MaxJitter {
			t.Fatalf("wait = %v, want [%v, %v)", d, p.BaseDelay, p.BaseDelay+p.MaxJitter)
		}
	}
}
