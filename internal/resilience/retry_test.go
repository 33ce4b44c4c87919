package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/scrypster/engram/internal/storage"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{MaxRetries: max, Backoff: time.Millisecond}
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("err = %v, calls = %d; want nil, 1", err, calls)
	}
}

func TestRetry_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return storage.OpFailed("flaky write", errors.New("transient"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	failure := storage.OpFailed("always", errors.New("down"))
	err := Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return failure
	})
	if !errors.Is(err, failure) {
		t.Errorf("err = %v, want the final failure", err)
	}
	// 1 initial + 2 retries.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ValidationErrorsSurfaceImmediately(t *testing.T) {
	cases := []error{
		fmt.Errorf("%w: empty content", storage.ErrInvalidInput),
		storage.ErrFeatureNotEnabled,
		storage.ErrNotImplemented,
	}
	for _, want := range cases {
		calls := 0
		err := Retry(context.Background(), fastRetry(3), func() error {
			calls++
			return want
		})
		if !errors.Is(err, want) {
			t.Errorf("err = %v, want %v", err, want)
		}
		if calls != 1 {
			t.Errorf("%v retried %d times, want no retries", want, calls-1)
		}
	}
}

// A breaker rejection is a fast-fail; retrying it would defeat the breaker.
func TestRetry_NeverRetriesCircuitOpen(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), func() error {
		calls++
		return ErrCircuitOpen
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if calls != 1 {
		t.Errorf("circuit-open error retried %d times", calls-1)
	}
}

func TestRetry_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{MaxRetries: 5, Backoff: 50 * time.Millisecond}, func() error {
		calls++
		cancel()
		return storage.OpFailed("write", errors.New("transient"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 before cancellation stops retries", calls)
	}
}
