package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/scrypster/engram/internal/storage"
)

// RetryConfig tunes the retry policy layered over the circuit breaker.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// Backoff is the base delay; attempt n waits Backoff * 2^n with jitter.
	Backoff time.Duration
}

// DefaultRetryConfig returns reasonable starting points.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Backoff:    100 * time.Millisecond,
	}
}

// Retry re-runs fn for errors classified as retryable (backend and I/O
// faults), with exponential backoff and ±50% jitter between attempts.
//
// Validation errors surface immediately, and a breaker rejection is never
// retried: retry and breaker are orthogonal, and retrying a fast-fail
// would defeat its purpose.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) || !storage.IsRetryable(err) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return err
		}

		delay := cfg.Backoff << uint(attempt)
		// Jitter spreads concurrent retriers apart: delay/2 .. 3*delay/2.
		delay = delay/2 + time.Duration(rand.Int63n(int64(delay)+1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
