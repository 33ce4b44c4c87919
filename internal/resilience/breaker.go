// Package resilience wraps backend calls with the failure-isolation
// machinery that keeps the engine available under partial backend failure:
// a per-instance circuit breaker, an exponential-backoff retry policy, a
// bounded-concurrency bulkhead, and a token-bucket rate limiter.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/engram/internal/storage"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call
// without invoking the backend. It is distinct from an operation failure so
// callers can tell "the backend is down" from "this one call failed".
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes one circuit breaker instance.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open.
	FailureThreshold uint32

	// ResetTimeout is how long the breaker stays open before allowing
	// half-open trial calls.
	ResetTimeout time.Duration

	// HalfOpenMaxCalls is the number of trial calls admitted while
	// half-open. Any trial failure reopens the breaker; a success closes it.
	HalfOpenMaxCalls uint32
}

// DefaultBreakerConfig returns reasonable starting points. The values are
// tuning parameters, not semantic requirements.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker is a circuit breaker guarding one backend instance. Breaker state
// is owned by the instance and never shared across scopes or backends.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker in the closed state with zero failures.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Interval:    0, // never clear counts while closed
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Caller errors come back from a perfectly healthy backend; only
		// faults count toward tripping, or a stream of bad requests would
		// open the breaker and misreport the backend as down.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return errors.Is(err, storage.ErrInvalidInput) ||
				errors.Is(err, storage.ErrFeatureNotEnabled) ||
				errors.Is(err, storage.ErrNotImplemented)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. While open it returns ErrCircuitOpen
// immediately without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.cb.Execute(func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State reports the breaker state as "closed", "open", or "half-open".
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}
