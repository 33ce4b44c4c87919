package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// GuardConfig tunes a full resilience stack for one backend instance.
type GuardConfig struct {
	Breaker BreakerConfig
	Retry   RetryConfig

	// BulkheadSize caps concurrent in-flight operations.
	BulkheadSize int

	// AcquireTimeout bounds how long a request waits for a bulkhead slot.
	AcquireTimeout time.Duration

	// RatePerSecond throttles calls to the backend; 0 disables throttling.
	RatePerSecond float64
}

// DefaultGuardConfig returns reasonable starting points.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Breaker:        DefaultBreakerConfig(),
		Retry:          DefaultRetryConfig(),
		BulkheadSize:   8,
		AcquireTimeout: 2 * time.Second,
	}
}

// Guard composes the rate limiter, bulkhead, retry policy, and circuit
// breaker into one execution wrapper. Layering, outermost first: limiter,
// bulkhead, retry, breaker. Retries happen only while the breaker admits
// calls; a breaker rejection is surfaced, never retried.
type Guard struct {
	limiter  *rate.Limiter
	bulkhead *Bulkhead
	retry    RetryConfig
	breaker  *Breaker
}

// NewGuard builds a resilience stack named after the backend it protects.
// Each guard owns its breaker state; guards are never shared across scopes.
func NewGuard(name string, cfg GuardConfig) *Guard {
	g := &Guard{
		bulkhead: NewBulkhead(cfg.BulkheadSize, cfg.AcquireTimeout),
		retry:    cfg.Retry,
		breaker:  NewBreaker(name, cfg.Breaker),
	}
	if cfg.RatePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1)
	}
	return g
}

// Do executes fn through the full stack.
func (g *Guard) Do(ctx context.Context, fn func() error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return g.bulkhead.Execute(ctx, func() error {
		return Retry(ctx, g.retry, func() error {
			return g.breaker.Execute(ctx, fn)
		})
	})
}

// BreakerState reports the wrapped breaker's state for observability.
func (g *Guard) BreakerState() string {
	return g.breaker.State()
}
