package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrBulkheadFull is returned when the concurrency gate cannot admit a
// request within its acquire timeout.
var ErrBulkheadFull = errors.New("bulkhead at capacity")

// Bulkhead bounds the number of simultaneous in-flight operations against a
// backend, protecting file handles and connection/memory pressure. Requests
// beyond the cap wait up to the acquire timeout, then fail fast.
type Bulkhead struct {
	slots          chan struct{}
	acquireTimeout time.Duration
}

// NewBulkhead creates a gate admitting up to size concurrent operations.
// A zero acquireTimeout fails immediately when the gate is full.
func NewBulkhead(size int, acquireTimeout time.Duration) *Bulkhead {
	if size <= 0 {
		size = 8
	}
	return &Bulkhead{
		slots:          make(chan struct{}, size),
		acquireTimeout: acquireTimeout,
	}
}

// Execute runs fn while holding a slot. The slot is released even when fn
// panics, so one crashing caller does not shrink the gate for others.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-b.slots }()
	return fn()
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}

	if b.acquireTimeout <= 0 {
		return ErrBulkheadFull
	}

	timer := time.NewTimer(b.acquireTimeout)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrBulkheadFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports the number of currently admitted operations.
func (b *Bulkhead) InFlight() int {
	return len(b.slots)
}
