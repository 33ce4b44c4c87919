package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	// ErrInvalidInput indicates a caller error: malformed filter, dimension
	// mismatch, malformed query. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFeatureNotEnabled indicates an operation that requires a disabled
	// feature (e.g. organization scope). Fatal to the request, not retried.
	ErrFeatureNotEnabled = errors.New("feature not enabled")

	// ErrNotImplemented indicates a backend variant that is not wired up.
	// Signals misconfiguration, fatal.
	ErrNotImplemented = errors.New("not implemented")
)

// OperationFailedError wraps a backend or I/O fault. These are the only
// errors the resilience layer treats as retryable.
type OperationFailedError struct {
	Op  string
	Err error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
}

func (e *OperationFailedError) Unwrap() error {
	return e.Err
}

// OpFailed wraps err as an OperationFailedError for the named operation.
// A nil err returns nil.
func OpFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationFailedError{Op: op, Err: err}
}

// IsRetryable classifies an error for the retry policy. Backend and I/O
// faults are retryable; validation, feature, and configuration errors are
// surfaced immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrFeatureNotEnabled) ||
		errors.Is(err, ErrNotImplemented) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var opErr *OperationFailedError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Raw filesystem faults from embedded backends.
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}
