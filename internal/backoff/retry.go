package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned when all retry attempts have failed.
var ErrAttemptsExhausted = errors.New("backoff: attempts exhausted")

// PermanentError wraps an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as non-retryable. Retry stops immediately when the
// operation returns a permanent error and hands back the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Result carries the outcome of a retried operation.
type Result[T any] struct {
	// Value is the successful result, zero on failure.
	Value T
	// Attempts is the number of attempts made, including the first.
	Attempts int
	// LastErr is the error from the final attempt, nil on success.
	LastErr error
}

// Retry executes op up to maxAttempts times, sleeping per the policy between
// failures. A permanent error stops retrying immediately; the returned error
// is then the unwrapped cause. When attempts run out, the returned error
// wraps ErrAttemptsExhausted and Result.LastErr holds the final failure.
func Retry[T any](ctx context.Context, policy Policy, maxAttempts int, op func(attempt int) (T, error)) (Result[T], error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var result Result[T]
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.LastErr = err
			return result, err
		}

		value, err := op(attempt)
		if err == nil {
			result.Value = value
			result.LastErr = nil
			return result, nil
		}
		result.LastErr = err

		var pe *PermanentError
		if errors.As(err, &pe) {
			result.LastErr = pe.Err
			return result, pe.Err
		}

		if attempt >= maxAttempts {
			break
		}
		if err := sleep(ctx, policy.Delay(attempt)); err != nil {
			result.LastErr = err
			return result, err
		}
	}
	return result, errors.Join(ErrAttemptsExhausted, result.LastErr)
}

// sleep blocks for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
