package timeout

import (
	"context"
	"errors"
	"time"
)

// TimeoutConfig holds per-boundary timeouts
type TimeoutConfig struct {
	Connect time.Duration
	Query   time.Duration
	Write   time.Duration
	Redis   time.Duration
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Connect: 30 * time.Second,
		Query:   10 * time.Second,
		Write:   60 * time.Second,
		Redis:   2 * time.Second,
	}
}

// WithTimeout creates a context with timeout
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// Run executes fn under a deadline and returns as soon as either fn finishes
// or the deadline passes, even if fn ignores its context. On expiry the
// returned error is the context error (context.DeadlineExceeded or
// context.Canceled); fn keeps running in the background and its result is
// dropped.
func Run[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	timeoutCtx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	resultChan := make(chan result, 1)

	go func() {
		v, err := fn(timeoutCtx)
		resultChan <- result{v, err}
	}()

	select {
	case r := <-resultChan:
		return r.value, r.err
	case <-timeoutCtx.Done():
		var zero T
		return zero, timeoutCtx.Err()
	}
}

// IsDeadline reports whether err is a deadline expiry
func IsDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
