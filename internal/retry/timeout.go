package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// WithTimeout races fn against a timer. On expiry it returns an error
// wrapping domain.ErrTimeout without waiting for fn to return, so it suits
// reads only. Writes that must not outlive the caller use WithDeadline.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	_, err := WithTimeoutValue(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTimeoutValue is WithTimeout for operations that return a value.
func WithTimeoutValue[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	type result struct {
		v   T
		err error
	}

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
			return zero, fmt.Errorf("after %s: %w: %v", d, domain.ErrTimeout, r.err)
		}
		return r.v, r.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("after %s: %w", d, domain.ErrTimeout)
	}
}

// WithDeadline runs fn on the calling goroutine under a context that
// expires after d. It always waits for fn to return, so no side effect of
// fn happens after WithDeadline does. An error caused by the deadline wraps
// domain.ErrTimeout.
func WithDeadline(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("after %s: %w: %v", d, domain.ErrTimeout, err)
	}
	return err
}
