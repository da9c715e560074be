// Package retry provides exponential backoff, a circuit breaker and
// timeout racing for calls to external services.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// DefaultRetryableErrors are message fragments treated as transient
// when an error carries no domain classification.
var DefaultRetryableErrors = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
	"503",
	"502",
	"429",
}

// Config controls retry behaviour
type Config struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Upper bound for any single delay
	Multiplier  float64       // Growth factor between delays
	Jitter      float64       // Fraction of the delay added or removed at random

	// RetryableErrors are message fragments that mark an error as retryable
	RetryableErrors []string

	// Retryable overrides the default classification when set
	Retryable func(error) bool

	// OnRetry is called before sleeping for the next attempt
	OnRetry func(attempt int, delay time.Duration, err error)

	Logger *slog.Logger
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2,
		Jitter:          0.1,
		RetryableErrors: DefaultRetryableErrors,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.RetryableErrors == nil {
		c.RetryableErrors = d.RetryableErrors
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// ExhaustedError is returned when an operation gives up.
// Attempts counts every call made, including the first.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// DefaultRetryable classifies err using domain sentinels and context errors.
func DefaultRetryable(err error) bool {
	retryable, _ := classify(err)
	return retryable
}

// classify reports whether err is retryable and whether that answer
// came from a known sentinel.
func classify(err error) (retryable, known bool) {
	switch {
	case err == nil:
		return false, true
	case errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrCircuitOpen),
		errors.Is(err, domain.ErrPermanent),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrAccessDenied),
		errors.Is(err, domain.ErrInvariantViolation):
		return false, true
	case errors.Is(err, domain.ErrTransient),
		errors.Is(err, domain.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return true, true
	}
	return false, false
}

// IsRetryable reports whether err should be retried under this config.
func (c Config) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	if retryable, known := classify(err); known {
		return retryable
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range c.RetryableErrors {
		if fragment != "" && strings.Contains(msg, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

// Delay returns the backoff before retry number n (1-based), without jitter.
func (c Config) Delay(n int) time.Duration {
	c = c.withDefaults()
	d := float64(c.BaseDelay)
	for i := 1; i < n; i++ {
		d *= c.Multiplier
		if d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

func (c Config) jittered(d time.Duration) time.Duration {
	if c.Jitter == 0 || d <= 0 {
		return d
	}
	spread := float64(d) * c.Jitter
	j := time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	if j < 0 {
		return 0
	}
	return j
}

// Do calls fn until it succeeds, fails with a non-retryable error or
// MaxAttempts is reached.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				cfg.Logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return v, nil
		}

		if !cfg.IsRetryable(err) || attempt >= cfg.MaxAttempts {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := cfg.jittered(cfg.Delay(attempt))
		cfg.Logger.Debug("operation failed, will retry",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry interrupted after %d attempt(s): %w", attempt, errors.Join(ctx.Err(), err))
		case <-timer.C:
		}
	}
}
