package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// State is the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// BreakerConfig configures a CircuitBreaker
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // Consecutive failures that open the circuit
	RecoveryTimeout  time.Duration // Time spent open before a trial call is allowed
	SuccessThreshold int           // Trial successes needed to close again

	// OnStateChange is called outside the breaker lock
	OnStateChange func(name string, from, to State)

	Now    func() time.Time
	Logger *slog.Logger
}

// DefaultBreakerConfig returns the default breaker configuration
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 1,
	}
}

// CircuitBreaker rejects calls after repeated failures until the
// dependency has had time to recover.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	trial     bool // A half-open trial call is in flight
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	d := DefaultBreakerConfig(cfg.Name)
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = d.RecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = d.SuccessThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the current state
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn if the circuit allows it and records the outcome.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	from := b.state

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			b.mu.Unlock()
			return fmt.Errorf("%s: %w", b.cfg.Name, domain.ErrCircuitOpen)
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.trial = true
	case StateHalfOpen:
		if b.trial {
			b.mu.Unlock()
			return fmt.Errorf("%s: trial in progress: %w", b.cfg.Name, domain.ErrCircuitOpen)
		}
		b.trial = true
	}

	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return nil
}

func (b *CircuitBreaker) record(err error) {
	// Caller cancellation says nothing about the dependency
	if errors.Is(err, context.Canceled) {
		b.mu.Lock()
		b.trial = false
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	from := b.state

	switch b.state {
	case StateClosed:
		if err == nil {
			b.failures = 0
			break
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.trial = false
		if err != nil {
			b.open()
			break
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
		}
	}

	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// open must be called with mu held
func (b *CircuitBreaker) open() {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	b.successes = 0
}

func (b *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	b.cfg.Logger.Info("circuit breaker state change", "breaker", b.cfg.Name, "from", from.String(), "to", to.String())
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
