// Package embedding turns chunk text into vectors through an external
// provider, in rate-limited sub-batches with retries.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
	"github.com/custodia-labs/docindex/internal/retry"
)

// Ensure Generator implements the interface
var _ driven.BatchEmbedder = (*Generator)(nil)

const (
	DefaultBatchSize      = 100
	DefaultRequestTimeout = 60 * time.Second
)

// BatchError reports the sub-batch that failed an EmbedBatch call.
// No vectors from earlier sub-batches are returned alongside it.
type BatchError struct {
	BatchIndex      int
	Start, End      int // Half-open text range [Start, End)
	EstimatedTokens int
	Err             error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding sub-batch %d (texts %d-%d) failed: %v", e.BatchIndex, e.Start, e.End-1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// RetryAfterError is implemented by provider errors that carry a server-requested delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// GeneratorConfig holds the dependencies and tuning of a Generator
type GeneratorConfig struct {
	Provider driven.EmbeddingProvider
	Limiter  *RateLimiter // Shared across all callers; nil disables limiting
	Breaker  *retry.CircuitBreaker
	Metrics  driven.Metrics
	Logger   *slog.Logger

	BatchSize       int
	InterBatchDelay time.Duration
	RequestTimeout  time.Duration
	Retry           retry.Config
}

// Generator implements driven.BatchEmbedder
type Generator struct {
	provider driven.EmbeddingProvider
	limiter  *RateLimiter
	breaker  *retry.CircuitBreaker
	metrics  driven.Metrics
	logger   *slog.Logger

	batchSize       int
	interBatchDelay time.Duration
	requestTimeout  time.Duration
	retry           retry.Config
}

// NewGenerator creates a Generator
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", domain.ErrInvalidInput)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = driven.NopMetrics{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(RateLimitConfig{})
	}
	if cfg.Breaker == nil {
		breakerCfg := retry.DefaultBreakerConfig("embedding")
		metrics := cfg.Metrics
		breakerCfg.OnStateChange = func(name string, _, to retry.State) {
			metrics.SetCircuitState(name, int(to))
		}
		cfg.Breaker = retry.NewCircuitBreaker(breakerCfg)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	g := &Generator{
		provider:        cfg.Provider,
		limiter:         cfg.Limiter,
		breaker:         cfg.Breaker,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.With("component", "embedding"),
		batchSize:       cfg.BatchSize,
		interBatchDelay: cfg.InterBatchDelay,
		requestTimeout:  cfg.RequestTimeout,
		retry:           cfg.Retry,
	}

	onRetry := cfg.Retry.OnRetry
	g.retry.Logger = g.logger
	g.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.metrics.ObserveRetry("embed")
		var ra RetryAfterError
		if errors.As(err, &ra) {
			g.limiter.Backoff(ra.RetryAfter())
		}
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	return g, nil
}

// Model returns the provider's model name
func (g *Generator) Model() string {
	return g.provider.Model()
}

// Dimensions returns the provider's vector size
func (g *Generator) Dimensions() int {
	return g.provider.Dimensions()
}

// EmbedBatch embeds texts in sequential sub-batches.
// On success the result holds exactly len(texts) vectors in input order.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) (*domain.EmbeddingBatchResult, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", domain.ErrInvalidInput)
	}

	start := time.Now()
	model := g.provider.Model()
	vectors := make([][]float32, 0, len(texts))
	tokens := 0
	batches := 0

	for batchStart := 0; batchStart < len(texts); batchStart += g.batchSize {
		batchEnd := min(batchStart+g.batchSize, len(texts))
		batch := texts[batchStart:batchEnd]

		if batches > 0 && g.interBatchDelay > 0 {
			if err := sleep(ctx, g.interBatchDelay); err != nil {
				return nil, err
			}
		}

		resp, err := g.embedSubBatch(ctx, batch)
		if err != nil {
			batchErr := &BatchError{
				BatchIndex:      batches,
				Start:           batchStart,
				End:             batchEnd,
				EstimatedTokens: EstimateTokens(batch),
				Err:             err,
			}
			g.metrics.ObserveEmbedding(model, batches+1, tokens, 0, time.Since(start), batchErr)
			return nil, batchErr
		}

		vectors = append(vectors, resp.Vectors...)
		if resp.PromptTokens > 0 {
			tokens += resp.PromptTokens
		} else {
			tokens += EstimateTokens(batch)
		}
		if resp.Model != "" {
			model = resp.Model
		}
		batches++
	}

	if len(vectors) != len(texts) {
		err := fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrInvariantViolation, len(texts), len(vectors))
		g.logger.Error("embedding count mismatch", "severity", "critical", "expected", len(texts), "got", len(vectors))
		return nil, err
	}

	result := &domain.EmbeddingBatchResult{
		Vectors:        vectors,
		Tokens:         tokens,
		Model:          model,
		Cost:           CostFor(model, tokens),
		ProcessingTime: time.Since(start),
		Batches:        batches,
	}
	g.metrics.ObserveEmbedding(model, batches, tokens, result.Cost, result.ProcessingTime, nil)
	g.logger.Debug("embedded texts",
		"texts", len(texts),
		"batches", batches,
		"tokens", tokens,
		"duration", result.ProcessingTime,
	)
	return result, nil
}

// EmbedOne embeds a single text
func (g *Generator) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	resp, err := g.embedSubBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return resp.Vectors[0], nil
}

// embedSubBatch makes one provider call under the limiter, breaker,
// timeout and retry policy.
func (g *Generator) embedSubBatch(ctx context.Context, batch []string) (*driven.EmbeddingResponse, error) {
	return retry.DoValue(ctx, g.retry, func(ctx context.Context) (*driven.EmbeddingResponse, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var resp *driven.EmbeddingResponse
		err := g.breaker.Execute(ctx, func(ctx context.Context) error {
			r, err := retry.WithTimeoutValue(ctx, g.requestTimeout, func(ctx context.Context) (*driven.EmbeddingResponse, error) {
				return g.provider.Embed(ctx, batch)
			})
			if err != nil {
				return err
			}
			if r == nil || len(r.Vectors) != len(batch) {
				got := 0
				if r != nil {
					got = len(r.Vectors)
				}
				g.logger.Error("provider returned wrong vector count",
					"severity", "critical",
					"expected", len(batch),
					"got", got,
				)
				return fmt.Errorf("%w: provider returned %d vectors for %d texts", domain.ErrInvariantViolation, got, len(batch))
			}
			resp = r
			return nil
		})
		return resp, err
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
