package driven

import (
	"context"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// EmbeddingResponse is one provider call's output
type EmbeddingResponse struct {
	// Vectors are returned in input order
	Vectors [][]float32

	// PromptTokens is the provider-reported usage, 0 when unknown
	PromptTokens int

	// Model is the model that produced the vectors
	Model string
}

// EmbeddingProvider calls an external embedding API.
// Implementations must classify failures as domain.ErrTransient or domain.ErrPermanent.
type EmbeddingProvider interface {
	// Embed generates embeddings for multiple texts in a single request
	Embed(ctx context.Context, texts []string) (*EmbeddingResponse, error)

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// Model returns the model name being used
	Model() string

	// HealthCheck verifies the embedding service is available
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the embedding service
	Close() error
}

// BatchEmbedder embeds arbitrarily large inputs with rate limiting and retries.
type BatchEmbedder interface {
	// EmbedBatch embeds texts, preserving order and count
	EmbedBatch(ctx context.Context, texts []string) (*domain.EmbeddingBatchResult, error)

	// EmbedOne embeds a single text, typically a search query
	EmbedOne(ctx context.Context, text string) ([]float32, error)

	// Model returns the model name being used
	Model() string
}
