package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Ensure LangChainEmbedding implements EmbeddingProvider
var _ driven.EmbeddingProvider = (*LangChainEmbedding)(nil)

// Default dimensions for common Ollama embedding models
var ollamaModelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
}

// LangChainEmbedding adapts a langchaingo embedder to EmbeddingProvider.
// It reports no token usage; callers estimate from text length.
type LangChainEmbedding struct {
	embedder   *embeddings.EmbedderImpl
	model      string
	dimensions int
}

// NewOllamaEmbedding creates an embedding provider backed by a local Ollama server
func NewOllamaEmbedding(baseURL, model string, dimensions int) (*LangChainEmbedding, error) {
	if model == "" {
		model = "nomic-embed-text"
	}

	opts := []ollama.Option{ollama.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create ollama client: %v", domain.ErrInvalidInput, err)
	}

	return NewLangChainEmbedding(llm, model, dimensions)
}

// NewLangChainEmbedding wraps any langchaingo embedder client.
// Batching is left to the caller, so each Embed is one client call.
func NewLangChainEmbedding(client embeddings.EmbedderClient, model string, dimensions int) (*LangChainEmbedding, error) {
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(false),
		embeddings.WithBatchSize(1<<20),
	)
	if err != nil {
		return nil, err
	}

	if dimensions <= 0 {
		dimensions = ollamaModelDimensions[strings.SplitN(model, ":", 2)[0]]
	}

	return &LangChainEmbedding{
		embedder:   embedder,
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed generates embeddings for multiple texts
func (e *LangChainEmbedding) Embed(ctx context.Context, texts []string) (*driven.EmbeddingResponse, error) {
	if len(texts) == 0 {
		return &driven.EmbeddingResponse{Model: e.model}, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classifyLangChainError(err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d inputs", domain.ErrTransient, e.model, len(vectors), len(texts))
	}

	return &driven.EmbeddingResponse{Vectors: vectors, Model: e.model}, nil
}

// Dimensions returns the embedding dimension size, 0 when unknown
func (e *LangChainEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *LangChainEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *LangChainEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.Embed(ctx, []string{"health check"})
	return err
}

// Close is a no-op; the langchaingo client holds no closable resources
func (e *LangChainEmbedding) Close() error {
	return nil
}

// classifyLangChainError maps client failures onto the retry taxonomy.
// Missing models and bad requests are permanent, everything else transient.
func classifyLangChainError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"not found", "400 bad request", "401", "403", "invalid"} {
		if strings.Contains(msg, fragment) {
			return fmt.Errorf("%w: %w", domain.ErrPermanent, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrTransient, err)
}
