package driven

import (
	"github.com/custodia-labs/docindex/internal/core/domain"
)

// EmbeddingProviderFactory builds an EmbeddingProvider from settings.
type EmbeddingProviderFactory interface {
	// CreateEmbeddingProvider fails with ErrInvalidProvider for unknown
	// providers and ErrInvalidInput when credentials are missing.
	CreateEmbeddingProvider(settings *domain.EmbeddingSettings) (EmbeddingProvider, error)
}
