package ai

import (
	"fmt"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

var _ driven.EmbeddingProviderFactory = (*Factory)(nil)

// Factory creates embedding providers based on configuration
type Factory struct{}

// NewFactory creates a new embedding provider factory
func NewFactory() *Factory {
	return &Factory{}
}

// CreateEmbeddingProvider creates an embedding provider from settings.
// Unknown providers fail with ErrInvalidProvider, missing credentials with ErrInvalidInput.
func (f *Factory) CreateEmbeddingProvider(settings *domain.EmbeddingSettings) (driven.EmbeddingProvider, error) {
	if settings == nil || settings.Provider == "" {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrInvalidProvider)
	}
	if !settings.Provider.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: %s requires an API key", domain.ErrInvalidInput, settings.Provider)
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		return NewOpenAIEmbedding(settings.APIKey, settings.Model, settings.BaseURL, WithDimensions(settings.Dimensions))
	case domain.AIProviderOllama:
		return NewOllamaEmbedding(settings.BaseURL, settings.Model, settings.Dimensions)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}
