package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Ensure MockBatchEmbedder implements BatchEmbedder
var _ driven.BatchEmbedder = (*MockBatchEmbedder)(nil)

// MockBatchEmbedder wraps a MockEmbeddingProvider without retries or limits
type MockBatchEmbedder struct {
	Provider *MockEmbeddingProvider

	mu    sync.Mutex
	texts [][]string

	EmbedBatchFn func(ctx context.Context, texts []string) (*domain.EmbeddingBatchResult, error)
	EmbedOneFn   func(ctx context.Context, text string) ([]float32, error)
}

// NewMockBatchEmbedder creates a MockBatchEmbedder over a fresh provider
func NewMockBatchEmbedder() *MockBatchEmbedder {
	return &MockBatchEmbedder{Provider: NewMockEmbeddingProvider()}
}

func (m *MockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) (*domain.EmbeddingBatchResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, texts)
	m.mu.Unlock()

	if m.EmbedBatchFn != nil {
		return m.EmbedBatchFn(ctx, texts)
	}
	resp, err := m.Provider.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	tokens := 0
	for _, t := range texts {
		tokens += len(t) / 4
	}
	return &domain.EmbeddingBatchResult{
		Vectors: resp.Vectors,
		Tokens:  tokens,
		Model:   m.Provider.Model(),
		Batches: 1,
	}, nil
}

func (m *MockBatchEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedOneFn != nil {
		return m.EmbedOneFn(ctx, text)
	}
	resp, err := m.Provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return resp.Vectors[0], nil
}

func (m *MockBatchEmbedder) Model() string {
	return m.Provider.Model()
}

// Calls returns the texts of every EmbedBatch call
func (m *MockBatchEmbedder) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.texts...)
}
