package mocks

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// MockEmbeddingProvider is a mock implementation of EmbeddingProvider for testing.
// Vectors are deterministic per text so similarity searches are repeatable.
type MockEmbeddingProvider struct {
	mu         sync.Mutex
	dimensions int
	model      string
	calls      int
	batchSizes []int

	// FailTimes makes the next N calls return FailErr
	FailTimes int
	FailErr   error

	// EmbedFn overrides the default behaviour when set
	EmbedFn func(ctx context.Context, texts []string) (*driven.EmbeddingResponse, error)

	HealthFn func(ctx context.Context) error
}

// NewMockEmbeddingProvider creates a new MockEmbeddingProvider
func NewMockEmbeddingProvider() *MockEmbeddingProvider {
	return &MockEmbeddingProvider{
		dimensions: 8,
		model:      "mock-embedding-model",
	}
}

func (m *MockEmbeddingProvider) Embed(ctx context.Context, texts []string) (*driven.EmbeddingResponse, error) {
	m.mu.Lock()
	m.calls++
	m.batchSizes = append(m.batchSizes, len(texts))
	fn := m.EmbedFn
	if m.FailTimes > 0 {
		m.FailTimes--
		err := m.FailErr
		m.mu.Unlock()
		if err == nil {
			err = context.DeadlineExceeded
		}
		return nil, err
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.Vector(text)
	}
	return &driven.EmbeddingResponse{Vectors: vectors, Model: m.model}, nil
}

func (m *MockEmbeddingProvider) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingProvider) Model() string {
	return m.model
}

func (m *MockEmbeddingProvider) HealthCheck(ctx context.Context) error {
	if m.HealthFn != nil {
		return m.HealthFn(ctx)
	}
	return nil
}

func (m *MockEmbeddingProvider) Close() error {
	return nil
}

// Vector generates a deterministic unit vector based on text hash
func (m *MockEmbeddingProvider) Vector(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, m.dimensions)
	var norm float64
	for i := range embedding {
		seed = seed*1103515245 + 12345
		embedding[i] = float32(seed%1000)/1000.0 + 0.001
		norm += float64(embedding[i]) * float64(embedding[i])
	}
	norm = math.Sqrt(norm)
	for i := range embedding {
		embedding[i] = float32(float64(embedding[i]) / norm)
	}
	return embedding
}

// Helper methods for testing

func (m *MockEmbeddingProvider) SetDimensions(dim int) {
	m.dimensions = dim
}

func (m *MockEmbeddingProvider) SetModel(model string) {
	m.model = model
}

// Calls returns how many times Embed was called
func (m *MockEmbeddingProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// BatchSizes returns the input size of every Embed call
func (m *MockEmbeddingProvider) BatchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batchSizes...)
}
