package mocks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// MockVectorStore is an in-memory VectorStore for testing
type MockVectorStore struct {
	mu        sync.RWMutex
	chunks    map[string][]*domain.Chunk // key: ownerID/fileID
	connected bool

	AddFn     func(ownerID string, chunks []*domain.Chunk) error
	ReplaceFn func(ownerID, fileID string, chunks []*domain.Chunk) error
	SearchFn  func(ownerID string, query []float32, opts domain.SearchOptions) ([]*domain.VectorSearchResult, error)
	DeleteFn  func(ownerID, fileID string) error
}

// NewMockVectorStore creates a connected MockVectorStore
func NewMockVectorStore() *MockVectorStore {
	return &MockVectorStore{
		chunks:    make(map[string][]*domain.Chunk),
		connected: true,
	}
}

func (m *MockVectorStore) AddDocuments(ctx context.Context, ownerID string, chunks []*domain.Chunk) error {
	if m.AddFn != nil {
		return m.AddFn(ownerID, chunks)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks", domain.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if c.OwnerID != ownerID {
			return domain.ErrAccessDenied
		}
	}
	for _, c := range chunks {
		key := docKey(ownerID, c.FileID)
		m.chunks[key] = append(m.chunks[key], c)
	}
	return nil
}

func (m *MockVectorStore) ReplaceFileDocuments(ctx context.Context, ownerID, fileID string, chunks []*domain.Chunk) error {
	if m.ReplaceFn != nil {
		return m.ReplaceFn(ownerID, fileID, chunks)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if c.OwnerID != ownerID || c.FileID != fileID {
			return domain.ErrAccessDenied
		}
	}
	if len(chunks) == 0 {
		delete(m.chunks, docKey(ownerID, fileID))
		return nil
	}
	m.chunks[docKey(ownerID, fileID)] = append([]*domain.Chunk(nil), chunks...)
	return nil
}

func (m *MockVectorStore) SearchSimilar(ctx context.Context, ownerID string, query []float32, opts domain.SearchOptions) ([]*domain.VectorSearchResult, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ownerID, query, opts)
	}
	opts = opts.Normalize()
	allowed := make(map[string]bool)
	for _, id := range opts.FileIDs {
		allowed[id] = true
	}

	m.mu.RLock()
	var results []*domain.VectorSearchResult
	for _, chunks := range m.chunks {
		for _, c := range chunks {
			if c.OwnerID != ownerID || (len(allowed) > 0 && !allowed[c.FileID]) {
				continue
			}
			results = append(results, &domain.VectorSearchResult{
				ChunkID:    c.ID,
				OwnerID:    c.OwnerID,
				FileID:     c.FileID,
				Content:    c.Content,
				ChunkIndex: c.ChunkIndex,
				Metadata:   c.Metadata,
				Similarity: cosine(query, c.Embedding),
			})
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	return domain.RankResults(results, opts), nil
}

func (m *MockVectorStore) DeleteUserDocuments(ctx context.Context, ownerID, fileID string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ownerID, fileID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if fileID != "" {
		delete(m.chunks, docKey(ownerID, fileID))
		return nil
	}
	for key, chunks := range m.chunks {
		if len(chunks) > 0 && chunks[0].OwnerID == ownerID {
			delete(m.chunks, key)
		}
	}
	return nil
}

func (m *MockVectorStore) ListFileChunks(ctx context.Context, ownerID, fileID string) ([]*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := append([]*domain.Chunk(nil), m.chunks[docKey(ownerID, fileID)]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

func (m *MockVectorStore) GetCollectionStats(ctx context.Context, ownerID string) (*domain.CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, chunks := range m.chunks {
		for _, c := range chunks {
			if c.OwnerID == ownerID {
				count++
			}
		}
	}
	return &domain.CollectionStats{DocumentCount: count, IsConnected: m.connected, Backend: "mock"}, nil
}

func (m *MockVectorStore) IsConnected(ctx context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MockVectorStore) GetConnectionStatus(ctx context.Context) domain.ConnectionStatus {
	return domain.ConnectionStatus{Connected: m.IsConnected(ctx), Backend: "mock", CheckedAt: time.Now()}
}

func (m *MockVectorStore) ValidateUserAccess(ctx context.Context, ownerID, resourceID string) error {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAccessDenied, err)
	}
	if resourceID == "" {
		return nil
	}
	if err := domain.ValidateFileID(resourceID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAccessDenied, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.chunks[docKey(ownerID, resourceID)]) > 0 {
		return nil
	}
	for _, chunks := range m.chunks {
		if len(chunks) > 0 && chunks[0].FileID == resourceID && chunks[0].OwnerID != ownerID {
			return domain.ErrAccessDenied
		}
	}
	return nil
}

func (m *MockVectorStore) Backend() domain.VectorBackend {
	return "mock"
}

func (m *MockVectorStore) Close() error {
	return nil
}

// SetConnected toggles reachability (for test setup)
func (m *MockVectorStore) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// ChunkCount returns the number of stored chunks for a file
func (m *MockVectorStore) ChunkCount(ownerID, fileID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[docKey(ownerID, fileID)])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
