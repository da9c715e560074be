package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// MockDocumentStore is a mock implementation of DocumentStore for testing
type MockDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document // key: ownerID/fileID

	SaveFn func(doc *domain.Document) error
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		documents: make(map[string]*domain.Document),
	}
}

func docKey(ownerID, fileID string) string {
	return ownerID + "/" + fileID
}

func (m *MockDocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(doc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	key := docKey(doc.OwnerID, doc.FileID)
	// a save without content keeps what the registry already holds
	if prev, ok := m.documents[key]; ok && cp.Content == "" && cp.ContentHash == prev.ContentHash {
		cp.Content = prev.Content
	}
	m.documents[key] = &cp
	return nil
}

// FetchContent returns the stored content of a document
func (m *MockDocumentStore) FetchContent(ctx context.Context, ownerID, fileID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[docKey(ownerID, fileID)]
	if !ok {
		return "", domain.ErrNotFound
	}
	return doc.Content, nil
}

func (m *MockDocumentStore) Get(ctx context.Context, ownerID, fileID string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[docKey(ownerID, fileID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	cp.Content = ""
	return &cp, nil
}

func (m *MockDocumentStore) FindOwners(ctx context.Context, fileID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var owners []string
	for _, doc := range m.documents {
		if doc.FileID == fileID {
			owners = append(owners, doc.OwnerID)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (m *MockDocumentStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []*domain.Document
	for _, doc := range m.documents {
		if doc.OwnerID == ownerID {
			cp := *doc
			docs = append(docs, &cp)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].FileID < docs[j].FileID })
	if offset >= len(docs) {
		return nil, nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

func (m *MockDocumentStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []*domain.Document
	for _, doc := range m.documents {
		if doc.Status == domain.DocumentStatusProcessing && doc.ProcessingStartedAt != nil && doc.ProcessingStartedAt.Before(cutoff) {
			cp := *doc
			docs = append(docs, &cp)
		}
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, ownerID, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := docKey(ownerID, fileID)
	if _, ok := m.documents[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.documents, key)
	return nil
}

func (m *MockDocumentStore) Stats(ctx context.Context, ownerID string) (*domain.ProcessingStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &domain.ProcessingStats{}
	for _, doc := range m.documents {
		if doc.OwnerID != ownerID {
			continue
		}
		stats.TotalDocuments++
		switch doc.Status {
		case domain.DocumentStatusCompleted:
			stats.ProcessedDocuments++
			stats.TotalChunks += doc.ChunkCount
		case domain.DocumentStatusFailed:
			stats.FailedDocuments++
		case domain.DocumentStatusPending:
			stats.PendingDocuments++
		case domain.DocumentStatusProcessing:
			stats.ProcessingDocuments++
		}
	}
	if stats.ProcessedDocuments > 0 {
		stats.AverageChunksPerDocument = float64(stats.TotalChunks) / float64(stats.ProcessedDocuments)
	}
	return stats, nil
}

func (m *MockDocumentStore) Ping(ctx context.Context) error {
	return nil
}

// Put stores a document directly (for test setup)
func (m *MockDocumentStore) Put(doc *domain.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.documents[docKey(doc.OwnerID, doc.FileID)] = &cp
}
