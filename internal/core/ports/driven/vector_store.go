package driven

import (
	"context"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// VectorStore persists chunk embeddings and answers similarity queries.
// Every operation is scoped to a single owner; implementations must never
// return or modify records belonging to another owner.
type VectorStore interface {
	// AddDocuments stores chunks for ownerID.
	// Returns domain.ErrInvalidInput for an empty slice and
	// domain.ErrAccessDenied if any chunk belongs to a different owner.
	AddDocuments(ctx context.Context, ownerID string, chunks []*domain.Chunk) error

	// ReplaceFileDocuments atomically swaps the chunks of one file.
	// Readers observe either the previous chunk set or the new one.
	ReplaceFileDocuments(ctx context.Context, ownerID, fileID string, chunks []*domain.Chunk) error

	// SearchSimilar returns chunks ordered by descending cosine similarity.
	SearchSimilar(ctx context.Context, ownerID string, query []float32, opts domain.SearchOptions) ([]*domain.VectorSearchResult, error)

	// DeleteUserDocuments removes the chunks of fileID, or every chunk
	// of ownerID when fileID is empty.
	DeleteUserDocuments(ctx context.Context, ownerID, fileID string) error

	// ListFileChunks returns the stored chunks of a file ordered by index.
	ListFileChunks(ctx context.Context, ownerID, fileID string) ([]*domain.Chunk, error)

	// GetCollectionStats reports the number of stored chunks for ownerID.
	GetCollectionStats(ctx context.Context, ownerID string) (*domain.CollectionStats, error)

	// IsConnected reports whether the backend is reachable. Never fails.
	IsConnected(ctx context.Context) bool

	// GetConnectionStatus returns connection details. Never fails.
	GetConnectionStatus(ctx context.Context) domain.ConnectionStatus

	// ValidateUserAccess returns domain.ErrAccessDenied if ownerID may not
	// access resourceID.
	ValidateUserAccess(ctx context.Context, ownerID, resourceID string) error

	// Backend names the implementation
	Backend() domain.VectorBackend

	// Close releases backend connections
	Close() error
}
