package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// DocumentStore handles document registry persistence (PostgreSQL)
type DocumentStore interface {
	// Save creates or updates a document keyed by (owner, file)
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, ownerID, fileID string) (*domain.Document, error)

	// FindOwners returns the owners that hold a document with fileID
	FindOwners(ctx context.Context, fileID string) ([]string, error)

	// ListByOwner retrieves documents for an owner with pagination
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Document, error)

	// ListStale returns documents stuck in processing since before cutoff
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Document, error)

	// Delete deletes a document
	Delete(ctx context.Context, ownerID, fileID string) error

	// Stats aggregates document counts for an owner
	Stats(ctx context.Context, ownerID string) (*domain.ProcessingStats, error)

	// Ping checks the registry connection
	Ping(ctx context.Context) error
}

// ContentSource fetches the plain text of a stored file.
// Used when a reprocess request does not carry content.
type ContentSource interface {
	FetchContent(ctx context.Context, ownerID, fileID string) (string, error)
}
