package driving

import (
	"context"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// ProcessRequest is the input to ProcessDocument
type ProcessRequest struct {
	OwnerID  string
	FileID   string
	FileName string
	MimeType string
	Content  string
	Metadata domain.DocumentMetadata

	// Force reprocesses even when the content hash is unchanged
	Force bool
}

// ProcessOutcome reports what ProcessDocument did
type ProcessOutcome struct {
	Document *domain.Document
	Skipped  bool // Content unchanged since the last successful run
	Chunks   int
	Tokens   int
	Cost     float64
}

// DocumentProcessor indexes, searches and removes user documents
type DocumentProcessor interface {
	// ProcessDocument chunks, embeds and stores a document
	ProcessDocument(ctx context.Context, req ProcessRequest) (*ProcessOutcome, error)

	// SearchDocuments returns the chunks most similar to query.
	// Never fails: errors are logged and an empty slice is returned.
	SearchDocuments(ctx context.Context, ownerID, query string, opts domain.SearchOptions) []*domain.VectorSearchResult

	// DeleteDocument removes a document and all of its vectors
	DeleteDocument(ctx context.Context, ownerID, fileID string) error

	// ReprocessDocument re-indexes an existing document.
	// Empty content is fetched from the configured ContentSource.
	ReprocessDocument(ctx context.Context, ownerID, fileID, content string, force bool) (*ProcessOutcome, error)

	// BatchProcessDocuments indexes several documents with bounded concurrency
	BatchProcessDocuments(ctx context.Context, ownerID string, docs []domain.BatchDocument) (*domain.BatchResult, error)

	// GetProcessingStats aggregates document state for an owner
	GetProcessingStats(ctx context.Context, ownerID string) (*domain.ProcessingStats, error)

	// GetDocument returns the registry entry of a document
	GetDocument(ctx context.Context, ownerID, fileID string) (*domain.Document, error)

	// RecoverStale fails documents stuck in processing. Returns how many were recovered.
	RecoverStale(ctx context.Context) (int, error)
}
