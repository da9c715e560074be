package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.DocumentStore = (*DocumentStore)(nil)
	_ driven.ContentSource = (*DocumentStore)(nil)
)

// DocumentStore implements driven.DocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

const documentColumns = `owner_id, file_id, file_name, mime_type, status, metadata, content_hash,
	chunk_count, embedding_model, tokens_used, cost, generation, error,
	processing_started_at, processed_at, created_at, updated_at`

// Save creates or updates a document. An empty Content keeps the stored
// content unless the content hash changed with it.
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (` + documentColumns + `, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (owner_id, file_id) DO UPDATE SET
			content = CASE
				WHEN EXCLUDED.content <> '' OR EXCLUDED.content_hash <> documents.content_hash THEN EXCLUDED.content
				ELSE documents.content
			END,
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			content_hash = EXCLUDED.content_hash,
			chunk_count = EXCLUDED.chunk_count,
			embedding_model = EXCLUDED.embedding_model,
			tokens_used = EXCLUDED.tokens_used,
			cost = EXCLUDED.cost,
			generation = EXCLUDED.generation,
			error = EXCLUDED.error,
			processing_started_at = EXCLUDED.processing_started_at,
			processed_at = EXCLUDED.processed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		doc.OwnerID,
		doc.FileID,
		doc.FileName,
		doc.MimeType,
		string(doc.Status),
		metadataJSON,
		doc.ContentHash,
		doc.ChunkCount,
		doc.EmbeddingModel,
		doc.TokensUsed,
		doc.Cost,
		doc.Generation,
		doc.Error,
		NullTime(doc.ProcessingStartedAt),
		NullTime(doc.ProcessedAt),
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.Content,
	)
	if err != nil {
		return fmt.Errorf("save document %s/%s: %w", doc.OwnerID, doc.FileID, err)
	}
	return nil
}

// Get retrieves a document by owner and file
func (s *DocumentStore) Get(ctx context.Context, ownerID, fileID string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = $1 AND file_id = $2`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, ownerID, fileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FetchContent returns the content last submitted for a document
func (s *DocumentStore) FetchContent(ctx context.Context, ownerID, fileID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM documents WHERE owner_id = $1 AND file_id = $2`,
		ownerID, fileID,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch content %s/%s: %w", ownerID, fileID, err)
	}
	return content, nil
}

// FindOwners returns every owner holding fileID
func (s *DocumentStore) FindOwners(ctx context.Context, fileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id FROM documents WHERE file_id = $1 ORDER BY owner_id`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// ListByOwner retrieves documents for an owner, most recently updated first
func (s *DocumentStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1
		ORDER BY updated_at DESC, file_id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ListStale returns documents stuck in processing since before cutoff
func (s *DocumentStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = 'processing' AND processing_started_at < $1
		ORDER BY processing_started_at ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// Delete deletes a document
func (s *DocumentStore) Delete(ctx context.Context, ownerID, fileID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE owner_id = $1 AND file_id = $2`, ownerID, fileID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Stats aggregates document counts for an owner
func (s *DocumentStore) Stats(ctx context.Context, ownerID string) (*domain.ProcessingStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COALESCE(SUM(chunk_count) FILTER (WHERE status = 'completed'), 0)
		FROM documents
		WHERE owner_id = $1
	`

	var stats domain.ProcessingStats
	err := s.db.QueryRowContext(ctx, query, ownerID).Scan(
		&stats.TotalDocuments,
		&stats.ProcessedDocuments,
		&stats.FailedDocuments,
		&stats.PendingDocuments,
		&stats.ProcessingDocuments,
		&stats.TotalChunks,
	)
	if err != nil {
		return nil, err
	}
	if stats.ProcessedDocuments > 0 {
		stats.AverageChunksPerDocument = float64(stats.TotalChunks) / float64(stats.ProcessedDocuments)
	}
	return &stats, nil
}

// Ping checks the registry connection
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var metadataJSON []byte
	var startedAt, processedAt sql.NullTime

	err := row.Scan(
		&doc.OwnerID,
		&doc.FileID,
		&doc.FileName,
		&doc.MimeType,
		&status,
		&metadataJSON,
		&doc.ContentHash,
		&doc.ChunkCount,
		&doc.EmbeddingModel,
		&doc.TokensUsed,
		&doc.Cost,
		&doc.Generation,
		&doc.Error,
		&startedAt,
		&processedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Status = domain.DocumentStatus(status)
	doc.ProcessingStartedAt = TimePtr(startedAt)
	doc.ProcessedAt = TimePtr(processedAt)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s/%s: %w", doc.OwnerID, doc.FileID, err)
		}
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
