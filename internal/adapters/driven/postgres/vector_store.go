package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorStore = (*VectorStore)(nil)

// VectorStore implements driven.VectorStore on the chunks table using pgvector.
// Similarity is 1 - cosine distance (the <=> operator).
type VectorStore struct {
	db         *DB
	dimensions int
}

// NewVectorStore creates a pgvector-backed store.
// A positive dimensions value enables the HNSW index built by EnsureIndex.
func NewVectorStore(db *DB, dimensions int) *VectorStore {
	return &VectorStore{db: db, dimensions: dimensions}
}

// EnsureIndex creates the cosine HNSW index for the configured dimension
func (s *VectorStore) EnsureIndex(ctx context.Context) error {
	if s.dimensions <= 0 {
		return nil
	}
	query := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding_%d ON chunks USING hnsw ((embedding::vector(%d)) vector_cosine_ops)`,
		s.dimensions, s.dimensions,
	)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create vector index: %w", classifyPGError(err))
	}
	return nil
}

// AddDocuments inserts chunks in one transaction
func (s *VectorStore) AddDocuments(ctx context.Context, ownerID string, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks to add", domain.ErrInvalidInput)
	}
	if err := checkChunkOwnership(ownerID, "", chunks); err != nil {
		return err
	}

	return classifyPGError(s.db.Transaction(ctx, func(tx *sql.Tx) error {
		return insertChunks(ctx, tx, chunks)
	}))
}

// ReplaceFileDocuments swaps a file's chunks inside a single transaction
func (s *VectorStore) ReplaceFileDocuments(ctx context.Context, ownerID, fileID string, chunks []*domain.Chunk) error {
	if err := checkChunkOwnership(ownerID, fileID, chunks); err != nil {
		return err
	}

	return classifyPGError(s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE owner_id = $1 AND file_id = $2`, ownerID, fileID); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return insertChunks(ctx, tx, chunks)
	}))
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []*domain.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, owner_id, file_id, chunk_index, content, start_position, end_position,
			token_count, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err = stmt.ExecContext(ctx,
			c.ID,
			c.OwnerID,
			c.FileID,
			c.ChunkIndex,
			c.Content,
			c.StartPosition,
			c.EndPosition,
			c.TokenCount,
			metadataJSON,
			pgvector.NewVector(c.Embedding),
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// SearchSimilar ranks the owner's chunks by cosine similarity
func (s *VectorStore) SearchSimilar(ctx context.Context, ownerID string, query []float32, opts domain.SearchOptions) ([]*domain.VectorSearchResult, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	distance := "embedding <=> $2"
	if s.dimensions > 0 && len(query) == s.dimensions {
		distance = fmt.Sprintf("embedding::vector(%d) <=> $2::vector(%d)", s.dimensions, s.dimensions)
	}

	q := `
		SELECT id, owner_id, file_id, content, chunk_index, metadata, 1 - (` + distance + `) AS similarity
		FROM chunks
		WHERE owner_id = $1
		  AND (cardinality($3::text[]) = 0 OR file_id = ANY($3))
		  AND 1 - (` + distance + `) >= $4
		ORDER BY ` + distance + ` ASC, file_id ASC, chunk_index ASC
		LIMIT $5
	`

	// pq encodes a nil slice as NULL
	fileIDs := opts.FileIDs
	if fileIDs == nil {
		fileIDs = []string{}
	}

	rows, err := s.db.QueryContext(ctx, q,
		ownerID,
		pgvector.NewVector(query),
		pq.Array(fileIDs),
		opts.Threshold,
		opts.Limit,
	)
	if err != nil {
		return nil, classifyPGError(err)
	}
	defer rows.Close()

	var results []*domain.VectorSearchResult
	for rows.Next() {
		var r domain.VectorSearchResult
		var metadataJSON []byte
		if err := rows.Scan(&r.ChunkID, &r.OwnerID, &r.FileID, &r.Content, &r.ChunkIndex, &metadataJSON, &r.Similarity); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &r.Metadata)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPGError(err)
	}

	return domain.RankResults(results, opts), nil
}

// DeleteUserDocuments removes one file's chunks, or all of the owner's when fileID is empty
func (s *VectorStore) DeleteUserDocuments(ctx context.Context, ownerID, fileID string) error {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return err
	}

	var err error
	if fileID == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM chunks WHERE owner_id = $1`, ownerID)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM chunks WHERE owner_id = $1 AND file_id = $2`, ownerID, fileID)
	}
	return classifyPGError(err)
}

// ListFileChunks returns a file's chunks ordered by index
func (s *VectorStore) ListFileChunks(ctx context.Context, ownerID, fileID string) ([]*domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, file_id, chunk_index, content, start_position, end_position,
			token_count, metadata, embedding, created_at
		FROM chunks
		WHERE owner_id = $1 AND file_id = $2
		ORDER BY chunk_index ASC
	`, ownerID, fileID)
	if err != nil {
		return nil, classifyPGError(err)
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var metadataJSON []byte
		var embedding pgvector.Vector
		err := rows.Scan(&c.ID, &c.OwnerID, &c.FileID, &c.ChunkIndex, &c.Content, &c.StartPosition,
			&c.EndPosition, &c.TokenCount, &metadataJSON, &embedding, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		c.Embedding = embedding.Slice()
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &c.Metadata)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// GetCollectionStats counts the owner's chunks
func (s *VectorStore) GetCollectionStats(ctx context.Context, ownerID string) (*domain.CollectionStats, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE owner_id = $1`, ownerID).Scan(&count); err != nil {
		return nil, classifyPGError(err)
	}
	return &domain.CollectionStats{
		DocumentCount: count,
		IsConnected:   true,
		Backend:       domain.VectorBackendPgvector,
	}, nil
}

// IsConnected pings the database
func (s *VectorStore) IsConnected(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// GetConnectionStatus reports reachability without failing
func (s *VectorStore) GetConnectionStatus(ctx context.Context) domain.ConnectionStatus {
	status := domain.ConnectionStatus{Backend: domain.VectorBackendPgvector, CheckedAt: time.Now()}
	if err := s.db.PingContext(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Connected = true
	return status
}

// ValidateUserAccess denies malformed ids and files stored only under another owner
func (s *VectorStore) ValidateUserAccess(ctx context.Context, ownerID, resourceID string) error {
	if err := validateAccessIDs(ownerID, resourceID); err != nil || resourceID == "" {
		return err
	}

	var mine, others bool
	err := s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM chunks WHERE file_id = $2 AND owner_id = $1),
			EXISTS (SELECT 1 FROM chunks WHERE file_id = $2 AND owner_id <> $1)
	`, ownerID, resourceID).Scan(&mine, &others)
	if err != nil {
		return classifyPGError(err)
	}
	if others && !mine {
		return fmt.Errorf("%w: %s is not accessible to %s", domain.ErrAccessDenied, resourceID, ownerID)
	}
	return nil
}

// Backend names the implementation
func (s *VectorStore) Backend() domain.VectorBackend {
	return domain.VectorBackendPgvector
}

// Close is a no-op; the shared pool is closed by its owner
func (s *VectorStore) Close() error {
	return nil
}

func checkChunkOwnership(ownerID, fileID string, chunks []*domain.Chunk) error {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAccessDenied, err)
	}
	for _, c := range chunks {
		if c.OwnerID != ownerID || (fileID != "" && c.FileID != fileID) {
			return fmt.Errorf("%w: chunk %s belongs to %s/%s", domain.ErrAccessDenied, c.ID, c.OwnerID, c.FileID)
		}
	}
	return nil
}

func validateAccessIDs(ownerID, resourceID string) error {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAccessDenied, err)
	}
	if resourceID == "" {
		return nil
	}
	if err := domain.ValidateFileID(resourceID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAccessDenied, err)
	}
	return nil
}

const foreignKeyViolation pq.ErrorCode = "23503"

// classifyPGError marks connection failures transient and chunks written
// for an unregistered document as not found
func classifyPGError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: document not registered: %w", domain.ErrNotFound, err)
	}
	if isTransientPGError(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
