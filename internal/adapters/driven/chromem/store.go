package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorStore = (*Store)(nil)

const (
	collectionPrefix = "owner:"
	searchOverfetch  = 2
	maxQueryAttempts = 3
)

// Metadata keys
const (
	metaOwnerID        = "owner_id"
	metaFileID         = "file_id"
	metaChunkIndex     = "chunk_index"
	metaStartPosition  = "start_position"
	metaEndPosition    = "end_position"
	metaTokenCount     = "token_count"
	metaCreatedAt      = "created_at"
	metaFileName       = "file_name"
	metaMimeType       = "mime_type"
	metaSource         = "source"
	metaTitle          = "title"
	metaTags           = "tags"
	metaEmbeddingModel = "embedding_model"
	metaGeneration     = "generation"
)

var errNoEmbedding = errors.New("chunk embeddings are computed before storage")

// Config holds the embedded store settings
type Config struct {
	// Path persists collections as gob files; empty keeps everything in memory
	Path       string
	Compress   bool
	Dimensions int
}

// Store implements driven.VectorStore on an embedded chromem-go database.
// Each owner gets its own collection.
type Store struct {
	db     *chromem.DB
	dims   int
	logger *slog.Logger
}

// NewStore opens (or creates) the database
func NewStore(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: chromem requires vector dimensions", domain.ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create chromem directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	return &Store{
		db:     db,
		dims:   cfg.Dimensions,
		logger: logger.With("component", "chromem_store"),
	}, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

func collectionName(ownerID string) string {
	return collectionPrefix + ownerID
}

func (s *Store) collection(ownerID string) *chromem.Collection {
	return s.db.GetCollection(collectionName(ownerID), noEmbedding)
}

func (s *Store) collectionForWrite(ownerID string) (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(collectionName(ownerID), nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("open collection for %s: %w", ownerID, err)
	}
	return c, nil
}

// AddDocuments stores chunks in the owner's collection
func (s *Store) AddDocuments(ctx context.Context, ownerID string, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks to add", domain.ErrInvalidInput)
	}
	if err := checkOwnership(ownerID, "", chunks); err != nil {
		return err
	}
	return s.add(ctx, ownerID, chunks)
}

func (s *Store) add(ctx context.Context, ownerID string, chunks []*domain.Chunk) error {
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != s.dims {
			return fmt.Errorf("%w: chunk %s has %d dimensions, want %d", domain.ErrInvalidInput, c.ID, len(c.Embedding), s.dims)
		}
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  toMetadata(c),
			Embedding: c.Embedding,
		})
	}

	col, err := s.collectionForWrite(ownerID)
	if err != nil {
		return err
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	return nil
}

// ReplaceFileDocuments adds the new generation, then deletes the older ones.
// Searches collapse to the newest generation per file.
func (s *Store) ReplaceFileDocuments(ctx context.Context, ownerID, fileID string, chunks []*domain.Chunk) error {
	if err := checkOwnership(ownerID, fileID, chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return s.DeleteUserDocuments(ctx, ownerID, fileID)
	}

	generation := chunks[0].Metadata.Generation
	for _, c := range chunks {
		if c.Metadata.Generation != generation {
			return fmt.Errorf("%w: chunks of file %s span several generations", domain.ErrInvalidInput, fileID)
		}
	}
	if generation == "" {
		generation = uuid.Must(uuid.NewV7()).String()
		for _, c := range chunks {
			c.Metadata.Generation = generation
		}
	}

	existing, err := s.fileDocuments(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	if err := s.add(ctx, ownerID, chunks); err != nil {
		if col := s.collection(ownerID); col != nil {
			_ = col.Delete(ctx, map[string]string{metaFileID: fileID, metaGeneration: generation}, nil)
		}
		return err
	}

	old := make(map[string]struct{})
	for _, d := range existing {
		if g := d.Metadata[metaGeneration]; g != generation {
			old[g] = struct{}{}
		}
	}
	col := s.collection(ownerID)
	for g := range old {
		if err := col.Delete(ctx, map[string]string{metaFileID: fileID, metaGeneration: g}, nil); err != nil {
			return fmt.Errorf("delete generation %q of %s: %w", g, fileID, err)
		}
	}
	return nil
}

// fileDocuments returns every stored document of a file across generations
func (s *Store) fileDocuments(ctx context.Context, ownerID, fileID string) ([]chromem.Result, error) {
	col := s.collection(ownerID)
	if col == nil {
		return nil, nil
	}
	// any vector of the right size works when nResults covers the collection
	unit := make([]float32, s.dims)
	unit[0] = 1
	res, err := queryCollection(ctx, col, unit, 0, map[string]string{metaFileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("list documents of %s: %w", fileID, err)
	}
	return res, nil
}

// SearchSimilar ranks the owner's chunks by cosine similarity
func (s *Store) SearchSimilar(ctx context.Context, ownerID string, query []float32, opts domain.SearchOptions) ([]*domain.VectorSearchResult, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(query) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", domain.ErrInvalidInput, len(query), s.dims)
	}

	col := s.collection(ownerID)
	if col == nil {
		return []*domain.VectorSearchResult{}, nil
	}

	// metadata filters are equality only, so a file subset runs one query per file
	filters := []map[string]string{nil}
	if len(opts.FileIDs) > 0 {
		filters = filters[:0]
		for _, id := range opts.FileIDs {
			filters = append(filters, map[string]string{metaFileID: id})
		}
	}

	var results []*domain.VectorSearchResult
	for _, where := range filters {
		res, err := queryCollection(ctx, col, query, opts.Limit*searchOverfetch, where)
		if err != nil {
			return nil, fmt.Errorf("query collection: %w", err)
		}
		for _, r := range res {
			c := fromDocument(r.ID, r.Content, r.Metadata)
			results = append(results, &domain.VectorSearchResult{
				ChunkID:    c.ID,
				OwnerID:    c.OwnerID,
				FileID:     c.FileID,
				Content:    c.Content,
				ChunkIndex: c.ChunkIndex,
				Metadata:   c.Metadata,
				Similarity: float64(r.Similarity),
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })

	return domain.RankResults(domain.KeepLatestGeneration(results), opts), nil
}

// queryCollection runs a nearest-neighbour query for up to limit documents,
// or the whole collection when limit is zero. chromem rejects nResults above
// the collection size, so a delete landing between Count and the query is
// retried with a fresh count.
func queryCollection(ctx context.Context, col *chromem.Collection, vec []float32, limit int, where map[string]string) ([]chromem.Result, error) {
	for attempt := 1; ; attempt++ {
		count := col.Count()
		n := count
		if limit > 0 {
			n = min(limit, count)
		}
		if n == 0 {
			return nil, nil
		}
		res, err := col.QueryEmbedding(ctx, vec, n, where, nil)
		if err == nil || attempt == maxQueryAttempts || col.Count() == count {
			return res, err
		}
	}
}

// DeleteUserDocuments removes one file's chunks, or the owner's whole collection when fileID is empty
func (s *Store) DeleteUserDocuments(ctx context.Context, ownerID, fileID string) error {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return err
	}
	if fileID == "" {
		if err := s.db.DeleteCollection(collectionName(ownerID)); err != nil {
			return fmt.Errorf("delete collection of %s: %w", ownerID, err)
		}
		return nil
	}

	col := s.collection(ownerID)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, map[string]string{metaFileID: fileID}, nil); err != nil {
		return fmt.Errorf("delete %s: %w", fileID, err)
	}
	return nil
}

// ListFileChunks returns a file's newest-generation chunks ordered by index
func (s *Store) ListFileChunks(ctx context.Context, ownerID, fileID string) ([]*domain.Chunk, error) {
	docs, err := s.fileDocuments(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	chunks := make([]*domain.Chunk, 0, len(docs))
	for _, d := range docs {
		c := fromDocument(d.ID, d.Content, d.Metadata)
		c.Embedding = d.Embedding
		chunks = append(chunks, c)
	}
	chunks = domain.KeepLatestChunks(chunks)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

// GetCollectionStats counts the owner's chunks
func (s *Store) GetCollectionStats(_ context.Context, ownerID string) (*domain.CollectionStats, error) {
	count := 0
	if col := s.collection(ownerID); col != nil {
		count = col.Count()
	}
	return &domain.CollectionStats{
		DocumentCount: count,
		IsConnected:   true,
		Backend:       domain.VectorBackendChromem,
	}, nil
}

// IsConnected is always true for the embedded database
func (s *Store) IsConnected(context.Context) bool {
	return true
}

// GetConnectionStatus reports the embedded database as connected
func (s *Store) GetConnectionStatus(context.Context) domain.ConnectionStatus {
	return domain.ConnectionStatus{Connected: true, Backend: domain.VectorBackendChromem, CheckedAt: time.Now()}
}

// ValidateUserAccess denies malformed ids and files stored only under another owner
func (s *Store) ValidateUserAccess(ctx context.Context, ownerID, resourceID string) error {
	if err := validateAccessIDs(ownerID, resourceID); err != nil || resourceID == "" {
		return err
	}

	mine, err := s.fileDocuments(ctx, ownerID, resourceID)
	if err != nil {
		return err
	}
	if len(mine) > 0 {
		return nil
	}

	for name := range s.db.ListCollections() {
		other, ok := strings.CutPrefix(name, collectionPrefix)
		if !ok || other == ownerID {
			continue
		}
		docs, err := s.fileDocuments(ctx, other, resourceID)
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return fmt.Errorf("%w: %s is not accessible to %s", domain.ErrAccessDenied, resourceID, ownerID)
		}
	}
	return nil
}

// Backend names the implementation
func (s *Store) Backend() domain.VectorBackend {
	return domain.VectorBackendChromem
}

// Close is a no-op; persistent collections are written on every change
func (s *Store) Close() error {
	return nil
}

func toMetadata(c *domain.Chunk) map[string]string {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	m := map[string]string{
		metaOwnerID:        c.OwnerID,
		metaFileID:         c.FileID,
		metaChunkIndex:     strconv.Itoa(c.ChunkIndex),
		metaStartPosition:  strconv.Itoa(c.StartPosition),
		metaEndPosition:    strconv.Itoa(c.EndPosition),
		metaTokenCount:     strconv.Itoa(c.TokenCount),
		metaCreatedAt:      createdAt.UTC().Format(time.RFC3339Nano),
		metaFileName:       c.Metadata.FileName,
		metaMimeType:       c.Metadata.MimeType,
		metaSource:         c.Metadata.Source,
		metaTitle:          c.Metadata.Title,
		metaEmbeddingModel: c.Metadata.EmbeddingModel,
		metaGeneration:     c.Metadata.Generation,
	}
	if len(c.Metadata.Tags) > 0 {
		tags, _ := json.Marshal(c.Metadata.Tags)
		m[metaTags] = string(tags)
	}
	return m
}

func fromDocument(id, content string, m map[string]string) *domain.Chunk {
	num := func(k string) int {
		n, _ := strconv.Atoi(m[k])
		return n
	}
	c := &domain.Chunk{
		ID:            id,
		OwnerID:       m[metaOwnerID],
		FileID:        m[metaFileID],
		Content:       content,
		ChunkIndex:    num(metaChunkIndex),
		StartPosition: num(metaStartPosition),
		EndPosition:   num(metaEndPosition),
		TokenCount:    num(metaTokenCount),
		Metadata: domain.ChunkMetadata{
			FileName:       m[metaFileName],
			MimeType:       m[metaMimeType],
			Source:         m[metaSource],
			Title:          m[metaTitle],
			EmbeddingModel: m[metaEmbeddingModel],
			Generation:     m[metaGeneration],
		},
	}
	if raw := m[metaTags]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &c.Metadata.Tags)
	}
	if t, err := time.Parse(time.RFC3339Nano, m[metaCreatedAt]); err == nil {
		c.CreatedAt = t
	}
	return c
}

func checkOwnership(ownerID, fileID string, chunks []*domain.Chunk) error {
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
