package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorStore = (*Store)(nil)

const (
	defaultCollection = "docindex_chunks"
	scrollPageSize    = 256
	maxMessageSize    = 50 * 1024 * 1024

	// search over-fetch so dropping an older generation still fills the limit
	searchOverfetch = 2
)

// pointsAPI is the subset of *qdrant.Client the store uses
type pointsAPI interface {
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	ScrollAndOffset(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Config holds the Qdrant connection settings
type Config struct {
	Host       string
	Port       int
	UseTLS     bool
	APIKey     string
	Collection string
	Dimensions int
}

// Store implements driven.VectorStore on a single Qdrant collection.
// Tenants share the collection and are separated by an indexed owner_id payload.
type Store struct {
	client     pointsAPI
	collection string
	logger     *slog.Logger
}

// NewStore connects to Qdrant and ensures the collection and payload indexes exist
func NewStore(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: qdrant requires vector dimensions", domain.ErrInvalidInput)
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	if err := ensureCollection(ctx, client, cfg.Collection, cfg.Dimensions); err != nil {
		_ = client.Close()
		return nil, err
	}

	return newStore(client, cfg.Collection, logger), nil
}

func newStore(client pointsAPI, collection string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:     client,
		collection: collection,
		logger:     logger.With("component", "qdrant_store", "collection", collection),
	}
}

func ensureCollection(ctx context.Context, client *qdrant.Client, name string, dims int) error {
	exists, err := client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, classifyError(err))
	}
	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, classifyError(err))
		}
	}

	for _, field := range []string{fieldOwnerID, fieldFileID, fieldGeneration} {
		_, err := client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create %s index: %w", field, classifyError(err))
		}
	}
	return nil
}

// AddDocuments upserts chunks as points
func (s *Store) AddDocuments(ctx context.Context, ownerID string, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks to add", domain.ErrInvalidInput)
	}
	if err := checkOwnership(ownerID, "", chunks); err != nil {
		return err
	}
	return s.upsert(ctx, chunks)
}

// ReplaceFileDocuments writes the new generation, then deletes every other
// generation of the file. Searches collapse to the newest generation, so
// readers never see the two sets mixed.
func (s *Store) ReplaceFileDocuments(ctx context.Context, ownerID, fileID string, chunks []*domain.Chunk) error {
	if err := checkOwnership(ownerID, fileID, chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return s.deleteByFilter(ctx, fileFilter(ownerID, fileID))
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

	if err := s.upsert(ctx, chunks); err != nil {
		// drop whatever part of the new generation landed
		if cleanupErr := s.deleteByFilter(ctx, generationFilter(ownerID, fileID, generation)); cleanupErr != nil {
			s.logger.Warn("failed to remove partial generation", "owner_id", ownerID, "file_id", fileID, "generation", generation, "error", cleanupErr)
		}
		return err
	}

	stale := fileFilter(ownerID, fileID)
	stale.MustNot = []*qdrant.Condition{qdrant.NewMatchKeyword(fieldGeneration, generation)}
	return s.deleteByFilter(ctx, stale)
}

func (s *Store) upsert(ctx context.Context, chunks []*domain.Chunk) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		p, err := toPoint(c)
		if err != nil {
			return err
		}
		points = append(points, p)
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), classifyError(err))
	}
	return nil
}

func (s *Store) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", classifyError(err))
	}
	return nil
}

// SearchSimilar queries the owner's points by cosine similarity
func (s *Store) SearchSimilar(ctx context.Context, ownerID string, query []float32, opts domain.SearchOptions) ([]*domain.VectorSearchResult, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	filter := ownerFilter(ownerID)
	if len(opts.FileIDs) > 0 {
		filter.Must = append(filter.Must, qdrant.NewMatchKeywords(fieldFileID, opts.FileIDs...))
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(query),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(opts.Limit * searchOverfetch)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.Threshold > 0 {
		req.ScoreThreshold = qdrant.PtrOf(float32(opts.Threshold))
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", classifyError(err))
	}

	results := make([]*domain.VectorSearchResult, 0, len(points))
	for _, p := range points {
		c := chunkFromPayload(p.GetPayload())
		results = append(results, &domain.VectorSearchResult{
			ChunkID:    c.ID,
			OwnerID:    c.OwnerID,
			FileID:     c.FileID,
			Content:    c.Content,
			ChunkIndex: c.ChunkIndex,
			Metadata:   c.Metadata,
			Similarity: float64(p.GetScore()),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })

	return domain.RankResults(domain.KeepLatestGeneration(results), opts), nil
}

// DeleteUserDocuments removes one file's points, or all of the owner's when fileID is empty
func (s *Store) DeleteUserDocuments(ctx context.Context, ownerID, fileID string) error {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return err
	}
	if fileID == "" {
		return s.deleteByFilter(ctx, ownerFilter(ownerID))
	}
	return s.deleteByFilter(ctx, fileFilter(ownerID, fileID))
}

// ListFileChunks scrolls through a file's points, newest generation only
func (s *Store) ListFileChunks(ctx context.Context, ownerID, fileID string) ([]*domain.Chunk, error) {
	var chunks []*domain.Chunk
	var offset *qdrant.PointId
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         fileFilter(ownerID, fileID),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll points: %w", classifyError(err))
		}
		for _, p := range points {
			c := chunkFromPayload(p.GetPayload())
			c.Embedding = p.GetVectors().GetVector().GetDenseVector().GetData()
			chunks = append(chunks, c)
		}
		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}

	chunks = domain.KeepLatestChunks(chunks)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

// GetCollectionStats counts the owner's points
func (s *Store) GetCollectionStats(ctx context.Context, ownerID string) (*domain.CollectionStats, error) {
	n, err := s.count(ctx, ownerFilter(ownerID))
	if err != nil {
		return nil, err
	}
	return &domain.CollectionStats{
		DocumentCount: int(n),
		IsConnected:   true,
		Backend:       domain.VectorBackendQdrant,
	}, nil
}

func (s *Store) count(ctx context.Context, filter *qdrant.Filter) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", classifyError(err))
	}
	return n, nil
}

// IsConnected runs the Qdrant health check
func (s *Store) IsConnected(ctx context.Context) bool {
	_, err := s.client.HealthCheck(ctx)
	return err == nil
}

// GetConnectionStatus reports reachability without failing
func (s *Store) GetConnectionStatus(ctx context.Context) domain.ConnectionStatus {
	st := domain.ConnectionStatus{Backend: domain.VectorBackendQdrant, CheckedAt: time.Now()}
	if _, err := s.client.HealthCheck(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Connected = true
	return st
}

// ValidateUserAccess denies malformed ids and files stored only under another owner
func (s *Store) ValidateUserAccess(ctx context.Context, ownerID, resourceID string) error {
	if err := validateAccessIDs(ownerID, resourceID); err != nil || resourceID == "" {
		return err
	}

	mine, err := s.count(ctx, fileFilter(ownerID, resourceID))
	if err != nil {
		return err
	}
	if mine > 0 {
		return nil
	}

	others, err := s.count(ctx, &qdrant.Filter{
		Must:    []*qdrant.Condition{qdrant.NewMatchKeyword(fieldFileID, resourceID)},
		MustNot: []*qdrant.Condition{qdrant.NewMatchKeyword(fieldOwnerID, ownerID)},
	})
	if err != nil {
		return err
	}
	if others > 0 {
		return fmt.Errorf("%w: %s is not accessible to %s", domain.ErrAccessDenied, resourceID, ownerID)
	}
	return nil
}

// Backend names the implementation
func (s *Store) Backend() domain.VectorBackend {
	return domain.VectorBackendQdrant
}

// Close closes the gRPC connections
func (s *Store) Close() error {
	return s.client.Close()
}

func ownerFilter(ownerID string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatchKeyword(fieldOwnerID, ownerID)}}
}

func fileFilter(ownerID, fileID string) *qdrant.Filter {
	f := ownerFilter(ownerID)
	f.Must = append(f.Must, qdrant.NewMatchKeyword(fieldFileID, fileID))
	return f
}

func generationFilter(ownerID, fileID, generation string) *qdrant.Filter {
	f := fileFilter(ownerID, fileID)
	f.Must = append(f.Must, qdrant.NewMatchKeyword(fieldGeneration, generation))
	return f
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

// classifyError maps gRPC status codes onto domain errors
func classifyError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	var exhausted *qdrant.QdrantResourceExhaustedError
	if errors.As(err, &exhausted) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return err
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %w", domain.ErrAccessDenied, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %w", domain.ErrPermanent, err)
	}
	return err
}
