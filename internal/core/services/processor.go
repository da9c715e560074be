package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
	"github.com/custodia-labs/docindex/internal/core/ports/driving"
	"github.com/custodia-labs/docindex/internal/embedding"
	"github.com/custodia-labs/docindex/internal/retry"
)

// Ensure DocumentProcessor implements driving.DocumentProcessor
var _ driving.DocumentProcessor = (*DocumentProcessor)(nil)

const (
	DefaultBatchConcurrency = 3
	DefaultStaleAfter       = 30 * time.Minute
	DefaultLockTTL          = 10 * time.Minute
	DefaultStoreTimeout     = 30 * time.Second

	staleBatchSize = 500
	staleReason    = "processing timed out"
)

// ProcessorConfig holds the collaborators and tuning of a DocumentProcessor
type ProcessorConfig struct {
	Documents driven.DocumentStore
	Vectors   driven.VectorStore
	Embedder  driven.BatchEmbedder
	Pipeline  driven.PostProcessorPipeline

	Lock        driven.DistributedLock    // Optional: serialises indexing of one document across processes
	Usage       driven.UsageSink          // Optional: defaults to a LogUsageSink
	Content     driven.ContentSource      // Optional: used by reprocess when no content is given
	Normalisers driven.NormaliserRegistry // Optional: converts content to plain text by MIME type
	Metrics     driven.Metrics
	Logger      *slog.Logger

	BatchConcurrency int
	StaleAfter       time.Duration
	LockTTL          time.Duration
	StoreTimeout     time.Duration
}

// DocumentProcessor chunks, embeds and stores user documents
type DocumentProcessor struct {
	documents driven.DocumentStore
	vectors   driven.VectorStore
	embedder  driven.BatchEmbedder
	pipeline  driven.PostProcessorPipeline
	lock      driven.DistributedLock
	usage     driven.UsageSink
	content   driven.ContentSource
	normalise driven.NormaliserRegistry
	metrics   driven.Metrics
	logger    *slog.Logger

	pool         *ants.Pool
	staleAfter   time.Duration
	lockTTL      time.Duration
	storeTimeout time.Duration
}

// NewDocumentProcessor creates a DocumentProcessor. Close releases its worker pool.
func NewDocumentProcessor(cfg ProcessorConfig) (*DocumentProcessor, error) {
	if cfg.Documents == nil || cfg.Vectors == nil || cfg.Embedder == nil || cfg.Pipeline == nil {
		return nil, fmt.Errorf("%w: documents, vectors, embedder and pipeline are required", domain.ErrInvalidInput)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = driven.NopMetrics{}
	}
	if cfg.Usage == nil {
		cfg.Usage = NewLogUsageSink(cfg.Logger)
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}

	pool, err := ants.NewPool(cfg.BatchConcurrency)
	if err != nil {
		return nil, fmt.Errorf("create batch pool: %w", err)
	}

	return &DocumentProcessor{
		documents:    cfg.Documents,
		vectors:      cfg.Vectors,
		embedder:     cfg.Embedder,
		pipeline:     cfg.Pipeline,
		lock:         cfg.Lock,
		usage:        cfg.Usage,
		content:      cfg.Content,
		normalise:    cfg.Normalisers,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With("component", "processor"),
		pool:         pool,
		staleAfter:   cfg.StaleAfter,
		lockTTL:      cfg.LockTTL,
		storeTimeout: cfg.StoreTimeout,
	}, nil
}

// Close releases the batch worker pool
func (p *DocumentProcessor) Close() {
	p.pool.Release()
}

// ProcessDocument runs the full indexing pipeline for one document
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req driving.ProcessRequest) (*driving.ProcessOutcome, error) {
	if err := validateIDs(req.OwnerID, req.FileID); err != nil {
		return nil, &domain.ProcessingError{OwnerID: req.OwnerID, FileID: req.FileID, Stage: domain.StageValidate, Err: err}
	}

	unlock, err := p.acquire(ctx, req.OwnerID, req.FileID)
	if err != nil {
		return nil, &domain.ProcessingError{OwnerID: req.OwnerID, FileID: req.FileID, Stage: domain.StageValidate, Err: err}
	}
	defer unlock()

	return p.process(ctx, req)
}

// plainText runs the normaliser registered for mimeType, if any
func (p *DocumentProcessor) plainText(mimeType, content string) (string, error) {
	if p.normalise == nil {
		return content, nil
	}
	n := p.normalise.Get(mimeType)
	if n == nil {
		return content, nil
	}
	text, err := n.Normalise(content, mimeType)
	if err != nil {
		return "", fmt.Errorf("normalise %s content: %w", mimeType, err)
	}
	return text, nil
}

// process assumes the document lock is held
func (p *DocumentProcessor) process(ctx context.Context, req driving.ProcessRequest) (*driving.ProcessOutcome, error) {
	start := time.Now()
	logger := p.logger.With("owner_id", req.OwnerID, "file_id", req.FileID)

	doc, err := p.documents.Get(ctx, req.OwnerID, req.FileID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		doc = domain.NewDocument(req.OwnerID, req.FileID, req.FileName, req.MimeType, req.Metadata)
	case err != nil:
		return nil, &domain.ProcessingError{OwnerID: req.OwnerID, FileID: req.FileID, Stage: domain.StageValidate, Err: err}
	default:
		if req.FileName != "" {
			doc.FileName = req.FileName
		}
		if req.MimeType != "" {
			doc.MimeType = req.MimeType
		}
		if !isZeroMetadata(req.Metadata) {
			doc.Metadata = req.Metadata
		}
	}

	hash := domain.ContentHash(req.Content)
	if !req.Force && doc.Unchanged(hash, p.embedder.Model()) {
		logger.Debug("content unchanged, skipping")
		p.metrics.ObserveProcessing("skipped", doc.ChunkCount, time.Since(start))
		return &driving.ProcessOutcome{Document: doc, Skipped: true, Chunks: doc.ChunkCount}, nil
	}

	doc.Content = req.Content
	doc.MarkProcessing()
	if err := p.documents.Save(ctx, doc); err != nil {
		return nil, p.fail(ctx, doc, domain.StageValidate, err, start)
	}

	text, err := p.plainText(doc.MimeType, req.Content)
	if err != nil {
		return nil, p.fail(ctx, doc, domain.StageChunk, err, start)
	}

	pieces := p.pipeline.Process(text)
	if len(pieces) == 0 {
		logger.Info("document produced no chunks")
		if err := p.extend(ctx, doc.OwnerID, doc.FileID); err != nil {
			return nil, p.fail(ctx, doc, domain.StageStore, err, start)
		}
		if err := retry.WithDeadline(ctx, p.storeTimeout, func(ctx context.Context) error {
			return p.vectors.ReplaceFileDocuments(ctx, doc.OwnerID, doc.FileID, nil)
		}); err != nil {
			return nil, p.fail(ctx, doc, domain.StageStore, err, start)
		}
		return p.complete(ctx, doc, nil, &domain.EmbeddingBatchResult{Model: p.embedder.Model()}, hash, "", start)
	}

	texts := make([]string, len(pieces))
	for i, c := range pieces {
		texts[i] = c.Content
	}

	if err := p.extend(ctx, doc.OwnerID, doc.FileID); err != nil {
		return nil, p.fail(ctx, doc, domain.StageEmbed, err, start)
	}

	embedded, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, p.fail(ctx, doc, domain.StageEmbed, err, start)
	}
	if len(embedded.Vectors) != len(pieces) {
		logger.Error("embedding count mismatch",
			"severity", "critical",
			"chunks", len(pieces),
			"vectors", len(embedded.Vectors),
		)
		err := fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrInvariantViolation, len(pieces), len(embedded.Vectors))
		return nil, p.fail(ctx, doc, domain.StageEmbed, err, start)
	}

	generation := uuid.Must(uuid.NewV7()).String()
	chunks := p.buildChunks(doc, pieces, embedded, generation)

	if err := p.extend(ctx, doc.OwnerID, doc.FileID); err != nil {
		return nil, p.fail(ctx, doc, domain.StageStore, err, start)
	}
	if err := retry.WithDeadline(ctx, p.storeTimeout, func(ctx context.Context) error {
		return p.vectors.ReplaceFileDocuments(ctx, doc.OwnerID, doc.FileID, chunks)
	}); err != nil {
		return nil, p.fail(ctx, doc, domain.StageStore, err, start)
	}

	return p.complete(ctx, doc, chunks, embedded, hash, generation, start)
}

func (p *DocumentProcessor) buildChunks(doc *domain.Document, pieces []driven.Chunk, embedded *domain.EmbeddingBatchResult, generation string) []*domain.Chunk {
	now := time.Now()
	meta := domain.ChunkMetadata{
		FileName:       doc.FileName,
		MimeType:       doc.MimeType,
		Source:         doc.Metadata.Source,
		Title:          doc.Metadata.Title,
		Tags:           slices.Clone(doc.Metadata.Tags),
		EmbeddingModel: embedded.Model,
		Generation:     generation,
	}

	chunks := make([]*domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &domain.Chunk{
			ID:            uuid.NewString(),
			OwnerID:       doc.OwnerID,
			FileID:        doc.FileID,
			Content:       piece.Content,
			ChunkIndex:    i,
			StartPosition: piece.StartOffset,
			EndPosition:   piece.EndOffset,
			TokenCount:    embedding.EstimateTokens([]string{piece.Content}),
			Embedding:     embedded.Vectors[i],
			Metadata:      meta,
			CreatedAt:     now,
		}
	}
	return chunks
}

func (p *DocumentProcessor) complete(ctx context.Context, doc *domain.Document, chunks []*domain.Chunk, embedded *domain.EmbeddingBatchResult, hash, generation string, start time.Time) (*driving.ProcessOutcome, error) {
	doc.MarkCompleted(domain.CompletionInfo{
		ChunkCount:     len(chunks),
		EmbeddingModel: embedded.Model,
		TokensUsed:     embedded.Tokens,
		Cost:           embedded.Cost,
		ContentHash:    hash,
		Generation:     generation,
	})
	if err := p.documents.Save(ctx, doc); err != nil {
		return nil, p.fail(ctx, doc, domain.StageFinalize, err, start)
	}

	duration := time.Since(start)
	p.metrics.ObserveProcessing("completed", len(chunks), duration)
	p.recordUsage(ctx, domain.UsageEvent{
		OwnerID:   doc.OwnerID,
		Operation: domain.UsageOperationProcess,
		FileID:    doc.FileID,
		Tokens:    embedded.Tokens,
		Cost:      embedded.Cost,
		Model:     embedded.Model,
		Success:   true,
	})
	p.logger.Info("document processed",
		"owner_id", doc.OwnerID,
		"file_id", doc.FileID,
		"chunks", len(chunks),
		"tokens", embedded.Tokens,
		"duration", duration,
	)

	return &driving.ProcessOutcome{
		Document: doc,
		Chunks:   len(chunks),
		Tokens:   embedded.Tokens,
		Cost:     embedded.Cost,
	}, nil
}

// fail marks the document failed (best effort) and wraps err.
// A cancelled run leaves the document processing for stale recovery, and a
// run that lost its lock leaves the registry to the run that holds it.
func (p *DocumentProcessor) fail(ctx context.Context, doc *domain.Document, stage domain.ProcessingStage, err error, start time.Time) error {
	logger := p.logger.With("owner_id", doc.OwnerID, "file_id", doc.FileID, "stage", stage)

	if ctx.Err() == nil && !errors.Is(err, domain.ErrIndexingInProgress) {
		doc.MarkFailed(err.Error())
		if saveErr := p.documents.Save(context.WithoutCancel(ctx), doc); saveErr != nil {
			logger.Warn("failed to mark document failed", "error", saveErr)
		}
	}

	if errors.Is(err, domain.ErrInvariantViolation) {
		logger.Error("processing invariant violated", "severity", "critical", "error", err)
	} else {
		logger.Error("document processing failed", "error", err)
	}

	p.metrics.ObserveProcessing("failed", 0, time.Since(start))
	p.recordUsage(ctx, domain.UsageEvent{
		OwnerID:   doc.OwnerID,
		Operation: domain.UsageOperationProcess,
		FileID:    doc.FileID,
		Model:     p.embedder.Model(),
		Success:   false,
		Error:     err.Error(),
	})

	return &domain.ProcessingError{OwnerID: doc.OwnerID, FileID: doc.FileID, Stage: stage, Err: err}
}

// SearchDocuments never fails; errors are logged and yield no results
func (p *DocumentProcessor) SearchDocuments(ctx context.Context, ownerID, query string, opts domain.SearchOptions) []*domain.VectorSearchResult {
	start := time.Now()
	empty := []*domain.VectorSearchResult{}
	logger := p.logger.With("owner_id", ownerID)

	failed := func(msg string, err error) []*domain.VectorSearchResult {
		logger.Warn(msg, "error", err)
		p.metrics.ObserveSearch(0, time.Since(start), true)
		p.recordUsage(ctx, domain.UsageEvent{
			OwnerID:   ownerID,
			Operation: domain.UsageOperationSearch,
			Model:     p.embedder.Model(),
			Error:     errString(err),
		})
		return empty
	}

	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return failed("invalid search owner", err)
	}
	if strings.TrimSpace(query) == "" {
		return failed("empty search query", fmt.Errorf("%w: empty query", domain.ErrInvalidInput))
	}
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return failed("invalid search options", err)
	}
	if !p.vectors.IsConnected(ctx) {
		return failed("vector store not connected", domain.ErrNotConnected)
	}

	vector, err := p.embedder.EmbedOne(ctx, query)
	if err != nil {
		return failed("failed to embed query", err)
	}

	results, err := retry.WithTimeoutValue(ctx, p.storeTimeout, func(ctx context.Context) ([]*domain.VectorSearchResult, error) {
		return p.vectors.SearchSimilar(ctx, ownerID, vector, opts)
	})
	if err != nil {
		return failed("vector search failed", err)
	}
	if results == nil {
		results = empty
	}

	tokens := embedding.EstimateTokens([]string{query})
	p.metrics.ObserveSearch(len(results), time.Since(start), false)
	p.recordUsage(ctx, domain.UsageEvent{
		OwnerID:   ownerID,
		Operation: domain.UsageOperationSearch,
		Tokens:    tokens,
		Cost:      embedding.CostFor(p.embedder.Model(), tokens),
		Model:     p.embedder.Model(),
		Success:   true,
	})
	return results
}

// DeleteDocument removes a document's vectors and registry entry
func (p *DocumentProcessor) DeleteDocument(ctx context.Context, ownerID, fileID string) error {
	err := p.deleteDocument(ctx, ownerID, fileID)

	p.recordUsage(ctx, domain.UsageEvent{
		OwnerID:   ownerID,
		Operation: domain.UsageOperationDelete,
		FileID:    fileID,
		Success:   err == nil,
		Error:     errString(err),
	})
	if err != nil {
		p.logger.Error("document deletion failed", "owner_id", ownerID, "file_id", fileID, "error", err)
		return &domain.DeletionError{OwnerID: ownerID, FileID: fileID, Err: err}
	}
	p.logger.Info("document deleted", "owner_id", ownerID, "file_id", fileID)
	return nil
}

func (p *DocumentProcessor) deleteDocument(ctx context.Context, ownerID, fileID string) error {
	if err := validateIDs(ownerID, fileID); err != nil {
		return err
	}
	if err := p.validateAccess(ctx, ownerID, fileID); err != nil {
		return err
	}

	unlock, err := p.acquire(ctx, ownerID, fileID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := retry.WithDeadline(ctx, p.storeTimeout, func(ctx context.Context) error {
		return p.vectors.DeleteUserDocuments(ctx, ownerID, fileID)
	}); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := p.documents.Delete(ctx, ownerID, fileID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete registry entry: %w", err)
	}
	return nil
}

// validateAccess treats the registry as authoritative and asks the store only about unregistered files
func (p *DocumentProcessor) validateAccess(ctx context.Context, ownerID, fileID string) error {
	_, err := p.documents.Get(ctx, ownerID, fileID)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	owners, err := p.documents.FindOwners(ctx, fileID)
	if err != nil {
		return err
	}
	if len(owners) > 0 {
		return fmt.Errorf("%w: %s is owned by another user", domain.ErrAccessDenied, fileID)
	}
	return p.vectors.ValidateUserAccess(ctx, ownerID, fileID)
}

// ReprocessDocument re-indexes an existing document
func (p *DocumentProcessor) ReprocessDocument(ctx context.Context, ownerID, fileID, content string, force bool) (*driving.ProcessOutcome, error) {
	if err := validateIDs(ownerID, fileID); err != nil {
		return nil, &domain.ProcessingError{OwnerID: ownerID, FileID: fileID, Stage: domain.StageValidate, Err: err}
	}

	unlock, err := p.acquire(ctx, ownerID, fileID)
	if err != nil {
		return nil, &domain.ProcessingError{OwnerID: ownerID, FileID: fileID, Stage: domain.StageValidate, Err: err}
	}
	defer unlock()

	doc, err := p.documents.Get(ctx, ownerID, fileID)
	if err != nil {
		return nil, &domain.ProcessingError{OwnerID: ownerID, FileID: fileID, Stage: domain.StageValidate, Err: err}
	}
	if doc.Status == domain.DocumentStatusCompleted && !force {
		p.logger.Debug("document already completed, reprocess skipped", "owner_id", ownerID, "file_id", fileID)
		return &driving.ProcessOutcome{Document: doc, Skipped: true, Chunks: doc.ChunkCount}, nil
	}

	if content == "" {
		if p.content == nil {
			err := fmt.Errorf("%w: no content given and no content source configured", domain.ErrInvalidInput)
			return nil, &domain.ProcessingError{OwnerID: ownerID, FileID: fileID, Stage: domain.StageValidate, Err: err}
		}
		content, err = p.content.FetchContent(ctx, ownerID, fileID)
		if err != nil {
			return nil, &domain.ProcessingError{OwnerID: ownerID, FileID: fileID, Stage: domain.StageValidate, Err: fmt.Errorf("fetch content: %w", err)}
		}
	}

	return p.process(ctx, driving.ProcessRequest{
		OwnerID: ownerID,
		FileID:  fileID,
		Content: content,
		Force:   true,
	})
}

// BatchProcessDocuments indexes docs on the shared pool. One failure never aborts the others.
func (p *DocumentProcessor) BatchProcessDocuments(ctx context.Context, ownerID string, docs []domain.BatchDocument) (*domain.BatchResult, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	errs := make([]error, len(docs))
	var wg sync.WaitGroup
	for i, d := range docs {
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			_, errs[i] = p.ProcessDocument(ctx, driving.ProcessRequest{
				OwnerID:  ownerID,
				FileID:   d.FileID,
				FileName: d.FileName,
				MimeType: d.MimeType,
				Content:  d.Content,
				Metadata: d.Metadata,
			})
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit: %w", submitErr)
		}
	}
	wg.Wait()

	result := &domain.BatchResult{Successful: []string{}, Failed: []domain.BatchFailure{}}
	for i, d := range docs {
		if errs[i] != nil {
			result.Failed = append(result.Failed, domain.BatchFailure{FileID: d.FileID, Error: errs[i].Error()})
			continue
		}
		result.Successful = append(result.Successful, d.FileID)
	}

	p.logger.Info("batch processed",
		"owner_id", ownerID,
		"successful", len(result.Successful),
		"failed", len(result.Failed),
	)
	return result, nil
}

// GetProcessingStats aggregates document state for an owner
func (p *DocumentProcessor) GetProcessingStats(ctx context.Context, ownerID string) (*domain.ProcessingStats, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	return p.documents.Stats(ctx, ownerID)
}

// GetDocument returns the registry entry of a document
func (p *DocumentProcessor) GetDocument(ctx context.Context, ownerID, fileID string) (*domain.Document, error) {
	if err := validateIDs(ownerID, fileID); err != nil {
		return nil, err
	}
	return p.documents.Get(ctx, ownerID, fileID)
}

// RecoverStale fails documents stuck in processing longer than the stale window.
// Documents whose lock is still held are left alone.
func (p *DocumentProcessor) RecoverStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-p.staleAfter)
	stale, err := p.documents.ListStale(ctx, cutoff, staleBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale documents: %w", err)
	}

	recovered := 0
	for _, doc := range stale {
		unlock, err := p.acquire(ctx, doc.OwnerID, doc.FileID)
		if err != nil {
			p.logger.Debug("stale document still locked", "owner_id", doc.OwnerID, "file_id", doc.FileID, "error", err)
			continue
		}
		doc.MarkFailed(staleReason)
		err = p.documents.Save(ctx, doc)
		unlock()
		if err != nil {
			p.logger.Warn("failed to recover stale document", "owner_id", doc.OwnerID, "file_id", doc.FileID, "error", err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		p.logger.Info("recovered stale documents", "count", recovered, "cutoff", cutoff)
	}
	return recovered, nil
}

// acquire takes the per-document indexing lock. The returned func releases it.
func (p *DocumentProcessor) acquire(ctx context.Context, ownerID, fileID string) (func(), error) {
	if p.lock == nil {
		return func() {}, nil
	}
	name := lockName(ownerID, fileID)
	ok, err := p.lock.Acquire(ctx, name, p.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrIndexingInProgress, ownerID, fileID)
	}
	return func() {
		if err := p.lock.Release(context.WithoutCancel(ctx), name); err != nil {
			p.logger.Warn("failed to release document lock", "lock", name, "error", err)
		}
	}, nil
}

// extend renews the document lock before a long stage so the TTL only has
// to cover one stage rather than the whole run.
func (p *DocumentProcessor) extend(ctx context.Context, ownerID, fileID string) error {
	if p.lock == nil {
		return nil
	}
	name := lockName(ownerID, fileID)
	if err := p.lock.Extend(ctx, name, p.lockTTL); err != nil {
		return fmt.Errorf("%w: lost %s: %v", domain.ErrIndexingInProgress, name, err)
	}
	return nil
}

func (p *DocumentProcessor) recordUsage(ctx context.Context, event domain.UsageEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.usage.Record(context.WithoutCancel(ctx), event); err != nil {
		p.logger.Warn("failed to record usage", "operation", event.Operation, "error", err)
	}
}

func lockName(ownerID, fileID string) string {
	return "index:" + ownerID + ":" + fileID
}

func validateIDs(ownerID, fileID string) error {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return err
	}
	return domain.ValidateFileID(fileID)
}

func isZeroMetadata(m domain.DocumentMetadata) bool {
	return m.Source == "" && m.SourceURL == "" && m.Title == "" &&
		m.Author == "" && m.Language == "" && len(m.Tags) == 0
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
