package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// DocumentStatus is the indexing state of a document
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsValid returns true if the status is one of the known states
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

// DocumentMetadata carries descriptive fields supplied by the caller
type DocumentMetadata struct {
	Source    string   `json:"source,omitempty"`     // e.g. "upload", "gdrive"
	SourceURL string   `json:"source_url,omitempty"` // Link back to the original file
	Title     string   `json:"title,omitempty"`
	Author    string   `json:"author,omitempty"`
	Language  string   `json:"language,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Document is a user-owned file tracked by the indexing pipeline
type Document struct {
	OwnerID  string           `json:"owner_id"`
	FileID   string           `json:"file_id"` // Unique per owner
	FileName string           `json:"file_name"`
	MimeType string           `json:"mime_type"`
	Status   DocumentStatus   `json:"status"`
	Metadata DocumentMetadata `json:"metadata"`

	// Populated by a successful run
	ContentHash    string  `json:"content_hash,omitempty"`
	ChunkCount     int     `json:"chunk_count"`
	EmbeddingModel string  `json:"embedding_model,omitempty"`
	TokensUsed     int     `json:"tokens_used"`
	Cost           float64 `json:"cost"`
	Generation     string  `json:"generation,omitempty"` // Run whose chunks are live

	Error string `json:"error,omitempty"`

	// Raw content of the latest submission, kept for reprocessing.
	// Registry listings leave it empty.
	Content string `json:"-"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewDocument creates a pending document
func NewDocument(ownerID, fileID, fileName, mimeType string, meta DocumentMetadata) *Document {
	now := time.Now()
	return &Document{
		OwnerID:   ownerID,
		FileID:    fileID,
		FileName:  fileName,
		MimeType:  mimeType,
		Status:    DocumentStatusPending,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the identifying fields of the document
func (d *Document) Validate() error {
	if err := ValidateOwnerID(d.OwnerID); err != nil {
		return err
	}
	if err := ValidateFileID(d.FileID); err != nil {
		return err
	}
	if d.Status != "" && !d.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, d.Status)
	}
	return nil
}

// MarkProcessing moves the document into the processing state
func (d *Document) MarkProcessing() {
	now := time.Now()
	d.Status = DocumentStatusProcessing
	d.ProcessingStartedAt = &now
	d.UpdatedAt = now
	d.Error = ""
}

// CompletionInfo summarises a successful indexing run
type CompletionInfo struct {
	ChunkCount     int
	EmbeddingModel string
	TokensUsed     int
	Cost           float64
	ContentHash    string
	Generation     string
}

// MarkCompleted records a successful run
func (d *Document) MarkCompleted(info CompletionInfo) {
	now := time.Now()
	d.Status = DocumentStatusCompleted
	d.ChunkCount = info.ChunkCount
	d.EmbeddingModel = info.EmbeddingModel
	d.TokensUsed = info.TokensUsed
	d.Cost = info.Cost
	d.ContentHash = info.ContentHash
	d.Generation = info.Generation
	d.Error = ""
	d.ProcessedAt = &now
	d.UpdatedAt = now
}

// MarkFailed records a failed run
func (d *Document) MarkFailed(reason string) {
	now := time.Now()
	d.Status = DocumentStatusFailed
	d.Error = reason
	d.UpdatedAt = now
}

// IsStale returns true if the document has been processing longer than maxAge
func (d *Document) IsStale(now time.Time, maxAge time.Duration) bool {
	if d.Status != DocumentStatusProcessing || d.ProcessingStartedAt == nil {
		return false
	}
	return now.Sub(*d.ProcessingStartedAt) > maxAge
}

// Unchanged returns true if a completed run already covers this content and model
func (d *Document) Unchanged(contentHash, model string) bool {
	return d.Status == DocumentStatusCompleted &&
		d.ContentHash != "" &&
		d.ContentHash == contentHash &&
		d.EmbeddingModel == model
}

// ContentHash returns the hex sha256 of content
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ChunkMetadata is copied onto every stored chunk
type ChunkMetadata struct {
	FileName       string   `json:"file_name,omitempty"`
	MimeType       string   `json:"mime_type,omitempty"`
	Source         string   `json:"source,omitempty"`
	Title          string   `json:"title,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
	Generation     string   `json:"generation,omitempty"`
}

// Chunk is a searchable segment of a document together with its vector
type Chunk struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	FileID        string        `json:"file_id"`
	Content       string        `json:"content"`
	ChunkIndex    int           `json:"chunk_index"` // 0-based, contiguous per file
	StartPosition int           `json:"start_position"`
	EndPosition   int           `json:"end_position"`
	TokenCount    int           `json:"token_count"`
	Embedding     []float32     `json:"embedding,omitempty"`
	Metadata      ChunkMetadata `json:"metadata"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ProcessingStats aggregates document state for one owner
type ProcessingStats struct {
	TotalDocuments           int     `json:"total_documents"`
	ProcessedDocuments       int     `json:"processed_documents"`
	FailedDocuments          int     `json:"failed_documents"`
	PendingDocuments         int     `json:"pending_documents"`
	ProcessingDocuments      int     `json:"processing_documents"`
	TotalChunks              int     `json:"total_chunks"`
	AverageChunksPerDocument float64 `json:"average_chunks_per_document"`
}

// BatchDocument is one entry of a batch processing request
type BatchDocument struct {
	FileID   string           `json:"file_id"`
	FileName string           `json:"file_name"`
	MimeType string           `json:"mime_type"`
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// BatchFailure describes a document that failed within a batch
type BatchFailure struct {
	FileID string `json:"file_id"`
	Error  string `json:"error"`
}

// BatchResult is the outcome of a batch processing request
type BatchResult struct {
	Successful []string       `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:@/\-]{0,254}$`)

// ValidateOwnerID checks an owner identifier is present and well-formed
func ValidateOwnerID(ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if !identifierPattern.MatchString(ownerID) {
		return fmt.Errorf("%w: malformed owner id", ErrInvalidInput)
	}
	return nil
}

// ValidateFileID checks a file identifier is present and well-formed
func ValidateFileID(fileID string) error {
	if fileID == "" {
		return fmt.Errorf("%w: file id is required", ErrInvalidInput)
	}
	if !identifierPattern.MatchString(fileID) {
		return fmt.Errorf("%w: malformed file id", ErrInvalidInput)
	}
	return nil
}
