package domain

import (
	"fmt"
	"time"
)

// VectorBackend identifies a vector store implementation
type VectorBackend string

const (
	VectorBackendPgvector VectorBackend = "pgvector"
	VectorBackendQdrant   VectorBackend = "qdrant"
	VectorBackendChromem  VectorBackend = "chromem"
)

// IsValid returns true if the backend is supported
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendPgvector, VectorBackendQdrant, VectorBackendChromem:
		return true
	}
	return false
}

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 100
)

// SearchOptions configures a similarity search
type SearchOptions struct {
	Limit     int      `json:"limit"`
	Threshold float64  `json:"threshold"` // Minimum cosine similarity, 0..1
	FileIDs   []string `json:"file_ids,omitempty"`
}

// Normalize applies defaults and clamps out-of-range values
func (o SearchOptions) Normalize() SearchOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultSearchLimit
	}
	if o.Limit > MaxSearchLimit {
		o.Limit = MaxSearchLimit
	}
	if o.Threshold < 0 {
		o.Threshold = 0
	}
	if o.Threshold > 1 {
		o.Threshold = 1
	}
	return o
}

// Validate checks the file filter is well-formed
func (o SearchOptions) Validate() error {
	for _, id := range o.FileIDs {
		if err := ValidateFileID(id); err != nil {
			return fmt.Errorf("file filter: %w", err)
		}
	}
	return nil
}

// VectorSearchResult is a single ranked hit
type VectorSearchResult struct {
	ChunkID    string        `json:"chunk_id"`
	OwnerID    string        `json:"owner_id"`
	FileID     string        `json:"file_id"`
	Content    string        `json:"content"`
	ChunkIndex int           `json:"chunk_index"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"`
	Distance   float64       `json:"distance"` // 1 - Similarity
	Rank       int           `json:"rank"`     // 1-based
}

// CollectionStats describes the stored vectors of one owner
type CollectionStats struct {
	DocumentCount int           `json:"document_count"`
	IsConnected   bool          `json:"is_connected"`
	Backend       VectorBackend `json:"backend"`
}

// ConnectionStatus reports vector store reachability
type ConnectionStatus struct {
	Connected bool          `json:"connected"`
	Backend   VectorBackend `json:"backend"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// RankResults fills Rank and Distance, drops hits below threshold and caps at limit.
// Input must already be sorted by descending similarity.
func RankResults(results []*VectorSearchResult, opts SearchOptions) []*VectorSearchResult {
	out := make([]*VectorSearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity < opts.Threshold {
			continue
		}
		if len(out) == opts.Limit {
			break
		}
		r.Distance = 1 - r.Similarity
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out
}

// KeepLatestGeneration drops hits whose file has a newer generation in the
// same result set. Generations are time-ordered strings, so a replace that
// is still cleaning up never surfaces old and new chunks together.
// Order is preserved.
func KeepLatestGeneration(results []*VectorSearchResult) []*VectorSearchResult {
	latest := make(map[string]string, len(results))
	for _, r := range results {
		if g := r.Metadata.Generation; g > latest[r.FileID] {
			latest[r.FileID] = g
		}
	}
	out := results[:0:0]
	for _, r := range results {
		if r.Metadata.Generation == latest[r.FileID] {
			out = append(out, r)
		}
	}
	return out
}

// KeepLatestChunks is KeepLatestGeneration for stored chunks
func KeepLatestChunks(chunks []*Chunk) []*Chunk {
	latest := make(map[string]string, len(chunks))
	for _, c := range chunks {
		if g := c.Metadata.Generation; g > latest[c.FileID] {
			latest[c.FileID] = g
		}
	}
	out := chunks[:0:0]
	for _, c := range chunks {
		if c.Metadata.Generation == latest[c.FileID] {
			out = append(out, c)
		}
	}
	return out
}
