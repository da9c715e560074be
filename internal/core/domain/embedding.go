package domain

import "time"

// AIProvider identifies the embedding provider
type AIProvider string

const (
	AIProviderOpenAI AIProvider = "openai"
	AIProviderOllama AIProvider = "ollama"
)

// RequiresAPIKey returns true if this provider requires an API key
func (p AIProvider) RequiresAPIKey() bool {
	switch p {
	case AIProviderOllama:
		return false // Self-hosted, no API key needed
	default:
		return true
	}
}

// IsValid returns true if this is a known provider
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOpenAI, AIProviderOllama:
		return true
	default:
		return false
	}
}

// EmbeddingSettings configures the embedding provider
type EmbeddingSettings struct {
	Provider   AIProvider `json:"provider"`
	Model      string     `json:"model"`
	APIKey     string     `json:"-"` // Never serialize to JSON
	BaseURL    string     `json:"base_url,omitempty"`
	Dimensions int        `json:"dimensions,omitempty"`
}

// IsConfigured returns true if embedding settings are properly configured
func (e *EmbeddingSettings) IsConfigured() bool {
	if e.Provider == "" {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// EmbeddingBatchResult is the outcome of embedding one document's chunks
type EmbeddingBatchResult struct {
	Vectors        [][]float32   `json:"-"`
	Tokens         int           `json:"tokens"`
	Model          string        `json:"model"`
	Cost           float64       `json:"cost"`
	ProcessingTime time.Duration `json:"processing_time"`
	Batches        int           `json:"batches"`
}

// UsageOperation names a billable pipeline action
type UsageOperation string

const (
	UsageOperationProcess UsageOperation = "process_document"
	UsageOperationSearch  UsageOperation = "search_documents"
	UsageOperationDelete  UsageOperation = "delete_document"
)

// UsageEvent is emitted after every processing, search and delete call
type UsageEvent struct {
	OwnerID   string         `json:"owner_id"`
	Operation UsageOperation `json:"operation"`
	FileID    string         `json:"file_id,omitempty"`
	Tokens    int            `json:"tokens"`
	Cost      float64        `json:"cost"`
	Model     string         `json:"model,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
