package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input failed validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccessDenied indicates the caller does not own the resource
	ErrAccessDenied = errors.New("access denied")

	// ErrTransient indicates a failure that may succeed on retry
	ErrTransient = errors.New("transient failure")

	// ErrPermanent indicates a failure that will not succeed on retry
	ErrPermanent = errors.New("permanent failure")

	// ErrInvariantViolation indicates an internal consistency check failed
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrCircuitOpen indicates calls are being rejected by an open circuit breaker
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrTimeout indicates an external call did not finish in time
	ErrTimeout = errors.New("operation timed out")

	// ErrNotConnected indicates the vector store is unreachable
	ErrNotConnected = errors.New("vector store not connected")

	// ErrIndexingInProgress indicates another worker is indexing the same document
	ErrIndexingInProgress = errors.New("indexing already in progress")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidBackend indicates an unknown vector store backend was specified
	ErrInvalidBackend = errors.New("invalid vector backend")

	// ErrServiceUnavailable indicates the AI service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ProcessingStage names the pipeline step a processing failure occurred in.
type ProcessingStage string

const (
	StageValidate ProcessingStage = "validate"
	StageChunk    ProcessingStage = "chunk"
	StageEmbed    ProcessingStage = "embed"
	StageStore    ProcessingStage = "store"
	StageFinalize ProcessingStage = "finalize"
)

// ProcessingError is returned when a document fails to index.
type ProcessingError struct {
	OwnerID string
	FileID  string
	Stage   ProcessingStage
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process document %s/%s (%s): %v", e.OwnerID, e.FileID, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// DeletionError is returned when a document or its vectors could not be removed.
type DeletionError struct {
	OwnerID string
	FileID  string
	Err     error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("delete document %s/%s: %v", e.OwnerID, e.FileID, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrNotFound)
}
