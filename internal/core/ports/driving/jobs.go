package driving

import (
	"context"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// JobService submits background indexing work and reports its progress
type JobService interface {
	// SubmitProcess enqueues a process_document task
	SubmitProcess(ctx context.Context, req ProcessRequest) (*domain.Task, error)

	// SubmitReprocess enqueues a reprocess_document task
	SubmitReprocess(ctx context.Context, ownerID, fileID string, force bool) (*domain.Task, error)

	// SubmitBatch enqueues a batch_process task
	SubmitBatch(ctx context.Context, ownerID string, docs []domain.BatchDocument) (*domain.Task, error)

	// SubmitDelete enqueues a delete_document task
	SubmitDelete(ctx context.Context, ownerID, fileID string) (*domain.Task, error)

	// Status returns a task owned by ownerID
	Status(ctx context.Context, ownerID, taskID string) (*domain.Task, error)

	// List returns the tasks of an owner
	List(ctx context.Context, ownerID string, status domain.TaskStatus, limit int) ([]*domain.Task, error)

	// Cancel cancels a pending task owned by ownerID
	Cancel(ctx context.Context, ownerID, taskID string) error
}
