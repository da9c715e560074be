package driven

import (
	"context"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// TaskQueue carries indexing and maintenance jobs from submitters to workers.
// Redis streams and a Postgres table are the two backends.
type TaskQueue interface {
	// Enqueue stores a pending task. It becomes claimable at ScheduledFor.
	Enqueue(ctx context.Context, task *domain.Task) error

	// EnqueueBatch stores all tasks or none.
	EnqueueBatch(ctx context.Context, tasks []*domain.Task) error

	// Dequeue claims the next ready task, highest priority first, and marks
	// it processing. Backends may block until ctx ends; nil, nil means
	// nothing was ready.
	Dequeue(ctx context.Context) (*domain.Task, error)

	// DequeueWithTimeout is Dequeue bounded by timeout seconds.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack completes a claimed task.
	Ack(ctx context.Context, taskID string) error

	// Nack records a failed attempt. The task is rescheduled with backoff
	// while attempts remain and fails otherwise.
	Nack(ctx context.Context, taskID string, reason string) error

	// Fail moves a task straight to the failed state, skipping remaining
	// attempts. Used for errors a retry cannot fix.
	Fail(ctx context.Context, taskID string, reason string) error

	// GetTask returns domain.ErrNotFound for unknown IDs.
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// ListTasks returns tasks matching filter, newest first.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// CancelTask cancels a pending task. Claimed or finished tasks yield
	// domain.ErrInvalidInput.
	CancelTask(ctx context.Context, taskID string) error

	// PurgeTasks deletes finished tasks untouched for olderThan seconds and
	// returns how many went.
	PurgeTasks(ctx context.Context, olderThan int) (int, error)

	Stats(ctx context.Context) (*QueueStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// TaskFilter narrows ListTasks. Zero fields match everything.
type TaskFilter struct {
	OwnerID string // Empty lists across owners
	Status  domain.TaskStatus
	Type    domain.TaskType
	Limit   int
	Offset  int
}

// QueueStats counts tasks per state.
type QueueStats struct {
	PendingCount     int64 `json:"pending_count"`
	ProcessingCount  int64 `json:"processing_count"`
	CompletedCount   int64 `json:"completed_count"`
	FailedCount      int64 `json:"failed_count"`
	OldestPendingAge int64 `json:"oldest_pending_age"` // seconds
}

// SchedulerStore persists maintenance schedules. Schedules are
// configuration rather than queue items, so they live apart from TaskQueue.
type SchedulerStore interface {
	GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error)
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)
	SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error
	DeleteScheduledTask(ctx context.Context, id string) error

	// GetDueScheduledTasks returns enabled schedules whose next run has passed.
	GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// UpdateLastRun stamps a run, records lastError (empty on success) and
	// advances the next run by one interval.
	UpdateLastRun(ctx context.Context, id string, lastError string) error

	// EnsureScheduledTasks upserts configured schedules without resetting
	// run history or the enabled flag.
	EnsureScheduledTasks(ctx context.Context, tasks []*domain.ScheduledTask) error
}
