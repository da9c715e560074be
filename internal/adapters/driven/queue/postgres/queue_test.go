package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docindex/internal/adapters/driven/postgres"
	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

// newTestQueue runs against DOCINDEX_TEST_DATABASE_URL and is skipped without it.
// Each test works under its own owner so a shared database is safe.
func newTestQueue(t *testing.T) (*Queue, string) {
	t.Helper()
	url := os.Getenv("DOCINDEX_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DOCINDEX_TEST_DATABASE_URL not set")
	}
	db, err := postgres.Connect(context.Background(), postgres.DefaultConfig(url))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	owner := "queue-test-" + uuid.NewString()
	t.Cleanup(func() {
		db.ExecContext(context.Background(), `DELETE FROM tasks WHERE owner_id = $1`, owner)
		db.Close()
	})
	return NewQueue(db.DB), owner
}

// urgent outranks anything else pending in a shared database
func urgent(task *domain.Task) *domain.Task {
	task.Priority = 1 << 20
	return task
}

func TestQueue_Lifecycle(t *testing.T) {
	q, owner := newTestQueue(t)
	ctx := context.Background()

	task := urgent(domain.NewReprocessDocumentTask(owner, "doc-1", false))
	task.MaxAttempts = 2
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := q.DequeueWithTimeout(ctx, 1)
	if err != nil || claimed == nil || claimed.ID != task.ID {
		t.Fatalf("expected to claim %s, got %+v, %v", task.ID, claimed, err)
	}
	if claimed.Status != domain.TaskStatusProcessing || claimed.Attempts != 1 {
		t.Errorf("unexpected claimed state %s/%d", claimed.Status, claimed.Attempts)
	}

	if err := q.Nack(ctx, task.ID, "vector store down"); err != nil {
		t.Fatalf("nack: %v", err)
	}
	retried, _ := q.GetTask(ctx, task.ID)
	if retried.Status != domain.TaskStatusPending || !retried.ScheduledFor.After(time.Now()) {
		t.Errorf("expected a delayed retry, got %s at %v", retried.Status, retried.ScheduledFor)
	}

	if err := q.Fail(ctx, task.ID, "file removed"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	failed, _ := q.GetTask(ctx, task.ID)
	if failed.Status != domain.TaskStatusFailed || failed.Error != "file removed" {
		t.Errorf("unexpected failed task %+v", failed)
	}

	if err := q.Fail(ctx, uuid.NewString(), "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueue_BatchListCancel(t *testing.T) {
	q, owner := newTestQueue(t)
	ctx := context.Background()

	first := domain.NewDeleteDocumentTask(owner, "a")
	second := domain.NewDeleteDocumentTask(owner, "b")
	if err := q.EnqueueBatch(ctx, []*domain.Task{first, second}); err != nil {
		t.Fatalf("enqueue batch: %v", err)
	}

	listed, err := q.ListTasks(ctx, driven.TaskFilter{OwnerID: owner, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(listed))
	}

	if err := q.CancelTask(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := q.CancelTask(ctx, first.ID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput cancelling twice, got %v", err)
	}

	cancelled, err := q.ListTasks(ctx, driven.TaskFilter{OwnerID: owner, Status: domain.TaskStatusCancelled})
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].ID != first.ID {
		t.Errorf("expected only %s cancelled, got %d tasks", first.ID, len(cancelled))
	}
}

func TestQueue_Ack(t *testing.T) {
	q, owner := newTestQueue(t)
	ctx := context.Background()

	task := urgent(domain.NewDeleteDocumentTask(owner, "doc-1"))
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.DequeueWithTimeout(ctx, 1); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := q.Ack(ctx, task.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	done, _ := q.GetTask(ctx, task.ID)
	if done.Status != domain.TaskStatusCompleted || done.CompletedAt == nil {
		t.Errorf("expected completed, got %+v", done)
	}
	if err := q.Ack(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound acking an unknown task, got %v", err)
	}
}
