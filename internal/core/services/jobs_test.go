package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docindex/internal/core/ports/driving"
)

func TestJobService_SubmitProcess(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	jobs := NewJobService(queue, nil)
	ctx := context.Background()

	task, err := jobs.SubmitProcess(ctx, driving.ProcessRequest{
		OwnerID:  "alice",
		FileID:   "doc-1",
		FileName: "a.md",
		Content:  "hello",
		Metadata: domain.DocumentMetadata{Title: "A"},
		Force:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTypeProcessDocument, task.Type)
	assert.Equal(t, "alice", task.OwnerID)
	assert.True(t, task.Force())

	doc, err := task.BatchDocument()
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
	assert.Equal(t, "A", doc.Metadata.Title)

	assert.Len(t, queue.Tasks(), 1)
}

func TestJobService_SubmitValidation(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	jobs := NewJobService(queue, nil)
	ctx := context.Background()

	_, err := jobs.SubmitProcess(ctx, driving.ProcessRequest{OwnerID: "alice"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = jobs.SubmitReprocess(ctx, "", "doc-1", false)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = jobs.SubmitBatch(ctx, "alice", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = jobs.SubmitBatch(ctx, "alice", []domain.BatchDocument{{FileID: "ok"}, {FileID: ""}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = jobs.SubmitDelete(ctx, "alice", "bad id!")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Empty(t, queue.Tasks(), "invalid requests must not be enqueued")
}

func TestJobService_SubmitOthers(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	jobs := NewJobService(queue, nil)
	ctx := context.Background()

	reprocess, err := jobs.SubmitReprocess(ctx, "alice", "doc-1", true)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTypeReprocessDocument, reprocess.Type)
	assert.True(t, reprocess.Force())

	batch, err := jobs.SubmitBatch(ctx, "alice", []domain.BatchDocument{{FileID: "a"}, {FileID: "b"}})
	require.NoError(t, err)
	docs, err := batch.BatchDocuments()
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	del, err := jobs.SubmitDelete(ctx, "alice", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTypeDeleteDocument, del.Type)
	assert.Equal(t, "doc-1", del.FileID())

	assert.Len(t, queue.Tasks(), 3)
}

func TestJobService_EnqueueError(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	queue.EnqueueFn = func(*domain.Task) error { return domain.ErrServiceUnavailable }
	jobs := NewJobService(queue, nil)

	_, err := jobs.SubmitDelete(context.Background(), "alice", "doc-1")
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestJobService_StatusIsOwnerScoped(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	jobs := NewJobService(queue, nil)
	ctx := context.Background()

	task, err := jobs.SubmitDelete(ctx, "alice", "doc-1")
	require.NoError(t, err)

	got, err := jobs.Status(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)

	_, err = jobs.Status(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = jobs.Status(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobService_List(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	jobs := NewJobService(queue, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := jobs.SubmitDelete(ctx, "alice", id)
		require.NoError(t, err)
	}
	_, err := jobs.SubmitDelete(ctx, "bob", "z")
	require.NoError(t, err)

	mine, err := jobs.List(ctx, "alice", "", 0)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	limited, err := jobs.List(ctx, "alice", domain.TaskStatusPending, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	done, err := jobs.List(ctx, "alice", domain.TaskStatusCompleted, 0)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestJobService_Cancel(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	jobs := NewJobService(queue, nil)
	ctx := context.Background()

	task, err := jobs.SubmitDelete(ctx, "alice", "doc-1")
	require.NoError(t, err)

	assert.ErrorIs(t, jobs.Cancel(ctx, "bob", task.ID), domain.ErrAccessDenied)

	require.NoError(t, jobs.Cancel(ctx, "alice", task.ID))
	got, _ := jobs.Status(ctx, "alice", task.ID)
	assert.Equal(t, domain.TaskStatusCancelled, got.Status)

	err = jobs.Cancel(ctx, "alice", task.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "cancelling twice should fail, got %v", err)
}
