package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
	"github.com/custodia-labs/docindex/internal/core/ports/driving"
)

// Ensure jobService implements JobService
var _ driving.JobService = (*jobService)(nil)

const defaultJobListLimit = 50

type jobService struct {
	queue  driven.TaskQueue
	logger *slog.Logger
}

// NewJobService creates a JobService backed by the task queue
func NewJobService(queue driven.TaskQueue, logger *slog.Logger) driving.JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobService{
		queue:  queue,
		logger: logger.With("component", "jobs"),
	}
}

func (s *jobService) SubmitProcess(ctx context.Context, req driving.ProcessRequest) (*domain.Task, error) {
	if err := validateIDs(req.OwnerID, req.FileID); err != nil {
		return nil, err
	}
	task, err := domain.NewProcessDocumentTask(req.OwnerID, domain.BatchDocument{
		FileID:   req.FileID,
		FileName: req.FileName,
		MimeType: req.MimeType,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if req.Force {
		task.Payload[domain.PayloadForce] = "true"
	}
	return s.submit(ctx, task)
}

func (s *jobService) SubmitReprocess(ctx context.Context, ownerID, fileID string, force bool) (*domain.Task, error) {
	if err := validateIDs(ownerID, fileID); err != nil {
		return nil, err
	}
	return s.submit(ctx, domain.NewReprocessDocumentTask(ownerID, fileID, force))
}

func (s *jobService) SubmitBatch(ctx context.Context, ownerID string, docs []domain.BatchDocument) (*domain.Task, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", domain.ErrInvalidInput)
	}
	for _, d := range docs {
		if err := domain.ValidateFileID(d.FileID); err != nil {
			return nil, err
		}
	}
	task, err := domain.NewBatchProcessTask(ownerID, docs)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, task)
}

func (s *jobService) SubmitDelete(ctx context.Context, ownerID, fileID string) (*domain.Task, error) {
	if err := validateIDs(ownerID, fileID); err != nil {
		return nil, err
	}
	return s.submit(ctx, domain.NewDeleteDocumentTask(ownerID, fileID))
}

func (s *jobService) submit(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	s.logger.Info("task submitted",
		"task_id", task.ID,
		"task_type", task.Type,
		"owner_id", task.OwnerID,
	)
	return task, nil
}

// Status hides tasks of other owners behind ErrAccessDenied
func (s *jobService) Status(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	task, err := s.queue.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: task %s", domain.ErrAccessDenied, taskID)
	}
	return task, nil
}

func (s *jobService) List(ctx context.Context, ownerID string, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	return s.queue.ListTasks(ctx, driven.TaskFilter{
		OwnerID: ownerID,
		Status:  status,
		Limit:   limit,
	})
}

func (s *jobService) Cancel(ctx context.Context, ownerID, taskID string) error {
	if _, err := s.Status(ctx, ownerID, taskID); err != nil {
		return err
	}
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info("task cancelled", "task_id", taskID, "owner_id", ownerID)
	return nil
}
