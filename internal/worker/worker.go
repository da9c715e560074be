package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
	"github.com/custodia-labs/docindex/internal/core/ports/driving"
	"github.com/custodia-labs/docindex/internal/core/services"
	"github.com/custodia-labs/docindex/internal/retry"
)

const (
	defaultPurgeAge       = 7 * 24 * time.Hour
	defaultDequeueTimeout = 5
)

// errMissingFileID rejects single-document tasks without a file_id payload.
var errMissingFileID = fmt.Errorf("%w: file_id not found in task payload", domain.ErrInvalidInput)

// handler runs one task type. A nil error acks the task.
type handler func(ctx context.Context, task *domain.Task, logger *slog.Logger) error

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Processor      driving.DocumentProcessor
	Scheduler      *services.Scheduler // Optional: started and stopped with the worker
	Metrics        driven.Metrics      // Optional
	Logger         *slog.Logger
	Concurrency    int // Goroutines pulling from the queue
	DequeueTimeout int // Seconds a dequeue waits before the loop re-checks for shutdown

	// Backoff paces dequeue retries while the queue backend is failing
	Backoff retry.Config
}

// Worker pulls indexing and maintenance tasks off the queue and runs them
// against the document processor.
type Worker struct {
	queue     driven.TaskQueue
	processor driving.DocumentProcessor
	scheduler *services.Scheduler
	metrics   driven.Metrics
	logger    *slog.Logger
	handlers  map[domain.TaskType]handler
	backoff   retry.Config

	concurrency    int
	dequeueTimeout int // seconds

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = driven.NopMetrics{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = defaultDequeueTimeout
	}
	if cfg.Backoff.BaseDelay <= 0 {
		cfg.Backoff.BaseDelay = time.Second
		cfg.Backoff.MaxDelay = 30 * time.Second
		cfg.Backoff.Multiplier = 2
	}

	w := &Worker{
		queue:          cfg.TaskQueue,
		processor:      cfg.Processor,
		scheduler:      cfg.Scheduler,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.With("component", "worker"),
		backoff:        cfg.Backoff,
		concurrency:    cfg.Concurrency,
		dequeueTimeout: cfg.DequeueTimeout,
	}
	w.handlers = map[domain.TaskType]handler{
		domain.TaskTypeProcessDocument:   w.handleProcess,
		domain.TaskTypeReprocessDocument: w.handleReprocess,
		domain.TaskTypeBatchProcess:      w.handleBatch,
		domain.TaskTypeDeleteDocument:    w.handleDelete,
		domain.TaskTypeRecoverStale:      w.handleRecoverStale,
		domain.TaskTypePurgeTasks:        w.handlePurge,
	}
	return w
}

// Start launches the pull loops and, when configured, the scheduler.
// The worker runs until Stop is called or ctx is cancelled. Starting a
// running worker is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(runCtx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.pull(runCtx, w.logger.With("worker_id", id))
		}(i)
	}
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(w.done)

	return nil
}

// Stop cancels the pull loops and waits for in-flight tasks to settle.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	<-done

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until every pull loop has returned.
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

// pull dequeues and runs tasks until ctx ends. Consecutive dequeue errors
// back off exponentially.
func (w *Worker) pull(ctx context.Context, logger *slog.Logger) {
	logger.Debug("pull loop started")
	defer logger.Debug("pull loop exited")

	failures := 0
	for ctx.Err() == nil {
		task, err := w.queue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			failures++
			delay := w.backoff.Delay(failures)
			logger.Error("failed to dequeue task", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		failures = 0

		if task != nil {
			// a task already claimed is settled even if shutdown begins mid-run
			w.processTask(context.WithoutCancel(ctx), task, logger)
		}
	}
}

// processTask runs the handler for task and settles it on the queue:
// success acks, permanent errors fail the task outright, anything else
// nacks it for another attempt.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "owner_id", task.OwnerID)
	logger.Info("processing task", "attempt", task.Attempts)

	start := time.Now()
	err := w.run(ctx, task, logger)
	duration := time.Since(start)

	switch {
	case err == nil:
		w.metrics.ObserveTask(string(task.Type), "completed", duration)
		logger.Info("task completed", "duration", duration)
		if ackErr := w.queue.Ack(ctx, task.ID); ackErr != nil {
			logger.Error("failed to ack task", "ack_error", ackErr)
		}

	case domain.IsPermanent(err):
		w.metrics.ObserveTask(string(task.Type), "failed", duration)
		logger.Error("task failed permanently", "duration", duration, "error", err)
		if failErr := w.queue.Fail(ctx, task.ID, err.Error()); failErr != nil {
			logger.Error("failed to mark task failed", "fail_error", failErr)
		}

	default:
		w.metrics.ObserveTask(string(task.Type), "failed", duration)
		logger.Warn("task failed", "duration", duration, "error", err, "can_retry", task.CanRetry())
		if nackErr := w.queue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
	}
}

func (w *Worker) run(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	h, ok := w.handlers[task.Type]
	if !ok {
		return fmt.Errorf("%w: unknown task type: %s", domain.ErrInvalidInput, task.Type)
	}
	return h(ctx, task, logger)
}

func (w *Worker) handleProcess(ctx context.Context, task *domain.Task, _ *slog.Logger) error {
	doc, err := task.BatchDocument()
	if err != nil {
		return err
	}
	if doc.FileID == "" {
		return errMissingFileID
	}
	_, err = w.processor.ProcessDocument(ctx, driving.ProcessRequest{
		OwnerID:  task.OwnerID,
		FileID:   doc.FileID,
		FileName: doc.FileName,
		MimeType: doc.MimeType,
		Content:  doc.Content,
		Metadata: doc.Metadata,
		Force:    task.Force(),
	})
	return err
}

func (w *Worker) handleReprocess(ctx context.Context, task *domain.Task, _ *slog.Logger) error {
	fileID := task.FileID()
	if fileID == "" {
		return errMissingFileID
	}
	_, err := w.processor.ReprocessDocument(ctx, task.OwnerID, fileID, "", task.Force())
	return err
}

// handleBatch succeeds when at least one document was indexed.
func (w *Worker) handleBatch(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	docs, err := task.BatchDocuments()
	if err != nil {
		return err
	}
	result, err := w.processor.BatchProcessDocuments(ctx, task.OwnerID, docs)
	if err != nil {
		return err
	}
	if len(result.Failed) == 0 {
		return nil
	}

	logger.Warn("some documents failed", "total", len(docs), "failed", len(result.Failed))
	if len(result.Successful) == 0 {
		return fmt.Errorf("all %d documents failed, first: %s", len(result.Failed), result.Failed[0].Error)
	}
	return nil
}

func (w *Worker) handleDelete(ctx context.Context, task *domain.Task, _ *slog.Logger) error {
	fileID := task.FileID()
	if fileID == "" {
		return errMissingFileID
	}
	return w.processor.DeleteDocument(ctx, task.OwnerID, fileID)
}

func (w *Worker) handleRecoverStale(ctx context.Context, _ *domain.Task, logger *slog.Logger) error {
	n, err := w.processor.RecoverStale(ctx)
	if err != nil {
		return err
	}
	logger.Info("stale documents recovered", "count", n)
	return nil
}

func (w *Worker) handlePurge(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	age := task.OlderThan(defaultPurgeAge)
	n, err := w.queue.PurgeTasks(ctx, int(age.Seconds()))
	if err != nil {
		return err
	}
	logger.Info("finished tasks purged", "count", n, "older_than", age)
	return nil
}

// Health is the worker's view of itself and its queue.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health reports whether the worker is running and its queue reachable.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.Lock()
	health := Health{Running: w.running}
	w.mu.Unlock()

	if err := w.queue.Ping(ctx); err != nil {
		health.Error = err.Error()
		return health
	}
	health.QueueHealth = true
	return health
}
