package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
	"github.com/custodia-labs/docindex/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/docindex/internal/core/ports/driving"
	"github.com/custodia-labs/docindex/internal/core/services"
	"github.com/custodia-labs/docindex/internal/postprocessors"
	"github.com/custodia-labs/docindex/internal/retry"
)

// stubProcessor implements driving.DocumentProcessor with optional hooks
type stubProcessor struct {
	mu    sync.Mutex
	calls []string

	processFn   func(driving.ProcessRequest) (*driving.ProcessOutcome, error)
	reprocessFn func(ownerID, fileID string, force bool) (*driving.ProcessOutcome, error)
	batchFn     func(ownerID string, docs []domain.BatchDocument) (*domain.BatchResult, error)
	deleteFn    func(ownerID, fileID string) error
	recoverFn   func() (int, error)
}

func (s *stubProcessor) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubProcessor) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubProcessor) ProcessDocument(ctx context.Context, req driving.ProcessRequest) (*driving.ProcessOutcome, error) {
	s.record("process:" + req.FileID)
	if s.processFn != nil {
		return s.processFn(req)
	}
	return &driving.ProcessOutcome{}, nil
}

func (s *stubProcessor) SearchDocuments(ctx context.Context, ownerID, query string, opts domain.SearchOptions) []*domain.VectorSearchResult {
	return []*domain.VectorSearchResult{}
}

func (s *stubProcessor) DeleteDocument(ctx context.Context, ownerID, fileID string) error {
	s.record("delete:" + fileID)
	if s.deleteFn != nil {
		return s.deleteFn(ownerID, fileID)
	}
	return nil
}

func (s *stubProcessor) ReprocessDocument(ctx context.Context, ownerID, fileID, content string, force bool) (*driving.ProcessOutcome, error) {
	s.record("reprocess:" + fileID)
	if s.reprocessFn != nil {
		return s.reprocessFn(ownerID, fileID, force)
	}
	return &driving.ProcessOutcome{}, nil
}

func (s *stubProcessor) BatchProcessDocuments(ctx context.Context, ownerID string, docs []domain.BatchDocument) (*domain.BatchResult, error) {
	s.record(fmt.Sprintf("batch:%d", len(docs)))
	if s.batchFn != nil {
		return s.batchFn(ownerID, docs)
	}
	result := &domain.BatchResult{}
	for _, d := range docs {
		result.Successful = append(result.Successful, d.FileID)
	}
	return result, nil
}

func (s *stubProcessor) GetProcessingStats(ctx context.Context, ownerID string) (*domain.ProcessingStats, error) {
	return &domain.ProcessingStats{}, nil
}

func (s *stubProcessor) GetDocument(ctx context.Context, ownerID, fileID string) (*domain.Document, error) {
	return nil, domain.ErrNotFound
}

func (s *stubProcessor) RecoverStale(ctx context.Context) (int, error) {
	s.record("recover")
	if s.recoverFn != nil {
		return s.recoverFn()
	}
	return 0, nil
}

// runTask enqueues task, dequeues it like the loop would and processes it
func runTask(t *testing.T, w *Worker, queue *mocks.MockTaskQueue, task *domain.Task) *domain.Task {
	t.Helper()
	ctx := context.Background()
	if err := queue.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	dequeued, err := queue.Dequeue(ctx)
	if err != nil || dequeued == nil {
		t.Fatalf("dequeue: %v", err)
	}
	w.processTask(ctx, dequeued, slog.Default())

	got, err := queue.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	return got
}

func newTestWorker(proc driving.DocumentProcessor) (*Worker, *mocks.MockTaskQueue) {
	queue := mocks.NewMockTaskQueue()
	return NewWorker(WorkerConfig{
		TaskQueue:      queue,
		Processor:      proc,
		Concurrency:    1,
		DequeueTimeout: 1,
	}), queue
}

func TestNewWorker(t *testing.T) {
	w, _ := newTestWorker(&stubProcessor{})

	if w.concurrency != 1 {
		t.Errorf("expected concurrency 1, got %d", w.concurrency)
	}
	if w.dequeueTimeout != 1 {
		t.Errorf("expected dequeue timeout 1, got %d", w.dequeueTimeout)
	}
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(WorkerConfig{TaskQueue: mocks.NewMockTaskQueue()})

	if w.concurrency != 1 {
		t.Errorf("expected default concurrency 1, got %d", w.concurrency)
	}
	if w.dequeueTimeout != 5 {
		t.Errorf("expected default dequeue timeout 5, got %d", w.dequeueTimeout)
	}
	if w.logger == nil {
		t.Error("expected default logger")
	}
}

func TestWorker_StartStop(t *testing.T) {
	w, _ := newTestWorker(&stubProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	if !w.Health(ctx).Running {
		t.Error("expected worker to be running")
	}

	// Start again should be no-op
	if err := w.Start(ctx); err != nil {
		t.Errorf("second start should not error: %v", err)
	}

	w.Stop()
	if w.Health(ctx).Running {
		t.Error("expected worker to be stopped")
	}

	w.Stop()
}

func TestWorker_Health(t *testing.T) {
	w, _ := newTestWorker(&stubProcessor{})

	health := w.Health(context.Background())
	if health.Running {
		t.Error("expected not running")
	}
	if !health.QueueHealth {
		t.Error("expected queue to be healthy")
	}
}

func TestWorker_ProcessDocument(t *testing.T) {
	var got driving.ProcessRequest
	proc := &stubProcessor{
		processFn: func(req driving.ProcessRequest) (*driving.ProcessOutcome, error) {
			got = req
			return &driving.ProcessOutcome{Chunks: 2}, nil
		},
	}
	w, queue := newTestWorker(proc)

	task, err := domain.NewProcessDocumentTask("alice", domain.BatchDocument{
		FileID:   "doc-1",
		FileName: "notes.md",
		Content:  "hello",
		Metadata: domain.DocumentMetadata{Title: "Notes", Tags: []string{"a"}},
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	task.Payload[domain.PayloadForce] = "true"

	done := runTask(t, w, queue, task)
	if done.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s (%s)", done.Status, done.Error)
	}
	if got.OwnerID != "alice" || got.FileID != "doc-1" || got.Content != "hello" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Metadata.Title != "Notes" || len(got.Metadata.Tags) != 1 {
		t.Errorf("metadata not carried: %+v", got.Metadata)
	}
	if !got.Force {
		t.Error("expected force to be carried")
	}
}

func TestWorker_ProcessDocument_ErrorIsRetried(t *testing.T) {
	proc := &stubProcessor{
		processFn: func(driving.ProcessRequest) (*driving.ProcessOutcome, error) {
			return nil, domain.ErrTransient
		},
	}
	w, queue := newTestWorker(proc)

	task, _ := domain.NewProcessDocumentTask("alice", domain.BatchDocument{FileID: "doc-1", Content: "x"})
	done := runTask(t, w, queue, task)

	if done.Status != domain.TaskStatusPending {
		t.Errorf("expected task back in pending for retry, got %s", done.Status)
	}
	if !strings.Contains(done.Error, domain.ErrTransient.Error()) {
		t.Errorf("expected error to be recorded, got %q", done.Error)
	}
}

func TestWorker_ProcessDocument_FinalAttemptFails(t *testing.T) {
	proc := &stubProcessor{
		processFn: func(driving.ProcessRequest) (*driving.ProcessOutcome, error) {
			return nil, domain.ErrTransient
		},
	}
	w, queue := newTestWorker(proc)

	task, _ := domain.NewProcessDocumentTask("alice", domain.BatchDocument{FileID: "doc-1", Content: "x"})
	task.MaxAttempts = 1
	done := runTask(t, w, queue, task)

	if done.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", done.Status)
	}
}

func TestWorker_MissingFileID(t *testing.T) {
	proc := &stubProcessor{}
	w, queue := newTestWorker(proc)

	for _, taskType := range []domain.TaskType{
		domain.TaskTypeProcessDocument,
		domain.TaskTypeReprocessDocument,
		domain.TaskTypeDeleteDocument,
	} {
		task := domain.NewTask(taskType, "alice", nil)
		task.MaxAttempts = 1
		done := runTask(t, w, queue, task)
		if done.Status != domain.TaskStatusFailed {
			t.Errorf("%s: expected failed, got %s", taskType, done.Status)
		}
		if !strings.Contains(done.Error, "file_id") {
			t.Errorf("%s: expected file_id error, got %q", taskType, done.Error)
		}
	}

	if calls := proc.Calls(); len(calls) != 0 {
		t.Errorf("processor should not be called, got %v", calls)
	}
}

func TestWorker_UnknownType(t *testing.T) {
	w, queue := newTestWorker(&stubProcessor{})

	task := domain.NewTask("bogus", "alice", nil)
	task.MaxAttempts = 1
	done := runTask(t, w, queue, task)

	if done.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", done.Status)
	}
	if !strings.Contains(done.Error, "unknown task type") {
		t.Errorf("unexpected error %q", done.Error)
	}
}

func TestWorker_ReprocessAndDelete(t *testing.T) {
	var force bool
	proc := &stubProcessor{
		reprocessFn: func(ownerID, fileID string, f bool) (*driving.ProcessOutcome, error) {
			force = f
			return &driving.ProcessOutcome{Skipped: true}, nil
		},
	}
	w, queue := newTestWorker(proc)

	done := runTask(t, w, queue, domain.NewReprocessDocumentTask("alice", "doc-1", true))
	if done.Status != domain.TaskStatusCompleted {
		t.Errorf("reprocess: expected completed, got %s", done.Status)
	}
	if !force {
		t.Error("expected force flag on reprocess")
	}

	done = runTask(t, w, queue, domain.NewDeleteDocumentTask("alice", "doc-1"))
	if done.Status != domain.TaskStatusCompleted {
		t.Errorf("delete: expected completed, got %s", done.Status)
	}

	calls := proc.Calls()
	if len(calls) != 2 || calls[0] != "reprocess:doc-1" || calls[1] != "delete:doc-1" {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestWorker_Delete_AccessDenied(t *testing.T) {
	proc := &stubProcessor{
		deleteFn: func(ownerID, fileID string) error {
			return fmt.Errorf("%w: file owned by another user", domain.ErrAccessDenied)
		},
	}
	w, queue := newTestWorker(proc)

	task := domain.NewDeleteDocumentTask("mallory", "doc-1")
	task.MaxAttempts = 1
	done := runTask(t, w, queue, task)

	if done.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", done.Status)
	}
}

func TestWorker_PermanentErrorSkipsRetries(t *testing.T) {
	proc := &stubProcessor{
		processFn: func(driving.ProcessRequest) (*driving.ProcessOutcome, error) {
			return nil, fmt.Errorf("%w: malformed owner id", domain.ErrInvalidInput)
		},
	}
	w, queue := newTestWorker(proc)

	task, _ := domain.NewProcessDocumentTask("alice", domain.BatchDocument{FileID: "doc-1", Content: "x"})
	if task.MaxAttempts < 2 {
		t.Fatalf("expected retries to be available, max attempts %d", task.MaxAttempts)
	}
	done := runTask(t, w, queue, task)

	if done.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed on the first attempt, got %s", done.Status)
	}
	if done.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", done.Attempts)
	}
}

// taskMetrics records ObserveTask calls
type taskMetrics struct {
	driven.NopMetrics
	mu       sync.Mutex
	outcomes []string
}

func (m *taskMetrics) ObserveTask(taskType, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, taskType+":"+outcome)
}

func TestWorker_ObservesTasks(t *testing.T) {
	proc := &stubProcessor{
		deleteFn: func(string, string) error { return domain.ErrTransient },
	}
	queue := mocks.NewMockTaskQueue()
	rec := &taskMetrics{}
	w := NewWorker(WorkerConfig{TaskQueue: queue, Processor: proc, Metrics: rec})

	runTask(t, w, queue, domain.NewRecoverStaleTask())
	runTask(t, w, queue, domain.NewDeleteDocumentTask("alice", "doc-1"))

	want := []string{"recover_stale:completed", "delete_document:failed"}
	if strings.Join(rec.outcomes, ",") != strings.Join(want, ",") {
		t.Errorf("outcomes = %v, want %v", rec.outcomes, want)
	}
}

func TestWorker_DequeueErrorsBackOff(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	var calls int
	var mu sync.Mutex
	queue.DequeueFn = func() (*domain.Task, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil, errors.New("connection refused")
	}
	w := NewWorker(WorkerConfig{
		TaskQueue: queue,
		Processor: &stubProcessor{},
		Backoff:   retry.Config{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	cancel()
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	// 0ms, 50ms, 150ms with doubling delays
	if calls < 2 || calls > 4 {
		t.Errorf("expected a backed-off handful of dequeues, got %d", calls)
	}
}

func TestWorker_Batch(t *testing.T) {
	tests := []struct {
		name   string
		result *domain.BatchResult
		want   domain.TaskStatus
	}{
		{
			name:   "all succeed",
			result: &domain.BatchResult{Successful: []string{"a", "b"}},
			want:   domain.TaskStatusCompleted,
		},
		{
			name: "partial failure",
			result: &domain.BatchResult{
				Successful: []string{"a"},
				Failed:     []domain.BatchFailure{{FileID: "b", Error: "boom"}},
			},
			want: domain.TaskStatusCompleted,
		},
		{
			name: "all fail",
			result: &domain.BatchResult{
				Failed: []domain.BatchFailure{{FileID: "a", Error: "boom"}, {FileID: "b", Error: "boom"}},
			},
			want: domain.TaskStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &stubProcessor{
				batchFn: func(string, []domain.BatchDocument) (*domain.BatchResult, error) {
					return tt.result, nil
				},
			}
			w, queue := newTestWorker(proc)

			task, err := domain.NewBatchProcessTask("alice", []domain.BatchDocument{{FileID: "a"}, {FileID: "b"}})
			if err != nil {
				t.Fatalf("new task: %v", err)
			}
			task.MaxAttempts = 1

			done := runTask(t, w, queue, task)
			if done.Status != tt.want {
				t.Errorf("expected %s, got %s (%s)", tt.want, done.Status, done.Error)
			}
		})
	}
}

func TestWorker_Batch_BadPayload(t *testing.T) {
	proc := &stubProcessor{}
	w, queue := newTestWorker(proc)

	task := domain.NewTask(domain.TaskTypeBatchProcess, "alice", map[string]string{
		domain.PayloadDocuments: "{not json",
	})
	task.MaxAttempts = 1
	done := runTask(t, w, queue, task)

	if done.Status != domain.TaskStatusFailed {
		t.Errorf("expected failed, got %s", done.Status)
	}
	if len(proc.Calls()) != 0 {
		t.Error("processor should not see an undecodable batch")
	}
}

func TestWorker_RecoverStale(t *testing.T) {
	proc := &stubProcessor{recoverFn: func() (int, error) { return 3, nil }}
	w, queue := newTestWorker(proc)

	done := runTask(t, w, queue, domain.NewRecoverStaleTask())
	if done.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if calls := proc.Calls(); len(calls) != 1 || calls[0] != "recover" {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestWorker_PurgeTasks(t *testing.T) {
	w, queue := newTestWorker(&stubProcessor{})

	var olderThan int
	queue.PurgeFn = func(secs int) (int, error) {
		olderThan = secs
		return 4, nil
	}

	done := runTask(t, w, queue, domain.NewPurgeTasksTask(36*time.Hour))
	if done.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if olderThan != int((36 * time.Hour).Seconds()) {
		t.Errorf("expected purge age of 36h, got %ds", olderThan)
	}

	olderThan = 0
	runTask(t, w, queue, domain.NewTask(domain.TaskTypePurgeTasks, "", nil))
	if olderThan != int(defaultPurgeAge.Seconds()) {
		t.Errorf("expected default purge age, got %ds", olderThan)
	}
}

func TestWorker_ProcessLoop_WithTasks(t *testing.T) {
	proc := &stubProcessor{}
	w, queue := newTestWorker(proc)
	w.concurrency = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		_ = queue.Enqueue(ctx, domain.NewDeleteDocumentTask("alice", id))
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(proc.Calls()) < len(ids) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	w.Stop()

	if got := len(proc.Calls()); got != len(ids) {
		t.Fatalf("expected %d tasks processed, got %d", len(ids), got)
	}
	for _, task := range queue.Tasks() {
		if task.Status != domain.TaskStatusCompleted {
			t.Errorf("task %s: expected completed, got %s", task.FileID(), task.Status)
		}
	}
}

func TestWorker_ContextCancellation(t *testing.T) {
	w, _ := newTestWorker(&stubProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after context cancellation")
	}
}

func TestWorker_EndToEnd(t *testing.T) {
	docs := mocks.NewMockDocumentStore()
	vectors := mocks.NewMockVectorStore()
	proc, err := services.NewDocumentProcessor(services.ProcessorConfig{
		Documents: docs,
		Vectors:   vectors,
		Embedder:  mocks.NewMockBatchEmbedder(),
		Pipeline: postprocessors.NewPipelineFromConfig(postprocessors.PipelineConfig{
			Chunking: postprocessors.ChunkConfig{
				Strategy:     postprocessors.StrategyParagraph,
				MaxChunkSize: 40,
			},
		}),
		Lock: mocks.NewMockDistributedLock(),
	})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	defer proc.Close()

	w, queue := newTestWorker(proc)
	jobs := services.NewJobService(queue, nil)
	ctx := context.Background()

	task, err := jobs.SubmitProcess(ctx, driving.ProcessRequest{
		OwnerID: "alice",
		FileID:  "doc-1",
		Content: "First paragraph here.\n\nSecond paragraph here.",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	dequeued, _ := queue.Dequeue(ctx)
	w.processTask(ctx, dequeued, slog.Default())

	status, err := jobs.Status(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", status.Status, status.Error)
	}

	doc, err := docs.Get(ctx, "alice", "doc-1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != domain.DocumentStatusCompleted {
		t.Errorf("expected document completed, got %s", doc.Status)
	}
	if n := vectors.ChunkCount("alice", "doc-1"); n != 2 {
		t.Errorf("expected 2 stored chunks, got %d", n)
	}
}

func TestWorker_ReprocessFromStoredContent(t *testing.T) {
	docs := mocks.NewMockDocumentStore()
	vectors := mocks.NewMockVectorStore()
	proc, err := services.NewDocumentProcessor(services.ProcessorConfig{
		Documents: docs,
		Vectors:   vectors,
		Embedder:  mocks.NewMockBatchEmbedder(),
		Pipeline: postprocessors.NewPipelineFromConfig(postprocessors.PipelineConfig{
			Chunking: postprocessors.ChunkConfig{
				Strategy:     postprocessors.StrategyParagraph,
				MaxChunkSize: 40,
			},
		}),
		Lock:    mocks.NewMockDistributedLock(),
		Content: docs,
	})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	defer proc.Close()

	w, queue := newTestWorker(proc)
	jobs := services.NewJobService(queue, nil)
	ctx := context.Background()

	if _, err := jobs.SubmitProcess(ctx, driving.ProcessRequest{
		OwnerID: "alice",
		FileID:  "doc-1",
		Content: "First paragraph here.\n\nSecond paragraph here.",
	}); err != nil {
		t.Fatalf("submit process: %v", err)
	}
	dequeued, _ := queue.Dequeue(ctx)
	w.processTask(ctx, dequeued, slog.Default())

	before, err := docs.Get(ctx, "alice", "doc-1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}

	task, err := jobs.SubmitReprocess(ctx, "alice", "doc-1", true)
	if err != nil {
		t.Fatalf("submit reprocess: %v", err)
	}
	dequeued, _ = queue.Dequeue(ctx)
	w.processTask(ctx, dequeued, slog.Default())

	status, err := jobs.Status(ctx, "alice", task.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected reprocess completed, got %s (%s)", status.Status, status.Error)
	}

	after, err := docs.Get(ctx, "alice", "doc-1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if after.Generation == before.Generation {
		t.Error("expected reprocess to write a new generation")
	}
	if n := vectors.ChunkCount("alice", "doc-1"); n != 2 {
		t.Errorf("expected 2 stored chunks, got %d", n)
	}
}
