package domain

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeProcessDocument indexes a single document
	TaskTypeProcessDocument TaskType = "process_document"
	// TaskTypeReprocessDocument re-indexes an existing document
	TaskTypeReprocessDocument TaskType = "reprocess_document"
	// TaskTypeBatchProcess indexes several documents for one owner
	TaskTypeBatchProcess TaskType = "batch_process"
	// TaskTypeDeleteDocument removes a document and its vectors
	TaskTypeDeleteDocument TaskType = "delete_document"
	// TaskTypeRecoverStale fails documents stuck in processing
	TaskTypeRecoverStale TaskType = "recover_stale"
	// TaskTypePurgeTasks removes old finished tasks from the queue
	TaskTypePurgeTasks TaskType = "purge_tasks"
)

// Payload keys
const (
	PayloadFileID    = "file_id"
	PayloadFileName  = "file_name"
	PayloadMimeType  = "mime_type"
	PayloadContent   = "content"
	PayloadMetadata  = "metadata"  // JSON-encoded DocumentMetadata
	PayloadDocuments = "documents" // JSON-encoded []BatchDocument
	PayloadForce     = "force"
	PayloadOlderThan = "older_than" // seconds, for purge_tasks
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task represents a background job to be processed by workers
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies what kind of task this is
	Type TaskType `json:"type"`

	// OwnerID is the tenant this task belongs to
	// Empty for system tasks such as recover_stale
	OwnerID string `json:"owner_id"`

	// Payload contains task-specific data
	// For process_document: {"file_id": "...", "file_name": "...", "content": "..."}
	// For recover_stale: {} (empty)
	Payload map[string]string `json:"payload"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Priority determines processing order (higher = more urgent)
	// Default is 0, range is -100 to 100
	Priority int `json:"priority"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	// CreatedAt is when the task was enqueued
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the task was last modified
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt is when processing began (nil if not started)
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when processing finished (nil if not complete)
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for delayed tasks)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, ownerID string, payload map[string]string) *Task {
	now := time.Now()
	if payload == nil {
		payload = map[string]string{}
	}
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		OwnerID:      ownerID,
		Payload:      payload,
		Status:       TaskStatusPending,
		Priority:     0,
		Attempts:     0,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewProcessDocumentTask creates a task to index one document
func NewProcessDocumentTask(ownerID string, doc BatchDocument) (*Task, error) {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return NewTask(TaskTypeProcessDocument, ownerID, map[string]string{
		PayloadFileID:   doc.FileID,
		PayloadFileName: doc.FileName,
		PayloadMimeType: doc.MimeType,
		PayloadContent:  doc.Content,
		PayloadMetadata: string(meta),
	}), nil
}

// NewReprocessDocumentTask creates a task to re-index a stored document
func NewReprocessDocumentTask(ownerID, fileID string, force bool) *Task {
	return NewTask(TaskTypeReprocessDocument, ownerID, map[string]string{
		PayloadFileID: fileID,
		PayloadForce:  strconv.FormatBool(force),
	})
}

// NewBatchProcessTask creates a task to index several documents
func NewBatchProcessTask(ownerID string, docs []BatchDocument) (*Task, error) {
	encoded, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode documents: %w", err)
	}
	return NewTask(TaskTypeBatchProcess, ownerID, map[string]string{
		PayloadDocuments: string(encoded),
	}), nil
}

// NewPurgeTasksTask creates a task to remove finished tasks older than olderThan
func NewPurgeTasksTask(olderThan time.Duration) *Task {
	return NewTask(TaskTypePurgeTasks, "", map[string]string{
		PayloadOlderThan: strconv.Itoa(int(olderThan.Seconds())),
	})
}

// NewDeleteDocumentTask creates a task to delete a document
func NewDeleteDocumentTask(ownerID, fileID string) *Task {
	return NewTask(TaskTypeDeleteDocument, ownerID, map[string]string{
		PayloadFileID: fileID,
	})
}

// NewRecoverStaleTask creates a task to fail documents stuck in processing
func NewRecoverStaleTask() *Task {
	return NewTask(TaskTypeRecoverStale, "", nil)
}

// FileID extracts the file_id from the payload
func (t *Task) FileID() string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload[PayloadFileID]
}

// Force reports whether the payload requests a forced reprocess
func (t *Task) Force() bool {
	return t.Payload != nil && t.Payload[PayloadForce] == "true"
}

// BatchDocument rebuilds the document carried by a process_document payload
func (t *Task) BatchDocument() (BatchDocument, error) {
	doc := BatchDocument{
		FileID:   t.Payload[PayloadFileID],
		FileName: t.Payload[PayloadFileName],
		MimeType: t.Payload[PayloadMimeType],
		Content:  t.Payload[PayloadContent],
	}
	if raw := t.Payload[PayloadMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
			return doc, fmt.Errorf("%w: decode metadata: %v", ErrInvalidInput, err)
		}
	}
	return doc, nil
}

// BatchDocuments decodes the documents of a batch_process payload
func (t *Task) BatchDocuments() ([]BatchDocument, error) {
	var docs []BatchDocument
	if err := json.Unmarshal([]byte(t.Payload[PayloadDocuments]), &docs); err != nil {
		return nil, fmt.Errorf("%w: decode documents: %v", ErrInvalidInput, err)
	}
	return docs, nil
}

// OlderThan returns the purge age of a purge_tasks payload, or def when unset
func (t *Task) OlderThan(def time.Duration) time.Duration {
	secs, err := strconv.Atoi(t.Payload[PayloadOlderThan])
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// IsTerminal returns true if the task will not run again
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// MarkCancelled stops a pending task from running
func (t *Task) MarkCancelled() {
	t.Status = TaskStatusCancelled
	t.UpdatedAt = time.Now()
	t.Error = "cancelled"
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && time.Now().After(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.UpdatedAt = now
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err

	// Exponential backoff: 1s, 2s, 4s, 8s, etc.
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute // Cap at 5 minutes
	}
	t.ScheduledFor = now.Add(backoff)
}

// TaskResult represents the outcome of processing a task
type TaskResult struct {
	TaskID      string        `json:"task_id"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	ItemsCount  int           `json:"items_count,omitempty"`  // e.g., documents indexed
	ErrorsCount int           `json:"errors_count,omitempty"` // e.g., documents failed
}

// ScheduledTask represents a recurring task configuration
type ScheduledTask struct {
	// ID is the unique identifier for this scheduled task
	ID string `json:"id"`

	// Name is a human-readable name for the task
	Name string `json:"name"`

	// Type is the task type to create when triggered
	Type TaskType `json:"type"`

	// Interval is how often to run the task
	Interval time.Duration `json:"interval"`

	// Enabled indicates if the schedule is active
	Enabled bool `json:"enabled"`

	// LastRun is when the task was last triggered
	LastRun *time.Time `json:"last_run,omitempty"`

	// NextRun is when the task should next be triggered
	NextRun time.Time `json:"next_run"`

	// LastError contains the last error if the scheduled task failed
	LastError string `json:"last_error,omitempty"`
}

// NewScheduledTask creates a new scheduled task
func NewScheduledTask(id, name string, taskType TaskType, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(interval),
	}
}

// IsDue returns true if the scheduled task should be triggered
func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && time.Now().After(s.NextRun)
}

// UpdateNextRun calculates the next run time after execution
func (s *ScheduledTask) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}

// DefaultSchedulerConfig returns the default scheduled tasks
func DefaultSchedulerConfig(recoverInterval, purgeInterval time.Duration) []*ScheduledTask {
	if recoverInterval <= 0 {
		recoverInterval = 5 * time.Minute
	}
	if purgeInterval <= 0 {
		purgeInterval = 24 * time.Hour
	}
	return []*ScheduledTask{
		NewScheduledTask(
			"recover-stale",
			"Recover Stale Documents",
			TaskTypeRecoverStale,
			recoverInterval,
		),
		NewScheduledTask(
			"purge-tasks",
			"Purge Finished Tasks",
			TaskTypePurgeTasks,
			purgeInterval,
		),
	}
}
