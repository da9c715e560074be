package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

const (
	defaultPrefix       = "docindex"
	consumerPrefix      = "worker-"
	defaultTaskTTL      = 24 * time.Hour
	defaultClaimTimeout = 5 * time.Minute
	msgSuffix           = ":msg"
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Options tunes key names and retention
type Options struct {
	// Prefix namespaces every key (default "docindex")
	Prefix string

	// ConsumerName should be unique per worker instance (e.g., hostname + PID)
	ConsumerName string

	// TaskTTL bounds how long task records are kept
	TaskTTL time.Duration

	// ClaimTimeout is how long a delivered task may stay unacked before
	// another worker reclaims it
	ClaimTimeout time.Duration

	Logger *slog.Logger
}

// Queue implements TaskQueue using Redis Streams.
// Task records live in plain keys; the stream carries task ids only,
// delayed tasks wait in a sorted set scored by due time.
type Queue struct {
	client       *redis.Client
	consumerName string
	ttl          time.Duration
	claimTimeout time.Duration
	logger       *slog.Logger

	stream    string
	group     string
	scheduled string
	taskKey   string
}

// NewQueue creates a new Redis-backed task queue and its consumer group.
func NewQueue(ctx context.Context, client *redis.Client, opts Options) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.ConsumerName == "" {
		opts.ConsumerName = fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())
	}
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = defaultTaskTTL
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = defaultClaimTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	q := &Queue{
		client:       client,
		consumerName: opts.ConsumerName,
		ttl:          opts.TaskTTL,
		claimTimeout: opts.ClaimTimeout,
		logger:       opts.Logger.With("component", "redis_queue"),
		stream:       opts.Prefix + ":tasks",
		group:        opts.Prefix + ":workers",
		scheduled:    opts.Prefix + ":scheduled",
		taskKey:      opts.Prefix + ":task:",
	}

	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return q, nil
}

// Enqueue adds a task to the queue for processing.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is required", domain.ErrInvalidInput)
	}
	return q.EnqueueBatch(ctx, []*domain.Task{task})
}

// EnqueueBatch adds multiple tasks in one MULTI/EXEC transaction.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	now := time.Now()
	pipe := q.client.TxPipeline()
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := q.stageSave(ctx, pipe, task); err != nil {
			return err
		}
		if task.ScheduledFor.After(now) {
			q.stageDelay(ctx, pipe, task)
		} else {
			q.stagePublish(ctx, pipe, task)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue tasks: %w", err)
	}
	return nil
}

// Dequeue retrieves the next available task, blocking until one arrives.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.DequeueWithTimeout(ctx, 0)
}

// DequeueWithTimeout retrieves the next available task, waiting up to timeout seconds.
// A zero timeout blocks until a task arrives or ctx ends.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if err := q.promoteScheduledTasks(ctx); err != nil {
		q.logger.Warn("failed to promote scheduled tasks", "error", err)
	}

	if task, err := q.claimAbandonedTask(ctx); err == nil && task != nil {
		return task, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumerName,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    time.Duration(timeout) * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver loads the task behind a stream message and marks it processing.
// Messages whose task is gone or already terminal are dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && task.IsTerminal()) {
		q.dropMessage(ctx, msg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.MarkProcessing()

	pipe := q.client.TxPipeline()
	if err := q.stageSave(ctx, pipe, task); err != nil {
		return nil, err
	}
	pipe.Set(ctx, q.taskKey+task.ID+msgSuffix, msg.ID, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to mark task processing: %w", err)
	}
	return task, nil
}

// Ack acknowledges successful completion of a task.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkCompleted()
	return q.settle(ctx, task, false)
}

// Nack records a failure and reschedules the task with backoff while
// attempts remain; otherwise the task becomes failed.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	retry := task.CanRetry()
	if retry {
		task.Retry(reason)
	} else {
		task.MarkFailed(reason)
	}
	return q.settle(ctx, task, retry)
}

// Fail marks a task failed without rescheduling it.
func (q *Queue) Fail(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkFailed(reason)
	return q.settle(ctx, task, false)
}

// settle acks the delivered message, stores the task and optionally reschedules it.
func (q *Queue) settle(ctx context.Context, task *domain.Task, reschedule bool) error {
	msgKey := q.taskKey + task.ID + msgSuffix
	msgID, err := q.client.Get(ctx, msgKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get message ID: %w", err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, q.stream, q.group, msgID)
		pipe.XDel(ctx, q.stream, msgID)
	}
	if err := q.stageSave(ctx, pipe, task); err != nil {
		return err
	}
	if reschedule {
		q.stageDelay(ctx, pipe, task)
	}
	pipe.Del(ctx, msgKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to settle task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	if taskID == "" {
		return nil, domain.ErrNotFound
	}
	data, err := q.client.Get(ctx, q.taskKey+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// ListTasks retrieves tasks matching the filter, newest first.
// This scans every task key and is meant for status pages, not hot paths.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := q.eachTask(ctx, func(_ string, task *domain.Task) {
		if filter.OwnerID != "" && task.OwnerID != filter.OwnerID {
			return
		}
		if filter.Status != "" && task.Status != filter.Status {
			return
		}
		if filter.Type != "" && task.Type != filter.Type {
			return
		}
		tasks = append(tasks, task)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })

	if filter.Offset >= len(tasks) {
		return []*domain.Task{}, nil
	}
	tasks = tasks[filter.Offset:]
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// CancelTask marks a pending task as cancelled.
func (q *Queue) CancelTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: cannot cancel %s task", domain.ErrInvalidInput, task.Status)
	}

	task.MarkCancelled()

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.scheduled, taskID)
	if err := q.stageSave(ctx, pipe, task); err != nil {
		return err
	}
	_, err = pipe.Exec(ctx)
	return err
}

// PurgeTasks removes terminal tasks not updated for olderThanSeconds.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)

	var stale []string
	err := q.eachTask(ctx, func(key string, task *domain.Task) {
		if task.IsTerminal() && task.UpdatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := q.client.Del(ctx, stale...).Result()
	return int(n), err
}

// Stats returns queue statistics.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}
	var oldest time.Time

	err := q.eachTask(ctx, func(_ string, task *domain.Task) {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
			if oldest.IsZero() || task.CreatedAt.Before(oldest) {
				oldest = task.CreatedAt
			}
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	})
	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestPendingAge = int64(time.Since(oldest).Seconds())
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the Redis client is shared
func (q *Queue) Close() error {
	return nil
}

func (q *Queue) stageSave(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}
	pipe.Set(ctx, q.taskKey+task.ID, data, q.ttl)
	return nil
}

func (q *Queue) stagePublish(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) {
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			"task_id":  task.ID,
			"type":     string(task.Type),
			"owner_id": task.OwnerID,
			"priority": task.Priority,
		},
	})
}

func (q *Queue) stageDelay(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) {
	pipe.ZAdd(ctx, q.scheduled, redis.Z{
		Score:  float64(task.ScheduledFor.Unix()),
		Member: task.ID,
	})
}

func (q *Queue) dropMessage(ctx context.Context, msgID string) {
	pipe := q.client.Pipeline()
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("failed to drop stream message", "msg_id", msgID, "error", err)
	}
}

// eachTask visits every stored task record.
func (q *Queue) eachTask(ctx context.Context, fn func(key string, task *domain.Task)) error {
	iter := q.client.Scan(ctx, 0, q.taskKey+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, msgSuffix) {
			continue
		}
		data, err := q.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var task domain.Task
		if json.Unmarshal(data, &task) != nil {
			continue
		}
		fn(key, &task)
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan tasks: %w", err)
	}
	return nil
}

// promoteScheduledTasks moves due delayed tasks onto the stream.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.scheduled, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := q.client.TxPipeline()
	for _, taskID := range due {
		// ZREM first so concurrent promoters publish each task once
		removed, err := q.client.ZRem(ctx, q.scheduled, taskID).Result()
		if err != nil || removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, taskID)
		if err != nil || task.IsTerminal() {
			continue
		}
		q.stagePublish(ctx, pipe, task)
	}

	_, err = pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// claimAbandonedTask takes over a message left unacked longer than the claim timeout.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   q.claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumerName,
			MinIdle:  q.claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		task, err := q.deliver(ctx, claimed[0])
		if err == nil && task != nil {
			q.logger.Info("reclaimed abandoned task", "task_id", task.ID, "previous_consumer", p.Consumer)
			return task, nil
		}
	}

	return nil, nil
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
