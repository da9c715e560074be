package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

const (
	// DefaultSchedulerPoll is how often due schedules are checked.
	DefaultSchedulerPoll = 30 * time.Second

	schedulerLockKey  = "scheduler"
	defaultPurgeAfter = 7 * 24 * time.Hour
)

// SchedulerConfig holds the collaborators and timings of a Scheduler.
type SchedulerConfig struct {
	Store     driven.SchedulerStore
	TaskQueue driven.TaskQueue
	Lock      driven.DistributedLock // Optional: elects one scheduler per cycle across workers
	Logger    *slog.Logger

	PollInterval time.Duration
	LockTTL      time.Duration // Defaults to twice the poll interval
	PurgeAfter   time.Duration // Age of finished tasks removed by purge_tasks
}

// Scheduler turns due maintenance schedules (stale recovery, task purging)
// into queue tasks. It runs inside the worker process.
type Scheduler struct {
	store      driven.SchedulerStore
	queue      driven.TaskQueue
	lock       driven.DistributedLock
	logger     *slog.Logger
	poll       time.Duration
	lockTTL    time.Duration
	purgeAfter time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultSchedulerPoll
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.PollInterval
	}
	if cfg.PurgeAfter <= 0 {
		cfg.PurgeAfter = defaultPurgeAfter
	}

	return &Scheduler{
		store:      cfg.Store,
		queue:      cfg.TaskQueue,
		lock:       cfg.Lock,
		logger:     cfg.Logger.With("component", "scheduler"),
		poll:       cfg.PollInterval,
		lockTTL:    cfg.LockTTL,
		purgeAfter: cfg.PurgeAfter,
	}
}

// Start runs the polling loop until Stop is called or ctx is cancelled.
// Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("scheduler starting", "poll_interval", s.poll)
	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick enqueues every due schedule once and returns how many tasks were
// enqueued. With a lock configured, a cycle whose lock is held elsewhere
// enqueues nothing.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, schedulerLockKey, s.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire scheduler lock: %w", err)
		}
		if !acquired {
			s.logger.Debug("scheduler lock held elsewhere, skipping cycle")
			return 0, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), schedulerLockKey); err != nil {
				s.logger.Warn("failed to release scheduler lock", "error", err)
			}
		}()
	}

	due, err := s.store.GetDueScheduledTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list due schedules: %w", err)
	}

	enqueued := 0
	for _, scheduled := range due {
		if !scheduled.IsDue() {
			continue
		}
		task, err := s.enqueue(ctx, scheduled)

		lastError := ""
		if err != nil {
			lastError = err.Error()
			s.logger.Error("failed to enqueue scheduled task", "schedule_id", scheduled.ID, "error", err)
		} else {
			enqueued++
			s.logger.Info("enqueued scheduled task",
				"schedule_id", scheduled.ID,
				"task_id", task.ID,
				"task_type", task.Type,
			)
		}
		// the next run moves forward either way so a broken queue is not hammered
		if err := s.store.UpdateLastRun(ctx, scheduled.ID, lastError); err != nil {
			s.logger.Warn("failed to record schedule run", "schedule_id", scheduled.ID, "error", err)
		}
	}
	return enqueued, nil
}

func (s *Scheduler) enqueue(ctx context.Context, scheduled *domain.ScheduledTask) (*domain.Task, error) {
	var task *domain.Task
	switch scheduled.Type {
	case domain.TaskTypeRecoverStale:
		task = domain.NewRecoverStaleTask()
	case domain.TaskTypePurgeTasks:
		task = domain.NewPurgeTasksTask(s.purgeAfter)
	default:
		return nil, fmt.Errorf("%w: %s cannot be scheduled", domain.ErrInvalidInput, scheduled.Type)
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// EnsureScheduledTasks registers the configured schedules and removes
// stored ones that are no longer configured. Existing entries keep their
// run history and enabled flag.
func (s *Scheduler) EnsureScheduledTasks(ctx context.Context, tasks []*domain.ScheduledTask) error {
	if err := s.store.EnsureScheduledTasks(ctx, tasks); err != nil {
		return err
	}

	configured := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		configured[t.ID] = true
	}
	stored, err := s.store.ListScheduledTasks(ctx)
	if err != nil {
		return err
	}
	removed := 0
	for _, t := range stored {
		if configured[t.ID] {
			continue
		}
		if err := s.store.DeleteScheduledTask(ctx, t.ID); err != nil {
			return fmt.Errorf("remove schedule %s: %w", t.ID, err)
		}
		removed++
	}

	s.logger.Info("scheduled tasks registered", "count", len(tasks), "removed", removed)
	return nil
}

func (s *Scheduler) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.store.ListScheduledTasks(ctx)
}

// SetEnabled pauses or resumes a schedule.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) error {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return err
	}
	scheduled.Enabled = enabled
	return s.store.SaveScheduledTask(ctx, scheduled)
}

// RunNow enqueues a schedule's task immediately. The regular cadence is unchanged.
func (s *Scheduler) RunNow(ctx context.Context, id string) (*domain.Task, error) {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task, err := s.enqueue(ctx, scheduled)
	if err != nil {
		return nil, err
	}
	s.logger.Info("schedule run on demand", "schedule_id", id, "task_id", task.ID)
	return task, nil
}
