package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven/mocks"
)

func newTestScheduler(cfg SchedulerConfig) (*Scheduler, *mocks.MockSchedulerStore, *mocks.MockTaskQueue) {
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	cfg.Store = store
	cfg.TaskQueue = queue
	return NewScheduler(cfg), store, queue
}

func dueSchedule(id string, taskType domain.TaskType) *domain.ScheduledTask {
	scheduled := domain.NewScheduledTask(id, id, taskType, time.Hour)
	scheduled.NextRun = time.Now().Add(-time.Minute)
	return scheduled
}

func TestNewScheduler_Defaults(t *testing.T) {
	s, _, _ := newTestScheduler(SchedulerConfig{})

	if s.poll != DefaultSchedulerPoll {
		t.Errorf("expected default poll %v, got %v", DefaultSchedulerPoll, s.poll)
	}
	if s.lockTTL != 2*DefaultSchedulerPoll {
		t.Errorf("expected lock ttl of two polls, got %v", s.lockTTL)
	}
	if s.purgeAfter != defaultPurgeAfter {
		t.Errorf("expected default purge age, got %v", s.purgeAfter)
	}

	s, _, _ = newTestScheduler(SchedulerConfig{PollInterval: time.Minute})
	if s.lockTTL != 2*time.Minute {
		t.Errorf("expected lock ttl to follow the poll interval, got %v", s.lockTTL)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, _, _ := newTestScheduler(SchedulerConfig{PollInterval: 50 * time.Millisecond})
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.Running() {
		t.Error("expected scheduler to be running")
	}
	if err := s.Start(ctx); err != nil {
		t.Errorf("second start should be a no-op: %v", err)
	}

	s.Stop()
	if s.Running() {
		t.Error("expected scheduler to be stopped")
	}
	s.Stop()
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	s, store, queue := newTestScheduler(SchedulerConfig{PollInterval: time.Hour})
	ctx := context.Background()
	_ = store.SaveScheduledTask(ctx, dueSchedule("recover", domain.TaskTypeRecoverStale))

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for len(queue.Tasks()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(queue.Tasks()); got != 1 {
		t.Errorf("expected the first cycle to run on start, got %d tasks", got)
	}
}

func TestScheduler_StopsWithContext(t *testing.T) {
	s, _, _ := newTestScheduler(SchedulerConfig{PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the context was cancelled")
	}
}

func TestScheduler_Tick(t *testing.T) {
	s, store, queue := newTestScheduler(SchedulerConfig{PurgeAfter: 48 * time.Hour})
	ctx := context.Background()

	_ = store.SaveScheduledTask(ctx, dueSchedule("recover", domain.TaskTypeRecoverStale))
	_ = store.SaveScheduledTask(ctx, dueSchedule("purge", domain.TaskTypePurgeTasks))
	_ = store.SaveScheduledTask(ctx, domain.NewScheduledTask("later", "later", domain.TaskTypeRecoverStale, time.Hour))
	disabled := dueSchedule("paused", domain.TaskTypeRecoverStale)
	disabled.Enabled = false
	_ = store.SaveScheduledTask(ctx, disabled)

	n, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 enqueued, got %d", n)
	}

	byType := map[domain.TaskType]*domain.Task{}
	for _, task := range queue.Tasks() {
		byType[task.Type] = task
	}
	purge, ok := byType[domain.TaskTypePurgeTasks]
	if !ok {
		t.Fatal("expected a purge task")
	}
	if got := purge.OlderThan(time.Minute); got != 48*time.Hour {
		t.Errorf("expected purge age 48h, got %v", got)
	}
	if purge.OwnerID != "" {
		t.Errorf("expected system task, got owner %q", purge.OwnerID)
	}

	// next runs moved forward
	if n, _ := s.Tick(ctx); n != 0 {
		t.Errorf("expected nothing due on the second tick, got %d", n)
	}
}

func TestScheduler_Tick_EnqueueErrorRecorded(t *testing.T) {
	s, store, queue := newTestScheduler(SchedulerConfig{})
	ctx := context.Background()
	_ = store.SaveScheduledTask(ctx, dueSchedule("recover", domain.TaskTypeRecoverStale))

	queue.EnqueueFn = func(*domain.Task) error { return errors.New("queue unavailable") }

	n, err := s.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing enqueued, got %d", n)
	}

	got, _ := store.GetScheduledTask(ctx, "recover")
	if got.LastError != "queue unavailable" {
		t.Errorf("expected last error to be recorded, got %q", got.LastError)
	}
	if got.IsDue() {
		t.Error("expected next run to move forward after a failure")
	}
}

func TestScheduler_Tick_UnschedulableType(t *testing.T) {
	s, store, queue := newTestScheduler(SchedulerConfig{})
	ctx := context.Background()
	_ = store.SaveScheduledTask(ctx, dueSchedule("odd", domain.TaskTypeDeleteDocument))

	if n, _ := s.Tick(ctx); n != 0 {
		t.Errorf("expected nothing enqueued, got %d", n)
	}
	if len(queue.Tasks()) != 0 {
		t.Error("expected no task for an owner-scoped type")
	}
	got, _ := store.GetScheduledTask(ctx, "odd")
	if got.LastError == "" {
		t.Error("expected the rejection to be recorded")
	}
}

func TestScheduler_Tick_StoreError(t *testing.T) {
	s, store, _ := newTestScheduler(SchedulerConfig{})
	store.GetDueFn = func() ([]*domain.ScheduledTask, error) {
		return nil, errors.New("db down")
	}

	if _, err := s.Tick(context.Background()); err == nil {
		t.Error("expected store error")
	}
}

func TestScheduler_Tick_Lock(t *testing.T) {
	t.Run("held elsewhere", func(t *testing.T) {
		lock := mocks.NewMockDistributedLock()
		lock.SetLockHeld(schedulerLockKey, time.Minute)
		s, store, queue := newTestScheduler(SchedulerConfig{Lock: lock})
		ctx := context.Background()
		_ = store.SaveScheduledTask(ctx, dueSchedule("recover", domain.TaskTypeRecoverStale))

		if n, err := s.Tick(ctx); err != nil || n != 0 {
			t.Errorf("expected a skipped cycle, got n=%d err=%v", n, err)
		}
		if len(queue.Tasks()) != 0 {
			t.Error("expected nothing enqueued")
		}
	})

	t.Run("released after the cycle", func(t *testing.T) {
		lock := mocks.NewMockDistributedLock()
		s, store, _ := newTestScheduler(SchedulerConfig{Lock: lock})
		ctx := context.Background()
		_ = store.SaveScheduledTask(ctx, dueSchedule("recover", domain.TaskTypeRecoverStale))

		if n, _ := s.Tick(ctx); n != 1 {
			t.Errorf("expected 1 enqueued, got %d", n)
		}
		if lock.IsHeld(schedulerLockKey) {
			t.Error("expected the lock to be released")
		}
	})

	t.Run("lock error", func(t *testing.T) {
		lock := mocks.NewMockDistributedLock()
		lock.AcquireFn = func(string, time.Duration) (bool, error) {
			return false, errors.New("redis down")
		}
		s, _, _ := newTestScheduler(SchedulerConfig{Lock: lock})

		if _, err := s.Tick(context.Background()); err == nil {
			t.Error("expected lock error")
		}
	})
}

func TestScheduler_EnsureScheduledTasks(t *testing.T) {
	s, store, _ := newTestScheduler(SchedulerConfig{})
	ctx := context.Background()

	_ = store.SaveScheduledTask(ctx, domain.NewScheduledTask("legacy", "legacy", domain.TaskTypeRecoverStale, time.Hour))

	if err := s.EnsureScheduledTasks(ctx, domain.DefaultSchedulerConfig(time.Minute, time.Hour)); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	_ = store.UpdateLastRun(ctx, "recover-stale", "")
	_ = s.SetEnabled(ctx, "purge-tasks", false)
	before, _ := store.GetScheduledTask(ctx, "recover-stale")
	lastRun := *before.LastRun

	// a restart with a new interval keeps history and the enabled flag
	if err := s.EnsureScheduledTasks(ctx, domain.DefaultSchedulerConfig(2*time.Minute, time.Hour)); err != nil {
		t.Fatalf("ensure again: %v", err)
	}

	list, _ := s.ListScheduledTasks(ctx)
	if len(list) != 2 {
		t.Fatalf("expected the unconfigured schedule to be removed, got %d", len(list))
	}
	rec, _ := store.GetScheduledTask(ctx, "recover-stale")
	if rec.Interval != 2*time.Minute {
		t.Errorf("expected interval update, got %v", rec.Interval)
	}
	if rec.LastRun == nil || !rec.LastRun.Equal(lastRun) {
		t.Error("expected last run to survive")
	}
	if purge, _ := store.GetScheduledTask(ctx, "purge-tasks"); purge.Enabled {
		t.Error("expected the paused schedule to stay paused")
	}
}

func TestScheduler_SetEnabled(t *testing.T) {
	s, store, _ := newTestScheduler(SchedulerConfig{})
	ctx := context.Background()
	_ = store.SaveScheduledTask(ctx, domain.NewScheduledTask("recover", "recover", domain.TaskTypeRecoverStale, time.Hour))

	if err := s.SetEnabled(ctx, "recover", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if got, _ := store.GetScheduledTask(ctx, "recover"); got.Enabled {
		t.Error("expected disabled")
	}
	if err := s.SetEnabled(ctx, "recover", true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if got, _ := store.GetScheduledTask(ctx, "recover"); !got.Enabled {
		t.Error("expected enabled")
	}
	if err := s.SetEnabled(ctx, "missing", true); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s, store, queue := newTestScheduler(SchedulerConfig{})
	ctx := context.Background()
	scheduled := domain.NewScheduledTask("recover", "recover", domain.TaskTypeRecoverStale, time.Hour)
	nextRun := scheduled.NextRun
	_ = store.SaveScheduledTask(ctx, scheduled)

	task, err := s.RunNow(ctx, "recover")
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if task.Type != domain.TaskTypeRecoverStale {
		t.Errorf("expected recover_stale, got %s", task.Type)
	}
	if len(queue.Tasks()) != 1 {
		t.Errorf("expected 1 enqueued task, got %d", len(queue.Tasks()))
	}
	if got, _ := store.GetScheduledTask(ctx, "recover"); !got.NextRun.Equal(nextRun) {
		t.Error("expected the regular cadence to be unchanged")
	}

	if _, err := s.RunNow(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
