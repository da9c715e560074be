package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/docindex/internal/core/domain"
	"github.com/custodia-labs/docindex/internal/core/ports/driven"
)

var _ driven.SchedulerStore = (*SchedulerStore)(nil)

const scheduleColumns = `id, name, type, interval_ms, enabled, next_run, last_run, last_error`

// SchedulerStore keeps maintenance schedules in the scheduled_tasks table
type SchedulerStore struct {
	db *DB
}

func NewSchedulerStore(db *DB) *SchedulerStore {
	return &SchedulerStore{db: db}
}

func (s *SchedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	task, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: schedule %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, err)
	}
	return task, nil
}

func (s *SchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks ORDER BY id`)
}

// GetDueScheduledTasks returns enabled schedules whose next run has passed
func (s *SchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks
		WHERE enabled AND next_run <= $1 ORDER BY next_run`, time.Now())
}

// SaveScheduledTask upserts every field of task
func (s *SchedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			interval_ms = EXCLUDED.interval_ms,
			enabled = EXCLUDED.enabled,
			next_run = EXCLUDED.next_run,
			last_run = EXCLUDED.last_run,
			last_error = EXCLUDED.last_error`,
		task.ID, task.Name, string(task.Type), task.Interval.Milliseconds(),
		task.Enabled, task.NextRun, NullTime(task.LastRun), task.LastError,
	)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", task.ID, err)
	}
	return nil
}

func (s *SchedulerStore) DeleteScheduledTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// UpdateLastRun stamps the run and moves next_run one interval ahead
func (s *SchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_run = $1,
			next_run = $1 + interval_ms * INTERVAL '1 millisecond',
			last_error = $2
		WHERE id = $3`,
		time.Now(), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("record run of schedule %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// EnsureScheduledTasks inserts missing schedules and refreshes the name,
// type and interval of existing ones. Run history and the enabled flag of
// existing rows are left alone.
func (s *SchedulerStore) EnsureScheduledTasks(ctx context.Context, tasks []*domain.ScheduledTask) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, task := range tasks {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO scheduled_tasks (id, name, type, interval_ms, enabled, next_run)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					type = EXCLUDED.type,
					interval_ms = EXCLUDED.interval_ms`,
				task.ID, task.Name, string(task.Type), task.Interval.Milliseconds(), task.Enabled, task.NextRun,
			)
			if err != nil {
				return fmt.Errorf("ensure schedule %s: %w", task.ID, err)
			}
		}
		return nil
	})
}

func (s *SchedulerStore) query(ctx context.Context, query string, args ...any) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.ScheduledTask
	for rows.Next() {
		task, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanSchedule(row rowScanner) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var taskType string
	var intervalMs int64
	var lastRun sql.NullTime
	var lastError sql.NullString

	if err := row.Scan(&task.ID, &task.Name, &taskType, &intervalMs, &task.Enabled,
		&task.NextRun, &lastRun, &lastError); err != nil {
		return nil, err
	}
	task.Type = domain.TaskType(taskType)
	task.Interval = time.Duration(intervalMs) * time.Millisecond
	task.LastRun = TimePtr(lastRun)
	task.LastError = lastError.String
	return &task, nil
}

func expectOneRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: schedule %s", domain.ErrNotFound, id)
	}
	return nil
}
