package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubsched/sessiond/internal/model"
	"github.com/clubsched/sessiond/internal/repository/base"
)

const taskColumns = `id, kind, payload, run_at, status, error, executed_at, created_at`

// TaskRepository manages the persisted one-shot task queue.
type TaskRepository struct {
	*base.Repository
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{Repository: base.NewRepository(pool)}
}

func scanTask(row pgx.Row) (*model.ScheduledTask, error) {
	t := &model.ScheduledTask{}
	err := row.Scan(
		&t.ID,
		&t.Kind,
		&t.Payload,
		&t.RunAt,
		&t.Status,
		&t.Error,
		&t.ExecutedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Insert stores a new pending task.
func (r *TaskRepository) Insert(ctx context.Context, t *model.ScheduledTask) error {
	query := `
		INSERT INTO scheduled_tasks (id, kind, payload, run_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.DB(ctx).QueryRow(
		ctx, query,
		t.ID,
		t.Kind,
		t.Payload,
		t.RunAt,
		t.Status,
	).Scan(&t.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	return nil
}

// Due returns pending tasks whose run_at is at or before now, earliest first.
func (r *TaskRepository) Due(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks
		WHERE status = $1 AND run_at <= $2
		ORDER BY run_at, created_at
		LIMIT $3`

	rows, err := r.DB(ctx).Query(ctx, query, model.TaskStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// MarkDone finishes a task. The status guard keeps execution exactly-once
// when two runners ever race on the same row.
func (r *TaskRepository) MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE scheduled_tasks SET status = $2, executed_at = $3
		WHERE id = $1 AND status = $4`

	tag, err := r.DB(ctx).Exec(ctx, query, id, model.TaskStatusDone, at, model.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("mark task done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not pending", id)
	}

	return nil
}

// MarkFailed records a handler failure. Failed tasks are never retried.
func (r *TaskRepository) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, msg string) error {
	query := `UPDATE scheduled_tasks SET status = $2, executed_at = $3, error = $4
		WHERE id = $1 AND status = $5`

	tag, err := r.DB(ctx).Exec(ctx, query, id, model.TaskStatusFailed, at, msg, model.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not pending", id)
	}

	return nil
}

// PendingExists reports whether the task id refers to a pending task.
func (r *TaskRepository) PendingExists(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM scheduled_tasks WHERE id = $1 AND status = $2)`

	var exists bool
	err := r.DB(ctx).QueryRow(ctx, query, id, model.TaskStatusPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending task: %w", err)
	}

	return exists, nil
}

// DeleteFinishedBefore purges done and failed tasks executed before cutoff.
func (r *TaskRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM scheduled_tasks
		WHERE status <> $1 AND executed_at < $2`

	tag, err := r.DB(ctx).Exec(ctx, query, model.TaskStatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished tasks: %w", err)
	}

	return tag.RowsAffected(), nil
}
