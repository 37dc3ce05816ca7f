// Package tasks is the delayed-execution facility: one-shot callbacks armed
// at absolute instants, persisted so a restart replays anything that came due
// while the process was down.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/model"
)

// Store is the persistence the facility needs.
type Store interface {
	Insert(ctx context.Context, t *model.ScheduledTask) error
	Due(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledTask, error)
	MarkDone(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, msg string) error
	PendingExists(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler arms tasks. When the calling context carries a transaction the
// insert joins it, so a task and the state that references it commit together.
type Scheduler struct {
	store  Store
	logger *zap.Logger
}

func NewScheduler(store Store, logger *zap.Logger) *Scheduler {
	return &Scheduler{store: store, logger: logger}
}

// ScheduleAt arms one task at the given instant and returns its handle.
func (s *Scheduler) ScheduleAt(ctx context.Context, runAt time.Time, kind model.TaskKind, payload any) (uuid.UUID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal task payload: %w", err)
	}

	task := &model.ScheduledTask{
		ID:      uuid.New(),
		Kind:    kind,
		Payload: raw,
		RunAt:   runAt,
		Status:  model.TaskStatusPending,
	}

	if err := s.store.Insert(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("schedule task: %w", err)
	}

	s.logger.Debug("Task armed",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", string(kind)),
		zap.Time("run_at", runAt),
	)

	return task.ID, nil
}
