package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/model"
)

const defaultBatchSize = 100

// Handler executes one task. The runner records the outcome; a non-nil error
// marks the task failed and is never retried.
type Handler func(ctx context.Context, task *model.ScheduledTask) error

// Runner polls the store for due tasks and dispatches them to registered
// handlers. One runner per deployment; exactly-once execution comes from the
// store's pending-status guard.
type Runner struct {
	store    Store
	logger   *zap.Logger
	interval time.Duration
	batch    int
	handlers map[model.TaskKind]Handler
	stopChan chan struct{}
	now      func() time.Time
}

func NewRunner(store Store, interval time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		logger:   logger,
		interval: interval,
		batch:    defaultBatchSize,
		handlers: make(map[model.TaskKind]Handler),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Register binds a handler to a task kind. Not safe after Start.
func (r *Runner) Register(kind model.TaskKind, h Handler) {
	r.handlers[kind] = h
}

// Start launches the poll loop.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("Starting task runner", zap.Duration("poll_interval", r.interval))
	go r.loop(ctx)
}

// Stop terminates the poll loop.
func (r *Runner) Stop() {
	r.logger.Info("Stopping task runner")
	close(r.stopChan)
}

func (r *Runner) loop(ctx context.Context) {
	// First tick immediately, so tasks overdue from downtime run at startup.
	r.Tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Tick(ctx)
		case <-r.stopChan:
			r.logger.Info("Task runner stopped")
			return
		case <-ctx.Done():
			r.logger.Info("Task runner cancelled")
			return
		}
	}
}

// Tick executes every due task once, in run_at order.
func (r *Runner) Tick(ctx context.Context) {
	now := r.now()

	due, err := r.store.Due(ctx, now, r.batch)
	if err != nil {
		r.logger.Error("Failed to list due tasks", zap.Error(err))
		return
	}

	for _, task := range due {
		r.execute(ctx, task)
	}
}

func (r *Runner) execute(ctx context.Context, task *model.ScheduledTask) {
	handler, ok := r.handlers[task.Kind]
	if !ok {
		r.fail(ctx, task, fmt.Errorf("no handler registered for kind %q", task.Kind))
		return
	}

	if err := handler(ctx, task); err != nil {
		r.fail(ctx, task, err)
		return
	}

	if err := r.store.MarkDone(ctx, task.ID, r.now()); err != nil {
		r.logger.Error("Failed to mark task done",
			zap.String("task_id", task.ID.String()),
			zap.Error(err),
		)
		return
	}

	r.logger.Debug("Task executed",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", string(task.Kind)),
		zap.Time("run_at", task.RunAt),
	)
}

func (r *Runner) fail(ctx context.Context, task *model.ScheduledTask, cause error) {
	r.logger.Error("Task failed",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", string(task.Kind)),
		zap.Error(cause),
	)

	if err := r.store.MarkFailed(ctx, task.ID, r.now(), cause.Error()); err != nil {
		r.logger.Error("Failed to mark task failed",
			zap.String("task_id", task.ID.String()),
			zap.Error(err),
		)
	}
}
