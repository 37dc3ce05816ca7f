package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/model"
)

type fakeStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*model.ScheduledTask
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[uuid.UUID]*model.ScheduledTask)}
}

func (s *fakeStore) Insert(_ context.Context, t *model.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.tasks[t.ID] = &c
	return nil
}

func (s *fakeStore) Due(_ context.Context, now time.Time, limit int) ([]*model.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ScheduledTask
	for _, t := range s.tasks {
		if t.Status == model.TaskStatusPending && !t.RunAt.After(now) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) MarkDone(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.finish(id, model.TaskStatusDone, at, "")
}

func (s *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, at time.Time, msg string) error {
	return s.finish(id, model.TaskStatusFailed, at, msg)
}

func (s *fakeStore) finish(id uuid.UUID, status model.TaskStatus, at time.Time, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != model.TaskStatusPending {
		return errors.New("task not pending")
	}
	t.Status = status
	t.Error = msg
	t.ExecutedAt = &at
	return nil
}

func (s *fakeStore) PendingExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return ok && t.Status == model.TaskStatusPending, nil
}

func (s *fakeStore) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tasks {
		if t.Status != model.TaskStatusPending && t.ExecutedAt != nil && t.ExecutedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) get(id uuid.UUID) *model.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	c := *t
	return &c
}

func testRunner(store Store, now time.Time) *Runner {
	r := NewRunner(store, time.Minute, zap.NewNop())
	r.now = func() time.Time { return now }
	return r
}

func TestSchedulerArmsPendingTask(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sched := NewScheduler(store, zap.NewNop())
	runAt := time.Date(2024, time.March, 4, 23, 0, 0, 0, time.UTC)

	id, err := sched.ScheduleAt(context.Background(), runAt, model.TaskSessionStart, map[string]int64{"instance_id": 7})
	if err != nil {
		t.Fatalf("ScheduleAt: %v", err)
	}

	task := store.get(id)
	if task == nil {
		t.Fatal("task not persisted")
	}
	if !task.IsPending() || !task.RunAt.Equal(runAt) || task.Kind != model.TaskSessionStart {
		t.Errorf("task = %+v, want pending session.start at %v", task, runAt)
	}

	var payload map[string]int64
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["instance_id"] != 7 {
		t.Errorf("payload = %v, want instance_id 7", payload)
	}
}

func TestTickExecutesDueTasksInOrder(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

	var ids [3]uuid.UUID
	for i, offset := range []time.Duration{-time.Hour, -2 * time.Hour, -30 * time.Minute} {
		ids[i] = uuid.New()
		store.Insert(context.Background(), &model.ScheduledTask{
			ID:      ids[i],
			Kind:    model.TaskSessionStart,
			Payload: json.RawMessage(`{}`),
			RunAt:   now.Add(offset),
			Status:  model.TaskStatusPending,
		})
	}
	// Not due yet: must survive the tick untouched.
	future := uuid.New()
	store.Insert(context.Background(), &model.ScheduledTask{
		ID:      future,
		Kind:    model.TaskSessionStart,
		Payload: json.RawMessage(`{}`),
		RunAt:   now.Add(time.Hour),
		Status:  model.TaskStatusPending,
	})

	var executed []uuid.UUID
	r := testRunner(store, now)
	r.Register(model.TaskSessionStart, func(_ context.Context, task *model.ScheduledTask) error {
		executed = append(executed, task.ID)
		return nil
	})

	r.Tick(context.Background())

	want := []uuid.UUID{ids[1], ids[0], ids[2]} // run_at order
	if len(executed) != len(want) {
		t.Fatalf("executed %d tasks, want %d", len(executed), len(want))
	}
	for i := range want {
		if executed[i] != want[i] {
			t.Errorf("execution[%d] = %s, want %s", i, executed[i], want[i])
		}
	}

	for _, id := range ids {
		if task := store.get(id); task.Status != model.TaskStatusDone {
			t.Errorf("task %s status = %q, want done", id, task.Status)
		}
	}
	if task := store.get(future); !task.IsPending() {
		t.Errorf("future task status = %q, want pending", task.Status)
	}
}

func TestFailedHandlerMarksFailedWithoutRetry(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

	id := uuid.New()
	store.Insert(context.Background(), &model.ScheduledTask{
		ID:      id,
		Kind:    model.TaskTemplateGenerate,
		Payload: json.RawMessage(`{}`),
		RunAt:   now.Add(-time.Minute),
		Status:  model.TaskStatusPending,
	})

	calls := 0
	r := testRunner(store, now)
	r.Register(model.TaskTemplateGenerate, func(context.Context, *model.ScheduledTask) error {
		calls++
		return errors.New("window expansion blew up")
	})

	r.Tick(context.Background())
	r.Tick(context.Background())

	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
	task := store.get(id)
	if task.Status != model.TaskStatusFailed {
		t.Errorf("task status = %q, want failed", task.Status)
	}
	if task.Error == "" {
		t.Error("failure cause not recorded")
	}
}

func TestUnregisteredKindFails(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

	id := uuid.New()
	store.Insert(context.Background(), &model.ScheduledTask{
		ID:      id,
		Kind:    model.TaskKind("session.unknown"),
		Payload: json.RawMessage(`{}`),
		RunAt:   now.Add(-time.Minute),
		Status:  model.TaskStatusPending,
	})

	r := testRunner(store, now)
	r.Tick(context.Background())

	if task := store.get(id); task.Status != model.TaskStatusFailed {
		t.Errorf("task status = %q, want failed", task.Status)
	}
}

func TestRunnerStops(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	r := NewRunner(store, 10*time.Millisecond, zap.NewNop())
	r.Start(context.Background())

	// Stop must return promptly and further ticks must not panic.
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
