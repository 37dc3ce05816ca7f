package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/model"
)

// In-memory store doubles. A single mutex stands in for the database's
// serializable transactions: InTx holds it for the whole function, so
// concurrent operations observe the same all-or-nothing behavior the pgx
// repositories get from the pool.

type memTxKey struct{}

type memTx struct {
	mu sync.Mutex
}

func (t *memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, struct{}{}))
}

type memTemplates struct {
	mu     sync.Mutex
	byID   map[int64]*model.SessionTemplate
	nextID int64
}

func newMemTemplates() *memTemplates {
	return &memTemplates{byID: make(map[int64]*model.SessionTemplate)}
}

func cloneTemplate(t *model.SessionTemplate) *model.SessionTemplate {
	c := *t
	c.Timeslots = append([]model.TimeslotDefinition(nil), t.Timeslots...)
	for i := range c.Timeslots {
		c.Timeslots[i].PermanentParticipants = append([]int64(nil), t.Timeslots[i].PermanentParticipants...)
	}
	if t.NextTaskID != nil {
		id := *t.NextTaskID
		c.NextTaskID = &id
	}
	return &c
}

func (s *memTemplates) Create(_ context.Context, t *model.SessionTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	s.byID[t.ID] = cloneTemplate(t)
	return nil
}

func (s *memTemplates) GetByID(_ context.Context, id int64) (*model.SessionTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneTemplate(t), nil
}

func (s *memTemplates) ListByClub(_ context.Context, clubID int64) ([]*model.SessionTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SessionTemplate
	for _, t := range s.byID {
		if t.ClubID == clubID {
			out = append(out, cloneTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memTemplates) ListActiveRecurring(_ context.Context) ([]*model.SessionTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SessionTemplate
	for _, t := range s.byID {
		if t.IsActive && t.IsRecurring() {
			out = append(out, cloneTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memTemplates) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byID[id]; ok {
		t.IsActive = active
	}
	return nil
}

func (s *memTemplates) SetNextTaskID(_ context.Context, id int64, taskID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byID[id]; ok {
		if taskID == nil {
			t.NextTaskID = nil
		} else {
			v := *taskID
			t.NextTaskID = &v
		}
	}
	return nil
}

type memInstances struct {
	mu     sync.Mutex
	byID   map[int64]*model.SessionInstance
	nextID int64
}

func newMemInstances() *memInstances {
	return &memInstances{byID: make(map[int64]*model.SessionInstance)}
}

func cloneInstance(i *model.SessionInstance) *model.SessionInstance {
	c := *i
	c.Timeslots = append([]model.InstanceTimeslot(nil), i.Timeslots...)
	for idx := range c.Timeslots {
		c.Timeslots[idx].PermanentParticipants = append([]int64(nil), i.Timeslots[idx].PermanentParticipants...)
	}
	return &c
}

func (s *memInstances) Create(_ context.Context, i *model.SessionInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	i.ID = s.nextID
	i.CreatedAt = time.Now()
	i.UpdatedAt = i.CreatedAt
	s.byID[i.ID] = cloneInstance(i)
	return nil
}

func (s *memInstances) GetByID(_ context.Context, id int64) (*model.SessionInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneInstance(i), nil
}

func (s *memInstances) GetByTemplateAndDate(_ context.Context, templateID int64, date time.Time) (*model.SessionInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.byID {
		if i.TemplateID == templateID && i.InstanceDate.Equal(date) {
			return cloneInstance(i), nil
		}
	}
	return nil, nil
}

func (s *memInstances) ListByTemplate(_ context.Context, templateID int64, from, to time.Time) ([]*model.SessionInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SessionInstance
	for _, i := range s.byID {
		if i.TemplateID == templateID && !i.InstanceDate.Before(from) && i.InstanceDate.Before(to) {
			out = append(out, cloneInstance(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].InstanceDate.Before(out[b].InstanceDate) })
	return out, nil
}

func (s *memInstances) UpdateStatus(_ context.Context, id int64, status model.InstanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return ErrInstanceNotFound
	}
	i.Status = status
	return nil
}

func (s *memInstances) UpdateTimeslots(_ context.Context, id int64, timeslots []model.InstanceTimeslot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return ErrInstanceNotFound
	}
	i.Timeslots = append([]model.InstanceTimeslot(nil), timeslots...)
	return nil
}

func (s *memInstances) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

type memParticipants struct {
	mu     sync.Mutex
	byID   map[int64]*model.SessionParticipant
	nextID int64
}

func newMemParticipants() *memParticipants {
	return &memParticipants{byID: make(map[int64]*model.SessionParticipant)}
}

func (s *memParticipants) Create(_ context.Context, p *model.SessionParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	p.CreatedAt = time.Now()
	c := *p
	s.byID[p.ID] = &c
	return nil
}

func (s *memParticipants) Get(_ context.Context, instanceID int64, timeslotID uuid.UUID, userID int64) (*model.SessionParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if p.InstanceID == instanceID && p.TimeslotID == timeslotID && p.UserID == userID {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memParticipants) ListByTimeslot(_ context.Context, instanceID int64, timeslotID uuid.UUID) ([]*model.SessionParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SessionParticipant
	for _, p := range s.byID {
		if p.InstanceID == instanceID && p.TimeslotID == timeslotID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memParticipants) Delete(_ context.Context, instanceID int64, timeslotID uuid.UUID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.byID {
		if p.InstanceID == instanceID && p.TimeslotID == timeslotID && p.UserID == userID {
			delete(s.byID, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *memParticipants) Promote(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok || !p.IsWaitlisted {
		return ErrInstanceNotFound
	}
	p.IsWaitlisted = false
	p.JoinedAt = at
	return nil
}

// memSched captures armed tasks so tests can inspect them and feed them back
// into the service handlers as if the runner had fired.
type memSched struct {
	mu    sync.Mutex
	tasks []*model.ScheduledTask
}

func (s *memSched) ScheduleAt(_ context.Context, runAt time.Time, kind model.TaskKind, payload any) (uuid.UUID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &model.ScheduledTask{
		ID:      uuid.New(),
		Kind:    kind,
		Payload: raw,
		RunAt:   runAt,
		Status:  model.TaskStatusPending,
	}
	s.tasks = append(s.tasks, task)
	return task.ID, nil
}

func (s *memSched) ofKind(kind model.TaskKind) []*model.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ScheduledTask
	for _, t := range s.tasks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (s *memSched) lastOfKind(kind model.TaskKind) *model.ScheduledTask {
	all := s.ofKind(kind)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// testEnv wires the services over the in-memory doubles with a controllable
// clock.
type testEnv struct {
	templates     *memTemplates
	instances     *memInstances
	participants  *memParticipants
	sched         *memSched
	sessions      *SessionService
	participation *ParticipationService
	rosters       *RosterService
	clock         time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		templates:    newMemTemplates(),
		instances:    newMemInstances(),
		participants: newMemParticipants(),
		sched:        &memSched{},
		clock:        time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC),
	}

	tx := &memTx{}
	logger := zap.NewNop()
	allow := PermissionFunc(func(context.Context, int64, int64) error { return nil })

	cfg := GenerationConfig{
		HorizonDays:     28,
		MaxDailyBatch:   31,
		MaxWeeklyBatch:  8,
		MaxMonthlyBatch: 3,
	}

	e.sessions = NewSessionService(tx, e.templates, e.instances, e.participants, e.sched, allow, cfg, logger)
	e.participation = NewParticipationService(tx, e.instances, e.participants, logger)
	e.rosters = NewRosterService(tx, e.instances, e.participants, allow, logger)

	now := func() time.Time { return e.clock }
	e.sessions.now = now
	e.participation.now = now
	e.rosters.now = now

	return e
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}
