package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clubsched/sessiond/internal/model"
)

// The services consume narrow store interfaces so the pgx repositories stay
// swappable for in-memory doubles in tests. All methods join the transaction
// carried by ctx when one is present.

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TemplateStore interface {
	Create(ctx context.Context, t *model.SessionTemplate) error
	GetByID(ctx context.Context, id int64) (*model.SessionTemplate, error)
	ListByClub(ctx context.Context, clubID int64) ([]*model.SessionTemplate, error)
	ListActiveRecurring(ctx context.Context) ([]*model.SessionTemplate, error)
	SetActive(ctx context.Context, id int64, active bool) error
	SetNextTaskID(ctx context.Context, id int64, taskID *uuid.UUID) error
}

type InstanceStore interface {
	Create(ctx context.Context, i *model.SessionInstance) error
	GetByID(ctx context.Context, id int64) (*model.SessionInstance, error)
	GetByTemplateAndDate(ctx context.Context, templateID int64, date time.Time) (*model.SessionInstance, error)
	ListByTemplate(ctx context.Context, templateID int64, from, to time.Time) ([]*model.SessionInstance, error)
	UpdateStatus(ctx context.Context, id int64, status model.InstanceStatus) error
	UpdateTimeslots(ctx context.Context, id int64, timeslots []model.InstanceTimeslot) error
}

type ParticipantStore interface {
	Create(ctx context.Context, p *model.SessionParticipant) error
	Get(ctx context.Context, instanceID int64, timeslotID uuid.UUID, userID int64) (*model.SessionParticipant, error)
	ListByTimeslot(ctx context.Context, instanceID int64, timeslotID uuid.UUID) ([]*model.SessionParticipant, error)
	Delete(ctx context.Context, instanceID int64, timeslotID uuid.UUID, userID int64) (bool, error)
	Promote(ctx context.Context, id int64, at time.Time) error
}

// TaskScheduler arms one-shot delayed tasks.
type TaskScheduler interface {
	ScheduleAt(ctx context.Context, runAt time.Time, kind model.TaskKind, payload any) (uuid.UUID, error)
}

// PermissionChecker is the external identity/permission collaborator.
type PermissionChecker interface {
	AssertCanManage(ctx context.Context, actorID, clubID int64) error
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func(ctx context.Context, actorID, clubID int64) error

func (f PermissionFunc) AssertCanManage(ctx context.Context, actorID, clubID int64) error {
	return f(ctx, actorID, clubID)
}
