package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/model"
	"github.com/clubsched/sessiond/internal/recurrence"
)

// GenerationConfig bounds instance generation: how far ahead the rolling
// window reaches and how many instances one batch may materialize per kind.
type GenerationConfig struct {
	HorizonDays     int
	MaxDailyBatch   int
	MaxWeeklyBatch  int
	MaxMonthlyBatch int
}

func (c GenerationConfig) maxFor(kind model.RecurrenceKind) int {
	switch kind {
	case model.RecurrenceDaily:
		return c.MaxDailyBatch
	case model.RecurrenceWeekly:
		return c.MaxWeeklyBatch
	case model.RecurrenceMonthly:
		return c.MaxMonthlyBatch
	default:
		return 1
	}
}

// SessionService owns templates and the generation pipeline: recurrence
// expansion, idempotent materialization, status-transition arming and the
// self-perpetuating rolling-batch chain.
type SessionService struct {
	tx           TxRunner
	templates    TemplateStore
	instances    InstanceStore
	participants ParticipantStore
	sched        TaskScheduler
	perms        PermissionChecker
	cfg          GenerationConfig
	logger       *zap.Logger
	now          func() time.Time
}

func NewSessionService(
	tx TxRunner,
	templates TemplateStore,
	instances InstanceStore,
	participants ParticipantStore,
	sched TaskScheduler,
	perms PermissionChecker,
	cfg GenerationConfig,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		tx:           tx,
		templates:    templates,
		instances:    instances,
		participants: participants,
		sched:        sched,
		perms:        perms,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateTemplateInput carries everything a club admin supplies for a new
// template. Fee and visibility fields are pass-through data.
type CreateTemplateInput struct {
	ClubID      int64
	Name        string
	Description string
	Recurrence  model.RecurrenceKind
	StartTime   string
	EndTime     string
	Date        *time.Time
	StartDate   *time.Time
	EndDate     *time.Time
	DayOfWeek   *int
	DayOfMonth  *int
	Location    model.Location
	Timeslots   []model.TimeslotDefinition
	FeeCents    int
	FeeCurrency string
	Visibility  model.Visibility
}

func (in *CreateTemplateInput) validate() (*time.Location, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}

	loc, err := recurrence.LoadZone(in.Location.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	start, err := recurrence.ParseClock(in.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	end, err := recurrence.ParseClock(in.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if end.Hour*60+end.Minute <= start.Hour*60+start.Minute {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidTemplate)
	}

	switch in.Recurrence {
	case model.RecurrenceOneTime:
		if in.Date == nil {
			return nil, ErrMissingDate
		}
	case model.RecurrenceDaily, model.RecurrenceWeekly, model.RecurrenceMonthly:
		if in.StartDate == nil || in.EndDate == nil {
			return nil, ErrMissingDates
		}
	default:
		return nil, fmt.Errorf("%w: unknown recurrence kind %q", ErrInvalidTemplate, in.Recurrence)
	}

	if len(in.Timeslots) == 0 {
		return nil, fmt.Errorf("%w: at least one timeslot is required", ErrInvalidTemplate)
	}
	for i, ts := range in.Timeslots {
		if ts.MaxParticipants <= 0 {
			return nil, fmt.Errorf("%w: timeslot %d needs a positive capacity", ErrInvalidTemplate, i)
		}
		if ts.MaxWaitlist < 0 {
			return nil, fmt.Errorf("%w: timeslot %d has a negative waitlist size", ErrInvalidTemplate, i)
		}
		if len(ts.PermanentParticipants) > ts.MaxParticipants {
			return nil, fmt.Errorf("%w: timeslot %d roster exceeds capacity", ErrInvalidTemplate, i)
		}
	}

	return loc, nil
}

// CreateTemplate creates a template, materializes the initial batch, arms the
// per-instance status transitions and the rolling-batch chain, and arms the
// deactivation task at the series' final boundary date.
func (s *SessionService) CreateTemplate(ctx context.Context, actorID int64, in CreateTemplateInput) (*model.SessionTemplate, error) {
	if err := s.perms.AssertCanManage(ctx, actorID, in.ClubID); err != nil {
		return nil, err
	}

	loc, err := in.validate()
	if err != nil {
		return nil, err
	}

	tmpl := &model.SessionTemplate{
		ClubID:      in.ClubID,
		Name:        in.Name,
		Description: in.Description,
		Recurrence:  in.Recurrence,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Date:        in.Date,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		DayOfWeek:   in.DayOfWeek,
		DayOfMonth:  in.DayOfMonth,
		Location:    in.Location,
		Timeslots:   in.Timeslots,
		FeeCents:    in.FeeCents,
		FeeCurrency: in.FeeCurrency,
		Visibility:  in.Visibility,
		IsActive:    true,
	}
	if tmpl.Visibility == "" {
		tmpl.Visibility = model.VisibilityPublic
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.templates.Create(ctx, tmpl); err != nil {
			return err
		}

		now := s.now()
		if _, err := s.generateWindow(ctx, tmpl.ID, now, now.AddDate(0, 0, s.cfg.HorizonDays)); err != nil {
			return err
		}

		// One-shot deactivation at the series' final boundary date.
		final := tmpl.FinalDate()
		deactivateAt := recurrence.MidnightIn(*final, loc)
		if _, err := s.sched.ScheduleAt(ctx, deactivateAt, model.TaskTemplateDeactivate, DeactivatePayload{TemplateID: tmpl.ID}); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	s.logger.Info("Template created",
		zap.Int64("template_id", tmpl.ID),
		zap.Int64("club_id", tmpl.ClubID),
		zap.String("recurrence", string(tmpl.Recurrence)),
		zap.String("timezone", tmpl.Location.Timezone),
	)

	return tmpl, nil
}

// GenerateInstances is the administrative re-trigger of the pipeline for an
// explicit window. Errors with ErrTemplateInactive on deactivated templates.
func (s *SessionService) GenerateInstances(ctx context.Context, templateID int64, windowStart, windowEnd time.Time) ([]int64, error) {
	var ids []int64

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.generateWindow(ctx, templateID, windowStart, windowEnd)
		return err
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// generateWindow runs the full pipeline for one window: expand the recurrence
// rule, materialize each date idempotently, arm status transitions for newly
// created instances, and re-arm the rolling-batch chain. The template is
// re-read inside the transaction so a deactivation that raced with a stale
// chain link cannot produce instances.
func (s *SessionService) generateWindow(ctx context.Context, templateID int64, windowStart, windowEnd time.Time) ([]int64, error) {
	tmpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, ErrTemplateNotFound
	}
	if !tmpl.IsActive {
		return nil, ErrTemplateInactive
	}

	loc, err := recurrence.LoadZone(tmpl.Location.Timezone)
	if err != nil {
		return nil, err
	}

	dates, err := recurrence.Expand(recurrence.Rule{
		Kind:       tmpl.Recurrence,
		Timezone:   tmpl.Location.Timezone,
		Date:       tmpl.Date,
		StartDate:  tmpl.StartDate,
		EndDate:    tmpl.EndDate,
		DayOfWeek:  tmpl.DayOfWeek,
		DayOfMonth: tmpl.DayOfMonth,
	}, recurrence.Options{
		WindowStart: &windowStart,
		WindowEnd:   &windowEnd,
		MaxCount:    s.cfg.maxFor(tmpl.Recurrence),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(dates))
	for _, date := range dates {
		inst, created, err := s.materializeInstance(ctx, tmpl, date)
		if err != nil {
			return nil, err
		}
		ids = append(ids, inst.ID)
		if created {
			if err := s.armStatusTransitions(ctx, tmpl, inst, loc); err != nil {
				return nil, err
			}
		}
	}

	if tmpl.IsRecurring() && len(dates) > 0 {
		if err := s.armNextBatch(ctx, tmpl, dates[len(dates)-1], loc); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Generated instance batch",
		zap.Int64("template_id", tmpl.ID),
		zap.Int("count", len(ids)),
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd),
	)

	return ids, nil
}

// materializeInstance creates the instance for (template, date), or returns
// the existing one unchanged. Duplicate generation is expected under retried
// or overlapping batch runs and is harmless.
func (s *SessionService) materializeInstance(ctx context.Context, tmpl *model.SessionTemplate, date time.Time) (*model.SessionInstance, bool, error) {
	existing, err := s.instances.GetByTemplateAndDate(ctx, tmpl.ID, date)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.logger.Debug("Instance already materialized",
			zap.Int64("template_id", tmpl.ID),
			zap.Time("instance_date", date),
		)
		return existing, false, nil
	}

	timeslots := make([]model.InstanceTimeslot, len(tmpl.Timeslots))
	for i, def := range tmpl.Timeslots {
		roster := make([]int64, len(def.PermanentParticipants))
		copy(roster, def.PermanentParticipants)

		timeslots[i] = model.InstanceTimeslot{
			ID:                    uuid.New(),
			Name:                  def.Name,
			MaxParticipants:       def.MaxParticipants,
			MaxWaitlist:           def.MaxWaitlist,
			PermanentParticipants: roster,
			NumParticipants:       len(roster),
			NumWaitlisted:         0,
		}
	}

	inst := &model.SessionInstance{
		TemplateID:   tmpl.ID,
		ClubID:       tmpl.ClubID,
		InstanceDate: date,
		Name:         tmpl.Name,
		Description:  tmpl.Description,
		Location:     tmpl.Location,
		StartTime:    tmpl.StartTime,
		EndTime:      tmpl.EndTime,
		FeeCents:     tmpl.FeeCents,
		FeeCurrency:  tmpl.FeeCurrency,
		Visibility:   tmpl.Visibility,
		Timeslots:    timeslots,
		Status:       model.StatusNotStarted,
	}

	if err := s.instances.Create(ctx, inst); err != nil {
		return nil, false, err
	}

	if err := seedPermanentParticipants(ctx, s.participants, inst, s.now()); err != nil {
		return nil, false, err
	}

	return inst, true, nil
}

// armStatusTransitions arms the two one-shot tasks that flip the instance to
// in_progress at its local start time and to completed at its local end time.
func (s *SessionService) armStatusTransitions(ctx context.Context, tmpl *model.SessionTemplate, inst *model.SessionInstance, loc *time.Location) error {
	startClock, err := recurrence.ParseClock(tmpl.StartTime)
	if err != nil {
		return err
	}
	endClock, err := recurrence.ParseClock(tmpl.EndTime)
	if err != nil {
		return err
	}

	startAt := recurrence.At(inst.InstanceDate, startClock, loc)
	endAt := recurrence.At(inst.InstanceDate, endClock, loc)

	if _, err := s.sched.ScheduleAt(ctx, startAt, model.TaskSessionStart, StatusPayload{InstanceID: inst.ID}); err != nil {
		return err
	}
	if _, err := s.sched.ScheduleAt(ctx, endAt, model.TaskSessionEnd, StatusPayload{InstanceID: inst.ID}); err != nil {
		return err
	}

	return nil
}

// armNextBatch arms the chain's successor at the latest date of the batch
// just generated and stores its handle on the template. The stored handle is
// the freshness token: a superseded task finds a different id there and dies
// quietly instead of over-generating.
func (s *SessionService) armNextBatch(ctx context.Context, tmpl *model.SessionTemplate, latest time.Time, loc *time.Location) error {
	nextStart := recurrence.MidnightIn(latest.In(loc).AddDate(0, 0, 1), loc)

	taskID, err := s.sched.ScheduleAt(ctx, latest, model.TaskTemplateGenerate, GeneratePayload{
		TemplateID:  tmpl.ID,
		WindowStart: nextStart,
	})
	if err != nil {
		return err
	}

	if err := s.templates.SetNextTaskID(ctx, tmpl.ID, &taskID); err != nil {
		return err
	}

	s.logger.Debug("Rolling batch re-armed",
		zap.Int64("template_id", tmpl.ID),
		zap.String("task_id", taskID.String()),
		zap.Time("run_at", latest),
	)

	return nil
}

// HandleGenerateBatch is the template.generate task body: one link of the
// self-perpetuating chain. It no-ops for inactive templates and for stale
// links whose task id no longer matches the template's stored handle.
func (s *SessionService) HandleGenerateBatch(ctx context.Context, task *model.ScheduledTask) error {
	var payload GeneratePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode generate payload: %w", err)
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		tmpl, err := s.templates.GetByID(ctx, payload.TemplateID)
		if err != nil {
			return err
		}
		if tmpl == nil {
			s.logger.Warn("Generate task for missing template", zap.Int64("template_id", payload.TemplateID))
			return nil
		}
		if !tmpl.IsActive {
			s.logger.Debug("Generate task skipped, template inactive", zap.Int64("template_id", tmpl.ID))
			return nil
		}
		if tmpl.NextTaskID == nil || *tmpl.NextTaskID != task.ID {
			s.logger.Debug("Generate task superseded",
				zap.Int64("template_id", tmpl.ID),
				zap.String("task_id", task.ID.String()),
			)
			return nil
		}

		_, err = s.generateWindow(ctx, tmpl.ID, payload.WindowStart, s.now().AddDate(0, 0, s.cfg.HorizonDays))
		return err
	})
}

// HandleSessionStart is the session.start task body.
func (s *SessionService) HandleSessionStart(ctx context.Context, task *model.ScheduledTask) error {
	return s.transition(ctx, task, model.StatusInProgress)
}

// HandleSessionEnd is the session.end task body.
func (s *SessionService) HandleSessionEnd(ctx context.Context, task *model.ScheduledTask) error {
	return s.transition(ctx, task, model.StatusCompleted)
}

func (s *SessionService) transition(ctx context.Context, task *model.ScheduledTask, status model.InstanceStatus) error {
	var payload StatusPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode status payload: %w", err)
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		inst, err := s.instances.GetByID(ctx, payload.InstanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			s.logger.Warn("Transition task for missing instance", zap.Int64("instance_id", payload.InstanceID))
			return nil
		}
		// An administrative cancellation wins over armed transitions.
		if inst.Status == model.StatusCancelled {
			s.logger.Debug("Transition skipped, instance cancelled", zap.Int64("instance_id", inst.ID))
			return nil
		}

		if err := s.instances.UpdateStatus(ctx, inst.ID, status); err != nil {
			return err
		}

		s.logger.Info("Instance status changed",
			zap.Int64("instance_id", inst.ID),
			zap.String("status", string(status)),
		)
		return nil
	})
}

// HandleDeactivate is the template.deactivate task body: the single automatic
// is_active=false flip at the series' final boundary.
func (s *SessionService) HandleDeactivate(ctx context.Context, task *model.ScheduledTask) error {
	var payload DeactivatePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode deactivate payload: %w", err)
	}

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		tmpl, err := s.templates.GetByID(ctx, payload.TemplateID)
		if err != nil {
			return err
		}
		if tmpl == nil || !tmpl.IsActive {
			return nil
		}

		if err := s.templates.SetActive(ctx, tmpl.ID, false); err != nil {
			return err
		}

		s.logger.Info("Template deactivated", zap.Int64("template_id", tmpl.ID))
		return nil
	})
}

// EnsureScheduled re-runs the pipeline for the current horizon. Used by the
// housekeeping sweep when a template's chain link was lost (crash between a
// finished batch and its successor being armed).
func (s *SessionService) EnsureScheduled(ctx context.Context, templateID int64) error {
	now := s.now()
	_, err := s.GenerateInstances(ctx, templateID, now, now.AddDate(0, 0, s.cfg.HorizonDays))
	return err
}

// CancelInstance is the administrative cancellation. It is the only path to
// the cancelled status; the engine's own transitions never produce it.
func (s *SessionService) CancelInstance(ctx context.Context, actorID, instanceID int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		inst, err := s.instances.GetByID(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return ErrInstanceNotFound
		}
		if err := s.perms.AssertCanManage(ctx, actorID, inst.ClubID); err != nil {
			return err
		}
		if inst.Status == model.StatusCompleted {
			return ErrStatusNotJoinable
		}
		if inst.Status == model.StatusCancelled {
			return nil
		}

		if err := s.instances.UpdateStatus(ctx, inst.ID, model.StatusCancelled); err != nil {
			return err
		}

		s.logger.Info("Instance cancelled",
			zap.Int64("instance_id", inst.ID),
			zap.Int64("actor_id", actorID),
		)
		return nil
	})
}

// GetTemplate returns a template by id.
func (s *SessionService) GetTemplate(ctx context.Context, id int64) (*model.SessionTemplate, error) {
	tmpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, ErrTemplateNotFound
	}
	return tmpl, nil
}

// ListTemplates returns a club's templates.
func (s *SessionService) ListTemplates(ctx context.Context, clubID int64) ([]*model.SessionTemplate, error) {
	return s.templates.ListByClub(ctx, clubID)
}

// GetInstance returns an instance by id.
func (s *SessionService) GetInstance(ctx context.Context, id int64) (*model.SessionInstance, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

// ListInstances returns a template's instances within [from, to).
func (s *SessionService) ListInstances(ctx context.Context, templateID int64, from, to time.Time) ([]*model.SessionInstance, error) {
	return s.instances.ListByTemplate(ctx, templateID, from, to)
}
