package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubsched/sessiond/internal/model"
	"github.com/clubsched/sessiond/internal/repository/base"
)

const templateColumns = `id, club_id, name, description, recurrence, start_time, end_time,
	date, start_date, end_date, day_of_week, day_of_month, location, timeslots,
	fee_cents, fee_currency, visibility, is_active, next_task_id, created_at, updated_at`

// TemplateRepository manages session templates.
type TemplateRepository struct {
	*base.Repository
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{Repository: base.NewRepository(pool)}
}

func scanTemplate(row pgx.Row) (*model.SessionTemplate, error) {
	t := &model.SessionTemplate{}
	err := row.Scan(
		&t.ID,
		&t.ClubID,
		&t.Name,
		&t.Description,
		&t.Recurrence,
		&t.StartTime,
		&t.EndTime,
		&t.Date,
		&t.StartDate,
		&t.EndDate,
		&t.DayOfWeek,
		&t.DayOfMonth,
		&t.Location,
		&t.Timeslots,
		&t.FeeCents,
		&t.FeeCurrency,
		&t.Visibility,
		&t.IsActive,
		&t.NextTaskID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts a new template.
func (r *TemplateRepository) Create(ctx context.Context, t *model.SessionTemplate) error {
	query := `
		INSERT INTO session_templates (club_id, name, description, recurrence, start_time, end_time,
			date, start_date, end_date, day_of_week, day_of_month, location, timeslots,
			fee_cents, fee_currency, visibility, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at
	`

	err := r.DB(ctx).QueryRow(
		ctx, query,
		t.ClubID,
		t.Name,
		t.Description,
		t.Recurrence,
		t.StartTime,
		t.EndTime,
		t.Date,
		t.StartDate,
		t.EndDate,
		t.DayOfWeek,
		t.DayOfMonth,
		t.Location,
		t.Timeslots,
		t.FeeCents,
		t.FeeCurrency,
		t.Visibility,
		t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}

	return nil
}

// GetByID returns a template by id, or nil when missing.
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*model.SessionTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM session_templates WHERE id = $1`

	t, err := scanTemplate(r.DB(ctx).QueryRow(ctx, query, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template by id: %w", err)
	}

	return t, nil
}

// ListByClub returns all templates of a club.
func (r *TemplateRepository) ListByClub(ctx context.Context, clubID int64) ([]*model.SessionTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM session_templates WHERE club_id = $1 ORDER BY id`

	rows, err := r.DB(ctx).Query(ctx, query, clubID)
	if err != nil {
		return nil, fmt.Errorf("list templates by club: %w", err)
	}
	defer rows.Close()

	var templates []*model.SessionTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// ListActiveRecurring returns all active recurring templates.
func (r *TemplateRepository) ListActiveRecurring(ctx context.Context) ([]*model.SessionTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM session_templates
		WHERE is_active = true AND recurrence <> $1 ORDER BY id`

	rows, err := r.DB(ctx).Query(ctx, query, model.RecurrenceOneTime)
	if err != nil {
		return nil, fmt.Errorf("list active recurring templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.SessionTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// SetActive updates the active flag.
func (r *TemplateRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE session_templates SET is_active = $2, updated_at = now() WHERE id = $1`

	if _, err := r.DB(ctx).Exec(ctx, query, id, active); err != nil {
		return fmt.Errorf("set template active: %w", err)
	}

	return nil
}

// SetNextTaskID stores the handle of the latest pending rolling-batch task.
func (r *TemplateRepository) SetNextTaskID(ctx context.Context, id int64, taskID *uuid.UUID) error {
	query := `UPDATE session_templates SET next_task_id = $2, updated_at = now() WHERE id = $1`

	if _, err := r.DB(ctx).Exec(ctx, query, id, taskID); err != nil {
		return fmt.Errorf("set template next task id: %w", err)
	}

	return nil
}
