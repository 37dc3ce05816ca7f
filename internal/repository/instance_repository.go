package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubsched/sessiond/internal/model"
	"github.com/clubsched/sessiond/internal/repository/base"
)

const instanceColumns = `id, template_id, club_id, instance_date, name, description, location,
	start_time, end_time, fee_cents, fee_currency, visibility, timeslots, status, created_at, updated_at`

// InstanceRepository manages materialized session instances.
type InstanceRepository struct {
	*base.Repository
}

func NewInstanceRepository(pool *pgxpool.Pool) *InstanceRepository {
	return &InstanceRepository{Repository: base.NewRepository(pool)}
}

func scanInstance(row pgx.Row) (*model.SessionInstance, error) {
	i := &model.SessionInstance{}
	err := row.Scan(
		&i.ID,
		&i.TemplateID,
		&i.ClubID,
		&i.InstanceDate,
		&i.Name,
		&i.Description,
		&i.Location,
		&i.StartTime,
		&i.EndTime,
		&i.FeeCents,
		&i.FeeCurrency,
		&i.Visibility,
		&i.Timeslots,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return i, nil
}

// Create inserts a new instance.
func (r *InstanceRepository) Create(ctx context.Context, i *model.SessionInstance) error {
	query := `
		INSERT INTO session_instances (template_id, club_id, instance_date, name, description,
			location, start_time, end_time, fee_cents, fee_currency, visibility, timeslots, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.DB(ctx).QueryRow(
		ctx, query,
		i.TemplateID,
		i.ClubID,
		i.InstanceDate,
		i.Name,
		i.Description,
		i.Location,
		i.StartTime,
		i.EndTime,
		i.FeeCents,
		i.FeeCurrency,
		i.Visibility,
		i.Timeslots,
		i.Status,
	).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	return nil
}

// GetByID returns an instance by id, or nil when missing.
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*model.SessionInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM session_instances WHERE id = $1`

	i, err := scanInstance(r.DB(ctx).QueryRow(ctx, query, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance by id: %w", err)
	}

	return i, nil
}

// GetByTemplateAndDate looks an instance up by its idempotency key.
func (r *InstanceRepository) GetByTemplateAndDate(ctx context.Context, templateID int64, date time.Time) (*model.SessionInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM session_instances
		WHERE template_id = $1 AND instance_date = $2`

	i, err := scanInstance(r.DB(ctx).QueryRow(ctx, query, templateID, date))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance by template and date: %w", err)
	}

	return i, nil
}

// ListByTemplate returns a template's instances within [from, to).
func (r *InstanceRepository) ListByTemplate(ctx context.Context, templateID int64, from, to time.Time) ([]*model.SessionInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM session_instances
		WHERE template_id = $1 AND instance_date >= $2 AND instance_date < $3
		ORDER BY instance_date`

	rows, err := r.DB(ctx).Query(ctx, query, templateID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list instances by template: %w", err)
	}
	defer rows.Close()

	var instances []*model.SessionInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, i)
	}

	return instances, rows.Err()
}

// UpdateStatus sets the lifecycle status.
func (r *InstanceRepository) UpdateStatus(ctx context.Context, id int64, status model.InstanceStatus) error {
	query := `UPDATE session_instances SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.DB(ctx).Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instance %d not found", id)
	}

	return nil
}

// UpdateTimeslots replaces the instance's timeslot list (rosters, counters).
func (r *InstanceRepository) UpdateTimeslots(ctx context.Context, id int64, timeslots []model.InstanceTimeslot) error {
	query := `UPDATE session_instances SET timeslots = $2, updated_at = now() WHERE id = $1`

	tag, err := r.DB(ctx).Exec(ctx, query, id, timeslots)
	if err != nil {
		return fmt.Errorf("update instance timeslots: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instance %d not found", id)
	}

	return nil
}
