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

const participantColumns = `id, instance_id, timeslot_id, user_id, joined_at, is_waitlisted, created_at`

// ParticipantRepository manages participation records.
type ParticipantRepository struct {
	*base.Repository
}

func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{Repository: base.NewRepository(pool)}
}

func scanParticipant(row pgx.Row) (*model.SessionParticipant, error) {
	p := &model.SessionParticipant{}
	err := row.Scan(
		&p.ID,
		&p.InstanceID,
		&p.TimeslotID,
		&p.UserID,
		&p.JoinedAt,
		&p.IsWaitlisted,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a new participation record.
func (r *ParticipantRepository) Create(ctx context.Context, p *model.SessionParticipant) error {
	query := `
		INSERT INTO session_participants (instance_id, timeslot_id, user_id, joined_at, is_waitlisted)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.DB(ctx).QueryRow(
		ctx, query,
		p.InstanceID,
		p.TimeslotID,
		p.UserID,
		p.JoinedAt,
		p.IsWaitlisted,
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}

	return nil
}

// Get returns the record for (instance, timeslot, user), or nil.
func (r *ParticipantRepository) Get(ctx context.Context, instanceID int64, timeslotID uuid.UUID, userID int64) (*model.SessionParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM session_participants
		WHERE instance_id = $1 AND timeslot_id = $2 AND user_id = $3`

	p, err := scanParticipant(r.DB(ctx).QueryRow(ctx, query, instanceID, timeslotID, userID))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}

	return p, nil
}

// ListByTimeslot returns all records of a timeslot, earliest joined first.
func (r *ParticipantRepository) ListByTimeslot(ctx context.Context, instanceID int64, timeslotID uuid.UUID) ([]*model.SessionParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM session_participants
		WHERE instance_id = $1 AND timeslot_id = $2
		ORDER BY joined_at, id`

	rows, err := r.DB(ctx).Query(ctx, query, instanceID, timeslotID)
	if err != nil {
		return nil, fmt.Errorf("list participants by timeslot: %w", err)
	}
	defer rows.Close()

	var participants []*model.SessionParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// Delete removes the record for (instance, timeslot, user). Returns whether
// a record existed.
func (r *ParticipantRepository) Delete(ctx context.Context, instanceID int64, timeslotID uuid.UUID, userID int64) (bool, error) {
	query := `DELETE FROM session_participants
		WHERE instance_id = $1 AND timeslot_id = $2 AND user_id = $3`

	tag, err := r.DB(ctx).Exec(ctx, query, instanceID, timeslotID, userID)
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Promote flips a waitlisted record to confirmed and refreshes its joined_at,
// so later promotions still order correctly among the remaining waitlist.
func (r *ParticipantRepository) Promote(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE session_participants
		SET is_waitlisted = false, joined_at = $2
		WHERE id = $1 AND is_waitlisted = true`

	tag, err := r.DB(ctx).Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("promote participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %d not waitlisted", id)
	}

	return nil
}
