package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/model"
)

// ParticipationService handles join/leave against a specific timeslot of a
// specific instance. The capacity check and the write share one serializable
// transaction, so concurrent joins cannot over-admit.
type ParticipationService struct {
	tx           TxRunner
	instances    InstanceStore
	participants ParticipantStore
	logger       *zap.Logger
	now          func() time.Time
}

func NewParticipationService(
	tx TxRunner,
	instances InstanceStore,
	participants ParticipantStore,
	logger *zap.Logger,
) *ParticipationService {
	return &ParticipationService{
		tx:           tx,
		instances:    instances,
		participants: participants,
		logger:       logger,
		now:          time.Now,
	}
}

// Join enrolls a user in a timeslot: confirmed while capacity remains,
// waitlisted while the waitlist has room, ErrTimeslotFull otherwise.
// Idempotent: an existing record is returned unchanged.
func (s *ParticipationService) Join(ctx context.Context, instanceID int64, timeslotID uuid.UUID, userID int64) (*model.SessionParticipant, error) {
	var participant *model.SessionParticipant

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.participants.Get(ctx, instanceID, timeslotID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			participant = existing
			return nil
		}

		inst, err := s.instances.GetByID(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return ErrInstanceNotFound
		}

		ts := inst.Timeslot(timeslotID)
		if ts == nil {
			return ErrTimeslotNotFound
		}
		if !inst.IsJoinable() {
			return ErrStatusNotJoinable
		}

		list, err := s.participants.ListByTimeslot(ctx, instanceID, timeslotID)
		if err != nil {
			return err
		}
		confirmed, waitlisted := tally(list)

		var isWaitlisted bool
		switch {
		case confirmed < ts.MaxParticipants:
			isWaitlisted = false
		case waitlisted < ts.MaxWaitlist:
			isWaitlisted = true
		default:
			return ErrTimeslotFull
		}

		participant = &model.SessionParticipant{
			InstanceID:   instanceID,
			TimeslotID:   timeslotID,
			UserID:       userID,
			JoinedAt:     s.now(),
			IsWaitlisted: isWaitlisted,
		}
		if err := s.participants.Create(ctx, participant); err != nil {
			return err
		}

		return refreshTimeslotCounters(ctx, s.participants, s.instances, inst, timeslotID)
	})
	if err != nil {
		return nil, fmt.Errorf("join timeslot: %w", err)
	}

	s.logger.Info("User joined timeslot",
		zap.Int64("instance_id", instanceID),
		zap.String("timeslot_id", timeslotID.String()),
		zap.Int64("user_id", userID),
		zap.Bool("waitlisted", participant.IsWaitlisted),
	)

	return participant, nil
}

// Leave removes a user's enrollment and promotes the longest-waiting
// waitlisted participant into the freed confirmed seat. Idempotent: leaving
// without a record is a no-op.
func (s *ParticipationService) Leave(ctx context.Context, instanceID int64, timeslotID uuid.UUID, userID int64) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.participants.Get(ctx, instanceID, timeslotID, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}

		inst, err := s.instances.GetByID(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return ErrInstanceNotFound
		}
		if !inst.IsJoinable() {
			return ErrStatusNotJoinable
		}

		if _, err := s.participants.Delete(ctx, instanceID, timeslotID, userID); err != nil {
			return err
		}

		promoted, err := promoteLongestWaiting(ctx, s.participants, inst, timeslotID, s.now())
		if err != nil {
			return err
		}
		if promoted != nil {
			s.logger.Info("Waitlisted participant promoted",
				zap.Int64("instance_id", instanceID),
				zap.String("timeslot_id", timeslotID.String()),
				zap.Int64("user_id", promoted.UserID),
			)
		}

		return refreshTimeslotCounters(ctx, s.participants, s.instances, inst, timeslotID)
	})
	if err != nil {
		return fmt.Errorf("leave timeslot: %w", err)
	}

	s.logger.Info("User left timeslot",
		zap.Int64("instance_id", instanceID),
		zap.String("timeslot_id", timeslotID.String()),
		zap.Int64("user_id", userID),
	)

	return nil
}
