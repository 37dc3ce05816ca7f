package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/model"
)

// RosterService reconciles a timeslot's permanent-participant roster against
// the actual participation records when the roster is edited. Permanent
// participants get confirmed seats by configuration, bypassing the join
// capacity checks.
type RosterService struct {
	tx           TxRunner
	instances    InstanceStore
	participants ParticipantStore
	perms        PermissionChecker
	logger       *zap.Logger
	now          func() time.Time
}

func NewRosterService(
	tx TxRunner,
	instances InstanceStore,
	participants ParticipantStore,
	perms PermissionChecker,
	logger *zap.Logger,
) *RosterService {
	return &RosterService{
		tx:           tx,
		instances:    instances,
		participants: participants,
		perms:        perms,
		logger:       logger,
		now:          time.Now,
	}
}

// UpdateRosters replaces the permanent rosters of the given timeslots and
// synchronizes the participation records: newly listed users gain confirmed
// enrollments, dropped users lose their record. Dropping a confirmed user
// frees a seat and triggers the same FIFO promotion as leave.
func (s *RosterService) UpdateRosters(ctx context.Context, actorID, instanceID int64, rosters map[uuid.UUID][]int64) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
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

		for timeslotID, newRoster := range rosters {
			ts := inst.Timeslot(timeslotID)
			if ts == nil {
				return ErrTimeslotNotFound
			}

			added, removed := diffRosters(ts.PermanentParticipants, newRoster)

			for _, userID := range added {
				existing, err := s.participants.Get(ctx, instanceID, timeslotID, userID)
				if err != nil {
					return err
				}
				if existing != nil {
					continue
				}
				err = s.participants.Create(ctx, &model.SessionParticipant{
					InstanceID:   instanceID,
					TimeslotID:   timeslotID,
					UserID:       userID,
					JoinedAt:     s.now(),
					IsWaitlisted: false,
				})
				if err != nil {
					return err
				}
			}

			for _, userID := range removed {
				existing, err := s.participants.Get(ctx, instanceID, timeslotID, userID)
				if err != nil {
					return err
				}
				if existing == nil {
					continue
				}
				if _, err := s.participants.Delete(ctx, instanceID, timeslotID, userID); err != nil {
					return err
				}
				if !existing.IsWaitlisted {
					if _, err := promoteLongestWaiting(ctx, s.participants, inst, timeslotID, s.now()); err != nil {
						return err
					}
				}
			}

			ts.PermanentParticipants = append([]int64(nil), newRoster...)

			if err := refreshTimeslotCounters(ctx, s.participants, s.instances, inst, timeslotID); err != nil {
				return err
			}

			s.logger.Info("Permanent roster synchronized",
				zap.Int64("instance_id", instanceID),
				zap.String("timeslot_id", timeslotID.String()),
				zap.Int("added", len(added)),
				zap.Int("removed", len(removed)),
			)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("update rosters: %w", err)
	}

	return nil
}

// diffRosters returns the users present only in the new roster and only in
// the old one.
func diffRosters(oldRoster, newRoster []int64) (added, removed []int64) {
	oldSet := make(map[int64]struct{}, len(oldRoster))
	for _, id := range oldRoster {
		oldSet[id] = struct{}{}
	}
	newSet := make(map[int64]struct{}, len(newRoster))
	for _, id := range newRoster {
		newSet[id] = struct{}{}
	}

	for _, id := range newRoster {
		if _, ok := oldSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range oldRoster {
		if _, ok := newSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
