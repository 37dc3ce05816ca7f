package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clubsched/sessiond/internal/model"
)

// Occupancy helpers. Counts are always derived from the participation
// records, never trusted from a cached field; the denormalized counters on
// the instance are refreshed from these counts in the same transaction as
// every participant write.

func tally(participants []*model.SessionParticipant) (confirmed, waitlisted int) {
	for _, p := range participants {
		if p.IsWaitlisted {
			waitlisted++
		} else {
			confirmed++
		}
	}
	return confirmed, waitlisted
}

// longestWaiting returns the waitlisted participant with the earliest
// joined_at (ties broken by record id), or nil when the waitlist is empty.
func longestWaiting(participants []*model.SessionParticipant) *model.SessionParticipant {
	var oldest *model.SessionParticipant
	for _, p := range participants {
		if !p.IsWaitlisted {
			continue
		}
		if oldest == nil || p.JoinedAt.Before(oldest.JoinedAt) ||
			(p.JoinedAt.Equal(oldest.JoinedAt) && p.ID < oldest.ID) {
			oldest = p
		}
	}
	return oldest
}

// promoteLongestWaiting flips the longest-waiting waitlisted participant of
// the timeslot to confirmed if a confirmed seat is free. Its joined_at is
// refreshed so later promotions still order correctly among the remaining
// waitlist. Returns the promoted record, or nil.
func promoteLongestWaiting(ctx context.Context, participants ParticipantStore, inst *model.SessionInstance, timeslotID uuid.UUID, now time.Time) (*model.SessionParticipant, error) {
	ts := inst.Timeslot(timeslotID)
	if ts == nil {
		return nil, ErrTimeslotNotFound
	}

	list, err := participants.ListByTimeslot(ctx, inst.ID, timeslotID)
	if err != nil {
		return nil, err
	}

	confirmed, _ := tally(list)
	if confirmed >= ts.MaxParticipants {
		return nil, nil
	}

	candidate := longestWaiting(list)
	if candidate == nil {
		return nil, nil
	}

	if err := participants.Promote(ctx, candidate.ID, now); err != nil {
		return nil, err
	}

	candidate.IsWaitlisted = false
	candidate.JoinedAt = now
	return candidate, nil
}

// refreshTimeslotCounters recounts one timeslot's occupancy from the records
// and writes the counters back onto the instance.
func refreshTimeslotCounters(ctx context.Context, participants ParticipantStore, instances InstanceStore, inst *model.SessionInstance, timeslotID uuid.UUID) error {
	ts := inst.Timeslot(timeslotID)
	if ts == nil {
		return ErrTimeslotNotFound
	}

	list, err := participants.ListByTimeslot(ctx, inst.ID, timeslotID)
	if err != nil {
		return err
	}

	ts.NumParticipants, ts.NumWaitlisted = tally(list)
	return instances.UpdateTimeslots(ctx, inst.ID, inst.Timeslots)
}

// seedPermanentParticipants creates confirmed participation records for every
// permanent roster member of a freshly materialized instance. Insert-only:
// existing records are left untouched.
func seedPermanentParticipants(ctx context.Context, participants ParticipantStore, inst *model.SessionInstance, now time.Time) error {
	for _, ts := range inst.Timeslots {
		for _, userID := range ts.PermanentParticipants {
			existing, err := participants.Get(ctx, inst.ID, ts.ID, userID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}

			err = participants.Create(ctx, &model.SessionParticipant{
				InstanceID:   inst.ID,
				TimeslotID:   ts.ID,
				UserID:       userID,
				JoinedAt:     now,
				IsWaitlisted: false,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
