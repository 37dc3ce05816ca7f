package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionParticipant is one user's enrollment in one timeslot of one
// instance. JoinedAt is the FIFO ordering key for waitlist promotion; it is
// refreshed when a waitlisted participant is promoted.
type SessionParticipant struct {
	ID           int64     `json:"id"`
	InstanceID   int64     `json:"instance_id"`
	TimeslotID   uuid.UUID `json:"timeslot_id"`
	UserID       int64     `json:"user_id"`
	JoinedAt     time.Time `json:"joined_at"`
	IsWaitlisted bool      `json:"is_waitlisted"`
	CreatedAt    time.Time `json:"created_at"`
}
