package model

import (
	"time"

	"github.com/google/uuid"
)

type InstanceStatus string

const (
	StatusNotStarted InstanceStatus = "not_started"
	StatusInProgress InstanceStatus = "in_progress"
	StatusCompleted  InstanceStatus = "completed"
	StatusCancelled  InstanceStatus = "cancelled" // administrative, never set by the engine
)

// InstanceTimeslot is a timeslot definition frozen onto an instance, with an
// identity participation records reference and live occupancy counters.
// The counters are refreshed in the same transaction as every participant
// write, so they never drift from the actual record counts.
type InstanceTimeslot struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	MaxParticipants       int       `json:"max_participants"`
	MaxWaitlist           int       `json:"max_waitlist"`
	PermanentParticipants []int64   `json:"permanent_participants"`
	NumParticipants       int       `json:"num_participants"`
	NumWaitlisted         int       `json:"num_waitlisted"`
}

// SessionInstance is one concrete, dated occurrence of a template. Template
// fields are copied at generation time, so later template edits do not
// retroactively change already-materialized instances.
type SessionInstance struct {
	ID           int64              `json:"id"`
	TemplateID   int64              `json:"template_id"`
	ClubID       int64              `json:"club_id"`
	InstanceDate time.Time          `json:"instance_date"` // local midnight in the location's zone
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Location     Location           `json:"location"`
	StartTime    string             `json:"start_time"` // "HH:MM" local, frozen
	EndTime      string             `json:"end_time"`   // "HH:MM" local, frozen
	FeeCents     int                `json:"fee_cents"`
	FeeCurrency  string             `json:"fee_currency"`
	Visibility   Visibility         `json:"visibility"`
	Timeslots    []InstanceTimeslot `json:"timeslots"`
	Status       InstanceStatus     `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Timeslot returns the timeslot with the given id, or nil.
func (i *SessionInstance) Timeslot(id uuid.UUID) *InstanceTimeslot {
	for idx := range i.Timeslots {
		if i.Timeslots[idx].ID == id {
			return &i.Timeslots[idx]
		}
	}
	return nil
}

// IsJoinable reports whether join/leave operations are still permitted.
func (i *SessionInstance) IsJoinable() bool {
	return i.Status == StatusNotStarted
}
