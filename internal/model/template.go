package model

import (
	"time"

	"github.com/google/uuid"
)

type RecurrenceKind string

const (
	RecurrenceOneTime RecurrenceKind = "one_time"
	RecurrenceDaily   RecurrenceKind = "daily"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
)

type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityMembersOnly Visibility = "members_only"
)

// Location is where sessions take place. Timezone is the IANA zone all
// local dates and times of the template are interpreted in.
type Location struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

// TimeslotDefinition describes one bookable sub-period of a template.
// Definitions have no identity of their own; instances assign one at
// materialization time so participation records can reference it.
type TimeslotDefinition struct {
	Name                  string  `json:"name"`
	MaxParticipants       int     `json:"max_participants"`
	MaxWaitlist           int     `json:"max_waitlist"`
	PermanentParticipants []int64 `json:"permanent_participants"`
}

// SessionTemplate is the recurring definition instances are generated from.
type SessionTemplate struct {
	ID          int64                `json:"id"`
	ClubID      int64                `json:"club_id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Recurrence  RecurrenceKind       `json:"recurrence"`
	StartTime   string               `json:"start_time"`   // "HH:MM" local
	EndTime     string               `json:"end_time"`     // "HH:MM" local
	Date        *time.Time           `json:"date"`         // one_time only
	StartDate   *time.Time           `json:"start_date"`   // recurring only
	EndDate     *time.Time           `json:"end_date"`     // recurring only
	DayOfWeek   *int                 `json:"day_of_week"`  // 0 = Sunday, weekly only
	DayOfMonth  *int                 `json:"day_of_month"` // 1-31, monthly only
	Location    Location             `json:"location"`
	Timeslots   []TimeslotDefinition `json:"timeslots"`
	FeeCents    int                  `json:"fee_cents"`
	FeeCurrency string               `json:"fee_currency"`
	Visibility  Visibility           `json:"visibility"`
	IsActive    bool                 `json:"is_active"`
	NextTaskID  *uuid.UUID           `json:"next_task_id"` // latest pending rolling-batch task
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// IsRecurring reports whether the template generates more than one instance.
func (t *SessionTemplate) IsRecurring() bool {
	return t.Recurrence != RecurrenceOneTime
}

// FinalDate is the last calendar day of the series: the single date for
// one_time templates, the end boundary for recurring ones.
func (t *SessionTemplate) FinalDate() *time.Time {
	if t.Recurrence == RecurrenceOneTime {
		return t.Date
	}
	return t.EndDate
}
