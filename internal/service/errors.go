package service

import (
	"errors"

	"github.com/clubsched/sessiond/internal/recurrence"
)

// Validation errors: rejected before any mutation. The boundary-date errors
// are shared with the recurrence calculator so callers match either layer.
var (
	ErrMissingDates    = recurrence.ErrMissingDates
	ErrMissingDate     = recurrence.ErrMissingDate
	ErrInvalidTemplate = errors.New("invalid template")
)

// State errors: terminal for the calling operation until the state changes.
var (
	ErrTemplateInactive  = errors.New("template is inactive")
	ErrStatusNotJoinable = errors.New("session is no longer joinable")
	ErrTimeslotFull      = errors.New("timeslot and waitlist are full")
)

// Lookup errors.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrTimeslotNotFound = errors.New("timeslot not found")
)
