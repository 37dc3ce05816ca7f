// Package recurrence expands a template's recurrence rule into the ordered
// list of instance dates, and provides the timezone arithmetic the rest of
// the engine uses. Everything here is pure: identical inputs always yield
// identical output, which is what makes instance generation idempotent.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/clubsched/sessiond/internal/model"
)

var (
	// ErrMissingDate indicates a one_time rule without its single date.
	ErrMissingDate = errors.New("one_time rule requires a date")
	// ErrMissingDates indicates a recurring rule without both boundary dates.
	ErrMissingDates = errors.New("recurring rule requires start and end dates")
)

// Rule is the recurrence configuration of a template.
type Rule struct {
	Kind       model.RecurrenceKind
	Timezone   string
	Date       *time.Time // one_time
	StartDate  *time.Time // recurring
	EndDate    *time.Time // recurring
	DayOfWeek  *int       // 0 = Sunday, weekly only
	DayOfMonth *int       // 1-31, monthly only
}

// Options bounds one expansion: an optional window clamp and a hard cap on
// the number of occurrences per batch. The cap bounds batch size, not the
// overall series; the rolling-batch chain picks up where a capped batch ends.
type Options struct {
	WindowStart *time.Time
	WindowEnd   *time.Time
	MaxCount    int
}

var rruleWeekdays = [...]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// Expand returns the ascending instance dates of rule, each as the absolute
// instant of local midnight in the rule's timezone. Daylight-saving shifts
// are resolved per occurrence: the local calendar day is computed first and
// converted to an instant right after.
func Expand(rule Rule, opts Options) ([]time.Time, error) {
	loc, err := LoadZone(rule.Timezone)
	if err != nil {
		return nil, err
	}

	if rule.Kind == model.RecurrenceOneTime {
		if rule.Date == nil {
			return nil, ErrMissingDate
		}
		return []time.Time{MidnightIn(*rule.Date, loc)}, nil
	}

	if rule.StartDate == nil || rule.EndDate == nil {
		return nil, ErrMissingDates
	}

	var freq rrule.Frequency
	switch rule.Kind {
	case model.RecurrenceDaily:
		freq = rrule.DAILY
	case model.RecurrenceWeekly:
		freq = rrule.WEEKLY
	case model.RecurrenceMonthly:
		freq = rrule.MONTHLY
	default:
		return nil, fmt.Errorf("unsupported recurrence kind %q", rule.Kind)
	}

	start := MidnightIn(*rule.StartDate, loc)
	until := MidnightIn(*rule.EndDate, loc)

	// Clamp to the requested window; the series boundaries still win.
	from := start
	if opts.WindowStart != nil {
		if ws := MidnightIn(*opts.WindowStart, loc); ws.After(from) {
			from = ws
		}
	}
	if opts.WindowEnd != nil {
		if we := MidnightIn(*opts.WindowEnd, loc); we.Before(until) {
			until = we
		}
	}
	if until.Before(from) {
		return nil, nil
	}

	ropt := rrule.ROption{
		Freq:     freq,
		Interval: 1,
		Dtstart:  start,
		Until:    until,
	}
	if rule.Kind == model.RecurrenceWeekly && rule.DayOfWeek != nil {
		if *rule.DayOfWeek < 0 || *rule.DayOfWeek > 6 {
			return nil, fmt.Errorf("invalid day of week %d", *rule.DayOfWeek)
		}
		ropt.Byweekday = []rrule.Weekday{rruleWeekdays[*rule.DayOfWeek]}
	}
	if rule.Kind == model.RecurrenceMonthly && rule.DayOfMonth != nil {
		if *rule.DayOfMonth < 1 || *rule.DayOfMonth > 31 {
			return nil, fmt.Errorf("invalid day of month %d", *rule.DayOfMonth)
		}
		ropt.Bymonthday = []int{*rule.DayOfMonth}
	}

	r, err := rrule.NewRRule(ropt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule: %w", err)
	}

	dates := r.Between(from, until, true)
	if opts.MaxCount > 0 && len(dates) > opts.MaxCount {
		dates = dates[:opts.MaxCount]
	}
	return dates, nil
}
