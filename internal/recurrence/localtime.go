package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a local time-of-day ("HH:MM") without a date or zone attached.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24-hour notation.
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return Clock{}, fmt.Errorf("parse clock %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("parse clock %q: out of range", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MidnightIn returns the instant of local midnight of t's calendar day in loc.
func MidnightIn(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// At combines the calendar day of date (read in loc) with a local time-of-day
// and returns the absolute instant. Daylight-saving offsets are resolved for
// that specific day, not inherited from the date's own offset.
func At(date time.Time, c Clock, loc *time.Location) time.Time {
	ld := date.In(loc)
	return time.Date(ld.Year(), ld.Month(), ld.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// LoadZone resolves an IANA timezone name.
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
