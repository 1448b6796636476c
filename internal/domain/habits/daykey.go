package habits

import (
	"time"
)

// DayKeyLayout is the format of a day-key, a date-only bucket of an instant
const DayKeyLayout = "2006-01-02"

// Calendar is the single day-boundary policy used for storage lookups,
// bucketing and every "today" comparison. All instants are converted into
// Location before a day-key is taken.
type Calendar struct {
	Location *time.Location
	Clock    func() time.Time
}

// NewCalendar returns a calendar bound to loc using the wall clock.
// A nil loc means server-local time.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{Location: loc, Clock: time.Now}
}

// FixedCalendar returns a calendar whose clock always reports now.
func FixedCalendar(loc *time.Location, now time.Time) Calendar {
	c := NewCalendar(loc)
	c.Clock = func() time.Time { return now }
	return c
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Now returns the current instant in the calendar's location
func (c Calendar) Now() time.Time {
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().In(c.loc())
}

// DayKey buckets t into its calendar day
func (c Calendar) DayKey(t time.Time) string {
	return t.In(c.loc()).Format(DayKeyLayout)
}

// Today returns the day-key of the current instant
func (c Calendar) Today() string {
	return c.DayKey(c.Now())
}

// StartOfDay returns midnight of the day containing t
func (c Calendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc())
}

// DayBounds returns the half-open interval [start, end) covering the day of t
func (c Calendar) DayBounds(t time.Time) (time.Time, time.Time) {
	start := c.StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

// StartOfMonth returns midnight of the first day of the month containing t,
// shifted by offset months.
func (c Calendar) StartOfMonth(t time.Time, offset int) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month()+time.Month(offset), 1, 0, 0, 0, 0, c.loc())
}

// ParseDayKey turns a day-key back into midnight of that day
func (c Calendar) ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(DayKeyLayout, key, c.loc())
}

// AddDays shifts a day-key by n calendar days
func (c Calendar) AddDays(key string, n int) (string, error) {
	t, err := c.ParseDayKey(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DayKeyLayout), nil
}

// DaysBetween counts calendar days from a to b inclusive. It returns 0 when b
// is before a.
func (c Calendar) DaysBetween(a, b time.Time) int {
	// compare civil dates in UTC so DST days (23h/25h) do not skew the count
	start := civilDate(a.In(c.loc()))
	end := civilDate(b.In(c.loc()))
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
