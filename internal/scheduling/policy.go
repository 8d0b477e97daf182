// Package scheduling holds the time rules of the booking engine: business
// hours, the slot grid and the modification window. It does no I/O.
package scheduling

import (
	"fmt"
	"time"
)

// Clock returns the current instant. Services take a Clock so tests can pin
// "now" instead of racing the wall clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Policy describes when groomers work and how close to an appointment it may
// still be changed. Open and Close are offsets from local midnight.
type Policy struct {
	Location           *time.Location
	Open               time.Duration
	Close              time.Duration
	ModificationWindow time.Duration
}

// DefaultPolicy is 09:00-17:00 UTC every day with a 24 hour modification window.
func DefaultPolicy() Policy {
	return Policy{
		Location:           time.UTC,
		Open:               9 * time.Hour,
		Close:              17 * time.Hour,
		ModificationWindow: 24 * time.Hour,
	}
}

// Validate reports a policy that cannot produce any slot.
func (p Policy) Validate() error {
	if p.Open < 0 || p.Close > 24*time.Hour {
		return fmt.Errorf("business hours must lie within one day")
	}
	if p.Close <= p.Open {
		return fmt.Errorf("business close %s must be after open %s", FormatClock(p.Close), FormatClock(p.Open))
	}
	if p.ModificationWindow < 0 {
		return fmt.Errorf("modification window must not be negative")
	}
	return nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Day returns local midnight of the calendar day containing t and of the day
// after it.
func (p Policy) Day(t time.Time) (start, end time.Time) {
	local := t.In(p.location())
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.location())
	return start, start.AddDate(0, 0, 1)
}

// BusinessHours returns the opening and closing instants of the calendar day
// containing date. Offsets are applied as wall-clock times so DST days keep
// 09:00 and 17:00 local.
func (p Policy) BusinessHours(date time.Time) (open, close time.Time) {
	local := date.In(p.location())
	y, m, d := local.Date()
	open = wallClock(y, m, d, p.Open, p.location())
	close = wallClock(y, m, d, p.Close, p.location())
	return open, close
}

// SameDay reports whether a and b fall on the same calendar day in the
// policy's location.
func (p Policy) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(p.location()).Date()
	by, bm, bd := b.In(p.location()).Date()
	return ay == by && am == bm && ad == bd
}

// ParseDate parses YYYY-MM-DD as a calendar day in the policy's location.
func (p Policy) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, p.location())
}

// FormatDate renders the calendar day of t in the policy's location.
func (p Policy) FormatDate(t time.Time) string {
	return t.In(p.location()).Format(time.DateOnly)
}

func wallClock(y int, m time.Month, d int, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	min := int((offset % time.Hour) / time.Minute)
	return time.Date(y, m, d, h, min, 0, 0, loc)
}

// ParseClock parses an HH:MM time of day into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock renders an offset from midnight as HH:MM.
func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int((d%time.Hour)/time.Minute))
}
