package scheduling

import "time"

// Slot is a half-open interval [Start, End) offered for booking. Slots are
// generated on demand and never stored.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports strict overlap of [s.Start, s.End) with [start, end).
// Touching endpoints do not overlap, so back-to-back bookings are allowed.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && s.End.After(start)
}

// Generate returns every slot of length d starting at open, open+d, open+2d...
// whose end does not pass close. The grid step equals the duration.
func Generate(open, close time.Time, d time.Duration) []Slot {
	if d <= 0 || !close.After(open) {
		return nil
	}

	slots := make([]Slot, 0, int(close.Sub(open)/d))
	for start := open; !start.Add(d).After(close); start = start.Add(d) {
		slots = append(slots, Slot{Start: start, End: start.Add(d)})
	}
	return slots
}

// GenerateDay builds the grid for the calendar day containing date.
func (p Policy) GenerateDay(date time.Time, d time.Duration) []Slot {
	open, close := p.BusinessHours(date)
	return Generate(open, close, d)
}

// OnGrid reports whether start is one of the grid starts for duration d on
// its own calendar day.
func (p Policy) OnGrid(start time.Time, d time.Duration) bool {
	for _, s := range p.GenerateDay(start, d) {
		if s.Start.Equal(start) {
			return true
		}
	}
	return false
}

// WithinHours reports whether [start, start+d) lies inside business hours of
// start's calendar day.
func (p Policy) WithinHours(start time.Time, d time.Duration) bool {
	open, close := p.BusinessHours(start)
	return !start.Before(open) && !start.Add(d).After(close)
}
