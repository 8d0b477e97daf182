package scheduling

import "time"

// CanModify applies the lead-time rule for reschedule and cancel: the
// appointment must be confirmed, still upcoming, and start strictly more than
// the window away. Exactly one window out is not modifiable.
func (p Policy) CanModify(start time.Time, confirmed bool, now time.Time) bool {
	if !confirmed || !start.After(now) {
		return false
	}
	return start.Sub(now) > p.ModificationWindow
}
