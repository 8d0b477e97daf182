package appointment

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/grooming-scheduler/internal/scheduling"
)

// ResolveAvailability returns the free slots of length d for the groomer on
// the calendar day of date, ascending by start.
//
// appts may contain anything the caller has at hand; only confirmed rows of
// this groomer on this day block a slot. When date is today, slots starting
// at or before now are dropped; other days get their full grid. Missing input
// yields an empty result instead of an error.
func ResolveAvailability(p scheduling.Policy, groomerID uuid.UUID, date time.Time, d time.Duration, appts []Appointment, now time.Time) []scheduling.Slot {
	if groomerID == uuid.Nil || date.IsZero() || d <= 0 {
		return []scheduling.Slot{}
	}

	busy := blocking(p, groomerID, date, appts, uuid.Nil)
	today := p.SameDay(date, now)

	free := make([]scheduling.Slot, 0)
	for _, slot := range p.GenerateDay(date, d) {
		if today && !slot.Start.After(now) {
			continue
		}
		if overlapsAny(slot, busy) {
			continue
		}
		free = append(free, slot)
	}

	sort.Slice(free, func(i, j int) bool { return free[i].Start.Before(free[j].Start) })
	return free
}

// blocking filters appts down to the confirmed intervals that occupy the
// groomer's day. except is left out so a reschedule does not collide with
// the slot it is about to vacate.
func blocking(p scheduling.Policy, groomerID uuid.UUID, date time.Time, appts []Appointment, except uuid.UUID) []Appointment {
	var out []Appointment
	for _, a := range appts {
		if a.GroomerID != groomerID || !a.Occupies() || a.ID == except {
			continue
		}
		if !p.SameDay(a.StartTime, date) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func overlapsAny(slot scheduling.Slot, busy []Appointment) bool {
	for _, a := range busy {
		if slot.Overlaps(a.StartTime, a.EndTime) {
			return true
		}
	}
	return false
}

var (
	errInPast   = errors.New("start time is in the past")
	errOffHours = errors.New("appointment must lie within business hours")
	errOffGrid  = errors.New("start time is not on the slot grid")
)

// checkSlot is the commit-time form of ResolveAvailability for one requested
// start. Overlap is reported before grid alignment so a request in the middle
// of a taken interval is a conflict rather than a validation failure.
func checkSlot(p scheduling.Policy, groomerID uuid.UUID, start time.Time, d time.Duration, appts []Appointment, except uuid.UUID, now time.Time) error {
	if !start.After(now) {
		return fmt.Errorf("%w: %w", ErrValidation, errInPast)
	}
	if !p.WithinHours(start, d) {
		open, close := p.BusinessHours(start)
		return fmt.Errorf("%w: %w (%s-%s)", ErrValidation, errOffHours,
			open.Format("15:04"), close.Format("15:04"))
	}

	want := scheduling.Slot{Start: start, End: start.Add(d)}
	if overlapsAny(want, blocking(p, groomerID, start, appts, except)) {
		return ErrConflict
	}

	if !p.OnGrid(start, d) {
		return fmt.Errorf("%w: %w", ErrValidation, errOffGrid)
	}
	return nil
}
