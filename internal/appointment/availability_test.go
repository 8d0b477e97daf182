package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/grooming-scheduler/internal/scheduling"
)

func confirmed(groomerID uuid.UUID, start time.Time, d time.Duration) Appointment {
	return Appointment{
		ID:        uuid.New(),
		GroomerID: groomerID,
		StartTime: start,
		EndTime:   start.Add(d),
		Status:    StatusConfirmed,
	}
}

func TestResolveAvailability(t *testing.T) {
	p := scheduling.DefaultPolicy()
	groomer := uuid.New()
	day := at(2, 0, 0)

	t.Run("full service around a morning booking", func(t *testing.T) {
		appts := []Appointment{confirmed(groomer, at(2, 9, 0), time.Hour)}
		slots := ResolveAvailability(p, groomer, day, 2*time.Hour, appts, testNow)
		assert.Equal(t, []time.Time{at(2, 11, 0), at(2, 13, 0), at(2, 15, 0)}, slotStarts(slots))
		for _, s := range slots {
			assert.Equal(t, 2*time.Hour, s.End.Sub(s.Start))
		}
	})

	t.Run("back to back bookings", func(t *testing.T) {
		appts := []Appointment{
			confirmed(groomer, at(2, 10, 0), time.Hour),
			confirmed(groomer, at(2, 11, 0), time.Hour),
		}
		slots := ResolveAvailability(p, groomer, day, time.Hour, appts, testNow)
		starts := slotStarts(slots)
		assert.Len(t, starts, 6)
		assert.NotContains(t, starts, at(2, 10, 0))
		assert.NotContains(t, starts, at(2, 11, 0))
		assert.Contains(t, starts, at(2, 9, 0))
		assert.Contains(t, starts, at(2, 12, 0))
	})

	t.Run("ignores rows that do not block", func(t *testing.T) {
		cancelled := confirmed(groomer, at(2, 9, 0), time.Hour)
		cancelled.Status = StatusCancelled
		completed := confirmed(groomer, at(2, 10, 0), time.Hour)
		completed.Status = StatusCompleted
		appts := []Appointment{
			cancelled,
			completed,
			confirmed(uuid.New(), at(2, 11, 0), time.Hour),
			confirmed(groomer, at(3, 12, 0), time.Hour),
		}
		slots := ResolveAvailability(p, groomer, day, time.Hour, appts, testNow)
		assert.Len(t, slots, 8)
	})

	t.Run("today drops slots already started", func(t *testing.T) {
		now := at(2, 11, 30)
		slots := ResolveAvailability(p, groomer, day, time.Hour, nil, now)
		require.NotEmpty(t, slots)
		assert.Equal(t, at(2, 12, 0), slots[0].Start)
		assert.Len(t, slots, 5)
	})

	t.Run("past day keeps its grid", func(t *testing.T) {
		slots := ResolveAvailability(p, groomer, day, time.Hour, nil, at(3, 8, 0))
		require.Len(t, slots, 8)
		assert.Equal(t, at(2, 9, 0), slots[0].Start)
		assert.Equal(t, at(2, 16, 0), slots[7].Start)
	})

	t.Run("missing input", func(t *testing.T) {
		assert.Empty(t, ResolveAvailability(p, uuid.Nil, day, time.Hour, nil, testNow))
		assert.Empty(t, ResolveAvailability(p, groomer, time.Time{}, time.Hour, nil, testNow))
		assert.Empty(t, ResolveAvailability(p, groomer, day, 0, nil, testNow))
	})

	t.Run("results never overlap a booking", func(t *testing.T) {
		appts := []Appointment{
			confirmed(groomer, at(2, 9, 0), 2*time.Hour),
			confirmed(groomer, at(2, 14, 0), time.Hour),
		}
		for _, d := range []time.Duration{time.Hour, 2 * time.Hour} {
			for _, s := range ResolveAvailability(p, groomer, day, d, appts, testNow) {
				for _, a := range appts {
					assert.False(t, s.Overlaps(a.StartTime, a.EndTime), "slot %s overlaps %s", s.Start, a.StartTime)
				}
			}
		}
	})
}

func TestCheckSlot(t *testing.T) {
	p := scheduling.DefaultPolicy()
	groomer := uuid.New()
	existing := confirmed(groomer, at(2, 10, 0), time.Hour)
	appts := []Appointment{existing}

	tests := []struct {
		name    string
		start   time.Time
		d       time.Duration
		except  uuid.UUID
		wantErr error
	}{
		{"free slot", at(2, 11, 0), time.Hour, uuid.Nil, nil},
		{"exact overlap", at(2, 10, 0), time.Hour, uuid.Nil, ErrConflict},
		{"partial overlap off grid", at(2, 10, 30), time.Hour, uuid.Nil, ErrConflict},
		{"own slot excluded", at(2, 10, 0), time.Hour, existing.ID, nil},
		{"off grid", at(2, 13, 15), time.Hour, uuid.Nil, ErrValidation},
		{"after close", at(2, 16, 30), time.Hour, uuid.Nil, ErrValidation},
		{"past", at(1, 7, 0), time.Hour, uuid.Nil, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSlot(p, groomer, tt.start, tt.d, appts, tt.except, testNow)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
