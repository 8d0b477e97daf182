package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOwnerNotFound       = errors.New("owner not found")
	ErrPetNotFound         = errors.New("pet not found")
	ErrGroomerNotFound     = errors.New("groomer not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrConflict is returned when a write would leave two overlapping
	// confirmed appointments for one groomer. Callers may re-fetch
	// availability and retry.
	ErrConflict = errors.New("requested slot is no longer available")
)

// Store is the appointment storage contract. The Postgres implementation
// serves it both from the pool and from inside a groomer transaction.
type Store interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListByGroomerAndDate returns the groomer's appointments starting in
	// [dayStart, dayEnd), any status, ordered by start time.
	ListByGroomerAndDate(ctx context.Context, groomerID uuid.UUID, dayStart, dayEnd time.Time) ([]Appointment, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Appointment, error)

	// Insert returns ErrConflict if the store rejects an overlapping row.
	Insert(ctx context.Context, appt Appointment) (*Appointment, error)
	// UpdateSchedule replaces the schedule of a confirmed appointment.
	// Returns ErrConflict on overlap, ErrAppointmentNotFound if the row is
	// gone or no longer confirmed.
	UpdateSchedule(ctx context.Context, id uuid.UUID, s Schedule) (*Appointment, error)
	// SetStatus moves an appointment from one status to another. Returns
	// ErrAppointmentNotFound when no row with that id is in status from.
	SetStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Completion worker
	FindEndedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Directory holds the read-only lookups owned by other parts of the system.
type Directory interface {
	GetOwnerByID(ctx context.Context, id uuid.UUID) (*Owner, error)
	GetPetByID(ctx context.Context, id uuid.UUID) (*Pet, error)
	GetGroomerByID(ctx context.Context, id uuid.UUID) (*Groomer, error)
	ListGroomers(ctx context.Context) ([]Groomer, error)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Store
	Directory

	// WithGroomerTx runs fn in a transaction that holds an exclusive lock on
	// the groomer's schedule. A non-nil error from fn rolls everything back.
	WithGroomerTx(ctx context.Context, groomerID uuid.UUID, fn func(ctx context.Context, tx Store) error) error
}
