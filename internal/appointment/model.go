package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// ServiceType is the grooming package booked. It alone fixes the duration.
type ServiceType string

const (
	ServiceBasic ServiceType = "basic"
	ServiceFull  ServiceType = "full"
)

// ParseServiceType accepts "basic" or "full", case-insensitively.
func ParseServiceType(s string) (ServiceType, error) {
	switch st := ServiceType(strings.ToLower(strings.TrimSpace(s))); st {
	case ServiceBasic, ServiceFull:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown service_type %q", ErrValidation, s)
	}
}

// Duration returns 60 minutes for basic and 120 for full, zero otherwise.
func (t ServiceType) Duration() time.Duration {
	switch t {
	case ServiceBasic:
		return 60 * time.Minute
	case ServiceFull:
		return 120 * time.Minute
	default:
		return 0
	}
}

type Owner struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Pet struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	Species   string
	Breed     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Groomer struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	PetID       uuid.UUID
	GroomerID   uuid.UUID
	ServiceType ServiceType
	StartTime   time.Time
	EndTime     time.Time
	Status      AppointmentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Occupies reports whether the appointment holds its interval for the groomer.
// Cancelled and completed rows never block a slot.
func (a Appointment) Occupies() bool {
	return a.Status == StatusConfirmed
}

// Schedule is the mutable part of a confirmed appointment that a reschedule
// replaces in one write.
type Schedule struct {
	PetID       uuid.UUID
	GroomerID   uuid.UUID
	ServiceType ServiceType
	StartTime   time.Time
	EndTime     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// OwnerAppointments splits an owner's bookings the way the client shows them.
type OwnerAppointments struct {
	Upcoming []Appointment
	Past     []Appointment
}
