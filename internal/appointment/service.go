package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/grooming-scheduler/internal/redis"
	"github.com/hackgods/grooming-scheduler/internal/scheduling"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
)

var (
	ErrValidation                = errors.New("validation error")
	ErrModificationWindowExpired = errors.New("appointment can no longer be changed")
	ErrInvalidStateTransition    = errors.New("invalid status transition")
	ErrSlotBeingBooked           = fmt.Errorf("%w: groomer schedule is being booked, please retry", ErrConflict)
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	policy scheduling.Policy
	clock  scheduling.Clock
	log    *slog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, policy scheduling.Policy, clock scheduling.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = scheduling.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		policy: policy,
		clock:  clock,
		log:    logger,
	}
}

// Policy exposes the time rules the service enforces.
func (s *Service) Policy() scheduling.Policy {
	return s.policy
}

// Availability lists the groomer's free slots for the service type on the
// calendar day of date. Missing arguments give an empty list, not an error.
// The result is computed from the store on every call.
func (s *Service) Availability(ctx context.Context, groomerID uuid.UUID, date time.Time, serviceType ServiceType) ([]scheduling.Slot, error) {
	d := serviceType.Duration()
	if groomerID == uuid.Nil || date.IsZero() || d <= 0 {
		return []scheduling.Slot{}, nil
	}

	if _, err := s.repo.GetGroomerByID(ctx, groomerID); err != nil {
		return nil, fmt.Errorf("load groomer: %w", err)
	}

	dayStart, dayEnd := s.policy.Day(date)
	appts, err := s.repo.ListByGroomerAndDate(ctx, groomerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list groomer appointments: %w", err)
	}

	return ResolveAvailability(s.policy, groomerID, date, d, appts, s.clock.Now()), nil
}

type CreateInput struct {
	OwnerID     uuid.UUID
	PetID       uuid.UUID
	GroomerID   uuid.UUID
	ServiceType ServiceType
	StartTime   time.Time
}

// CreateAppointment books a confirmed appointment. The slot is checked again
// under the groomer lock and inside the write transaction, so two callers
// racing for overlapping times cannot both succeed.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (*Appointment, error) {
	if err := validateBooking(in.OwnerID, in.GroomerID, in.ServiceType, in.StartTime); err != nil {
		return nil, err
	}
	if in.PetID == uuid.Nil {
		return nil, fmt.Errorf("%w: pet_id is required", ErrValidation)
	}

	if _, err := s.repo.GetOwnerByID(ctx, in.OwnerID); err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if err := s.checkPet(ctx, in.PetID, in.OwnerID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetGroomerByID(ctx, in.GroomerID); err != nil {
		return nil, fmt.Errorf("load groomer: %w", err)
	}

	start := in.StartTime.UTC()
	d := in.ServiceType.Duration()

	var created *Appointment
	err := s.withGroomerSchedule(ctx, in.GroomerID, start, func(ctx context.Context, tx Store) error {
		now := s.clock.Now()
		existing, err := s.listDay(ctx, tx, in.GroomerID, start)
		if err != nil {
			return err
		}
		if err := checkSlot(s.policy, in.GroomerID, start, d, existing, uuid.Nil, now); err != nil {
			return err
		}

		appt, err := tx.Insert(ctx, Appointment{
			ID:          uuid.New(),
			OwnerID:     in.OwnerID,
			PetID:       in.PetID,
			GroomerID:   in.GroomerID,
			ServiceType: in.ServiceType,
			StartTime:   start,
			EndTime:     start.Add(d),
			Status:      StatusConfirmed,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(ctx, tx, appt.ID, EventAppointmentCreated, map[string]any{
			"groomer_id":   appt.GroomerID.String(),
			"pet_id":       appt.PetID.String(),
			"service_type": appt.ServiceType,
			"start_time":   appt.StartTime,
			"end_time":     appt.EndTime,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.log.InfoContext(ctx, "booking rejected", "groomer_id", in.GroomerID, "start_time", start, "reason", err.Error())
		}
		return nil, err
	}

	return created, nil
}

type RescheduleInput struct {
	AppointmentID uuid.UUID
	OwnerID       uuid.UUID
	// PetID may be left nil to keep the current pet.
	PetID       uuid.UUID
	GroomerID   uuid.UUID
	ServiceType ServiceType
	StartTime   time.Time
}

// RescheduleAppointment moves a confirmed appointment to a new groomer, service
// or start. The old slot is released and the new one claimed in one update.
func (s *Service) RescheduleAppointment(ctx context.Context, in RescheduleInput) (*Appointment, error) {
	if in.AppointmentID == uuid.Nil {
		return nil, fmt.Errorf("%w: appointment id is required", ErrValidation)
	}
	if err := validateBooking(in.OwnerID, in.GroomerID, in.ServiceType, in.StartTime); err != nil {
		return nil, err
	}

	current, err := s.ownedAppointment(ctx, s.repo, in.AppointmentID, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureModifiable(current); err != nil {
		return nil, err
	}

	petID := current.PetID
	if in.PetID != uuid.Nil && in.PetID != current.PetID {
		if err := s.checkPet(ctx, in.PetID, in.OwnerID); err != nil {
			return nil, err
		}
		petID = in.PetID
	}
	if in.GroomerID != current.GroomerID {
		if _, err := s.repo.GetGroomerByID(ctx, in.GroomerID); err != nil {
			return nil, fmt.Errorf("load groomer: %w", err)
		}
	}

	start := in.StartTime.UTC()
	d := in.ServiceType.Duration()

	var updated *Appointment
	err = s.withGroomerSchedule(ctx, in.GroomerID, start, func(ctx context.Context, tx Store) error {
		// State may have moved since the first read.
		appt, err := s.ownedAppointment(ctx, tx, in.AppointmentID, in.OwnerID)
		if err != nil {
			return err
		}
		if err := s.ensureModifiable(appt); err != nil {
			return err
		}

		existing, err := s.listDay(ctx, tx, in.GroomerID, start)
		if err != nil {
			return err
		}
		if err := checkSlot(s.policy, in.GroomerID, start, d, existing, appt.ID, s.clock.Now()); err != nil {
			return err
		}

		res, err := tx.UpdateSchedule(ctx, appt.ID, Schedule{
			PetID:       petID,
			GroomerID:   in.GroomerID,
			ServiceType: in.ServiceType,
			StartTime:   start,
			EndTime:     start.Add(d),
		})
		if err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		updated = res

		s.logEvent(ctx, tx, appt.ID, EventAppointmentRescheduled, map[string]any{
			"old_groomer_id": appt.GroomerID.String(),
			"old_start_time": appt.StartTime,
			"old_end_time":   appt.EndTime,
			"groomer_id":     res.GroomerID.String(),
			"service_type":   res.ServiceType,
			"start_time":     res.StartTime,
			"end_time":       res.EndTime,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// CancelAppointment releases a confirmed appointment's slot. The same lead
// time rule as rescheduling applies.
func (s *Service) CancelAppointment(ctx context.Context, id, ownerID uuid.UUID) (*Appointment, error) {
	appt, err := s.ownedAppointment(ctx, s.repo, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureModifiable(appt); err != nil {
		return nil, err
	}

	cancelled, err := s.repo.SetStatus(ctx, appt.ID, StatusConfirmed, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition.
			return nil, ErrInvalidStateTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, s.repo, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"groomer_id": cancelled.GroomerID.String(),
		"start_time": cancelled.StartTime,
	})

	return cancelled, nil
}

// CanModify reports whether the owner may still reschedule or cancel.
func (s *Service) CanModify(ctx context.Context, id, ownerID uuid.UUID) (bool, error) {
	appt, err := s.ownedAppointment(ctx, s.repo, id, ownerID)
	if err != nil {
		return false, err
	}
	return s.policy.CanModify(appt.StartTime, appt.Status == StatusConfirmed, s.clock.Now()), nil
}

// GetAppointment returns one of the owner's appointments.
func (s *Service) GetAppointment(ctx context.Context, id, ownerID uuid.UUID) (*Appointment, error) {
	return s.ownedAppointment(ctx, s.repo, id, ownerID)
}

// ListAppointmentsByOwner splits the owner's appointments into upcoming
// (confirmed, not yet started; soonest first) and past (everything else;
// most recent first).
func (s *Service) ListAppointmentsByOwner(ctx context.Context, ownerID uuid.UUID) (OwnerAppointments, error) {
	if ownerID == uuid.Nil {
		return OwnerAppointments{}, fmt.Errorf("%w: owner id is required", ErrValidation)
	}

	appts, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return OwnerAppointments{}, fmt.Errorf("list appointments by owner: %w", err)
	}

	now := s.clock.Now()
	out := OwnerAppointments{Upcoming: []Appointment{}, Past: []Appointment{}}
	for _, a := range appts {
		if a.Status == StatusConfirmed && a.StartTime.After(now) {
			out.Upcoming = append(out.Upcoming, a)
		} else {
			out.Past = append(out.Past, a)
		}
	}

	sort.SliceStable(out.Upcoming, func(i, j int) bool {
		return out.Upcoming[i].StartTime.Before(out.Upcoming[j].StartTime)
	})
	sort.SliceStable(out.Past, func(i, j int) bool {
		return out.Past[i].StartTime.After(out.Past[j].StartTime)
	})
	return out, nil
}

// GroomerSchedule returns the groomer's non-cancelled appointments for the
// calendar day of date, earliest first.
func (s *Service) GroomerSchedule(ctx context.Context, groomerID uuid.UUID, date time.Time) ([]Appointment, error) {
	if groomerID == uuid.Nil || date.IsZero() {
		return nil, fmt.Errorf("%w: groomer id and date are required", ErrValidation)
	}
	if _, err := s.repo.GetGroomerByID(ctx, groomerID); err != nil {
		return nil, fmt.Errorf("load groomer: %w", err)
	}

	dayStart, dayEnd := s.policy.Day(date)
	appts, err := s.repo.ListByGroomerAndDate(ctx, groomerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list groomer appointments: %w", err)
	}

	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status != StatusCancelled {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Service) ListGroomers(ctx context.Context) ([]Groomer, error) {
	groomers, err := s.repo.ListGroomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groomers: %w", err)
	}
	return groomers, nil
}

func (s *Service) GetGroomer(ctx context.Context, id uuid.UUID) (*Groomer, error) {
	g, err := s.repo.GetGroomerByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get groomer: %w", err)
	}
	return g, nil
}

// CompleteEndedAppointments is intended to be called by the worker
// periodically. It returns how many appointments were completed.
func (s *Service) CompleteEndedAppointments(ctx context.Context) (int, error) {
	now := s.clock.Now()
	ended, err := s.repo.FindEndedConfirmed(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find ended appointments: %w", err)
	}

	completed := 0
	for _, appt := range ended {
		_, err := s.repo.SetStatus(ctx, appt.ID, StatusConfirmed, StatusCompleted)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.ErrorContext(ctx, "failed to complete appointment", "appointment_id", appt.ID, "error", err)
			}
			continue
		}
		completed++
		s.logEvent(ctx, s.repo, appt.ID, EventAppointmentCompleted, map[string]any{
			"end_time": appt.EndTime,
		})
	}

	return completed, nil
}

// withGroomerSchedule serialises writers for one groomer: a Redis lock
// across API instances, then a Postgres transaction holding the groomer
// advisory lock.
func (s *Service) withGroomerSchedule(ctx context.Context, groomerID uuid.UUID, start time.Time, fn func(ctx context.Context, tx Store) error) error {
	err := s.locker.WithGroomerLock(ctx, groomerID, s.policy.FormatDate(start), func(lockCtx context.Context) error {
		return s.repo.WithGroomerTx(lockCtx, groomerID, fn)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

func (s *Service) listDay(ctx context.Context, st Store, groomerID uuid.UUID, at time.Time) ([]Appointment, error) {
	dayStart, dayEnd := s.policy.Day(at)
	appts, err := st.ListByGroomerAndDate(ctx, groomerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list groomer appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) ownedAppointment(ctx context.Context, st Store, id, ownerID uuid.UUID) (*Appointment, error) {
	appt, err := st.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if ownerID != uuid.Nil && appt.OwnerID != ownerID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Service) ensureModifiable(appt *Appointment) error {
	if appt.Status != StatusConfirmed {
		return fmt.Errorf("%w: appointment is %s", ErrInvalidStateTransition, appt.Status)
	}
	if !s.policy.CanModify(appt.StartTime, true, s.clock.Now()) {
		return ErrModificationWindowExpired
	}
	return nil
}

func (s *Service) checkPet(ctx context.Context, petID, ownerID uuid.UUID) error {
	pet, err := s.repo.GetPetByID(ctx, petID)
	if err != nil {
		if errors.Is(err, ErrPetNotFound) {
			return err
		}
		return fmt.Errorf("load pet: %w", err)
	}
	if pet.OwnerID != ownerID {
		return ErrPetNotFound
	}
	return nil
}

func validateBooking(ownerID, groomerID uuid.UUID, st ServiceType, start time.Time) error {
	switch {
	case ownerID == uuid.Nil:
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	case groomerID == uuid.Nil:
		return fmt.Errorf("%w: groomer_id is required", ErrValidation)
	case st.Duration() <= 0:
		return fmt.Errorf("%w: service_type must be basic or full", ErrValidation)
	case start.IsZero():
		return fmt.Errorf("%w: start_time is required", ErrValidation)
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, st Store, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.WarnContext(ctx, "failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := st.InsertEvent(ctx, ev); err != nil {
		s.log.ErrorContext(ctx, "failed to insert event log", "event_type", eventType, "appointment_id", appointmentID, "error", err)
	}
}
