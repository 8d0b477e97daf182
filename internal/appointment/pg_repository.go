package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE raised by the appointments_no_overlap exclusion constraint.
const pgExclusionViolation = "23P01"

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	*pgStore
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pgStore: &pgStore{db: pool}, pool: pool}
}

// pgStore implements Store on top of either the pool or a transaction.
type pgStore struct {
	db dbtx
}

const appointmentColumns = `id, owner_id, pet_id, groomer_id, service_type, start_time, end_time, status, created_at, updated_at`

// Helpers

func scanOwner(row pgx.Row) (*Owner, error) {
	var o Owner
	err := row.Scan(&o.ID, &o.Name, &o.Email, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOwnerNotFound
		}
		return nil, err
	}
	return &o, nil
}

func scanPet(row pgx.Row) (*Pet, error) {
	var p Pet
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species, &p.Breed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPetNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanGroomer(row pgx.Row) (*Groomer, error) {
	var g Groomer
	err := row.Scan(&g.ID, &g.Name, &g.Specialty, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroomerNotFound
		}
		return nil, err
	}
	return &g, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.PetID,
		&a.GroomerID,
		&a.ServiceType,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// mapWriteError turns an exclusion constraint violation into ErrConflict.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return ErrConflict
	}
	return err
}

// Directory

func (r *PgRepository) GetOwnerByID(ctx context.Context, id uuid.UUID) (*Owner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM owners
		WHERE id = $1
	`, id)
	return scanOwner(row)
}

func (r *PgRepository) GetPetByID(ctx context.Context, id uuid.UUID) (*Pet, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, species, breed, created_at, updated_at
		FROM pets
		WHERE id = $1
	`, id)
	return scanPet(row)
}

func (r *PgRepository) GetGroomerByID(ctx context.Context, id uuid.UUID) (*Groomer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM groomers
		WHERE id = $1
	`, id)
	return scanGroomer(row)
}

func (r *PgRepository) ListGroomers(ctx context.Context) ([]Groomer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM groomers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groomers := []Groomer{}
	for rows.Next() {
		g, err := scanGroomer(rows)
		if err != nil {
			return nil, err
		}
		groomers = append(groomers, *g)
	}
	return groomers, rows.Err()
}

// WithGroomerTx opens a transaction and takes a transaction-scoped advisory
// lock keyed on the groomer, so check-then-write for one groomer is serial
// across every connection.
func (r *PgRepository) WithGroomerTx(ctx context.Context, groomerID uuid.UUID, fn func(ctx context.Context, tx Store) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin groomer tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, groomerID.String()); err != nil {
		return fmt.Errorf("lock groomer schedule: %w", err)
	}

	if err := fn(ctx, &pgStore{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit groomer tx: %w", mapWriteError(err))
	}
	return nil
}

// Store

func (s *pgStore) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *pgStore) ListByGroomerAndDate(ctx context.Context, groomerID uuid.UUID, dayStart, dayEnd time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE groomer_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time ASC
	`, groomerID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *pgStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1
		ORDER BY start_time ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *pgStore) Insert(ctx context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO appointments (id, owner_id, pet_id, groomer_id, service_type, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns,
		appt.ID, appt.OwnerID, appt.PetID, appt.GroomerID, appt.ServiceType,
		appt.StartTime, appt.EndTime, appt.Status)

	out, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (s *pgStore) UpdateSchedule(ctx context.Context, id uuid.UUID, sch Schedule) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET pet_id = $2,
		    groomer_id = $3,
		    service_type = $4,
		    start_time = $5,
		    end_time = $6,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+appointmentColumns,
		id, sch.PetID, sch.GroomerID, sch.ServiceType, sch.StartTime, sch.EndTime)

	out, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (s *pgStore) SetStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, to, from)

	return scanAppointment(row)
}

func (s *pgStore) FindEndedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND end_time < $1
		ORDER BY end_time ASC
	`, now)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// InsertEvent runs under a savepoint when called inside a transaction so a
// failed audit row cannot abort the booking it describes.
func (s *pgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	const q = `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`
	args := []any{ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt)}

	tx, ok := s.db.(pgx.Tx)
	if !ok {
		if _, err := s.db.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("insert event log: %w", err)
		}
		return nil
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("insert event log: savepoint: %w", err)
	}
	if _, err := sp.Exec(ctx, q, args...); err != nil {
		_ = sp.Rollback(ctx)
		return fmt.Errorf("insert event log: %w", err)
	}
	return sp.Commit(ctx)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
