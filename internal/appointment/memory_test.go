package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository. WithGroomerTx serialises writers with
// one mutex and Insert/UpdateSchedule reject overlaps the way the Postgres
// exclusion constraint does.
type memRepo struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	owners map[uuid.UUID]Owner
	pets   map[uuid.UUID]Pet
	groom  map[uuid.UUID]Groomer
	appts  map[uuid.UUID]Appointment
	events []EventLog

	insertErr error
	// txHook runs inside WithGroomerTx before fn, while the writer lock is held.
	txHook func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		owners: map[uuid.UUID]Owner{},
		pets:   map[uuid.UUID]Pet{},
		groom:  map[uuid.UUID]Groomer{},
		appts:  map[uuid.UUID]Appointment{},
	}
}

func (m *memRepo) addOwner() Owner {
	o := Owner{ID: uuid.New(), Name: "owner"}
	m.owners[o.ID] = o
	return o
}

func (m *memRepo) addPet(ownerID uuid.UUID) Pet {
	p := Pet{ID: uuid.New(), OwnerID: ownerID, Name: "Rex", Species: "dog"}
	m.pets[p.ID] = p
	return p
}

func (m *memRepo) addGroomer() Groomer {
	g := Groomer{ID: uuid.New(), Name: "groomer"}
	m.groom[g.ID] = g
	return g
}

func (m *memRepo) put(a Appointment) Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.mu.Lock()
	m.appts[a.ID] = a
	m.mu.Unlock()
	return a
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.EventType
	}
	return out
}

func (m *memRepo) confirmedFor(groomerID uuid.UUID) []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.GroomerID == groomerID && a.Status == StatusConfirmed {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *memRepo) GetOwnerByID(_ context.Context, id uuid.UUID) (*Owner, error) {
	o, ok := m.owners[id]
	if !ok {
		return nil, ErrOwnerNotFound
	}
	return &o, nil
}

func (m *memRepo) GetPetByID(_ context.Context, id uuid.UUID) (*Pet, error) {
	p, ok := m.pets[id]
	if !ok {
		return nil, ErrPetNotFound
	}
	return &p, nil
}

func (m *memRepo) GetGroomerByID(_ context.Context, id uuid.UUID) (*Groomer, error) {
	g, ok := m.groom[id]
	if !ok {
		return nil, ErrGroomerNotFound
	}
	return &g, nil
}

func (m *memRepo) ListGroomers(_ context.Context) ([]Groomer, error) {
	out := make([]Groomer, 0, len(m.groom))
	for _, g := range m.groom {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) ListByGroomerAndDate(_ context.Context, groomerID uuid.UUID, dayStart, dayEnd time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.GroomerID == groomerID && !a.StartTime.Before(dayStart) && a.StartTime.Before(dayEnd) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

// overlapsLocked must be called with mu held.
func (m *memRepo) overlapsLocked(groomerID uuid.UUID, start, end time.Time, except uuid.UUID) bool {
	for _, a := range m.appts {
		if a.ID == except || a.GroomerID != groomerID || a.Status != StatusConfirmed {
			continue
		}
		if start.Before(a.EndTime) && a.StartTime.Before(end) {
			return true
		}
	}
	return false
}

func (m *memRepo) Insert(_ context.Context, appt Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if m.overlapsLocked(appt.GroomerID, appt.StartTime, appt.EndTime, uuid.Nil) {
		return nil, ErrConflict
	}
	m.appts[appt.ID] = appt
	return &appt, nil
}

func (m *memRepo) UpdateSchedule(_ context.Context, id uuid.UUID, s Schedule) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusConfirmed {
		return nil, ErrAppointmentNotFound
	}
	if m.overlapsLocked(s.GroomerID, s.StartTime, s.EndTime, id) {
		return nil, ErrConflict
	}
	a.PetID = s.PetID
	a.GroomerID = s.GroomerID
	a.ServiceType = s.ServiceType
	a.StartTime = s.StartTime
	a.EndTime = s.EndTime
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) SetStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	m.appts[id] = a
	return &a, nil
}

func (m *memRepo) FindEndedConfirmed(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.Status == StatusConfirmed && a.EndTime.Before(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) WithGroomerTx(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if m.txHook != nil {
		m.txHook()
	}
	return fn(ctx, m)
}

// stubLocker fails every acquisition with err, or runs fn when err is nil.
type stubLocker struct {
	err   error
	calls []string
	mu    sync.Mutex
}

func (l *stubLocker) WithGroomerLock(ctx context.Context, _ uuid.UUID, day string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.calls = append(l.calls, day)
	l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}
