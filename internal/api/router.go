package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/grooming-scheduler/internal/appointment"
	redisclient "github.com/hackgods/grooming-scheduler/internal/redis"
	"github.com/hackgods/grooming-scheduler/internal/scheduling"
)

// AppointmentService is what the handlers need from the booking engine.
// *appointment.Service satisfies it; tests pass a fake.
type AppointmentService interface {
	Policy() scheduling.Policy
	Availability(ctx context.Context, groomerID uuid.UUID, date time.Time, serviceType appointment.ServiceType) ([]scheduling.Slot, error)
	CreateAppointment(ctx context.Context, in appointment.CreateInput) (*appointment.Appointment, error)
	RescheduleAppointment(ctx context.Context, in appointment.RescheduleInput) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id, ownerID uuid.UUID) (*appointment.Appointment, error)
	CanModify(ctx context.Context, id, ownerID uuid.UUID) (bool, error)
	GetAppointment(ctx context.Context, id, ownerID uuid.UUID) (*appointment.Appointment, error)
	ListAppointmentsByOwner(ctx context.Context, ownerID uuid.UUID) (appointment.OwnerAppointments, error)
	GroomerSchedule(ctx context.Context, groomerID uuid.UUID, date time.Time) ([]appointment.Appointment, error)
	ListGroomers(ctx context.Context) ([]appointment.Groomer, error)
	GetGroomer(ctx context.Context, id uuid.UUID) (*appointment.Groomer, error)
}

var _ AppointmentService = (*appointment.Service)(nil)

type RouterConfig struct {
	Service     AppointmentService
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	RateLimiter *redisclient.RateLimiter // nil disables rate limiting
	Logger      *slog.Logger
	CORSOrigins []string
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(NewCORSHandler(cfg.CORSOrigins))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Groomer directory and schedules
	r.Get("/groomers", listGroomersHandler(cfg.Service))
	r.Get("/groomers/{id}", getGroomerHandler(cfg.Service))
	r.Get("/groomers/{id}/availability", availabilityHandler(cfg.Service))
	r.Get("/groomers/{id}/schedule", groomerScheduleHandler(cfg.Service))

	// Appointment reads
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}/modifiable", modifiableHandler(cfg.Service))

	// Appointment writes
	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware(logger))
		}
		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Put("/appointments/{id}", rescheduleAppointmentHandler(cfg.Service))
		r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Service))
	})

	return r
}
