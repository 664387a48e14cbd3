package api

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medicare/appointment-scheduling/internal/scheduling"
)

// SchedulingService is the slice of the orchestrator the handlers use.
// Kept as an interface so handler tests can run against a stub.
type SchedulingService interface {
	BookAppointment(ctx context.Context, caller scheduling.Caller, req scheduling.BookRequest) (*scheduling.Appointment, error)
	GetAppointment(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error)
	ListAppointments(ctx context.Context, caller scheduling.Caller, status *scheduling.AppointmentStatus, limit, offset int) ([]scheduling.Appointment, error)
	UpdateAppointmentDetails(ctx context.Context, caller scheduling.Caller, id uuid.UUID, u scheduling.UpdateDetails) (*scheduling.Appointment, error)
	ConfirmAppointment(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error)
	StartAppointment(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error)
	CompleteAppointment(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error)
	CancelAppointment(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error)
	MarkNoShow(ctx context.Context, caller scheduling.Caller, id uuid.UUID) (*scheduling.Appointment, error)
	MarkPaid(ctx context.Context, caller scheduling.Caller, id uuid.UUID, paymentRef string) (*scheduling.Appointment, error)

	GetDoctor(ctx context.Context, id uuid.UUID) (*scheduling.Doctor, error)
	ListDoctors(ctx context.Context, f scheduling.DoctorFilter) ([]scheduling.Doctor, error)
	TopRatedDoctors(ctx context.Context) ([]scheduling.Doctor, error)
	BookableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (iter.Seq[time.Time], error)
	AddSchedule(ctx context.Context, caller scheduling.Caller, doctorID uuid.UUID, req scheduling.ScheduleRequest) (*scheduling.DoctorSchedule, error)
	ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]scheduling.DoctorSchedule, error)
	SubmitReview(ctx context.Context, caller scheduling.Caller, req scheduling.ReviewRequest) (*scheduling.Review, error)
	ListReviews(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]scheduling.Review, error)
}

type RouterConfig struct {
	Service        SchedulingService
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Env            string
	Version        string
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(IdentityMiddleware)
	if cfg.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	r.Route("/api", func(r chi.Router) {
		r.Route("/doctors", func(r chi.Router) {
			r.Get("/", listDoctorsHandler(svc))
			r.Get("/top-rated", topRatedDoctorsHandler(svc))
			r.Get("/{id}", getDoctorHandler(svc))
			r.Get("/{id}/slots", listSlotsHandler(svc))
			r.Get("/{id}/schedules", listSchedulesHandler(svc))
			r.Get("/{id}/reviews", listReviewsHandler(svc))

			r.Group(func(r chi.Router) {
				r.Use(RequireIdentity)
				r.Post("/{id}/schedules", createScheduleHandler(svc))
				r.Post("/{id}/reviews", submitReviewHandler(svc))
			})
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Use(RequireIdentity)
			r.Post("/", bookAppointmentHandler(svc))
			r.Get("/", listAppointmentsHandler(svc))
			r.Get("/{id}", getAppointmentHandler(svc))
			r.Patch("/{id}", updateAppointmentHandler(svc))
			r.Post("/{id}/confirm", transitionHandler(svc.ConfirmAppointment))
			r.Post("/{id}/start", transitionHandler(svc.StartAppointment))
			r.Post("/{id}/complete", transitionHandler(svc.CompleteAppointment))
			r.Post("/{id}/cancel", transitionHandler(svc.CancelAppointment))
			r.Post("/{id}/no-show", transitionHandler(svc.MarkNoShow))
			r.Post("/{id}/payment", paymentHandler(svc))
		})
	})

	return r
}
