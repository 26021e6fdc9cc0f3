package api

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/functions"
	"github.com/hackgods/clinic-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/staff"
)

type RouterConfig struct {
	Transactor     *appointment.Transactor
	Repository     *appointment.Repository
	Synchronizer   *appointment.Synchronizer
	Patients       *patient.Service
	Staff          *staff.Service
	Functions      *functions.Functions
	Guard          *redisclient.SubmissionGuard
	Dependencies   map[string]Pinger
	Gatherer       prometheus.Gatherer
	JWTSecret      string
	LookupRPS      float64
	LookupBurst    int
	TrustedProxies []netip.Prefix
	Logger         zerolog.Logger
	Env            string
	Version        string
}

// NewRouter wires every route. cfg.Guard may be nil, in which case
// duplicate submissions are only stopped by the store transaction.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Dependencies, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/centers/{centerID}", func(r chi.Router) {
		r.Get("/roles", listRolesHandler(cfg.Staff, logger))
		r.Get("/professionals", listProfessionalsHandler(cfg.Staff, logger))
		r.Get("/professionals/{professionalID}/slots", listSlotsHandler(cfg.Repository, logger))
		r.Post("/appointments/{appointmentID}/reserve", reserveHandler(cfg.Transactor, cfg.Guard, logger))
		r.Post("/patients/intake", intakeHandler(cfg.Patients, logger))
		r.Post("/invites/{token}/accept", acceptInviteHandler(cfg.Staff, logger))
	})

	limiter := NewRateLimiter(cfg.LookupRPS, cfg.LookupBurst, cfg.TrustedProxies)
	r.Route("/functions", func(r chi.Router) {
		r.Use(limiter.Limit)
		r.Post("/"+functions.NameListPatientAppointments, listPatientAppointmentsHandler(cfg.Functions, logger))
		r.Post("/"+functions.NameCancelPatientAppointment, cancelPatientAppointmentHandler(cfg.Functions, logger))
	})

	r.Route("/staff", func(r chi.Router) {
		r.Use(StaffAuth(cfg.JWTSecret))
		r.Get("/appointments", scheduleHandler(cfg.Synchronizer, logger))
		r.Put("/appointments/sync", syncHandler(cfg.Synchronizer, logger))

		r.Group(func(r chi.Router) {
			r.Use(RequireRole("admin"))
			r.Post("/invites", createInviteHandler(cfg.Staff, logger))
			r.Delete("/professionals/{uid}", deactivateProfessionalHandler(cfg.Staff, logger))
		})
	})

	return r
}
