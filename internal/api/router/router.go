package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bookline-ai/bookline/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Handler        *Handler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", cfg.Handler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/messages", cfg.Handler.ProcessMessage)
		v1.Get("/availability", cfg.Handler.GetAvailability)
		v1.Route("/bookings", func(b chi.Router) {
			b.Post("/", cfg.Handler.CommitBooking)
			b.Patch("/{id}", cfg.Handler.RescheduleBooking)
			b.Delete("/{id}", cfg.Handler.CancelBooking)
		})
	})

	return r
}
