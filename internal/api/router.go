// Package api provides the HTTP API of the navigation daemon.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/browsernavi/navi/internal/api/handler"
	"github.com/browsernavi/navi/internal/api/middleware"
)

// PositionsPath is the position ingest route. Its successful requests log at
// debug level.
const PositionsPath = "/v1/navigation/positions"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// RequireTLS rejects plain-HTTP requests.
	RequireTLS bool

	// Auth enables bearer-token authentication on /v1 routes except ops
	// (optional).
	Auth middleware.TokenValidator

	// RateLimit applies per IP to every route; PositionRateLimit applies per
	// client to position ingest. Zero values disable them.
	RateLimit         middleware.RateLimitConfig
	PositionRateLimit middleware.RateLimitConfig

	Ops        *handler.OpsHandler
	Navigation *handler.NavigationHandler
	Settings   *handler.SettingsHandler
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "navid"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger, PositionsPath)) // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))              // Panic recovery
	r.Use(chimiddleware.RealIP)                         // Real IP extraction
	r.Use(middleware.SecurityHeaders)                   // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))        // TLS enforcement
	r.Use(middleware.RateLimitByIP(cfg.RateLimit))      // Per-IP budget
	r.Use(middleware.ContentTypeJSON)                   // JSON content type
	r.Use(middleware.RequireJSON)                       // Reject non-JSON bodies

	authenticated := func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(middleware.Auth(cfg.Auth))
		}
	}

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		if cfg.Ops != nil {
			r.Route("/ops", func(r chi.Router) {
				r.Get("/health", cfg.Ops.HealthCheck)
				r.Get("/backends", cfg.Ops.ListBackends)
			})
		}

		r.Group(func(r chi.Router) {
			authenticated(r)

			if nav := cfg.Navigation; nav != nil {
				r.Post("/navigation:start", nav.Start)
				r.Post("/navigation:stop", nav.Stop)
				r.With(middleware.RateLimitByClient(cfg.PositionRateLimit)).
					Post("/navigation/positions", nav.PostPosition)
				r.Get("/navigation/snapshot", nav.GetSnapshot)
				r.Get("/navigation/route", nav.GetRoute)
				r.Get("/navigation/announcements", nav.ListAnnouncements)
				r.Get("/navigation/notices", nav.ListNotices)
				r.Get("/navigation/events", nav.StreamEvents)
				r.Get("/places", nav.SearchPlaces)
			}

			if cfg.Settings != nil {
				r.Get("/settings", cfg.Settings.GetSettings)
				r.Put("/settings", cfg.Settings.UpdateSettings)
			}
		})
	})

	return r
}
