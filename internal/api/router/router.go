package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zapdeskhq/zapbot-platform/internal/http/handlers"
	httpmiddleware "github.com/zapdeskhq/zapbot-platform/internal/http/middleware"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *handlers.EvolutionWebhookHandler
	TeamHandler    *handlers.TeamHandler
	TeamAuthSecret string
	MetricsHandler http.Handler

	// WebhookRatePerSecond limits webhook deliveries per source IP.
	// Zero disables the limiter.
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.WebhookHandler.HealthCheck)

		public.Route("/webhooks", func(r chi.Router) {
			if cfg.WebhookRatePerSecond > 0 {
				r.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookBurst))
			}
			r.Post("/evolution", cfg.WebhookHandler.HandleEvent)
			r.Get("/jobs/{jobID}", cfg.WebhookHandler.GetJobStatus)
		})

		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Team panel routes (protected by JWT)
	if cfg.TeamHandler != nil {
		r.Route("/team", func(team chi.Router) {
			team.Use(httpmiddleware.TeamJWT(cfg.TeamAuthSecret))
			team.Get("/conversations", cfg.TeamHandler.ListWaiting)
			team.Route("/conversations/{conversationID}", func(r chi.Router) {
				r.Post("/claim", cfg.TeamHandler.Claim)
				r.Post("/resolve", cfg.TeamHandler.Resolve)
				r.Get("/messages", cfg.TeamHandler.ListMessages)
			})
		})
	}

	return r
}
