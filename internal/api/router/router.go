package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gbcenter/intake-ai/internal/admin"
	httpmiddleware "github.com/gbcenter/intake-ai/internal/http/middleware"
	"github.com/gbcenter/intake-ai/internal/webhook"
	"github.com/gbcenter/intake-ai/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger  *logging.Logger
	Webhook *webhook.Handler
	Admin   *admin.Handler

	// AdminAuthSecret signs the staff console JWTs; the /api routes are not
	// mounted without it.
	AdminAuthSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Webhook rate limiting. Zero values disable it.
	WebhookRatePerSecond float64
	WebhookRateBurst     int
}

// New creates the Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: health, the Meta webhook, metrics.
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)

		if cfg.Webhook != nil {
			public.Get("/webhook", cfg.Webhook.HandleVerification)
			if cfg.WebhookRatePerSecond > 0 && cfg.WebhookRateBurst > 0 {
				public.With(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookRateBurst)).
					Post("/webhook", cfg.Webhook.HandleInbound)
			} else {
				public.Post("/webhook", cfg.Webhook.HandleInbound)
			}
		}

		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Staff console API, JWT-protected.
	if cfg.Admin != nil && cfg.AdminAuthSecret != "" {
		r.Route("/api", func(api chi.Router) {
			api.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			api.Get("/conversations", cfg.Admin.ListConversations)
			api.Get("/messages", cfg.Admin.ListMessages)
			api.Post("/send", cfg.Admin.SendMessage)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
