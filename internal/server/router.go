package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/auralforge/auralforge/internal/handler"
	"github.com/auralforge/auralforge/internal/metrics"
	"github.com/auralforge/auralforge/internal/middleware"
	"github.com/auralforge/auralforge/internal/model"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Root     *handler.Handler
	Health   *handler.HealthHandler
	Metrics  http.Handler
	Auth     *handler.AuthHandler
	Billing  *handler.BillingHandler
	Projects *handler.ProjectHandler
	APIKeys  *handler.APIKeyHandler
	Jobs     *handler.JobHandler
	Webhooks *handler.WebhookHandler
}

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	Logger    *slog.Logger
	Recorder  metrics.Recorder
	Sessions  middleware.SessionAuthenticator
	Keys      middleware.KeyAuthenticator
	RateLimit middleware.RateLimitConfig
	Security  middleware.SecurityConfig
	CORS      middleware.CORSConfig
}

// NewRouter builds the API route tree.
func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(middleware.Logger(cfg.Logger, cfg.Recorder))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))

	r.Get("/", h.Root.Index)
	r.Get("/health", h.Health.Healthz)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	sessionOnly := middleware.Auth(middleware.AuthConfig{
		Logger:   cfg.Logger,
		Sessions: cfg.Sessions,
		Keys:     cfg.Keys,
	})
	sessionOrKey := middleware.Auth(middleware.AuthConfig{
		Logger:    cfg.Logger,
		Sessions:  cfg.Sessions,
		Keys:      cfg.Keys,
		AllowKeys: true,
	})
	rateLimit := middleware.RateLimit(cfg.RateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(cfg.RateLimit))
			r.Post("/auth/signup", h.Auth.Signup)
			r.Post("/auth/login", h.Auth.Login)
		})

		r.Post("/webhooks/stripe", h.Webhooks.Stripe)
		r.Post("/webhooks/jobs", h.Webhooks.Jobs)

		// Account management needs a signed-in user.
		r.Group(func(r chi.Router) {
			r.Use(sessionOnly, rateLimit)

			r.Get("/auth/me", h.Auth.Me)
			r.With(middleware.RequireRead()).Get("/billing/subscription", h.Billing.Subscription)
			r.With(middleware.RequireRead()).Get("/api-keys", h.APIKeys.List)
			r.With(middleware.RequireRole(model.RoleEditor)).Post("/projects", h.Projects.Create)
			r.With(middleware.RequireRole(model.RoleAdmin)).Post("/projects/{id}/api-keys", h.APIKeys.Create)
			r.With(middleware.RequireRole(model.RoleAdmin)).Delete("/api-keys/{id}", h.APIKeys.Revoke)
		})

		// Jobs accept sessions and API keys alike.
		r.Group(func(r chi.Router) {
			r.Use(sessionOrKey, rateLimit)

			r.With(middleware.RequireRead()).Get("/projects", h.Projects.List)

			r.With(middleware.RequireWrite()).Post("/tts/synthesize", h.Jobs.Synthesize)
			r.With(middleware.RequireWrite()).Post("/stt/transcribe", h.Jobs.Transcribe)
			r.With(middleware.RequireWrite()).Post("/voices/clone", h.Jobs.Clone)

			r.With(middleware.RequireRead()).Get("/voices", h.Jobs.Voices)
			r.With(middleware.RequireRead()).Get("/jobs", h.Jobs.List)
			r.With(middleware.RequireRead()).Get("/jobs/{id}", h.Jobs.Get)
			r.With(middleware.RequireRead()).Get("/jobs/{id}/notifications", h.Webhooks.Deliveries)
			r.With(middleware.RequireRead()).Get("/assets/{jobId}/audio", h.Jobs.Asset)
		})
	})

	r.NotFound(h.Root.NotFound)
	r.MethodNotAllowed(h.Root.MethodNotAllowed)

	return r
}
