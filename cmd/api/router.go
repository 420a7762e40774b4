package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aivideopro/aivideopro/internal/config"
	"github.com/aivideopro/aivideopro/internal/handler"
	"github.com/aivideopro/aivideopro/internal/middleware"
)

// routes bundles the handlers mounted by setupRouter.
type routes struct {
	root     *handler.Handler
	health   *handler.HealthHandler
	metrics  *handler.MetricsHandler
	edit     *handler.EditHandler
	jobs     *handler.JobHandler
	accounts *handler.AccountHandler
	apiKeys  *handler.APIKeyHandler
	webhooks *handler.WebhookHandler
	uploads  *handler.UploadHandler
	oauth    *handler.OAuthHandler
	status   *handler.StatusHandler
	admin    *handler.AdminHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	rt routes,
	authCfg middleware.AuthConfig,
	rateLimitCfg middleware.RateLimitConfig,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.HSTS = !cfg.IsDevelopment()
	if cfg.MaxRequestBodySize > 0 {
		securityCfg.MaxRequestBodySize = cfg.MaxRequestBodySize
	}

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(securityCfg.MaxRequestBodySize))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", rt.health.Healthz)
	r.Get("/readyz", rt.health.Readyz)
	r.Get("/metrics", rt.metrics.Metrics)

	// Root info endpoint
	r.Get("/", rt.root.Info)

	// Google sign-in and backend callbacks run before any API key exists.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))

		r.Get("/auth/google/login", rt.oauth.Login)
		r.Get("/auth/google/callback", rt.oauth.Callback)
		r.With(middleware.RequireJSON).Post("/internal/jobs/{id}/status", rt.status.Report)
	})

	// Edit submission keeps its original path.
	r.With(
		middleware.Auth(authCfg),
		middleware.RateLimitAPI(rateLimitCfg),
		middleware.RequireJSON,
		middleware.RequireWrite(),
	).Post("/api/edit", rt.edit.Submit)

	// API v1 routes (require authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RateLimitAPI(rateLimitCfg))
		r.Use(middleware.RequireJSON)

		r.Route("/jobs", func(r chi.Router) {
			r.Use(middleware.RequireRead())
			r.Get("/", rt.jobs.List)
			r.Get("/{id}", rt.jobs.Get)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(middleware.RequireRead())
			r.Get("/", rt.accounts.Me)
			r.Get("/credits/ledger", rt.accounts.Ledger)
		})

		r.With(middleware.RequireWrite()).Post("/uploads", rt.uploads.Create)

		// Keys can only be minted with scopes the caller already holds.
		r.Route("/api-keys", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", rt.apiKeys.ListAPIKeys)
			r.With(middleware.RequireWrite()).Post("/", rt.apiKeys.CreateAPIKey)
			r.With(middleware.RequireWrite()).Delete("/{key_id}", rt.apiKeys.RevokeAPIKey)
			r.With(middleware.RequireWrite()).Post("/{key_id}/rotate", rt.apiKeys.RotateAPIKey)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(middleware.RequireWebhook())
			r.Get("/", rt.webhooks.List)
			r.Post("/", rt.webhooks.Create)
			r.Get("/{id}", rt.webhooks.Get)
			r.Delete("/{id}", rt.webhooks.Delete)
			r.Post("/{id}/rotate-secret", rt.webhooks.RotateSecret)
			r.Get("/{id}/deliveries", rt.webhooks.ListDeliveries)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Post("/users/{id}/credits", rt.admin.GrantCredits)
			r.Get("/api-keys", rt.admin.ListAPIKeysByUser)
			r.Get("/stats", rt.admin.Stats)
		})
	})

	// 404 and 405 handlers
	r.NotFound(rt.root.NotFound)
	r.MethodNotAllowed(rt.root.MethodNotAllowed)

	return r
}
