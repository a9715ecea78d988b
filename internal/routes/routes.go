package routes

import (
	"log/slog"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Security *handlers.SecurityHandler
	CSRF     *handlers.CSRFHandler
	Session  *handlers.SessionHandler
	Admin    *handlers.AdminHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	csrf middleware.CSRFConsumer,
	tokenManager *auth.TokenManager,
	rateLimitConfig middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	// Public routes - throttled per client IP
	router.Route("/security", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/login/check", h.Security.CheckLogin)
		r.Post("/login/failure", h.Security.RecordFailure)
		r.Post("/login/success", h.Security.RecordSuccess)
		r.Post("/password/check", h.Security.CheckPassword)

		r.Post("/csrf/token", h.CSRF.IssueToken)
		r.Post("/csrf/validate", h.CSRF.ValidateToken)

		r.Post("/session/touch", h.Session.Touch)
		r.Get("/session/status", h.Session.Status)
		r.With(middleware.CSRFProtection(csrf, logger)).Post("/session/extend", h.Session.Extend)
	})

	// Admin-only routes
	router.Route("/admin/security", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(auth.RequireRole(models.RoleAdmin))

		r.Get("/status", h.Admin.GetStatus)
		r.Get("/events", h.Admin.GetEvents)
		r.Delete("/events", h.Admin.ClearEvents)
		r.Get("/failed-logins", h.Admin.GetFailedLogins)
		r.Get("/suspicious", h.Admin.GetSuspiciousActivity)
		r.Get("/locks", h.Admin.GetLocks)
		r.Post("/unlock", h.Admin.Unlock)

		r.Get("/csrf/stats", h.Admin.GetCSRFStats)
		r.Delete("/csrf", h.Admin.ClearCSRFTokens)
		r.Delete("/csrf/sessions/{sessionID}", h.Admin.ClearCSRFSession)

		r.Get("/settings", h.Admin.GetSettings)
		r.Put("/settings", h.Admin.UpdateSettings)
		r.Get("/rate-limit", h.Admin.GetRateLimitConfig)
		r.Put("/rate-limit", h.Admin.UpdateRateLimitConfig)
	})
}
