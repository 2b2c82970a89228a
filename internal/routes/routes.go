package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/mpaulsen/trustgate/internal/auth"
	"github.com/mpaulsen/trustgate/internal/handlers"
	"github.com/mpaulsen/trustgate/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	auditHandler *handlers.AuditHandler,
	sessions auth.SessionValidator,
	adminUsername string,
) {
	// Rate limiting config for the unauthenticated endpoints
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/register", authHandler.Register)

	// Logout stays public on purpose: destroying an already-expired session
	// must still succeed, and the session middleware would reject its token.
	router.Post("/auth/logout", authHandler.Logout)

	// Protected routes - a live session required
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(sessions))

		r.Get("/auth/session", authHandler.Session)
		r.Post("/auth/change-password", authHandler.ChangePassword)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(adminUsername))
			r.Get("/admin/users", adminHandler.ListUsers)
			r.Delete("/admin/users/{username}", adminHandler.DeleteUser)
			r.Get("/admin/sessions/count", adminHandler.SessionCount)
			r.Get("/admin/events/{username}", auditHandler.EventHistory)
			r.Post("/admin/rate-limit/reset", adminHandler.ResetRateLimit)
		})
	})
}
