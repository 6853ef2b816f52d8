package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/ticketwell/authcore/internal/auth"
	"github.com/ticketwell/authcore/internal/handlers"
	"github.com/ticketwell/authcore/internal/middleware"
	pkghttp "github.com/ticketwell/authcore/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	adminHandler *handlers.AdminHandler,
	sessions middleware.SessionToucher,
	userRepo auth.UserRepository,
	ipConfig *pkghttp.IPConfig,
) {
	// Public routes - only login; everything else requires a live session
	router.With(middleware.RateLimitByIP(middleware.DefaultLoginRateLimit())).
		Post("/auth/login", authHandler.Login)

	// Protected routes - a live session token required; touching it on every
	// request is what keeps the sliding expiry honest
	router.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessions, ipConfig))

		r.Post("/auth/logout", authHandler.Logout)

		r.Get("/sessions", sessionHandler.List)
		r.Delete("/sessions/{id}", sessionHandler.TerminateOne)
		r.Post("/sessions/terminate-others", sessionHandler.TerminateOthers)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, "admin"))

			r.Get("/admin/lockouts", adminHandler.ListLockouts)
			r.Get("/admin/lockouts/{kind}/stats", adminHandler.LockoutStats)
			r.Post("/admin/lockouts/{kind}/{key}/unlock", adminHandler.UnlockSubject)
			r.Delete("/admin/lockouts/{kind}", adminHandler.ClearLockouts)

			r.Delete("/admin/sessions/{id}", adminHandler.TerminateSession)
			r.Post("/admin/users/{id}/terminate-sessions", adminHandler.TerminateUserSessions)
		})
	})
}
