package routes

import (
	"log/slog"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/handlers"
	"github.com/lmercier/portcullis/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	csrfSigner *auth.CSRFSigner,
	logger *slog.Logger,
) {
	rateLimitConfig := middleware.DefaultLoginRateLimit()
	csrfProtect := middleware.CSRFProtection(csrfSigner, logger)

	router.Route("/api", func(r chi.Router) {
		r.Get("/get_csrf_token", authHandler.GetCSRFToken)
		r.Get("/get_user", authHandler.GetUser)
		r.Get("/check_logged_in", authHandler.CheckLoggedIn)

		// State-changing endpoints carry anti-forgery checks; login also
		// gets a per-IP request backstop.
		r.With(middleware.RateLimitByIP(rateLimitConfig), csrfProtect).Post("/login", authHandler.Login)
		r.With(csrfProtect).Post("/logout", authHandler.Logout)
	})

	router.Get("/protected", authHandler.Protected)
}
