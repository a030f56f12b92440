package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/go-session-auth/internal/auth"
	"github.com/redmonkez12/go-session-auth/internal/config"
	"github.com/redmonkez12/go-session-auth/internal/httputil"
	"github.com/redmonkez12/go-session-auth/internal/logging"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, authHandler *auth.Handler, authMiddleware *auth.Middleware, logger *logging.Logger, db Pinger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	// Global middleware
	r.Use(SecurityHeaders)               // Security headers on all responses
	r.Use(middleware.Recoverer)          // Recover from panics
	r.Use(middleware.RequestID)          // Add request ID
	r.Use(middleware.RealIP)             // Set RemoteAddr to real IP
	r.Use(logging.RequestLogger(logger)) // Structured logging with request context
	r.Use(middleware.Compress(5))        // Compress responses

	// Public routes
	r.Get("/health", handleHealth(db))

	// Swagger UI - only in development
	if cfg.Server.IsDevelopment() {
		logger.Info("Swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)

		r.With(authMiddleware.RequireSession).Get("/session", authHandler.Session)
	})

	// Protected routes (require a session)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireSession)
		r.Get("/me", authHandler.Me)
	})

	return r
}

// handleHealth reports whether the database is reachable
// @Summary      Health check
// @Description  Check if the API and its database are up
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Failure      503 {object} httputil.ErrorResponse
// @Router       /health [get]
func handleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := db.PingContext(ctx); err != nil {
				logging.GetLoggerFromContext(r.Context()).Error("health check failed", "error", err.Error())
				httputil.RespondErrorWithCode(w, "database unavailable", httputil.CodeServiceUnavailable, http.StatusServiceUnavailable)
				return
			}
		}

		httputil.RespondJSON(w, map[string]string{"status": "api is running"}, http.StatusOK)
	}
}
