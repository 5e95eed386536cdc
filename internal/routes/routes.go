package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/authguard/internal/handlers"
	"github.com/BradenHooton/authguard/internal/middleware"
	"github.com/BradenHooton/authguard/internal/ratelimit"
	pkghttp "github.com/BradenHooton/authguard/pkg/http"
)

// Options configures the cross-cutting pieces of the route table
type Options struct {
	FloodLimitPerMinute int
	IPConfig            *pkghttp.IPConfig
	Metrics             http.Handler // nil leaves /metrics unregistered
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	gate *middleware.RateLimitGate,
	opts Options,
) {
	router.Route("/auth", func(r chi.Router) {
		r.Use(middleware.FloodGuard(opts.FloodLimitPerMinute, opts.IPConfig))

		r.With(gate.Limit(ratelimit.RegistrationLimit())).Post("/register", authHandler.Register)
		r.With(gate.Limit(ratelimit.LoginLimit()), gate.LoginDelay()).Post("/login", authHandler.Login)
		r.With(gate.Limit(ratelimit.PasswordResetLimit())).Post("/forgot-password", authHandler.ForgotPassword)
		r.With(gate.Limit(ratelimit.PasswordResetLimit())).Post("/reset-password", authHandler.ResetPassword)
	})

	router.Get("/health", healthHandler.Check)

	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
}
