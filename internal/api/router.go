package api

import (
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/finbridge/authcore/internal/api/middleware"
	"github.com/finbridge/authcore/internal/ratelimit"
)

// DefaultRateRules is the standing budget per endpoint. Credential
// endpoints are throttled per client IP; the session surface per user.
func DefaultRateRules() ratelimit.Rules {
	return ratelimit.Rules{
		"POST /auth/login": {
			MaxTokens: 5, RefillPerMinute: 1, Scope: ratelimit.ScopePerIP,
		},
		"POST /auth/register": {
			MaxTokens: 5, RefillPerMinute: 1, Scope: ratelimit.ScopePerIP,
		},
		"POST /auth/password-resets": {
			MaxTokens: 3, RefillPerMinute: 3.0 / 60, Scope: ratelimit.ScopePerIP,
		},
		"GET /auth/sessions": {
			MaxTokens: 10, RefillPerMinute: 10, Scope: ratelimit.ScopePerUser,
		},
		"DELETE /auth/sessions/{id}": {
			MaxTokens: 20, RefillPerMinute: 20, Scope: ratelimit.ScopePerUser,
		},
		"DELETE /auth/sessions/others/revoke": {
			MaxTokens: 5, RefillPerMinute: 5.0 / 60, Scope: ratelimit.ScopePerUser,
		},
		"DELETE /auth/sessions/all/revoke": {
			MaxTokens: 3, RefillPerMinute: 3.0 / 60, Scope: ratelimit.ScopePerUser,
		},
	}
}

// RouterConfig carries the pieces the router wires together.
type RouterConfig struct {
	Handler  *Handler
	Health   *HealthHandler
	Identity *middleware.Identity
	Limiter  *ratelimit.Limiter

	// TrustProxyHeaders enables X-Forwarded-For when extracting client IPs.
	TrustProxyHeaders bool
	// SentryEnabled attaches the Sentry request handler.
	SentryEnabled bool
}

// NewRouter assembles the full HTTP surface. Order matters: the identity
// middleware runs in Optional mode before the rate limiter so that
// authenticated requests are budgeted per user rather than per IP, and
// protected groups re-check with Required.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)

	if cfg.SentryEnabled {
		sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
		r.Use(sentryHandler.Handle)
	}

	r.Use(middleware.RequestLogger)
	r.Use(middleware.PanicRecovery)

	r.Use(cfg.Identity.Optional)
	r.Use(middleware.RateLimit(cfg.Limiter, cfg.TrustProxyHeaders))

	h := cfg.Handler

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/verify-email", h.VerifyEmail)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)

		r.Post("/password-resets", h.RequestPasswordReset)
		r.Get("/password-resets/{token}", h.ProbeResetToken)
		r.Patch("/password-resets/{token}", h.CompletePasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Identity.Required)

			r.Get("/me", h.Me)
			r.Patch("/me", h.UpdateProfile)
			r.Post("/change-password", h.ChangePassword)

			r.Get("/sessions", h.ListSessions)
			r.Delete("/sessions/others/revoke", h.RevokeOtherSessions)
			r.Delete("/sessions/all/revoke", h.RevokeAllSessions)
			r.Delete("/sessions/{id}", h.RevokeSession)
		})
	})

	r.Route("/token-rotation", func(r chi.Router) {
		r.Use(cfg.Identity.Required)

		r.Post("/users/{user_id}", h.RotateUser)
		r.Post("/global", h.RotateGlobal)
		r.Get("/security-config", h.GetSecurityConfig)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	return r
}
