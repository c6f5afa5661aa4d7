package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/finbridge/authcore/internal/api/helpers"
	"github.com/finbridge/authcore/internal/ratelimit"
)

// RateLimit enforces the configured token-bucket rules. Authenticated
// requests are budgeted per user, anonymous ones per client IP. Endpoints
// without a rule pass through untouched. Run this after the identity
// middleware so the user id is available.
func RateLimit(limiter *ratelimit.Limiter, trustProxyHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := requestIdentifier(r, trustProxyHeaders)

			res := limiter.Check(r.Context(), r.Method, r.URL.Path, identifier)
			if !res.Limited {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(limiter.ResetAfter(res.Endpoint)))

			if !res.Decision.Allowed {
				retryAfter := int(res.Decision.RetryAfter.Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				helpers.RespondJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       "Rate limit exceeded",
					"message":     fmt.Sprintf("Too many requests; retry in %d seconds", retryAfter),
					"retry_after": retryAfter,
					"endpoint":    res.Endpoint,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestIdentifier prefers the authenticated user, falling back to the
// client IP.
func requestIdentifier(r *http.Request, trustProxyHeaders bool) string {
	if userID, err := GetUserID(r.Context()); err == nil {
		return "user:" + userID.String()
	}
	return "ip:" + helpers.ClientIP(r, trustProxyHeaders)
}
