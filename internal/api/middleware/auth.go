package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/api/helpers"
	"github.com/finbridge/authcore/internal/cache"
	"github.com/finbridge/authcore/internal/store"
	"github.com/finbridge/authcore/internal/token"
)

// principal is the identity derived from a bearer token.
type principal struct {
	userID    uuid.UUID
	email     string
	sessionID uuid.UUID // uuid.Nil when the token carries no jti
}

// identityError distinguishes 401 defects from 403 ones.
type identityError struct {
	status  int
	message string
}

// Identity resolves bearer tokens into principals. Two middleware variants
// hang off it: Required rejects on any defect, Optional silently yields an
// anonymous request.
type Identity struct {
	tokens    *token.Service
	users     store.UserStore
	tokenRows store.RefreshTokenStore
	blacklist *cache.Blacklist
	now       func() time.Time
}

func NewIdentity(tokens *token.Service, users store.UserStore, tokenRows store.RefreshTokenStore, blacklist *cache.Blacklist) *Identity {
	return &Identity{
		tokens:    tokens,
		users:     users,
		tokenRows: tokenRows,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// resolve authenticates the request. A nil principal with a nil error
// means no credentials were presented at all.
func (i *Identity) resolve(r *http.Request) (*principal, *identityError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, nil
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, &identityError{http.StatusUnauthorized, "Invalid authorization format"}
	}

	claims, err := i.tokens.Validate(parts[1])
	if err != nil {
		return nil, &identityError{http.StatusUnauthorized, "Invalid or expired token"}
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, &identityError{http.StatusUnauthorized, "Invalid or expired token"}
	}

	p := &principal{userID: userID, email: claims.Email}

	// Session-bound tokens must survive the revocation checks: first the
	// cache blacklist, then the stored row. The cache only accelerates; a
	// miss defers to the database flag.
	if claims.ID != "" {
		sessionID, err := uuid.Parse(claims.ID)
		if err != nil {
			return nil, &identityError{http.StatusUnauthorized, "Invalid or expired token"}
		}
		p.sessionID = sessionID

		if i.blacklist != nil && i.blacklist.Contains(r.Context(), sessionID) {
			return nil, &identityError{http.StatusUnauthorized, "Session has been revoked"}
		}
		if i.tokenRows != nil {
			row, err := i.tokenRows.GetByID(r.Context(), sessionID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, &identityError{http.StatusUnauthorized, "Invalid or expired token"}
			}
			if err == nil && row.IsRevoked {
				return nil, &identityError{http.StatusUnauthorized, "Session has been revoked"}
			}
		}
	}

	user, err := i.users.GetByID(r.Context(), userID)
	if err != nil {
		return nil, &identityError{http.StatusUnauthorized, "Invalid or expired token"}
	}
	now := i.now()
	switch {
	case !user.IsActive:
		return nil, &identityError{http.StatusForbidden, "This account has been deactivated"}
	case user.Locked(now):
		return nil, &identityError{http.StatusForbidden, "Account temporarily locked"}
	case !user.EmailVerified:
		return nil, &identityError{http.StatusForbidden, "Email address not verified"}
	}

	return p, nil
}

func withPrincipal(ctx context.Context, p *principal) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, p.userID)
	ctx = context.WithValue(ctx, EmailKey, p.email)
	if p.sessionID != uuid.Nil {
		ctx = context.WithValue(ctx, SessionIDKey, p.sessionID)
	}
	return ctx
}

// Required rejects requests without a healthy authenticated principal.
func (i *Identity) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, derr := i.resolve(r)
		if derr != nil {
			slog.Warn("auth_rejected", "status", derr.status, "path", r.URL.Path, "ip", r.RemoteAddr)
			helpers.RespondError(w, derr.status, derr.message)
			return
		}
		if p == nil {
			helpers.RespondError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// Optional attaches a principal when one can be resolved and otherwise
// passes the request through anonymously. It never rejects.
func (i *Identity) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, derr := i.resolve(r)
		if derr == nil && p != nil {
			r = r.WithContext(withPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}
