// Package auth orchestrates the credential lifecycle: registration, email
// verification, login, token refresh, logout, password recovery, session
// management and token rotation.
//
// Services return *apperr.AppError for failures a client may see; anything
// else is wrapped and surfaces as a generic internal error. Messages on the
// unauthorized paths stay deliberately generic so the API never confirms
// whether an email is registered.
package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/finbridge/authcore/internal/cache"
	"github.com/finbridge/authcore/internal/notify"
	"github.com/finbridge/authcore/internal/password"
	"github.com/finbridge/authcore/internal/session"
	"github.com/finbridge/authcore/internal/store"
	"github.com/finbridge/authcore/internal/token"
)

// Notifier is the slice of the email collaborator this package needs.
type Notifier interface {
	SendVerification(ctx context.Context, to, token string)
	SendPasswordReset(ctx context.Context, to, token string)
	SendWelcome(ctx context.Context, to string)
	SendPasswordChanged(ctx context.Context, to string)
}

// Config carries the tunables of the auth flows.
type Config struct {
	// RefreshTTL is the refresh-token (session) lifetime.
	RefreshTTL time.Duration
	// MaxFailedLogins is the failure count that triggers a lockout.
	MaxFailedLogins int
	// LockoutDuration is how long a lockout lasts.
	LockoutDuration time.Duration
	// VerificationTTL bounds email-verification tokens.
	VerificationTTL time.Duration
	// ResetTTL bounds password-reset tokens. Kept short: reset tokens are
	// the highest-risk credential in the system.
	ResetTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.MaxFailedLogins <= 0 {
		c.MaxFailedLogins = 10
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = time.Hour
	}
	if c.VerificationTTL <= 0 {
		c.VerificationTTL = 24 * time.Hour
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = 15 * time.Minute
	}
	return c
}

// Service is the auth orchestrator.
type Service struct {
	store     store.Store
	hasher    password.Hasher
	tokens    *token.Service
	sessions  *session.Manager
	blacklist *cache.Blacklist
	notifier  Notifier
	geo       session.Geolocator
	cfg       Config
	log       *slog.Logger
	now       func() time.Time

	// dummyHash absorbs a bcrypt comparison when the email does not resolve
	// to a user, keeping the unknown-user and wrong-password paths timing
	// equivalent.
	dummyHash string
}

// NewService wires the orchestrator. All collaborators are required except
// notifier and geo, which fall back to inert implementations.
func NewService(
	st store.Store,
	hasher password.Hasher,
	tokens *token.Service,
	sessions *session.Manager,
	blacklist *cache.Blacklist,
	notifier Notifier,
	geo session.Geolocator,
	cfg Config,
	log *slog.Logger,
) *Service {
	if notifier == nil {
		notifier = notify.NewNotifier(&notify.DevMailer{Logger: log}, "", log)
	}
	if geo == nil {
		geo = session.StubGeolocator{}
	}

	dummy, err := hasher.Hash("timing-equalisation-sentinel")
	if err != nil {
		// Hash can only fail on an out-of-range cost, which the hasher
		// constructor already prevents.
		dummy = ""
	}

	return &Service{
		store:     st,
		hasher:    hasher,
		tokens:    tokens,
		sessions:  sessions,
		blacklist: blacklist,
		notifier:  notifier,
		geo:       geo,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       time.Now,
		dummyHash: dummy,
	}
}

// Sessions exposes the session manager for the request pipeline.
func (s *Service) Sessions() *session.Manager { return s.sessions }

// Tokens exposes the signed-token service for the request pipeline.
func (s *Service) Tokens() *token.Service { return s.tokens }

// Blacklist exposes the revocation cache for request-time checks.
func (s *Service) Blacklist() *cache.Blacklist { return s.blacklist }
