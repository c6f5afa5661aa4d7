package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finbridge/authcore/internal/apperr"
	"github.com/finbridge/authcore/internal/session"
	"github.com/finbridge/authcore/internal/store"
)

// genericLoginError is the only message the login path ever returns for a
// credential failure, so unknown-email and wrong-password are
// indistinguishable.
const genericLoginError = "Invalid email or password"

// LoginInput holds the credentials plus the request metadata recorded with
// the new session.
type LoginInput struct {
	Email      string
	Password   string
	IP         string
	UserAgent  string
	DeviceInfo string
}

// LoginResult carries the issued tokens. RefreshToken is the raw opaque
// secret; only its hash is stored.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	User         *store.User
	Session      *session.Session
}

// Login authenticates the user and opens a session.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	now := s.now().UTC()

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison so this path costs the same as a wrong
			// password. The counter is not touched: there is no user row,
			// and behavioural differences would leak existence.
			s.hasher.Verify(input.Password, s.dummyHash)
			return nil, apperr.Unauthorized(genericLoginError)
		}
		return nil, apperr.Internal(fmt.Errorf("load user: %w", err))
	}

	if user.PasswordHash == nil {
		s.hasher.Verify(input.Password, s.dummyHash)
		return nil, apperr.Unauthorized(genericLoginError)
	}

	if !s.hasher.Verify(input.Password, *user.PasswordHash) {
		s.recordFailure(ctx, user, now)
		return nil, apperr.Unauthorized(genericLoginError)
	}

	switch {
	case !user.IsActive:
		return nil, apperr.Forbidden("This account has been deactivated")
	case user.Locked(now):
		return nil, apperr.Forbidden("Account temporarily locked due to too many failed login attempts")
	case !user.EmailVerified:
		return nil, apperr.Forbidden("Please verify your email address before logging in")
	}

	// Transparent work-factor upgrade on a successful verify.
	if s.hasher.NeedsRehash(*user.PasswordHash) {
		if newHash, err := s.hasher.Hash(input.Password); err == nil {
			if err := s.store.Users().UpdatePassword(ctx, user.ID, newHash); err != nil {
				s.log.Error("password_rehash_failed", "user_id", user.ID, "error", err)
			}
		}
	}

	refreshPlain, err := generateOpaqueToken()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	refreshHash, err := s.hasher.Hash(refreshPlain)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash refresh token: %w", err))
	}

	cfg, err := s.store.SecurityConfig().Get(ctx)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load security config: %w", err))
	}

	sess, err := s.sessions.Create(ctx, user.ID, input.DeviceInfo, input.IP, input.UserAgent, nil,
		func(sess *session.Session) {
			sess.TokenHash = refreshHash
			sess.TokenVersion = user.MinTokenVersion
			sess.GlobalVersion = cfg.GlobalMinTokenVersion
			sess.ExpiresAt = now.Add(s.cfg.RefreshTTL)
			sess.Fingerprint = sessionFingerprint(input.UserAgent, input.DeviceInfo)
		},
	)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("create session: %w", err))
	}

	accessToken, err := s.tokens.MakeAccess(user.ID, user.Email, &sess.ID, nil)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("mint access token: %w", err))
	}

	if err := s.store.Users().RecordLoginSuccess(ctx, user.ID, now, input.IP); err != nil {
		s.log.Error("login_bookkeeping_failed", "user_id", user.ID, "error", err)
	}

	s.log.Info("login_success", "user_id", user.ID, "session_id", sess.ID, "ip", input.IP)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshPlain,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		User:         user,
		Session:      sess,
	}, nil
}

// sessionFingerprint condenses the client signals into a stable hash so
// returning devices can be recognised without storing the raw values twice.
func sessionFingerprint(userAgent, deviceInfo string) string {
	sum := sha256.Sum256([]byte(userAgent + "\x00" + deviceInfo))
	return hex.EncodeToString(sum[:])
}

// recordFailure bumps the failure counter and locks the account when the
// threshold is reached.
func (s *Service) recordFailure(ctx context.Context, user *store.User, now time.Time) {
	var lockUntil *time.Time
	if user.FailedLoginAttempts+1 >= s.cfg.MaxFailedLogins {
		t := now.Add(s.cfg.LockoutDuration)
		lockUntil = &t
	}

	count, err := s.store.Users().RecordLoginFailure(ctx, user.ID, lockUntil)
	if err != nil {
		s.log.Error("login_failure_bookkeeping_failed", "user_id", user.ID, "error", err)
		return
	}
	if lockUntil != nil {
		s.log.Warn("account_locked", "user_id", user.ID, "failed_attempts", count, "locked_until", *lockUntil)
	}
}
