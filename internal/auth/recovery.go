package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/apperr"
	"github.com/finbridge/authcore/internal/password"
	"github.com/finbridge/authcore/internal/store"
)

// ResetProbe is the answer to a token-validity probe, letting the reset
// form render before the user types a new password.
type ResetProbe struct {
	Valid     bool       `json:"valid"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RequestPasswordReset issues a reset token when the email resolves to an
// account. The caller always gets the same nil result: enumeration through
// this endpoint is not possible, and email failures only reach the log.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("reset_request_lookup_failed", "error", err)
		}
		return nil
	}

	plain, err := generateOpaqueToken()
	if err != nil {
		s.log.Error("reset_token_generation_failed", "user_id", user.ID, "error", err)
		return nil
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		s.log.Error("reset_token_hash_failed", "user_id", user.ID, "error", err)
		return nil
	}

	now := s.now().UTC()
	row := &store.CredentialToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Kind:      store.KindPasswordReset,
		TokenHash: hash,
		ExpiresAt: now.Add(s.cfg.ResetTTL),
		CreatedAt: now,
	}
	if err := s.store.CredentialTokens().Create(ctx, row); err != nil {
		s.log.Error("reset_token_store_failed", "user_id", user.ID, "error", err)
		return nil
	}

	s.log.Info("reset_requested", "user_id", user.ID)
	s.notifier.SendPasswordReset(ctx, user.Email, plain)
	return nil
}

// ProbeReset checks a reset token without consuming it.
func (s *Service) ProbeReset(ctx context.Context, tokenPlain string) (*ResetProbe, error) {
	now := s.now().UTC()

	row, err := s.matchCredentialToken(ctx, store.KindPasswordReset, tokenPlain)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if row == nil || !row.Usable(now) {
		return &ResetProbe{Valid: false}, nil
	}

	user, err := s.store.Users().GetByID(ctx, row.UserID)
	if err != nil {
		return &ResetProbe{Valid: false}, nil
	}

	return &ResetProbe{
		Valid:     true,
		Email:     user.Email,
		ExpiresAt: &row.ExpiresAt,
	}, nil
}

// ResetPassword consumes a reset token, overwrites the password and kills
// every session the user had. The session cascade runs through the
// rotation service so it is atomic and indistinguishable from a targeted
// rotation.
func (s *Service) ResetPassword(ctx context.Context, tokenPlain, newPassword string) error {
	now := s.now().UTC()

	if ok, msg := password.ValidateStrength(newPassword); !ok {
		return apperr.Invalid(msg)
	}

	row, err := s.matchCredentialToken(ctx, store.KindPasswordReset, tokenPlain)
	if err != nil {
		return apperr.Internal(err)
	}
	if row == nil || !row.Usable(now) {
		return apperr.Invalid("Invalid or expired reset token")
	}

	ok, err := s.store.CredentialTokens().MarkUsed(ctx, row.ID, now)
	if err != nil {
		return apperr.Internal(fmt.Errorf("consume reset token: %w", err))
	}
	if !ok {
		return apperr.Invalid("Invalid or expired reset token")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.store.Users().UpdatePassword(ctx, row.UserID, hash); err != nil {
		return apperr.Internal(fmt.Errorf("update password: %w", err))
	}

	// Incident-response cascade: a reset is the canonical "my account is
	// compromised" action, so no pre-existing session may survive it.
	if _, err := s.RotateUser(ctx, row.UserID, "password_reset"); err != nil {
		return apperr.Internal(fmt.Errorf("rotate user after reset: %w", err))
	}

	s.log.Info("password_reset_completed", "user_id", row.UserID)

	if user, err := s.store.Users().GetByID(ctx, row.UserID); err == nil {
		s.notifier.SendPasswordChanged(ctx, user.Email)
	}
	return nil
}
