package auth

import (
	"context"
	"fmt"

	"github.com/finbridge/authcore/internal/apperr"
	"github.com/finbridge/authcore/internal/store"
)

// RefreshResult carries the fresh access token. The refresh token is not
// rotated on use (sticky refresh); the caller keeps presenting the same
// opaque secret until it expires or is revoked.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int
}

// Refresh exchanges a valid opaque refresh token for a new access token.
//
// The version predicate is evaluated against the user row and security
// config read inside this call's transaction, so a concurrent rotation is
// seen either entirely or not at all.
func (s *Service) Refresh(ctx context.Context, refreshPlain string) (*RefreshResult, error) {
	now := s.now().UTC()

	var accessToken string
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		row, err := s.matchRefreshToken(ctx, tx, refreshPlain)
		if err != nil {
			return err
		}
		if row == nil {
			return apperr.Unauthorized("Invalid or expired refresh token")
		}

		user, err := tx.Users().GetByID(ctx, row.UserID)
		if err != nil {
			return apperr.Unauthorized("Invalid or expired refresh token")
		}
		if !user.IsActive {
			return apperr.Unauthorized("Invalid or expired refresh token")
		}

		cfg, err := tx.SecurityConfig().Get(ctx)
		if err != nil {
			return fmt.Errorf("load security config: %w", err)
		}

		if !row.Valid(now, user.MinTokenVersion, cfg.GlobalMinTokenVersion) {
			return apperr.Unauthorized("Invalid or expired refresh token")
		}

		accessToken, err = s.tokens.MakeAccess(user.ID, user.Email, &row.ID, nil)
		if err != nil {
			return fmt.Errorf("mint access token: %w", err)
		}

		if err := tx.RefreshTokens().TouchLastUsed(ctx, row.ID, now); err != nil {
			s.log.Error("refresh_touch_failed", "session_id", row.ID, "error", err)
		}
		return nil
	})
	if err != nil {
		if ae := apperr.As(err); ae != nil {
			return nil, ae
		}
		return nil, apperr.Internal(err)
	}

	return &RefreshResult{
		AccessToken: accessToken,
		ExpiresIn:   int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes the session behind the presented refresh token. A token
// that matches nothing still succeeds: logout never confirms whether a
// secret was real.
func (s *Service) Logout(ctx context.Context, refreshPlain string) error {
	row, err := s.matchRefreshToken(ctx, s.store, refreshPlain)
	if err != nil {
		s.log.Error("logout_lookup_failed", "error", err)
		return nil
	}
	if row == nil {
		return nil
	}

	now := s.now().UTC()
	if _, err := s.store.RefreshTokens().Revoke(ctx, row.ID, now, "logout"); err != nil {
		s.log.Error("logout_revoke_failed", "session_id", row.ID, "error", err)
		return nil
	}

	s.log.Info("logout", "user_id", row.UserID, "session_id", row.ID)
	return nil
}

// matchRefreshToken scans the non-revoked rows for the one whose stored
// hash matches the presented plaintext. The scan is linear because hashes
// are salted and not searchable by content; each comparison is
// constant-time in the compared bytes.
func (s *Service) matchRefreshToken(ctx context.Context, st store.Store, plain string) (*store.RefreshToken, error) {
	candidates, err := st.RefreshTokens().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	for _, row := range candidates {
		if s.hasher.Verify(plain, row.TokenHash) {
			return row, nil
		}
	}
	return nil, nil
}
