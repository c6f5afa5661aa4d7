package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/apperr"
	"github.com/finbridge/authcore/internal/store"
)

// minRotationReasonLength forces global rotations to carry a real
// explanation; they end every session in the system.
const minRotationReasonLength = 20

// UserRotationResult reports a per-user rotation.
type UserRotationResult struct {
	UserID        uuid.UUID `json:"user_id"`
	OldVersion    int       `json:"old_version"`
	NewVersion    int       `json:"new_version"`
	RevokedTokens int       `json:"revoked_tokens"`
}

// GlobalRotationResult reports a system-wide rotation.
type GlobalRotationResult struct {
	OldVersion         int    `json:"old_version"`
	NewVersion         int    `json:"new_version"`
	AffectedTokens     int    `json:"affected_tokens"`
	AffectedUsers      int    `json:"affected_users"`
	GracePeriodMinutes int    `json:"grace_period_minutes"`
	Initiator          string `json:"initiator"`
}

// RotateUser bumps the user's minimum token version above every version
// ever issued to them and revokes all sessions below the new floor.
//
// The new floor is max(current floor, highest issued version) + 1, which
// makes the operation strictly monotonic: a client racing this rotation
// with a login cannot resurrect a pre-rotation session.
func (s *Service) RotateUser(ctx context.Context, userID uuid.UUID, reason string) (*UserRotationResult, error) {
	result := &UserRotationResult{UserID: userID}
	now := s.now().UTC()

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		result.OldVersion = user.MinTokenVersion

		maxUsed, err := tx.RefreshTokens().MaxTokenVersion(ctx, userID)
		if err != nil {
			return fmt.Errorf("read max token version: %w", err)
		}

		newVersion := user.MinTokenVersion
		if maxUsed > newVersion {
			newVersion = maxUsed
		}
		newVersion++
		result.NewVersion = newVersion

		if err := tx.Users().SetMinTokenVersion(ctx, userID, newVersion); err != nil {
			return fmt.Errorf("set min token version: %w", err)
		}

		revoked, err := tx.RefreshTokens().RevokeBelowUserVersion(ctx, userID, newVersion, now, reason)
		if err != nil {
			return fmt.Errorf("revoke below version: %w", err)
		}
		result.RevokedTokens = revoked
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}

	s.log.Info("user_tokens_rotated",
		"user_id", userID,
		"old_version", result.OldVersion,
		"new_version", result.NewVersion,
		"revoked_tokens", result.RevokedTokens,
		"reason", reason,
	)
	return result, nil
}

// RotateGlobal bumps the system-wide minimum token version, ending every
// session issued before it. graceMinutes is recorded as a future
// revoked_at for user-facing messaging; validation treats a token as dead
// the instant is_revoked is set.
func (s *Service) RotateGlobal(ctx context.Context, reason, initiator string, graceMinutes int) (*GlobalRotationResult, error) {
	if len(strings.TrimSpace(reason)) < minRotationReasonLength {
		return nil, apperr.Invalid(fmt.Sprintf(
			"Rotation reason must be at least %d characters; describe the incident that requires it",
			minRotationReasonLength,
		))
	}
	if graceMinutes < 0 {
		graceMinutes = 0
	}

	result := &GlobalRotationResult{
		GracePeriodMinutes: graceMinutes,
		Initiator:          initiator,
	}
	now := s.now().UTC()

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		cfg, err := tx.SecurityConfig().Get(ctx)
		if err != nil {
			return fmt.Errorf("load security config: %w", err)
		}
		result.OldVersion = cfg.GlobalMinTokenVersion
		result.NewVersion = cfg.GlobalMinTokenVersion + 1

		tokens, users, err := tx.RefreshTokens().StatsBelowGlobalVersion(ctx, result.NewVersion)
		if err != nil {
			return fmt.Errorf("count affected tokens: %w", err)
		}
		result.AffectedTokens = tokens
		result.AffectedUsers = users

		if err := tx.SecurityConfig().Update(ctx, result.NewVersion, initiator, reason, now); err != nil {
			return fmt.Errorf("update security config: %w", err)
		}

		revokedAt := now.Add(time.Duration(graceMinutes) * time.Minute)
		if _, err := tx.RefreshTokens().RevokeBelowGlobalVersion(ctx, result.NewVersion, revokedAt, reason); err != nil {
			return fmt.Errorf("revoke below global version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	// Highest-severity event in the system: every operator should see it.
	s.log.Error("global_token_rotation",
		"severity", "critical",
		"old_version", result.OldVersion,
		"new_version", result.NewVersion,
		"initiator", initiator,
		"reason", reason,
		"affected_tokens", result.AffectedTokens,
		"affected_users", result.AffectedUsers,
		"grace_period_minutes", graceMinutes,
	)
	return result, nil
}

// SecurityConfig returns the current global rotation state.
func (s *Service) SecurityConfig(ctx context.Context) (*store.SecurityConfig, error) {
	cfg, err := s.store.SecurityConfig().Get(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return cfg, nil
}
