package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/apperr"
	"github.com/finbridge/authcore/internal/password"
	"github.com/finbridge/authcore/internal/store"
)

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*store.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// UpdateProfile changes the user's display name.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string) error {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return apperr.Invalid("Name must not be empty")
	}
	if err := s.store.Users().UpdateProfile(ctx, id, fullName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal(err)
	}
	return nil
}

// ChangePassword verifies the current password, installs the new one and
// rotates the user's token version so every other session dies.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if user.PasswordHash == nil || !s.hasher.Verify(current, *user.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	if ok, msg := password.ValidateStrength(newPassword); !ok {
		return apperr.Invalid(msg)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.store.Users().UpdatePassword(ctx, userID, hash); err != nil {
		return apperr.Internal(fmt.Errorf("update password: %w", err))
	}

	if _, err := s.RotateUser(ctx, userID, "password_change"); err != nil {
		return apperr.Internal(fmt.Errorf("rotate user after password change: %w", err))
	}

	s.log.Info("password_changed", "user_id", userID)
	s.notifier.SendPasswordChanged(ctx, user.Email)
	return nil
}
