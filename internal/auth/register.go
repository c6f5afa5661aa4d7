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

// RegisterInput holds the registration request.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// Register creates a new account. The account starts active but
// unverified; a verification email goes out of band and login stays
// blocked until the address is confirmed.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*store.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if ok, msg := password.ValidateStrength(input.Password); !ok {
		return nil, apperr.Invalid(msg)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	now := s.now().UTC()
	user := &store.User{
		ID:              uuid.New(),
		Email:           email,
		PasswordHash:    &hash,
		FullName:        strings.TrimSpace(input.FullName),
		MinTokenVersion: 1,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("An account with this email already exists")
		}
		return nil, apperr.Internal(fmt.Errorf("create user: %w", err))
	}

	s.log.Info("user_registered", "user_id", user.ID, "email", email)

	// Verification is best-effort at this point; the user can request a
	// fresh token if the email never lands.
	if err := s.IssueVerification(ctx, user); err != nil {
		s.log.Error("verification_issue_failed", "user_id", user.ID, "error", err)
	}

	return user, nil
}
