package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/apperr"
	"github.com/finbridge/authcore/internal/store"
)

// IssueVerification creates a single-use email-verification token and
// mails the plaintext. Only the hash is persisted; the plaintext exists in
// memory and in the email body, nowhere else.
func (s *Service) IssueVerification(ctx context.Context, user *store.User) error {
	plain, err := generateOpaqueToken()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("hash verification token: %w", err)
	}

	now := s.now().UTC()
	row := &store.CredentialToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Kind:      store.KindEmailVerify,
		TokenHash: hash,
		ExpiresAt: now.Add(s.cfg.VerificationTTL),
		CreatedAt: now,
	}
	if err := s.store.CredentialTokens().Create(ctx, row); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	s.notifier.SendVerification(ctx, user.Email, plain)
	return nil
}

// VerifyEmail consumes a verification token and marks the account's email
// verified. The welcome email is best-effort.
func (s *Service) VerifyEmail(ctx context.Context, tokenPlain string) error {
	now := s.now().UTC()

	row, err := s.matchCredentialToken(ctx, store.KindEmailVerify, tokenPlain)
	if err != nil {
		return apperr.Internal(err)
	}
	if row == nil {
		return apperr.Invalid("Invalid or expired verification token")
	}
	if !row.Usable(now) {
		return apperr.Invalid("Invalid or expired verification token")
	}

	ok, err := s.store.CredentialTokens().MarkUsed(ctx, row.ID, now)
	if err != nil {
		return apperr.Internal(fmt.Errorf("consume verification token: %w", err))
	}
	if !ok {
		// Lost the race against a concurrent consume.
		return apperr.Invalid("Invalid or expired verification token")
	}

	if err := s.store.Users().MarkEmailVerified(ctx, row.UserID, now); err != nil {
		return apperr.Internal(fmt.Errorf("mark email verified: %w", err))
	}

	s.log.Info("email_verified", "user_id", row.UserID)

	if user, err := s.store.Users().GetByID(ctx, row.UserID); err == nil {
		s.notifier.SendWelcome(ctx, user.Email)
	}
	return nil
}

// matchCredentialToken scans unconsumed rows of the given kind for a hash
// match, mirroring the refresh-token scan.
func (s *Service) matchCredentialToken(ctx context.Context, kind, plain string) (*store.CredentialToken, error) {
	candidates, err := s.store.CredentialTokens().ListUnused(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list credential tokens: %w", err)
	}
	for _, row := range candidates {
		if s.hasher.Verify(plain, row.TokenHash) {
			return row, nil
		}
	}
	return nil, nil
}
