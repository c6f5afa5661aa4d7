// Package store is the persistence layer of the auth core.
//
// Repository interfaces are defined here and implemented twice: over
// PostgreSQL (pgx) for production and in memory for tests and development.
// Services receive a Store through construction, never through globals, and
// run multi-write operations inside WithTx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on unique-constraint violations.
	ErrDuplicate = errors.New("record already exists")
	// ErrConfigMissing is returned when the security_config singleton is
	// absent. Bootstrapping it is a migration responsibility; the code
	// fails loudly rather than inventing a default.
	ErrConfigMissing = errors.New("security config row missing")
)

// ListFilter narrows session listings. Zero values mean "no constraint".
type ListFilter struct {
	ActiveOnly    bool
	DeviceType    string // substring match on device_info
	IPAddress     string
	Location      string // substring match
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	IsTrusted     *bool
	Offset        int
	Limit         int
}

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName string) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	// RecordLoginSuccess resets the failure counter and stamps last-login
	// metadata.
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time, ip string) error
	// RecordLoginFailure increments the failure counter and, when lockUntil
	// is non-nil, locks the account. Returns the new counter value.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, lockUntil *time.Time) (int, error)
	SetMinTokenVersion(ctx context.Context, id uuid.UUID, version int) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// RefreshTokenStore persists refresh-token rows (sessions).
type RefreshTokenStore interface {
	Create(ctx context.Context, t *RefreshToken) error
	GetByID(ctx context.Context, id uuid.UUID) (*RefreshToken, error)
	// ListActive returns all non-revoked, non-expired rows: the candidate
	// set for matching a presented opaque refresh token. Hashes are not
	// searchable by content, so matching is a scan.
	ListActive(ctx context.Context) ([]*RefreshToken, error)
	ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter) ([]*RefreshToken, error)
	// Revoke marks the row revoked. Returns false when the row was missing
	// or already revoked.
	Revoke(ctx context.Context, id uuid.UUID, at time.Time, reason string) (bool, error)
	// RevokeAllForUser revokes every active row of the user, minus the
	// optional exception. Returns the count actually revoked.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time, reason string, except *uuid.UUID) (int, error)
	MaxTokenVersion(ctx context.Context, userID uuid.UUID) (int, error)
	// RevokeBelowUserVersion revokes the user's active rows whose
	// token_version is below version.
	RevokeBelowUserVersion(ctx context.Context, userID uuid.UUID, version int, at time.Time, reason string) (int, error)
	// StatsBelowGlobalVersion counts active rows (and their distinct users)
	// whose global snapshot is below version.
	StatsBelowGlobalVersion(ctx context.Context, version int) (tokens int, users int, err error)
	// RevokeBelowGlobalVersion revokes active rows below the global version.
	// revokedAt may be in the future to encode a grace period.
	RevokeBelowGlobalVersion(ctx context.Context, version int, revokedAt time.Time, reason string) (int, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateLocation(ctx context.Context, id uuid.UUID, location string) error
}

// CredentialTokenStore persists single-use verification and reset tokens.
type CredentialTokenStore interface {
	Create(ctx context.Context, t *CredentialToken) error
	// ListUnused returns unconsumed rows of the given kind; the caller
	// matches the presented plaintext against each hash.
	ListUnused(ctx context.Context, kind string) ([]*CredentialToken, error)
	// MarkUsed consumes the token. Returns false when it was already used,
	// guaranteeing the null -> timestamp transition happens exactly once.
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// SecurityConfigStore persists the global-rotation singleton.
type SecurityConfigStore interface {
	Get(ctx context.Context) (*SecurityConfig, error)
	Update(ctx context.Context, version int, updatedBy, reason string, at time.Time) error
}

// Store bundles the repositories and transaction support.
type Store interface {
	Users() UserStore
	RefreshTokens() RefreshTokenStore
	CredentialTokens() CredentialTokenStore
	SecurityConfig() SecurityConfigStore

	// WithTx runs fn against a Store bound to a single transaction.
	// fn returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
