package store

import (
	"time"

	"github.com/google/uuid"
)

// Credential token kinds.
const (
	KindEmailVerify   = "email_verify"
	KindPasswordReset = "password_reset"
)

// User is a registered account.
//
// PasswordHash is nullable: accounts created before password auth (or via a
// provider link) may not have one. Deletion is soft via DeletedAt.
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  *string
	FullName      string
	EmailVerified bool
	EmailVerifiedAt *time.Time

	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         *string

	// MinTokenVersion is the per-user rotation floor: refresh tokens issued
	// below it are dead regardless of their own state.
	MinTokenVersion int
	IsActive        bool

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Locked reports whether the account is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.AccountLockedUntil != nil && u.AccountLockedUntil.After(now)
}

// CanLogin reports whether the account may authenticate at all. Email
// verification is a separate gate enforced at login time.
func (u *User) CanLogin(now time.Time) bool {
	return u.IsActive && !u.Locked(now)
}

// RefreshToken is a stored session: the hashed opaque refresh secret plus
// device metadata. Its ID doubles as the jti of access tokens minted
// against it and as the user-visible session id.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time

	IsRevoked bool
	// RevokedAt may lie in the future: a global rotation with a grace period
	// sets IsRevoked immediately and encodes the user-visible moment here.
	RevokedAt     *time.Time
	RevokedReason *string

	DeviceInfo      string
	IPAddress       *string
	UserAgent       string
	Location        *string
	Fingerprint     *string
	IsTrustedDevice bool
	LastUsedAt      *time.Time

	// Version snapshots taken at mint time.
	TokenVersion  int
	GlobalVersion int

	CreatedAt time.Time
}

// Expired reports expiry with an inclusive boundary: expires_at == now is
// expired.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Valid applies the full validity predicate against the owning user's
// minimum version and the global minimum. Revocation is effective the
// instant IsRevoked is set; RevokedAt exists for forensics and UX.
func (t *RefreshToken) Valid(now time.Time, userMinVersion, globalMinVersion int) bool {
	return !t.IsRevoked &&
		!t.Expired(now) &&
		t.TokenVersion >= userMinVersion &&
		t.GlobalVersion >= globalMinVersion
}

// CredentialToken is a single-use token row shared by email verification
// and password reset. Only the hash is ever stored.
type CredentialToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token can still be consumed.
func (t *CredentialToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && !now.After(t.ExpiresAt)
}

// SecurityConfig is the persisted singleton holding the global rotation
// floor. Exactly one row exists; migrations bootstrap it at version 1.
type SecurityConfig struct {
	GlobalMinTokenVersion int
	UpdatedAt             time.Time
	UpdatedBy             string
	Reason                string
}
