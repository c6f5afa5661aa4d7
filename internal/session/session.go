// Package session composes a pluggable session manager from four parts:
// a Backend (domain rules), a Storage (persistence), an Audit sink and an
// ordered chain of Enrichers. The composition is selected by name at
// startup so deployments can move between database, cache and in-memory
// behaviour without code changes.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/store"
)

// Session is the manager's view of a login session. It mirrors the stored
// refresh-token row; the ID doubles as the jti of access tokens minted
// against it.
type Session struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	// TokenHash is the hash of the opaque refresh secret backing this
	// session. Set when the session is first persisted; never serialised.
	TokenHash string `json:"-"`

	DeviceInfo  string `json:"device_info"`
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	Location    string `json:"location,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	IsTrusted   bool   `json:"is_trusted"`

	IsRevoked     bool       `json:"is_revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`

	// Rotation-floor snapshots taken when the session was created.
	TokenVersion  int `json:"token_version"`
	GlobalVersion int `json:"global_version"`
}

// Active reports whether the session is neither revoked nor expired.
// Expiry uses an inclusive boundary.
func (s *Session) Active(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}

// Remaining returns the session's remaining lifetime, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// FromRefreshToken converts a stored refresh-token row into a Session.
func FromRefreshToken(t *store.RefreshToken) *Session {
	s := &Session{
		ID:            t.ID,
		UserID:        t.UserID,
		TokenHash:     t.TokenHash,
		DeviceInfo:    t.DeviceInfo,
		UserAgent:     t.UserAgent,
		IsTrusted:     t.IsTrustedDevice,
		IsRevoked:     t.IsRevoked,
		RevokedAt:     t.RevokedAt,
		LastUsedAt:    t.LastUsedAt,
		ExpiresAt:     t.ExpiresAt,
		CreatedAt:     t.CreatedAt,
		TokenVersion:  t.TokenVersion,
		GlobalVersion: t.GlobalVersion,
	}
	if t.IPAddress != nil {
		s.IPAddress = *t.IPAddress
	}
	if t.Location != nil {
		s.Location = *t.Location
	}
	if t.Fingerprint != nil {
		s.Fingerprint = *t.Fingerprint
	}
	if t.RevokedReason != nil {
		s.RevokedReason = *t.RevokedReason
	}
	return s
}

// ToRefreshToken converts the session back into its storable row shape.
func (s *Session) ToRefreshToken() *store.RefreshToken {
	t := &store.RefreshToken{
		ID:              s.ID,
		UserID:          s.UserID,
		TokenHash:       s.TokenHash,
		DeviceInfo:      s.DeviceInfo,
		UserAgent:       s.UserAgent,
		IsTrustedDevice: s.IsTrusted,
		IsRevoked:       s.IsRevoked,
		RevokedAt:       s.RevokedAt,
		LastUsedAt:      s.LastUsedAt,
		ExpiresAt:       s.ExpiresAt,
		CreatedAt:       s.CreatedAt,
		TokenVersion:    s.TokenVersion,
		GlobalVersion:   s.GlobalVersion,
	}
	if s.IPAddress != "" {
		t.IPAddress = &s.IPAddress
	}
	if s.Location != "" {
		t.Location = &s.Location
	}
	if s.Fingerprint != "" {
		t.Fingerprint = &s.Fingerprint
	}
	if s.RevokedReason != "" {
		t.RevokedReason = &s.RevokedReason
	}
	return t
}
