package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/store"
)

// Backend owns the domain rules for a session's shape and validity.
// Persistence is the Storage's job; a backend may be fully stateless.
type Backend interface {
	// Create builds a new session value. It does not persist anything.
	Create(ctx context.Context, userID uuid.UUID, deviceInfo, ip, userAgent string, meta map[string]string) (*Session, error)
	// Validate reports whether the session is acceptable right now.
	Validate(ctx context.Context, s *Session) bool
	// Revoke applies backend-side revocation state, if any. Stateless
	// backends return false and leave revocation to the Storage.
	Revoke(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	// List returns backend-held sessions for the user, if the backend
	// tracks them itself.
	List(ctx context.Context, userID uuid.UUID) ([]*Session, error)
}

// JWTBackend is the stateless reference backend: session ids are freshly
// generated, lifetime comes from configuration, and validity is a pure
// function of the session value. Revocation and listing live in Storage.
type JWTBackend struct {
	ttl time.Duration
	now func() time.Time
}

// NewJWTBackend creates the stateless backend. ttl <= 0 falls back to 30
// days.
func NewJWTBackend(ttl time.Duration) *JWTBackend {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &JWTBackend{ttl: ttl, now: time.Now}
}

func (b *JWTBackend) Create(_ context.Context, userID uuid.UUID, deviceInfo, ip, userAgent string, meta map[string]string) (*Session, error) {
	now := b.now().UTC()
	s := &Session{
		ID:         uuid.New(),
		UserID:     userID,
		DeviceInfo: deviceInfo,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(b.ttl),
		CreatedAt:  now,
	}
	if meta != nil {
		s.Location = meta["location"]
		s.Fingerprint = meta["fingerprint"]
		if meta["trusted"] == "true" {
			s.IsTrusted = true
		}
	}
	return s, nil
}

func (b *JWTBackend) Validate(_ context.Context, s *Session) bool {
	return s != nil && s.Active(b.now())
}

func (b *JWTBackend) Revoke(_ context.Context, _ uuid.UUID, _ string) (bool, error) {
	return false, nil
}

func (b *JWTBackend) List(_ context.Context, _ uuid.UUID) ([]*Session, error) {
	return nil, nil
}

// DatabaseBackend consults the refresh-token store for validity and
// revocation, so backend decisions always reflect persisted state.
type DatabaseBackend struct {
	tokens store.RefreshTokenStore
	ttl    time.Duration
	now    func() time.Time
}

func NewDatabaseBackend(tokens store.RefreshTokenStore, ttl time.Duration) *DatabaseBackend {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &DatabaseBackend{tokens: tokens, ttl: ttl, now: time.Now}
}

func (b *DatabaseBackend) Create(_ context.Context, userID uuid.UUID, deviceInfo, ip, userAgent string, meta map[string]string) (*Session, error) {
	now := b.now().UTC()
	s := &Session{
		ID:         uuid.New(),
		UserID:     userID,
		DeviceInfo: deviceInfo,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(b.ttl),
		CreatedAt:  now,
	}
	if meta != nil {
		s.Location = meta["location"]
		s.Fingerprint = meta["fingerprint"]
		if meta["trusted"] == "true" {
			s.IsTrusted = true
		}
	}
	return s, nil
}

// Validate re-reads the row so a revocation committed by another request
// is seen immediately.
func (b *DatabaseBackend) Validate(ctx context.Context, s *Session) bool {
	if s == nil {
		return false
	}
	row, err := b.tokens.GetByID(ctx, s.ID)
	if err != nil {
		return false
	}
	return !row.IsRevoked && !row.Expired(b.now())
}

func (b *DatabaseBackend) Revoke(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return b.tokens.Revoke(ctx, id, b.now().UTC(), reason)
}

func (b *DatabaseBackend) List(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	rows, err := b.tokens.ListByUser(ctx, userID, store.ListFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromRefreshToken(r))
	}
	return out, nil
}
