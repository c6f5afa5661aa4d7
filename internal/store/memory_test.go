package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(email string) *User {
	return &User{
		ID:              uuid.New(),
		Email:           email,
		FullName:        "Test User",
		MinTokenVersion: 1,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
}

func newRefreshToken(userID uuid.UUID) *RefreshToken {
	return &RefreshToken{
		ID:            uuid.New(),
		UserID:        userID,
		TokenHash:     "hash",
		ExpiresAt:     time.Now().Add(time.Hour),
		DeviceInfo:    "Chrome on macOS",
		UserAgent:     "Mozilla/5.0",
		TokenVersion:  1,
		GlobalVersion: 1,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestMemoryUsers_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := newUser("alice@example.com")

	require.NoError(t, m.Users().Create(ctx, u))

	got, err := m.Users().GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = m.Users().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	// Duplicate email is a conflict.
	err = m.Users().Create(ctx, newUser("alice@example.com"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryUsers_LoginFailureCounter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u := newUser("alice@example.com")
	require.NoError(t, m.Users().Create(ctx, u))

	n, err := m.Users().RecordLoginFailure(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lock := time.Now().Add(time.Hour)
	n, err = m.Users().RecordLoginFailure(ctx, u.ID, &lock)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := m.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked(time.Now()))

	require.NoError(t, m.Users().RecordLoginSuccess(ctx, u.ID, time.Now(), "10.0.0.5"))
	got, err = m.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginAttempts)
	assert.Nil(t, got.AccountLockedUntil)
	require.NotNil(t, got.LastLoginIP)
	assert.Equal(t, "10.0.0.5", *got.LastLoginIP)
}

func TestMemoryRefresh_ListByUserFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	userID := uuid.New()

	t1 := newRefreshToken(userID)
	t1.DeviceInfo = "Chrome on macOS"
	loc := "Amsterdam, NL"
	t1.Location = &loc
	t1.CreatedAt = time.Now().Add(-2 * time.Hour)

	t2 := newRefreshToken(userID)
	t2.DeviceInfo = "Safari on iPhone"
	t2.IsTrustedDevice = true

	t3 := newRefreshToken(userID)
	t3.IsRevoked = true

	other := newRefreshToken(uuid.New())

	for _, tok := range []*RefreshToken{t1, t2, t3, other} {
		require.NoError(t, m.RefreshTokens().Create(ctx, tok))
	}

	all, err := m.RefreshTokens().ListByUser(ctx, userID, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := m.RefreshTokens().ListByUser(ctx, userID, ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	// Ordering is created_at descending.
	assert.Equal(t, t2.ID, active[0].ID)
	assert.Equal(t, t1.ID, active[1].ID)

	byDevice, err := m.RefreshTokens().ListByUser(ctx, userID, ListFilter{DeviceType: "iphone"})
	require.NoError(t, err)
	require.Len(t, byDevice, 1)
	assert.Equal(t, t2.ID, byDevice[0].ID)

	byLocation, err := m.RefreshTokens().ListByUser(ctx, userID, ListFilter{Location: "amsterdam"})
	require.NoError(t, err)
	require.Len(t, byLocation, 1)
	assert.Equal(t, t1.ID, byLocation[0].ID)

	trusted := true
	byTrust, err := m.RefreshTokens().ListByUser(ctx, userID, ListFilter{IsTrusted: &trusted})
	require.NoError(t, err)
	require.Len(t, byTrust, 1)
	assert.Equal(t, t2.ID, byTrust[0].ID)

	paged, err := m.RefreshTokens().ListByUser(ctx, userID, ListFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
}

func TestMemoryRefresh_RevokeSemantics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tok := newRefreshToken(uuid.New())
	require.NoError(t, m.RefreshTokens().Create(ctx, tok))

	ok, err := m.RefreshTokens().Revoke(ctx, tok.ID, time.Now(), "user_request")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second revoke is a no-op.
	ok, err = m.RefreshTokens().Revoke(ctx, tok.ID, time.Now(), "user_request")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.RefreshTokens().GetByID(ctx, tok.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked)
	require.NotNil(t, got.RevokedReason)
	assert.Equal(t, "user_request", *got.RevokedReason)
}

func TestMemoryRefresh_RevokeAllForUserExcept(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	userID := uuid.New()

	keep := newRefreshToken(userID)
	kill1 := newRefreshToken(userID)
	kill2 := newRefreshToken(userID)
	for _, tok := range []*RefreshToken{keep, kill1, kill2} {
		require.NoError(t, m.RefreshTokens().Create(ctx, tok))
	}

	n, err := m.RefreshTokens().RevokeAllForUser(ctx, userID, time.Now(), "logout_others", &keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := m.RefreshTokens().GetByID(ctx, keep.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRevoked)
}

func TestMemoryCredentials_ExactlyOnceUse(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tok := &CredentialToken{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Kind:      KindPasswordReset,
		TokenHash: "hash",
		ExpiresAt: time.Now().Add(15 * time.Minute),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, m.CredentialTokens().Create(ctx, tok))

	unused, err := m.CredentialTokens().ListUnused(ctx, KindPasswordReset)
	require.NoError(t, err)
	assert.Len(t, unused, 1)

	ok, err := m.CredentialTokens().MarkUsed(ctx, tok.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CredentialTokens().MarkUsed(ctx, tok.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "used_at transitions exactly once")

	unused, err = m.CredentialTokens().ListUnused(ctx, KindPasswordReset)
	require.NoError(t, err)
	assert.Empty(t, unused)
}

func TestMemorySecurityConfig(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	cfg, err := m.SecurityConfig().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.GlobalMinTokenVersion)

	require.NoError(t, m.SecurityConfig().Update(ctx, 2, "admin@example.com", "key compromise suspected here", time.Now()))

	cfg, err = m.SecurityConfig().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.GlobalMinTokenVersion)
	assert.Equal(t, "admin@example.com", cfg.UpdatedBy)
}

func TestRefreshToken_ValidPredicate(t *testing.T) {
	now := time.Now()
	tok := newRefreshToken(uuid.New())

	assert.True(t, tok.Valid(now, 1, 1))
	assert.False(t, tok.Valid(now, 2, 1), "token below user min version")
	assert.False(t, tok.Valid(now, 1, 2), "token below global min version")

	tok.IsRevoked = true
	assert.False(t, tok.Valid(now, 1, 1))

	tok.IsRevoked = false
	tok.ExpiresAt = now
	assert.False(t, tok.Valid(now, 1, 1), "expiry boundary is inclusive")
}
