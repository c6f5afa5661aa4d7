package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!!")

func newTestService() *Service {
	return NewService(testSecret, 30*time.Minute)
}

func TestMakeAccess_RoundTrip(t *testing.T) {
	svc := newTestService()
	userID := uuid.New()
	sessionID := uuid.New()

	tok, err := svc.MakeAccess(userID, "alice@example.com", &sessionID, nil)
	require.NoError(t, err)

	claims, err := svc.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, TypeAccess, claims.TokenType)
	assert.Equal(t, sessionID.String(), claims.ID)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestMakeAccess_WithoutSession(t *testing.T) {
	svc := newTestService()

	tok, err := svc.MakeAccess(uuid.New(), "alice@example.com", nil, nil)
	require.NoError(t, err)

	_, err = svc.SessionIDOf(tok)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestMakeAccess_ExtraClaims(t *testing.T) {
	svc := newTestService()
	userID := uuid.New()

	tok, err := svc.MakeAccess(userID, "alice@example.com", nil, map[string]any{"plan": "premium"})
	require.NoError(t, err)

	claims, err := svc.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, TypeAccess, claims.TokenType)
}

func TestDecode_RejectsMalformed(t *testing.T) {
	svc := newTestService()

	_, err := svc.Decode("not.a.token")
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = svc.Decode("")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestDecode_RejectsWrongSecret(t *testing.T) {
	svc := newTestService()
	other := NewService([]byte("a-completely-different-secret-key!!!"), time.Minute)

	tok, err := other.MakeAccess(uuid.New(), "alice@example.com", nil, nil)
	require.NoError(t, err)

	_, err = svc.Decode(tok)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestRequireType(t *testing.T) {
	svc := newTestService()
	userID := uuid.New()

	access, err := svc.MakeAccess(userID, "alice@example.com", nil, nil)
	require.NoError(t, err)
	refresh, err := svc.MakeRefresh(userID, "alice@example.com", time.Hour)
	require.NoError(t, err)

	_, err = svc.RequireType(access, TypeAccess)
	assert.NoError(t, err)

	_, err = svc.RequireType(access, TypeRefresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = svc.RequireType(refresh, TypeAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestIsExpired(t *testing.T) {
	svc := NewService(testSecret, 1*time.Millisecond)

	tok, err := svc.MakeAccess(uuid.New(), "alice@example.com", nil, nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.True(t, svc.IsExpired(tok))

	// Decode still succeeds on an expired-but-authentic token.
	claims, err := svc.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, claims.TokenType)

	// But the request-path check rejects it.
	_, err = svc.Validate(tok)
	assert.Error(t, err)
}

func TestIsExpired_SwallowsDecodeFailures(t *testing.T) {
	svc := newTestService()

	assert.True(t, svc.IsExpired("garbage"))
	assert.True(t, svc.IsExpired(""))
}

func TestExpirationOf(t *testing.T) {
	svc := newTestService()

	tok, err := svc.MakeAccess(uuid.New(), "alice@example.com", nil, nil)
	require.NoError(t, err)

	exp, err := svc.ExpirationOf(tok)
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *exp, 5*time.Second)
}

func TestUserIDOf(t *testing.T) {
	svc := newTestService()
	userID := uuid.New()

	tok, err := svc.MakeAccess(userID, "alice@example.com", nil, nil)
	require.NoError(t, err)

	got, err := svc.UserIDOf(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}
