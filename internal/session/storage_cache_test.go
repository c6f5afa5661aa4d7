package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbridge/authcore/internal/cache"
)

func TestCacheStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewCacheStorage(cache.NewMemory())

	s := &Session{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		DeviceInfo: "Desktop / Chrome",
		IPAddress:  "203.0.113.7",
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, st.Save(ctx, s))

	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.DeviceInfo, got.DeviceInfo)

	_, err = st.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheStorage_Revoke(t *testing.T) {
	ctx := context.Background()
	st := NewCacheStorage(cache.NewMemory())

	s := &Session{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, st.Save(ctx, s))

	ok, err := st.Revoke(ctx, s.ID, "test")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked)
	assert.Equal(t, "test", got.RevokedReason)

	ok, err = st.Revoke(ctx, s.ID, "again")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = st.Revoke(ctx, uuid.New(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheStorage_Delete(t *testing.T) {
	ctx := context.Background()
	st := NewCacheStorage(cache.NewMemory())

	s := &Session{ID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, st.Save(ctx, s))

	ok, err := st.Delete(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Delete(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
