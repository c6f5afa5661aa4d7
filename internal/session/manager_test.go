package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbridge/authcore/internal/store"
)

type recordingAudit struct {
	created    int
	revoked    int
	accessed   int
	suspicious int
}

func (a *recordingAudit) LogCreated(context.Context, *Session, map[string]any)   { a.created++ }
func (a *recordingAudit) LogRevoked(context.Context, uuid.UUID, map[string]any)  { a.revoked++ }
func (a *recordingAudit) LogAccessed(context.Context, uuid.UUID, map[string]any) { a.accessed++ }
func (a *recordingAudit) LogSuspicious(context.Context, uuid.UUID, map[string]any) {
	a.suspicious++
}

type panickingAudit struct{}

func (panickingAudit) LogCreated(context.Context, *Session, map[string]any)     { panic("boom") }
func (panickingAudit) LogRevoked(context.Context, uuid.UUID, map[string]any)    { panic("boom") }
func (panickingAudit) LogAccessed(context.Context, uuid.UUID, map[string]any)   { panic("boom") }
func (panickingAudit) LogSuspicious(context.Context, uuid.UUID, map[string]any) { panic("boom") }

func newTestManager(t *testing.T) (*Manager, *recordingAudit) {
	t.Helper()
	m, err := NewManager(
		Config{Backend: "jwt", Storage: "memory", Audit: "noop", TTL: time.Hour},
		Deps{Logger: slog.Default()},
	)
	require.NoError(t, err)
	audit := &recordingAudit{}
	m.audit = audit
	return m, audit
}

func TestNewManager_UnknownNames(t *testing.T) {
	_, err := NewManager(Config{Backend: "carrier-pigeon"}, Deps{})
	assert.Error(t, err)

	_, err = NewManager(Config{Storage: "tape"}, Deps{})
	assert.Error(t, err)

	_, err = NewManager(Config{Storage: "memory", Audit: "smoke-signals"}, Deps{})
	assert.Error(t, err)
}

func TestNewManager_MissingDeps(t *testing.T) {
	_, err := NewManager(Config{Backend: "database", Storage: "memory", Audit: "noop"}, Deps{})
	assert.Error(t, err)

	_, err = NewManager(Config{Storage: "cache", Audit: "noop"}, Deps{})
	assert.Error(t, err)

	_, err = NewManager(Config{Storage: "memory", Audit: "database"}, Deps{})
	assert.Error(t, err)
}

func TestManager_CreateFlow(t *testing.T) {
	ctx := context.Background()
	m, audit := newTestManager(t)
	userID := uuid.New()

	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile Safari/604.1"
	s, err := m.Create(ctx, userID, "", "203.0.113.7", ua, nil)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, userID, s.UserID)
	// Enrichment derived a device description from the user agent.
	assert.Contains(t, s.DeviceInfo, "Mobile")
	assert.Equal(t, 1, audit.created)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestManager_CreateKeepsExplicitDeviceInfo(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	s, err := m.Create(ctx, uuid.New(), "Work laptop", "", "Mozilla/5.0 Chrome/120", nil)
	require.NoError(t, err)
	assert.Equal(t, "Work laptop", s.DeviceInfo)
}

func TestManager_Validate(t *testing.T) {
	ctx := context.Background()
	m, audit := newTestManager(t)

	s, err := m.Create(ctx, uuid.New(), "d", "", "", nil)
	require.NoError(t, err)

	assert.True(t, m.Validate(ctx, s.ID))
	assert.Equal(t, 1, audit.accessed)

	assert.False(t, m.Validate(ctx, uuid.New()))

	_, err = m.Revoke(ctx, s.ID, "test")
	require.NoError(t, err)
	assert.False(t, m.Validate(ctx, s.ID))
}

func TestManager_Revoke(t *testing.T) {
	ctx := context.Background()
	m, audit := newTestManager(t)

	s, err := m.Create(ctx, uuid.New(), "d", "", "", nil)
	require.NoError(t, err)

	ok, err := m.Revoke(ctx, s.ID, "user request")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, audit.revoked)

	// Second revoke is a no-op without audit.
	ok, err = m.Revoke(ctx, s.ID, "user request")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, audit.revoked)

	// Missing session returns false without audit.
	ok, err = m.Revoke(ctx, uuid.New(), "user request")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, audit.revoked)
}

func TestManager_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	userID := uuid.New()

	var keep *Session
	for i := 0; i < 3; i++ {
		s, err := m.Create(ctx, userID, "d", "", "", nil)
		require.NoError(t, err)
		keep = s
	}
	// Another user's session must be untouched.
	other, err := m.Create(ctx, uuid.New(), "d", "", "", nil)
	require.NoError(t, err)

	n, err := m.RevokeAllForUser(ctx, userID, "password change", &keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.True(t, m.Validate(ctx, keep.ID))
	assert.True(t, m.Validate(ctx, other.ID))
}

func TestManager_AuditPanicDoesNotPropagate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	m.audit = panickingAudit{}

	s, err := m.Create(ctx, uuid.New(), "d", "", "", nil)
	require.NoError(t, err)
	require.NotNil(t, s)

	ok, err := m.Revoke(ctx, s.ID, "r")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStorage_Filters(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStorage()
	userID := uuid.New()

	mk := func(device, ip, location string, trusted bool, age time.Duration) *Session {
		s := &Session{
			ID:         uuid.New(),
			UserID:     userID,
			DeviceInfo: device,
			IPAddress:  ip,
			Location:   location,
			IsTrusted:  trusted,
			CreatedAt:  time.Now().Add(-age),
			ExpiresAt:  time.Now().Add(time.Hour),
		}
		require.NoError(t, st.Save(ctx, s))
		return s
	}

	mk("Mobile / Safari", "10.0.0.1", "Amsterdam, NL", true, time.Minute)
	mk("Desktop / Chrome", "10.0.0.2", "Rotterdam, NL", false, 2*time.Minute)
	mk("Desktop / Firefox", "10.0.0.3", "Berlin, DE", false, 3*time.Minute)

	got, err := st.List(ctx, userID, store.ListFilter{DeviceType: "desktop"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = st.List(ctx, userID, store.ListFilter{Location: "nl"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	trusted := true
	got, err = st.List(ctx, userID, store.ListFilter{IsTrusted: &trusted})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = st.List(ctx, userID, store.ListFilter{IPAddress: "10.0.0.3"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Newest first, with paging.
	got, err = st.List(ctx, userID, store.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))

	got, err = st.List(ctx, userID, store.ListFilter{Offset: 2})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = st.List(ctx, userID, store.ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStorage_SweepsExpired(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStorage()

	s := &Session{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, st.Save(ctx, s))

	_, err := st.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheStorage_ListUnsupported(t *testing.T) {
	st := NewCacheStorage(nil)
	_, err := st.List(context.Background(), uuid.New(), store.ListFilter{})
	assert.ErrorIs(t, err, ErrListUnsupported)
}
