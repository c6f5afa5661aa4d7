package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalEndpoint(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"GET", "/auth/sessions", "GET /auth/sessions"},
		{"DELETE", "/auth/sessions/3fa85f64-5717-4562-b3fc-2c963f66afa6", "DELETE /auth/sessions/{id}"},
		{"POST", "/token-rotation/users/3fa85f64-5717-4562-b3fc-2c963f66afa6", "POST /token-rotation/users/{id}"},
		{"GET", "/auth/password-resets/aGVsbG8td29ybGQtdGhpcy1pcy1hLXRva2Vu", "GET /auth/password-resets/{token}"},
		{"POST", "/auth/login", "POST /auth/login"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalEndpoint(tc.method, tc.path), tc.path)
	}
}

func TestRule_Advisories(t *testing.T) {
	r := Rule{MaxTokens: 10, RefillPerMinute: 1}
	assert.Equal(t, 10*time.Minute, r.ResetAfter())
	assert.Equal(t, 60*time.Second, r.RetryAfter())

	r = Rule{MaxTokens: 5, RefillPerMinute: 10}
	assert.Equal(t, 30*time.Second, r.ResetAfter())
	assert.Equal(t, 6*time.Second, r.RetryAfter())
}

func TestMemoryStore_BurstThenReject(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rule := Rule{MaxTokens: 3, RefillPerMinute: 1, Scope: ScopePerIP}

	for i := 0; i < 3; i++ {
		d, err := s.Take(ctx, "k", rule)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d within burst", i)
	}

	d, err := s.Take(ctx, "k", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 60*time.Second, d.RetryAfter)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rule := Rule{MaxTokens: 1, RefillPerMinute: 1, Scope: ScopePerIP}

	d, err := s.Take(ctx, "a", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = s.Take(ctx, "a", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = s.Take(ctx, "b", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStore_BurstThenReject(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	rule := Rule{MaxTokens: 2, RefillPerMinute: 1, Scope: ScopePerUser}

	d, err := s.Take(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, err = s.Take(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = s.Take(ctx, "k", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 60*time.Second, d.RetryAfter)
}

func TestRedisStore_Refills(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	rule := Rule{MaxTokens: 1, RefillPerMinute: 60, Scope: ScopePerIP}

	base := time.Now()
	s.now = func() time.Time { return base }

	d, err := s.Take(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = s.Take(ctx, "k", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// One token per second; advance two seconds.
	s.now = func() time.Time { return base.Add(2 * time.Second) }
	d, err = s.Take(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

type failingStore struct{}

func (failingStore) Take(context.Context, string, Rule) (Decision, error) {
	return Decision{}, errors.New("store down")
}

type countingSink struct{ n int }

func (s *countingSink) Record(string, string) { s.n++ }

func TestLimiter_UnconfiguredEndpointPassesThrough(t *testing.T) {
	l := New(Rules{}, NewMemoryStore(), nil, slog.Default())
	res := l.Check(context.Background(), "GET", "/anything", "ip:1.2.3.4")
	assert.False(t, res.Limited)
}

func TestLimiter_FailOpen(t *testing.T) {
	rules := Rules{"POST /auth/login": {MaxTokens: 5, RefillPerMinute: 1, Scope: ScopePerIP}}
	l := New(rules, failingStore{}, nil, slog.Default())

	res := l.Check(context.Background(), "POST", "/auth/login", "ip:1.2.3.4")
	assert.True(t, res.Limited)
	assert.True(t, res.Decision.Allowed)
}

func TestLimiter_RecordsViolations(t *testing.T) {
	rules := Rules{"POST /auth/login": {MaxTokens: 1, RefillPerMinute: 1, Scope: ScopePerIP}}
	sink := &countingSink{}
	l := New(rules, NewMemoryStore(), sink, slog.Default())

	ctx := context.Background()
	res := l.Check(ctx, "POST", "/auth/login", "ip:1.2.3.4")
	assert.True(t, res.Decision.Allowed)
	assert.Equal(t, 0, sink.n)

	res = l.Check(ctx, "POST", "/auth/login", "ip:1.2.3.4")
	assert.False(t, res.Decision.Allowed)
	assert.Equal(t, 1, sink.n)
}

func TestLimiter_ScopeSeparatesBuckets(t *testing.T) {
	rules := Rules{
		"GET /auth/sessions": {MaxTokens: 1, RefillPerMinute: 1, Scope: ScopePerUser},
	}
	l := New(rules, NewMemoryStore(), nil, slog.Default())
	ctx := context.Background()

	res := l.Check(ctx, "GET", "/auth/sessions", "user:alice")
	assert.True(t, res.Decision.Allowed)
	res = l.Check(ctx, "GET", "/auth/sessions", "user:alice")
	assert.False(t, res.Decision.Allowed)

	// A different identifier has its own bucket.
	res = l.Check(ctx, "GET", "/auth/sessions", "user:bob")
	assert.True(t, res.Decision.Allowed)
}
