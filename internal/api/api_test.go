package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbridge/authcore/internal/api/middleware"
	"github.com/finbridge/authcore/internal/auth"
	"github.com/finbridge/authcore/internal/cache"
	"github.com/finbridge/authcore/internal/password"
	"github.com/finbridge/authcore/internal/ratelimit"
	"github.com/finbridge/authcore/internal/session"
	"github.com/finbridge/authcore/internal/store"
	"github.com/finbridge/authcore/internal/token"
)

// capturingNotifier records outbound tokens so HTTP flows can be driven
// end to end without a mail server.
type capturingNotifier struct {
	verificationTokens []string
	resetTokens        []string
}

func (n *capturingNotifier) SendVerification(_ context.Context, _, token string) {
	n.verificationTokens = append(n.verificationTokens, token)
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, _, token string) {
	n.resetTokens = append(n.resetTokens, token)
}

func (n *capturingNotifier) SendWelcome(context.Context, string)         {}
func (n *capturingNotifier) SendPasswordChanged(context.Context, string) {}

type apiFixture struct {
	router   http.Handler
	notifier *capturingNotifier
	store    store.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	st := store.NewMemory()
	hasher := password.NewBcryptHasher(4)
	tokens := token.NewService([]byte("test-secret"), 30*time.Minute)
	blacklist := cache.NewBlacklist(cache.NewMemory())

	mgr, err := session.NewManager(
		session.Config{Backend: "jwt", Storage: "database", Audit: "noop", TTL: 30 * 24 * time.Hour},
		session.Deps{Tokens: st.RefreshTokens(), Logger: slog.Default()},
	)
	require.NoError(t, err)

	notifier := &capturingNotifier{}
	svc := auth.NewService(
		st, hasher, tokens, mgr, blacklist,
		notifier, nil,
		auth.Config{},
		slog.Default(),
	)

	limiter := ratelimit.New(DefaultRateRules(), ratelimit.NewMemoryStore(), ratelimit.NoopSink{}, slog.Default())
	identity := middleware.NewIdentity(tokens, st.Users(), st.RefreshTokens(), blacklist)

	router := NewRouter(RouterConfig{
		Handler:  NewHandler(svc, false, slog.Default()),
		Health:   NewHealthHandler(nil, nil),
		Identity: identity,
		Limiter:  limiter,
	})

	return &apiFixture{router: router, notifier: notifier, store: st}
}

// do runs one request through the router. A non-empty bearer sets the
// Authorization header; remoteAddr defaults to a fixed test address.
func (f *apiFixture) do(t *testing.T, method, path string, body any, bearer, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if remoteAddr == "" {
		remoteAddr = "203.0.113.7:40000"
	}
	req.RemoteAddr = remoteAddr

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// registerAndLogin walks the full onboarding over HTTP and returns the
// token envelope.
func (f *apiFixture) registerAndLogin(t *testing.T, email, pw string) map[string]any {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": pw, "full_name": "Test User",
	}, "", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NotEmpty(t, f.notifier.verificationTokens)
	verifyToken := f.notifier.verificationTokens[len(f.notifier.verificationTokens)-1]
	rec = f.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": verifyToken}, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": pw}, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

func TestRegisterLoginMeOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	envelope := f.registerAndLogin(t, "alice@example.com", "P@ssw0rd1")
	access, _ := envelope["access_token"].(string)
	require.NotEmpty(t, access)
	assert.Equal(t, "bearer", envelope["token_type"])
	assert.Equal(t, float64(1800), envelope["expires_in"])

	rec := f.do(t, http.MethodGet, "/auth/me", nil, access, "")
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody(t, rec)
	assert.Equal(t, "alice@example.com", me["email"])
	assert.Equal(t, true, me["email_verified"])
}

func TestRefreshAndLogoutOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	envelope := f.registerAndLogin(t, "bob@example.com", "P@ssw0rd1")
	refresh, _ := envelope["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	rec := f.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["access_token"])
	// Refresh tokens are long-lived and not rotated on use.
	assert.Equal(t, refresh, body["refresh_token"])

	rec = f.do(t, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": refresh}, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logout is idempotent and never confirms token validity.
	rec = f.do(t, http.MethodPost, "/auth/logout", map[string]string{"refresh_token": "no-such-token"}, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "not-an-email", "password": "P@ssw0rd1",
	}, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown fields are rejected outright.
	rec = f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "a@example.com", "password": "x", "extra": "nope",
	}, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	f := newAPIFixture(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/auth/sessions"},
		{http.MethodPost, "/token-rotation/global"},
		{http.MethodGet, "/token-rotation/security-config"},
	} {
		rec := f.do(t, tc.method, tc.path, nil, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec := f.do(t, http.MethodGet, "/auth/me", nil, "garbage-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionManagementOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	first := f.registerAndLogin(t, "carol@example.com", "P@ssw0rd1")
	firstAccess := first["access_token"].(string)

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "carol@example.com", "password": "P@ssw0rd1",
	}, "", "198.51.100.9:40000")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody(t, rec)
	secondAccess := second["access_token"].(string)

	rec = f.do(t, http.MethodGet, "/auth/sessions", nil, secondAccess, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listing := decodeBody(t, rec)
	sessions := listing["sessions"].([]any)
	require.Len(t, sessions, 2)
	assert.Equal(t, float64(2), listing["total_count"])

	var currentID, otherID string
	for _, raw := range sessions {
		s := raw.(map[string]any)
		if s["is_current"] == true {
			currentID = s["id"].(string)
		} else {
			otherID = s["id"].(string)
		}
	}
	require.NotEmpty(t, currentID)
	require.NotEmpty(t, otherID)

	// The current session cannot be revoked through this endpoint.
	rec = f.do(t, http.MethodDelete, "/auth/sessions/"+currentID, nil, secondAccess, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/auth/sessions/not-a-uuid", nil, secondAccess, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/auth/sessions/"+otherID, nil, secondAccess, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The revoked session's access token now fails the blacklist check.
	rec = f.do(t, http.MethodGet, "/auth/me", nil, firstAccess, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The surviving session still works.
	rec = f.do(t, http.MethodGet, "/auth/me", nil, secondAccess, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRevokeAllSessionsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	envelope := f.registerAndLogin(t, "dave@example.com", "P@ssw0rd1")
	access := envelope["access_token"].(string)

	rec := f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "dave@example.com", "password": "P@ssw0rd1",
	}, "", "198.51.100.9:40000")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/auth/sessions/all/revoke", nil, access, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["revoked_count"])

	rec = f.do(t, http.MethodGet, "/auth/me", nil, access, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimitPerIP(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]string{"email": "nobody@example.com", "password": "wrong"}
	addr := "10.0.0.5:51000"

	// Burst capacity of five; every attempt burns a token regardless of
	// whether the credentials were right.
	for i := 0; i < 5; i++ {
		rec := f.do(t, http.MethodPost, "/auth/login", body, "", addr)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := f.do(t, http.MethodPost, "/auth/login", body, "", addr)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 60)

	reject := decodeBody(t, rec)
	assert.Equal(t, "Rate limit exceeded", reject["error"])
	assert.Equal(t, "POST /auth/login", reject["endpoint"])

	// Another address has its own bucket.
	rec = f.do(t, http.MethodPost, "/auth/login", body, "", "10.0.0.6:51000")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	envelope := f.registerAndLogin(t, "erin@example.com", "P@ssw0rd1")
	refresh := envelope["refresh_token"].(string)

	// The response is identical whether or not the address is registered.
	recKnown := f.do(t, http.MethodPost, "/auth/password-resets", map[string]string{"email": "erin@example.com"}, "", "")
	recUnknown := f.do(t, http.MethodPost, "/auth/password-resets", map[string]string{"email": "ghost@example.com"}, "", "")
	require.Equal(t, http.StatusAccepted, recKnown.Code)
	require.Equal(t, http.StatusAccepted, recUnknown.Code)
	assert.Equal(t, recKnown.Body.String(), recUnknown.Body.String())

	require.Len(t, f.notifier.resetTokens, 1)
	resetToken := f.notifier.resetTokens[0]

	rec := f.do(t, http.MethodGet, "/auth/password-resets/"+resetToken, nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	probe := decodeBody(t, rec)
	assert.Equal(t, true, probe["valid"])

	rec = f.do(t, http.MethodPatch, "/auth/password-resets/"+resetToken,
		map[string]string{"new_password": "N3w!Passw0rd"}, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The reset cascaded: the old refresh token is dead.
	rec = f.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The token is single use.
	rec = f.do(t, http.MethodPatch, "/auth/password-resets/"+resetToken,
		map[string]string{"new_password": "An0ther!Pass"}, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "erin@example.com", "password": "N3w!Passw0rd",
	}, "", "198.51.100.20:40000")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRotationEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	envelope := f.registerAndLogin(t, "frank@example.com", "P@ssw0rd1")
	access := envelope["access_token"].(string)
	user := envelope["user"].(map[string]any)
	userID := user["id"].(string)

	// Rotating someone else's tokens is forbidden.
	rec := f.do(t, http.MethodPost, "/token-rotation/users/11111111-1111-1111-1111-111111111111",
		map[string]string{"reason": "suspicious activity"}, access, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/token-rotation/users/%s", userID),
		map[string]string{"reason": "lost my laptop"}, access, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody(t, rec)
	assert.Equal(t, float64(1), result["old_version"])
	assert.Equal(t, float64(2), result["new_version"])

	// Self-rotation killed the session, so a fresh login is needed.
	rec = f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "frank@example.com", "password": "P@ssw0rd1",
	}, "", "198.51.100.30:40000")
	require.Equal(t, http.StatusOK, rec.Code)
	access = decodeBody(t, rec)["access_token"].(string)

	// Global rotation demands a substantive reason.
	rec = f.do(t, http.MethodPost, "/token-rotation/global",
		map[string]any{"reason": "oops", "grace_period_minutes": 5}, access, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/token-rotation/global",
		map[string]any{"reason": "signing key suspected leaked via CI logs", "grace_period_minutes": 5}, access, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	global := decodeBody(t, rec)
	assert.Equal(t, float64(1), global["old_version"])
	assert.Equal(t, float64(2), global["new_version"])
	assert.Equal(t, "frank@example.com", global["initiator"])

	// Grace periods are advisory: the rotation already ended every session,
	// including the initiator's.
	rec = f.do(t, http.MethodGet, "/auth/me", nil, access, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "frank@example.com", "password": "P@ssw0rd1",
	}, "", "198.51.100.31:40000")
	require.Equal(t, http.StatusOK, rec.Code)
	access = decodeBody(t, rec)["access_token"].(string)

	rec = f.do(t, http.MethodGet, "/token-rotation/security-config", nil, access, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeBody(t, rec)
	assert.Equal(t, float64(2), cfg["global_min_token_version"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
}
