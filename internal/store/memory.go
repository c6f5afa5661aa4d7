package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory implements Store with process-local maps. It backs the test suite
// and local development; a single mutex makes every operation (including
// WithTx bodies) linearisable, which mirrors the transaction guarantees the
// services rely on.
type Memory struct {
	mu sync.Mutex

	users       map[uuid.UUID]*User
	refresh     map[uuid.UUID]*RefreshToken
	credentials map[uuid.UUID]*CredentialToken
	config      *SecurityConfig
}

// NewMemory creates an empty in-memory store with the security config
// bootstrapped at version 1, matching what migrations do for PostgreSQL.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[uuid.UUID]*User),
		refresh:     make(map[uuid.UUID]*RefreshToken),
		credentials: make(map[uuid.UUID]*CredentialToken),
		config: &SecurityConfig{
			GlobalMinTokenVersion: 1,
			UpdatedAt:             time.Now().UTC(),
			UpdatedBy:             "bootstrap",
			Reason:                "initial version",
		},
	}
}

func (m *Memory) Users() UserStore                       { return (*memUsers)(m) }
func (m *Memory) RefreshTokens() RefreshTokenStore       { return (*memRefresh)(m) }
func (m *Memory) CredentialTokens() CredentialTokenStore { return (*memCredentials)(m) }
func (m *Memory) SecurityConfig() SecurityConfigStore    { return (*memConfig)(m) }

// WithTx runs fn directly; the shared mutex already serialises writers.
// Rollback-on-error is not simulated, which the tests account for.
func (m *Memory) WithTx(_ context.Context, fn func(Store) error) error {
	return fn(m)
}

func cloneUser(u *User) *User {
	c := *u
	return &c
}

func cloneRefresh(t *RefreshToken) *RefreshToken {
	c := *t
	return &c
}

// --- users ---

type memUsers Memory

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) && existing.DeletedAt == nil {
			return ErrDuplicate
		}
	}
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) && u.DeletedAt == nil {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) mutate(id uuid.UUID, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	return m.mutate(id, func(u *User) { u.PasswordHash = &hash })
}

func (m *memUsers) UpdateProfile(_ context.Context, id uuid.UUID, fullName string) error {
	return m.mutate(id, func(u *User) { u.FullName = fullName })
}

func (m *memUsers) MarkEmailVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.mutate(id, func(u *User) {
		u.EmailVerified = true
		utc := at.UTC()
		u.EmailVerifiedAt = &utc
	})
}

func (m *memUsers) RecordLoginSuccess(_ context.Context, id uuid.UUID, at time.Time, ip string) error {
	return m.mutate(id, func(u *User) {
		u.FailedLoginAttempts = 0
		u.AccountLockedUntil = nil
		utc := at.UTC()
		u.LastLoginAt = &utc
		u.LastLoginIP = &ip
	})
}

func (m *memUsers) RecordLoginFailure(_ context.Context, id uuid.UUID, lockUntil *time.Time) (int, error) {
	var attempts int
	err := m.mutate(id, func(u *User) {
		u.FailedLoginAttempts++
		attempts = u.FailedLoginAttempts
		if lockUntil != nil {
			utc := lockUntil.UTC()
			u.AccountLockedUntil = &utc
		}
	})
	return attempts, err
}

func (m *memUsers) SetMinTokenVersion(_ context.Context, id uuid.UUID, version int) error {
	return m.mutate(id, func(u *User) { u.MinTokenVersion = version })
}

func (m *memUsers) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return m.mutate(id, func(u *User) { u.IsActive = active })
}

// --- refresh tokens ---

type memRefresh Memory

func (m *memRefresh) Create(_ context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.refresh[t.ID]; exists {
		return ErrDuplicate
	}
	m.refresh[t.ID] = cloneRefresh(t)
	return nil
}

func (m *memRefresh) GetByID(_ context.Context, id uuid.UUID) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRefresh(t), nil
}

func (m *memRefresh) ListActive(_ context.Context) ([]*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*RefreshToken
	for _, t := range m.refresh {
		if !t.IsRevoked && !t.Expired(now) {
			out = append(out, cloneRefresh(t))
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (m *memRefresh) ListByUser(_ context.Context, userID uuid.UUID, f ListFilter) ([]*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()

	var out []*RefreshToken
	for _, t := range m.refresh {
		if t.UserID != userID {
			continue
		}
		if f.ActiveOnly && (t.IsRevoked || t.Expired(now)) {
			continue
		}
		if f.DeviceType != "" && !strings.Contains(strings.ToLower(t.DeviceInfo), strings.ToLower(f.DeviceType)) {
			continue
		}
		if f.IPAddress != "" && (t.IPAddress == nil || *t.IPAddress != f.IPAddress) {
			continue
		}
		if f.Location != "" && (t.Location == nil || !strings.Contains(strings.ToLower(*t.Location), strings.ToLower(f.Location))) {
			continue
		}
		if f.CreatedAfter != nil && t.CreatedAt.Before(*f.CreatedAfter) {
			continue
		}
		if f.CreatedBefore != nil && t.CreatedAt.After(*f.CreatedBefore) {
			continue
		}
		if f.IsTrusted != nil && t.IsTrustedDevice != *f.IsTrusted {
			continue
		}
		out = append(out, cloneRefresh(t))
	}

	sortByCreatedDesc(out)
	return paginate(out, f.Offset, f.Limit), nil
}

func sortByCreatedDesc(tokens []*RefreshToken) {
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
}

func paginate(tokens []*RefreshToken, offset, limit int) []*RefreshToken {
	if offset >= len(tokens) {
		return nil
	}
	tokens = tokens[offset:]
	if limit > 0 && limit < len(tokens) {
		tokens = tokens[:limit]
	}
	return tokens
}

func (m *memRefresh) Revoke(_ context.Context, id uuid.UUID, at time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[id]
	if !ok || t.IsRevoked {
		return false, nil
	}
	revoke(t, at, reason)
	return true, nil
}

func revoke(t *RefreshToken, at time.Time, reason string) {
	t.IsRevoked = true
	utc := at.UTC()
	t.RevokedAt = &utc
	t.RevokedReason = &reason
}

func (m *memRefresh) RevokeAllForUser(_ context.Context, userID uuid.UUID, at time.Time, reason string, except *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	count := 0
	for _, t := range m.refresh {
		if t.UserID != userID || t.IsRevoked || t.Expired(now) {
			continue
		}
		if except != nil && t.ID == *except {
			continue
		}
		revoke(t, at, reason)
		count++
	}
	return count, nil
}

func (m *memRefresh) MaxTokenVersion(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, t := range m.refresh {
		if t.UserID == userID && t.TokenVersion > max {
			max = t.TokenVersion
		}
	}
	return max, nil
}

func (m *memRefresh) RevokeBelowUserVersion(_ context.Context, userID uuid.UUID, version int, at time.Time, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.refresh {
		if t.UserID == userID && t.TokenVersion < version && !t.IsRevoked {
			revoke(t, at, reason)
			count++
		}
	}
	return count, nil
}

func (m *memRefresh) StatsBelowGlobalVersion(_ context.Context, version int) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := 0
	users := make(map[uuid.UUID]struct{})
	for _, t := range m.refresh {
		if t.GlobalVersion < version && !t.IsRevoked {
			tokens++
			users[t.UserID] = struct{}{}
		}
	}
	return tokens, len(users), nil
}

func (m *memRefresh) RevokeBelowGlobalVersion(_ context.Context, version int, revokedAt time.Time, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.refresh {
		if t.GlobalVersion < version && !t.IsRevoked {
			revoke(t, revokedAt, reason)
			count++
		}
	}
	return count, nil
}

func (m *memRefresh) TouchLastUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[id]
	if !ok {
		return ErrNotFound
	}
	utc := at.UTC()
	t.LastUsedAt = &utc
	return nil
}

func (m *memRefresh) UpdateLocation(_ context.Context, id uuid.UUID, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[id]
	if !ok {
		return ErrNotFound
	}
	t.Location = &location
	return nil
}

// --- credential tokens ---

type memCredentials Memory

func (m *memCredentials) Create(_ context.Context, t *CredentialToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.credentials[t.ID] = &c
	return nil
}

func (m *memCredentials) ListUnused(_ context.Context, kind string) ([]*CredentialToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CredentialToken
	for _, t := range m.credentials {
		if t.Kind == kind && t.UsedAt == nil {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memCredentials) MarkUsed(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.credentials[id]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	utc := at.UTC()
	t.UsedAt = &utc
	return true, nil
}

// --- security config ---

type memConfig Memory

func (m *memConfig) Get(_ context.Context) (*SecurityConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return nil, ErrConfigMissing
	}
	c := *m.config
	return &c, nil
}

func (m *memConfig) Update(_ context.Context, version int, updatedBy, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return ErrConfigMissing
	}
	m.config.GlobalMinTokenVersion = version
	m.config.UpdatedBy = updatedBy
	m.config.Reason = reason
	m.config.UpdatedAt = at.UTC()
	return nil
}
