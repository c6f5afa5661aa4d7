package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/store"
)

// MemoryStorage keeps sessions in a process-local map. Expired entries are
// swept opportunistically on every operation. Intended for tests and
// development.
type MemoryStorage struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[uuid.UUID]*Session),
		now:      time.Now,
	}
}

// sweep drops expired entries. Caller holds the lock.
func (m *MemoryStorage) sweep() {
	now := m.now()
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}

func (m *MemoryStorage) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.sessions[s.ID] = clone(s)
	return nil
}

func (m *MemoryStorage) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *MemoryStorage) List(_ context.Context, userID uuid.UUID, f store.ListFilter) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()

	var out []*Session
	for _, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		if !matchesFilter(s, f) {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchesFilter(s *Session, f store.ListFilter) bool {
	if f.ActiveOnly && s.IsRevoked {
		return false
	}
	if f.DeviceType != "" && !strings.Contains(strings.ToLower(s.DeviceInfo), strings.ToLower(f.DeviceType)) {
		return false
	}
	if f.IPAddress != "" && s.IPAddress != f.IPAddress {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(s.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.CreatedAfter != nil && !s.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !s.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.IsTrusted != nil && s.IsTrusted != *f.IsTrusted {
		return false
	}
	return true
}

func (m *MemoryStorage) Revoke(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	s, ok := m.sessions[id]
	if !ok || s.IsRevoked {
		return false, nil
	}
	now := m.now().UTC()
	s.IsRevoked = true
	s.RevokedAt = &now
	s.RevokedReason = reason
	return true, nil
}

func (m *MemoryStorage) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}
