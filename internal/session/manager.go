package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/finbridge/authcore/internal/cache"
	"github.com/finbridge/authcore/internal/store"
)

// Config selects the manager's composition by name. Unknown names are
// rejected at construction time, not at first use.
type Config struct {
	Backend string // "jwt" or "database"
	Storage string // "database", "cache" or "memory"
	Audit   string // "database", "logger", "noop" or "metrics"
	TTL     time.Duration
}

// Deps carries the collaborators the named parts may need. Only the ones
// the chosen composition uses have to be set.
type Deps struct {
	Tokens     store.RefreshTokenStore
	Cache      cache.Cache
	AuditDB    store.DBTX
	Metrics    prometheus.Registerer
	Geolocator Geolocator
	Logger     *slog.Logger
}

// Manager drives the session lifecycle: backend create, enrichment,
// storage, validation, revocation and audit.
type Manager struct {
	backend   Backend
	storage   Storage
	audit     Audit
	enrichers []Enricher
	log       *slog.Logger
}

// NewManager wires a manager from named parts.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	var backend Backend
	switch cfg.Backend {
	case "", "jwt":
		backend = NewJWTBackend(cfg.TTL)
	case "database":
		if deps.Tokens == nil {
			return nil, fmt.Errorf("database backend requires a token store")
		}
		backend = NewDatabaseBackend(deps.Tokens, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}

	var storage Storage
	switch cfg.Storage {
	case "", "database":
		if deps.Tokens == nil {
			return nil, fmt.Errorf("database storage requires a token store")
		}
		storage = NewDatabaseStorage(deps.Tokens)
	case "cache":
		if deps.Cache == nil {
			return nil, fmt.Errorf("cache storage requires a cache")
		}
		storage = NewCacheStorage(deps.Cache)
	case "memory":
		storage = NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unknown session storage %q", cfg.Storage)
	}

	var audit Audit
	switch cfg.Audit {
	case "", "logger":
		audit = NewLoggerAudit(log)
	case "database":
		if deps.AuditDB == nil {
			return nil, fmt.Errorf("database audit requires a database handle")
		}
		audit = NewDatabaseAudit(deps.AuditDB, log)
	case "metrics":
		reg := deps.Metrics
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		audit = NewMetricsAudit(reg)
	case "noop":
		audit = NoopAudit{}
	default:
		return nil, fmt.Errorf("unknown session audit %q", cfg.Audit)
	}

	geo := deps.Geolocator
	if geo == nil {
		geo = StubGeolocator{}
	}

	return &Manager{
		backend: backend,
		storage: storage,
		audit:   audit,
		enrichers: []Enricher{
			UserAgentEnricher{},
			NewGeoEnricher(geo),
		},
		log: log,
	}, nil
}

// Storage exposes the configured storage for callers that list or read
// sessions directly.
func (m *Manager) Storage() Storage { return m.storage }

// safeAudit runs fn and guarantees it cannot take down the request.
func (m *Manager) safeAudit(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session_audit_panic", "panic", r)
		}
	}()
	fn()
}

// Create builds, enriches, persists and audits a new session. Options run
// after enrichment and before save, so callers can bind fields the backend
// does not know about (the refresh secret's hash, version snapshots).
func (m *Manager) Create(ctx context.Context, userID uuid.UUID, deviceInfo, ip, userAgent string, meta map[string]string, opts ...func(*Session)) (*Session, error) {
	s, err := m.backend.Create(ctx, userID, deviceInfo, ip, userAgent, meta)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	for _, e := range m.enrichers {
		enriched, err := e.Enrich(ctx, s)
		if err != nil {
			m.log.Debug("session_enrich_failed", "session_id", s.ID, "error", err)
			continue
		}
		s = enriched
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := m.storage.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	m.safeAudit(func() {
		m.audit.LogCreated(ctx, s, map[string]any{"ip_address": ip, "device_info": s.DeviceInfo})
	})
	return s, nil
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return m.storage.Get(ctx, id)
}

// Validate loads the session and applies the backend's validity rules.
func (m *Manager) Validate(ctx context.Context, id uuid.UUID) bool {
	s, err := m.storage.Get(ctx, id)
	if err != nil {
		return false
	}
	ok := m.backend.Validate(ctx, s)
	if ok {
		m.safeAudit(func() {
			m.audit.LogAccessed(ctx, id, nil)
		})
	}
	return ok
}

// List returns the user's sessions matching the filter.
func (m *Manager) List(ctx context.Context, userID uuid.UUID, f store.ListFilter) ([]*Session, error) {
	return m.storage.List(ctx, userID, f)
}

// Revoke ends a session. A missing session returns false without audit.
func (m *Manager) Revoke(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	if _, err := m.storage.Get(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	ok, err := m.storage.Revoke(ctx, id, reason)
	if err != nil || !ok {
		return false, err
	}

	m.safeAudit(func() {
		m.audit.LogRevoked(ctx, id, map[string]any{"reason": reason})
	})
	return true, nil
}

// RevokeAllForUser revokes every active session of the user except the
// optional exception. Returns the count actually revoked.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason string, except *uuid.UUID) (int, error) {
	sessions, err := m.storage.List(ctx, userID, store.ListFilter{ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	revoked := 0
	for _, s := range sessions {
		if except != nil && s.ID == *except {
			continue
		}
		ok, err := m.storage.Revoke(ctx, s.ID, reason)
		if err != nil {
			m.log.Error("session_revoke_failed", "session_id", s.ID, "error", err)
			continue
		}
		if ok {
			revoked++
			id := s.ID
			m.safeAudit(func() {
				m.audit.LogRevoked(ctx, id, map[string]any{"reason": reason, "bulk": true})
			})
		}
	}
	return revoked, nil
}
