package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/finbridge/authcore/internal/store"
)

// Audit receives post-hoc session events. Implementations must never
// block or fail the business operation; errors stay inside the sink.
type Audit interface {
	LogCreated(ctx context.Context, s *Session, details map[string]any)
	LogRevoked(ctx context.Context, id uuid.UUID, details map[string]any)
	LogAccessed(ctx context.Context, id uuid.UUID, details map[string]any)
	LogSuspicious(ctx context.Context, id uuid.UUID, details map[string]any)
}

// NoopAudit discards all events.
type NoopAudit struct{}

func (NoopAudit) LogCreated(context.Context, *Session, map[string]any)     {}
func (NoopAudit) LogRevoked(context.Context, uuid.UUID, map[string]any)    {}
func (NoopAudit) LogAccessed(context.Context, uuid.UUID, map[string]any)   {}
func (NoopAudit) LogSuspicious(context.Context, uuid.UUID, map[string]any) {}

// LoggerAudit writes structured records to the application log.
type LoggerAudit struct {
	log *slog.Logger
}

func NewLoggerAudit(log *slog.Logger) *LoggerAudit {
	return &LoggerAudit{log: log}
}

func (a *LoggerAudit) emit(event string, args ...any) {
	a.log.Info(event, args...)
}

func (a *LoggerAudit) LogCreated(_ context.Context, s *Session, details map[string]any) {
	a.emit("session_created",
		"session_id", s.ID,
		"user_id", s.UserID,
		"device_info", s.DeviceInfo,
		"ip_address", s.IPAddress,
		"details", details,
	)
}

func (a *LoggerAudit) LogRevoked(_ context.Context, id uuid.UUID, details map[string]any) {
	a.emit("session_revoked", "session_id", id, "details", details)
}

func (a *LoggerAudit) LogAccessed(_ context.Context, id uuid.UUID, details map[string]any) {
	a.emit("session_accessed", "session_id", id, "details", details)
}

func (a *LoggerAudit) LogSuspicious(_ context.Context, id uuid.UUID, details map[string]any) {
	a.log.Warn("session_suspicious", "session_id", id, "details", details)
}

// MetricsAudit counts events without recording identities.
type MetricsAudit struct {
	events *prometheus.CounterVec
}

// NewMetricsAudit registers a session-event counter on reg.
func NewMetricsAudit(reg prometheus.Registerer) *MetricsAudit {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authcore",
		Subsystem: "sessions",
		Name:      "events_total",
		Help:      "Session lifecycle events by type.",
	}, []string{"event"})
	reg.MustRegister(events)
	return &MetricsAudit{events: events}
}

func (a *MetricsAudit) LogCreated(context.Context, *Session, map[string]any) {
	a.events.WithLabelValues("created").Inc()
}

func (a *MetricsAudit) LogRevoked(context.Context, uuid.UUID, map[string]any) {
	a.events.WithLabelValues("revoked").Inc()
}

func (a *MetricsAudit) LogAccessed(context.Context, uuid.UUID, map[string]any) {
	a.events.WithLabelValues("accessed").Inc()
}

func (a *MetricsAudit) LogSuspicious(context.Context, uuid.UUID, map[string]any) {
	a.events.WithLabelValues("suspicious").Inc()
}

// DatabaseAudit persists events into the session_audit_log table. Insert
// failures are logged and swallowed.
type DatabaseAudit struct {
	db  store.DBTX
	log *slog.Logger
	now func() time.Time
}

func NewDatabaseAudit(db store.DBTX, log *slog.Logger) *DatabaseAudit {
	return &DatabaseAudit{db: db, log: log, now: time.Now}
}

func (a *DatabaseAudit) insert(ctx context.Context, event string, sessionID uuid.UUID, userID *uuid.UUID, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	_, err = a.db.Exec(ctx, `
		INSERT INTO session_audit_log (id, session_id, user_id, event, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), sessionID, userID, event, payload, a.now().UTC(),
	)
	if err != nil {
		a.log.Error("session_audit_insert_failed", "event", event, "session_id", sessionID, "error", err)
	}
}

func (a *DatabaseAudit) LogCreated(ctx context.Context, s *Session, details map[string]any) {
	a.insert(ctx, "created", s.ID, &s.UserID, details)
}

func (a *DatabaseAudit) LogRevoked(ctx context.Context, id uuid.UUID, details map[string]any) {
	a.insert(ctx, "revoked", id, nil, details)
}

func (a *DatabaseAudit) LogAccessed(ctx context.Context, id uuid.UUID, details map[string]any) {
	a.insert(ctx, "accessed", id, nil, details)
}

func (a *DatabaseAudit) LogSuspicious(ctx context.Context, id uuid.UUID, details map[string]any) {
	a.insert(ctx, "suspicious", id, nil, details)
}
