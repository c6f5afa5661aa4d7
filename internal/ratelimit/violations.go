package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationSink records rejected requests for abuse analysis. Recording
// is fire-and-forget; it must never slow down or fail the response path.
type ViolationSink interface {
	Record(endpoint, identifier string)
}

// NoopSink discards violations.
type NoopSink struct{}

func (NoopSink) Record(string, string) {}

// LogSink writes violations to the application log.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Record(endpoint, identifier string) {
	s.Log.Warn("rate_limit_violation", "endpoint", endpoint, "identifier", identifier)
}

// DatabaseSink persists violations. Each insert runs asynchronously on a
// connection acquired from the pool for that insert alone, so a failed
// audit cannot poison the request that triggered it.
type DatabaseSink struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewDatabaseSink(pool *pgxpool.Pool, log *slog.Logger) *DatabaseSink {
	return &DatabaseSink{pool: pool, log: log}
}

func (s *DatabaseSink) Record(endpoint, identifier string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := s.pool.Exec(ctx, `
			INSERT INTO rate_limit_violations (id, endpoint, identifier, created_at)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), endpoint, identifier, time.Now().UTC(),
		)
		if err != nil {
			s.log.Error("rate_limit_violation_insert_failed", "endpoint", endpoint, "error", err)
		}
	}()
}
