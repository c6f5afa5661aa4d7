package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every query runs
// unchanged inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresPool creates and pings a connection pool.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Postgres implements Store over pgx.
type Postgres struct {
	pool *pgxpool.Pool
	db   DBTX

	users       *pgUsers
	refresh     *pgRefreshTokens
	credentials *pgCredentialTokens
	secconfig   *pgSecurityConfig
}

// NewPostgres wraps a pool in a Store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return newPostgres(pool, pool)
}

func newPostgres(pool *pgxpool.Pool, db DBTX) *Postgres {
	p := &Postgres{pool: pool, db: db}
	p.users = &pgUsers{db: db}
	p.refresh = &pgRefreshTokens{db: db}
	p.credentials = &pgCredentialTokens{db: db}
	p.secconfig = &pgSecurityConfig{db: db}
	return p
}

func (p *Postgres) Users() UserStore                       { return p.users }
func (p *Postgres) RefreshTokens() RefreshTokenStore       { return p.refresh }
func (p *Postgres) CredentialTokens() CredentialTokenStore { return p.credentials }
func (p *Postgres) SecurityConfig() SecurityConfigStore    { return p.secconfig }

// WithTx runs fn against a Store bound to one transaction. Rollback is safe
// to defer even after Commit.
func (p *Postgres) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newPostgres(p.pool, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// translateError maps driver errors onto the store sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
