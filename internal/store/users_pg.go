package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, password_hash, full_name, email_verified, email_verified_at,
	failed_login_attempts, account_locked_until, last_login_at, last_login_ip,
	min_token_version, is_active, created_at, updated_at, deleted_at`

type pgUsers struct {
	db DBTX
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.EmailVerified, &u.EmailVerifiedAt,
		&u.FailedLoginAttempts, &u.AccountLockedUntil, &u.LastLoginAt, &u.LastLoginIP,
		&u.MinTokenVersion, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	normalizeUserTimes(&u)
	return &u, nil
}

// Persisted timestamps are timezone-aware UTC; anything naive coming back
// from the driver is coerced before business logic sees it.
func normalizeUserTimes(u *User) {
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	for _, t := range []**time.Time{&u.EmailVerifiedAt, &u.AccountLockedUntil, &u.LastLoginAt, &u.DeletedAt} {
		if *t != nil {
			utc := (**t).UTC()
			*t = &utc
		}
	}
}

func (s *pgUsers) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, email_verified,
			failed_login_attempts, min_token_version, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.EmailVerified,
		u.FailedLoginAttempts, u.MinTokenVersion, u.IsActive, u.CreatedAt.UTC(),
	)
	return translateError(err)
}

func (s *pgUsers) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUser(row)
}

func (s *pgUsers) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) AND deleted_at IS NULL`, email)
	return scanUser(row)
}

func (s *pgUsers) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, hash)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUsers) UpdateProfile(ctx context.Context, id uuid.UUID, fullName string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET full_name = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, fullName)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUsers) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET email_verified = TRUE, email_verified_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, at.UTC())
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUsers) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time, ip string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET failed_login_attempts = 0, account_locked_until = NULL,
			last_login_at = $2, last_login_ip = $3, updated_at = now()
		WHERE id = $1`, id, at.UTC(), ip)
	return translateError(err)
}

func (s *pgUsers) RecordLoginFailure(ctx context.Context, id uuid.UUID, lockUntil *time.Time) (int, error) {
	var attempts int
	err := s.db.QueryRow(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1,
			account_locked_until = COALESCE($2, account_locked_until), updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts`, id, lockUntil).Scan(&attempts)
	if err != nil {
		return 0, translateError(err)
	}
	return attempts, nil
}

func (s *pgUsers) SetMinTokenVersion(ctx context.Context, id uuid.UUID, version int) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET min_token_version = $2, updated_at = now() WHERE id = $1`, id, version)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUsers) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
