package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const refreshColumns = `id, user_id, token_hash, expires_at, is_revoked, revoked_at, revoked_reason,
	device_info, ip_address, user_agent, location, fingerprint, is_trusted_device,
	last_used_at, token_version, global_version_at_issuance, created_at`

type pgRefreshTokens struct {
	db DBTX
}

func scanRefreshToken(row pgx.Row) (*RefreshToken, error) {
	var t RefreshToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.IsRevoked, &t.RevokedAt, &t.RevokedReason,
		&t.DeviceInfo, &t.IPAddress, &t.UserAgent, &t.Location, &t.Fingerprint, &t.IsTrustedDevice,
		&t.LastUsedAt, &t.TokenVersion, &t.GlobalVersion, &t.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	for _, ts := range []**time.Time{&t.RevokedAt, &t.LastUsedAt} {
		if *ts != nil {
			utc := (**ts).UTC()
			*ts = &utc
		}
	}
	return &t, nil
}

func collectRefreshTokens(rows pgx.Rows) ([]*RefreshToken, error) {
	defer rows.Close()
	var out []*RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, translateError(rows.Err())
}

func (s *pgRefreshTokens) Create(ctx context.Context, t *RefreshToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_revoked,
			device_info, ip_address, user_agent, location, fingerprint, is_trusted_device,
			token_version, global_version_at_issuance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt.UTC(), t.IsRevoked,
		t.DeviceInfo, t.IPAddress, t.UserAgent, t.Location, t.Fingerprint, t.IsTrustedDevice,
		t.TokenVersion, t.GlobalVersion, t.CreatedAt.UTC(),
	)
	return translateError(err)
}

func (s *pgRefreshTokens) GetByID(ctx context.Context, id uuid.UUID) (*RefreshToken, error) {
	row := s.db.QueryRow(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = $1`, id)
	return scanRefreshToken(row)
}

func (s *pgRefreshTokens) ListActive(ctx context.Context) ([]*RefreshToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+refreshColumns+` FROM refresh_tokens
		WHERE is_revoked = FALSE AND expires_at > now()
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, translateError(err)
	}
	return collectRefreshTokens(rows)
}

func (s *pgRefreshTokens) ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter) ([]*RefreshToken, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE user_id = $1`)
	args := []any{userID}

	add := func(clause string, val any) {
		args = append(args, val)
		fmt.Fprintf(&sb, " AND "+clause, len(args))
	}

	if f.ActiveOnly {
		sb.WriteString(" AND is_revoked = FALSE AND expires_at > now()")
	}
	if f.DeviceType != "" {
		add("device_info ILIKE '%%' || $%d || '%%'", f.DeviceType)
	}
	if f.IPAddress != "" {
		add("ip_address = $%d", f.IPAddress)
	}
	if f.Location != "" {
		add("location ILIKE '%%' || $%d || '%%'", f.Location)
	}
	if f.CreatedAfter != nil {
		add("created_at >= $%d", f.CreatedAfter.UTC())
	}
	if f.CreatedBefore != nil {
		add("created_at <= $%d", f.CreatedBefore.UTC())
	}
	if f.IsTrusted != nil {
		add("is_trusted_device = $%d", *f.IsTrusted)
	}

	sb.WriteString(" ORDER BY created_at DESC")
	if f.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", f.Offset)
	}

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, translateError(err)
	}
	return collectRefreshTokens(rows)
}

func (s *pgRefreshTokens) Revoke(ctx context.Context, id uuid.UUID, at time.Time, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND is_revoked = FALSE`, id, at.UTC(), reason)
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgRefreshTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time, reason string, except *uuid.UUID) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > now()
		  AND ($4::uuid IS NULL OR id <> $4)`,
		userID, at.UTC(), reason, except)
	if err != nil {
		return 0, translateError(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgRefreshTokens) MaxTokenVersion(ctx context.Context, userID uuid.UUID) (int, error) {
	var max int
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(token_version), 0) FROM refresh_tokens WHERE user_id = $1`, userID).Scan(&max)
	if err != nil {
		return 0, translateError(err)
	}
	return max, nil
}

func (s *pgRefreshTokens) RevokeBelowUserVersion(ctx context.Context, userID uuid.UUID, version int, at time.Time, reason string) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = $3, revoked_reason = $4
		WHERE user_id = $1 AND token_version < $2 AND is_revoked = FALSE`,
		userID, version, at.UTC(), reason)
	if err != nil {
		return 0, translateError(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgRefreshTokens) StatsBelowGlobalVersion(ctx context.Context, version int) (int, int, error) {
	var tokens, users int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT user_id) FROM refresh_tokens
		WHERE global_version_at_issuance < $1 AND is_revoked = FALSE`, version).Scan(&tokens, &users)
	if err != nil {
		return 0, 0, translateError(err)
	}
	return tokens, users, nil
}

func (s *pgRefreshTokens) RevokeBelowGlobalVersion(ctx context.Context, version int, revokedAt time.Time, reason string) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE global_version_at_issuance < $1 AND is_revoked = FALSE`,
		version, revokedAt.UTC(), reason)
	if err != nil {
		return 0, translateError(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgRefreshTokens) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE refresh_tokens SET last_used_at = $2 WHERE id = $1`, id, at.UTC())
	return translateError(err)
}

func (s *pgRefreshTokens) UpdateLocation(ctx context.Context, id uuid.UUID, location string) error {
	_, err := s.db.Exec(ctx, `UPDATE refresh_tokens SET location = $2 WHERE id = $1`, id, location)
	return translateError(err)
}
