package store

import (
	"context"
	"errors"
	"time"
)

type pgSecurityConfig struct {
	db DBTX
}

// The table holds exactly one row, bootstrapped to version 1 by migrations.
// A missing row is a deployment fault and surfaces as ErrConfigMissing.
func (s *pgSecurityConfig) Get(ctx context.Context) (*SecurityConfig, error) {
	var c SecurityConfig
	err := s.db.QueryRow(ctx, `
		SELECT global_min_token_version, updated_at, updated_by, reason
		FROM security_config WHERE id = 1`).
		Scan(&c.GlobalMinTokenVersion, &c.UpdatedAt, &c.UpdatedBy, &c.Reason)
	if err != nil {
		if errors.Is(translateError(err), ErrNotFound) {
			return nil, ErrConfigMissing
		}
		return nil, translateError(err)
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *pgSecurityConfig) Update(ctx context.Context, version int, updatedBy, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE security_config SET global_min_token_version = $1, updated_by = $2, reason = $3, updated_at = $4
		WHERE id = 1`, version, updatedBy, reason, at.UTC())
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigMissing
	}
	return nil
}
