package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type pgCredentialTokens struct {
	db DBTX
}

func (s *pgCredentialTokens) Create(ctx context.Context, t *CredentialToken) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO credential_tokens (id, user_id, kind, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.Kind, t.TokenHash, t.ExpiresAt.UTC(), t.CreatedAt.UTC(),
	)
	return translateError(err)
}

func (s *pgCredentialTokens) ListUnused(ctx context.Context, kind string) ([]*CredentialToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, kind, token_hash, expires_at, used_at, created_at
		FROM credential_tokens
		WHERE kind = $1 AND used_at IS NULL
		ORDER BY created_at DESC`, kind)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var out []*CredentialToken
	for rows.Next() {
		var t CredentialToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt); err != nil {
			return nil, translateError(err)
		}
		t.ExpiresAt = t.ExpiresAt.UTC()
		t.CreatedAt = t.CreatedAt.UTC()
		if t.UsedAt != nil {
			utc := t.UsedAt.UTC()
			t.UsedAt = &utc
		}
		out = append(out, &t)
	}
	return out, translateError(rows.Err())
}

// MarkUsed guards the exactly-once transition with the used_at IS NULL
// predicate; a concurrent consumer loses the race and gets false.
func (s *pgCredentialTokens) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE credential_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, at.UTC())
	if err != nil {
		return false, translateError(err)
	}
	return tag.RowsAffected() > 0, nil
}
