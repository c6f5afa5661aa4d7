package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/store"
)

// DatabaseStorage persists sessions as refresh-token rows. This is the
// production storage: it supports the full filter set and keeps revoked
// rows around as an audit trail.
type DatabaseStorage struct {
	tokens store.RefreshTokenStore
	now    func() time.Time
}

func NewDatabaseStorage(tokens store.RefreshTokenStore) *DatabaseStorage {
	return &DatabaseStorage{tokens: tokens, now: time.Now}
}

func (d *DatabaseStorage) Save(ctx context.Context, s *Session) error {
	return d.tokens.Create(ctx, s.ToRefreshToken())
}

func (d *DatabaseStorage) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	row, err := d.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return FromRefreshToken(row), nil
}

func (d *DatabaseStorage) List(ctx context.Context, userID uuid.UUID, f store.ListFilter) ([]*Session, error) {
	rows, err := d.tokens.ListByUser(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromRefreshToken(r))
	}
	return out, nil
}

func (d *DatabaseStorage) Revoke(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return d.tokens.Revoke(ctx, id, d.now().UTC(), reason)
}

// Delete is a soft delete: rows are the session audit trail, so removal
// is expressed as revocation.
func (d *DatabaseStorage) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.tokens.Revoke(ctx, id, d.now().UTC(), "deleted")
}
