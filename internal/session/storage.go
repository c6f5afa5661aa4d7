package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/store"
)

// ErrNotFound is returned by Storage.Get when the session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrListUnsupported is returned by storages that hold sessions only by id
// and cannot enumerate them per user.
var ErrListUnsupported = errors.New("session storage does not support listing")

// Storage persists sessions. Implementations: database (production),
// cache (ephemeral snapshots) and memory (tests and development).
type Storage interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	List(ctx context.Context, userID uuid.UUID, f store.ListFilter) ([]*Session, error)
	// Revoke marks the session revoked. False when missing or already
	// revoked.
	Revoke(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
