package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/cache"
	"github.com/finbridge/authcore/internal/store"
)

const sessionKeyPrefix = "session:"

// minSnapshotTTL keeps a snapshot alive briefly even when the session is
// on the edge of expiry, so a concurrent reader does not see a phantom
// miss.
const minSnapshotTTL = 60 * time.Second

// CacheStorage holds serialised session snapshots keyed by id. It is an
// ephemeral store: snapshots vanish with the cache, and per-user listing
// is not supported without a separate user-index set.
type CacheStorage struct {
	cache cache.Cache
	now   func() time.Time
}

func NewCacheStorage(c cache.Cache) *CacheStorage {
	return &CacheStorage{cache: c, now: time.Now}
}

func sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("%s%s", sessionKeyPrefix, id)
}

func (c *CacheStorage) Save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := s.Remaining(c.now())
	if ttl < minSnapshotTTL {
		ttl = minSnapshotTTL
	}
	return c.cache.Set(ctx, sessionKey(s.ID), string(raw), ttl)
}

func (c *CacheStorage) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	raw, err := c.cache.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (c *CacheStorage) List(_ context.Context, _ uuid.UUID, _ store.ListFilter) ([]*Session, error) {
	return nil, ErrListUnsupported
}

func (c *CacheStorage) Revoke(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	s, err := c.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if s.IsRevoked {
		return false, nil
	}
	now := c.now().UTC()
	s.IsRevoked = true
	s.RevokedAt = &now
	s.RevokedReason = reason
	if err := c.Save(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CacheStorage) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := c.Get(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := c.cache.Delete(ctx, sessionKey(id)); err != nil {
		return false, err
	}
	return true, nil
}
