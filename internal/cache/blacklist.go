package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const revokedKeyPrefix = "revoked_token:"

// minBlacklistTTL keeps markers alive long enough to survive clock skew
// between revocation and the access token's natural expiry.
const minBlacklistTTL = 60 * time.Second

// Blacklist tracks freshly revoked session ids. It closes the window
// between a session being revoked in the database and its access token
// expiring: request-time checks consult the blacklist in addition to the
// stored revoked flag.
type Blacklist struct {
	cache Cache
}

// NewBlacklist wraps a cache in the revocation-marker key scheme.
func NewBlacklist(c Cache) *Blacklist {
	return &Blacklist{cache: c}
}

func revokedKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s%s", revokedKeyPrefix, sessionID)
}

// Add records a revoked session id. ttl should match the session's
// remaining lifetime and is clamped to a small floor.
func (b *Blacklist) Add(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error {
	if ttl < minBlacklistTTL {
		ttl = minBlacklistTTL
	}
	return b.cache.Set(ctx, revokedKey(sessionID), "1", ttl)
}

// Contains reports whether the session id is marked revoked. A miss (or any
// cache failure) returns false: the cache is an acceleration, not the
// authority, and the caller still checks the database row.
func (b *Blacklist) Contains(ctx context.Context, sessionID uuid.UUID) bool {
	_, err := b.cache.Get(ctx, revokedKey(sessionID))
	return err == nil
}
