// Package cache wraps the key-value collaborator used for revoked-session
// markers, serialised session snapshots, and rate-limit buckets.
//
// Operations are atomic per key. A miss is reported as ErrMiss and never
// means "not present in the authoritative store" — callers that care about
// revocation fall back to the database.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is the minimal contract the auth core needs from its key-value
// store.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
