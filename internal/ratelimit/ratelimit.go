// Package ratelimit implements a token-bucket limiter keyed by
// (endpoint, identifier, scope). Rules are static configuration; bucket
// state lives either in process memory or in Redis.
//
// The limiter fails open: when the backing store cannot answer, the
// request proceeds. A broken limiter must not become a denial-of-service
// lever.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Scopes distinguish buckets for the same endpoint.
const (
	ScopePerUser = "per_user"
	ScopePerIP   = "per_ip"
)

// Rule is one endpoint's budget: burst capacity and refill speed.
type Rule struct {
	// MaxTokens is the burst capacity of the bucket.
	MaxTokens int
	// RefillPerMinute is the refill rate in tokens per minute.
	RefillPerMinute float64
	// Scope is ScopePerUser or ScopePerIP.
	Scope string
}

// ResetAfter returns the time a drained bucket needs to refill fully.
func (r Rule) ResetAfter() time.Duration {
	if r.RefillPerMinute <= 0 {
		return 0
	}
	return time.Duration(float64(r.MaxTokens) / r.RefillPerMinute * float64(time.Minute))
}

// RetryAfter returns the advisory wait until one token is available.
func (r Rule) RetryAfter() time.Duration {
	if r.RefillPerMinute <= 0 {
		return 0
	}
	d := time.Duration(float64(time.Minute) / r.RefillPerMinute)
	// Round up to whole seconds so the advisory never undershoots.
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

// Rules maps canonical endpoint keys ("METHOD /path") to budgets.
// Endpoints without a rule are not limited.
type Rules map[string]Rule

// Decision is the outcome of one bucket take.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Store holds the bucket state. Take atomically refills the bucket and
// consumes one token.
type Store interface {
	Take(ctx context.Context, key string, rule Rule) (Decision, error)
}

// BucketKey builds the storage key for one bucket.
func BucketKey(endpoint, identifier, scope string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", scope, endpoint, identifier)
}

var (
	uuidSegment = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	// Opaque credential tokens: long unbroken hex or base64url.
	tokenSegment = regexp.MustCompile(`^[A-Za-z0-9_-]{32,}$`)
)

// CanonicalEndpoint normalises a request into a rule key: concrete path
// parameters are replaced by placeholders so "DELETE /auth/sessions/3fa8..."
// matches the "DELETE /auth/sessions/{id}" rule.
func CanonicalEndpoint(method, path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case uuidSegment.MatchString(seg):
			segments[i] = "{id}"
		case tokenSegment.MatchString(seg):
			segments[i] = "{token}"
		}
	}
	return method + " " + strings.Join(segments, "/")
}
