package ratelimit

import (
	"context"
	"log/slog"
)

// Result is the limiter's answer for one request.
type Result struct {
	// Limited is false when no rule covers the endpoint; the request
	// passes through without headers.
	Limited  bool
	Endpoint string
	Decision Decision
}

// Limiter evaluates configured rules against a bucket store.
type Limiter struct {
	rules Rules
	store Store
	sink  ViolationSink
	log   *slog.Logger
}

func New(rules Rules, store Store, sink ViolationSink, log *slog.Logger) *Limiter {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Limiter{rules: rules, store: store, sink: sink, log: log}
}

// Check consumes a token for the request's endpoint bucket. Any store
// failure is logged and the request is allowed through.
func (l *Limiter) Check(ctx context.Context, method, path, identifier string) Result {
	endpoint := CanonicalEndpoint(method, path)
	rule, ok := l.rules[endpoint]
	if !ok {
		return Result{Limited: false, Endpoint: endpoint}
	}

	key := BucketKey(endpoint, identifier, rule.Scope)
	decision, err := l.store.Take(ctx, key, rule)
	if err != nil {
		l.log.Error("rate_limit_check_failed", "endpoint", endpoint, "error", err)
		return Result{
			Limited:  true,
			Endpoint: endpoint,
			Decision: Decision{Allowed: true, Limit: rule.MaxTokens, Remaining: rule.MaxTokens},
		}
	}

	if !decision.Allowed {
		l.log.Warn("rate_limit_exceeded", "endpoint", endpoint, "identifier", identifier)
		l.sink.Record(endpoint, identifier)
	}

	return Result{Limited: true, Endpoint: endpoint, Decision: decision}
}

// ResetAfter exposes the full-refill horizon for an endpoint's rule, for
// the X-RateLimit-Reset header.
func (l *Limiter) ResetAfter(endpoint string) int {
	rule, ok := l.rules[endpoint]
	if !ok {
		return 0
	}
	return int(rule.ResetAfter().Seconds())
}
