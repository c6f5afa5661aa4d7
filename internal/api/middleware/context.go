package middleware

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions with
// other packages.
type contextKey string

// Context keys for request-scoped identity values.
const (
	UserIDKey    contextKey = "user_id"
	EmailKey     contextKey = "email"
	SessionIDKey contextKey = "session_id"
)

// GetUserID extracts the authenticated user id from context.
func GetUserID(ctx context.Context) (uuid.UUID, error) {
	val := ctx.Value(UserIDKey)
	if val == nil {
		return uuid.Nil, fmt.Errorf("user_id not found in context")
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("user_id has wrong type: %T", val)
	}
	return id, nil
}

// GetEmail extracts the authenticated user's email from context.
func GetEmail(ctx context.Context) (string, error) {
	val := ctx.Value(EmailKey)
	if val == nil {
		return "", fmt.Errorf("email not found in context")
	}
	email, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("email has wrong type: %T", val)
	}
	return email, nil
}

// GetSessionID extracts the current session id (the access token's jti).
// Not every access token carries one.
func GetSessionID(ctx context.Context) (uuid.UUID, error) {
	val := ctx.Value(SessionIDKey)
	if val == nil {
		return uuid.Nil, fmt.Errorf("session_id not found in context")
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("session_id has wrong type: %T", val)
	}
	return id, nil
}

// MustGetUserID extracts the user id and panics if absent. Use only behind
// the required-auth middleware.
func MustGetUserID(ctx context.Context) uuid.UUID {
	id, err := GetUserID(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return id
}
