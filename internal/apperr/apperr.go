// Package apperr defines the error taxonomy shared by services and handlers.
//
// Services return an *AppError for any failure the client is allowed to see;
// everything else is wrapped with fmt.Errorf and surfaces as a generic 500.
// The Cause field is for server-side logging only and never reaches a client.
package apperr

import (
	"errors"
	"net/http"
)

// AppError is the canonical client-visible error.
type AppError struct {
	// Code is a machine-readable identifier (e.g. "UNAUTHORIZED").
	Code string `json:"code"`
	// Message is safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, kept for logging only.
	Cause error `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

// Unwrap lets errors.Is / errors.As traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// Invalid reports malformed or rejected input (400).
func Invalid(msg string) *AppError {
	return &AppError{Code: "INVALID", Message: msg, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized reports missing or bad credentials (401). Messages must stay
// generic: never distinguish unknown-user from wrong-password.
func Unauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, HTTPStatus: http.StatusUnauthorized}
}

// Forbidden reports an authenticated but not permitted action (403).
func Forbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, HTTPStatus: http.StatusForbidden}
}

// NotFound covers both "does not exist" and "not owned by the caller" (404);
// the two cases are deliberately indistinguishable.
func NotFound(msg string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: msg, HTTPStatus: http.StatusNotFound}
}

// Conflict reports a uniqueness violation (409).
func Conflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, HTTPStatus: http.StatusConflict}
}

// RateLimited reports request throttling (429).
func RateLimited(msg string) *AppError {
	return &AppError{Code: "RATE_LIMITED", Message: msg, HTTPStatus: http.StatusTooManyRequests}
}

// Internal wraps an unexpected failure (500). The cause is logged, the
// client sees a generic message.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// As extracts the *AppError from err's chain, or nil.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// Status returns the HTTP status for err, defaulting to 500.
func Status(err error) int {
	if ae := As(err); ae != nil {
		return ae.HTTPStatus
	}
	return http.StatusInternalServerError
}
