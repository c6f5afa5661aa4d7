package helpers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/finbridge/authcore/internal/apperr"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// RespondError writes an error response with the given status code and message.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{
		"error": message,
	})
}

// RespondAppError maps a service error onto the wire. Unexpected errors
// are logged server-side and surface as a generic 500.
func RespondAppError(w http.ResponseWriter, err error) {
	if ae := apperr.As(err); ae != nil {
		if ae.Cause != nil {
			slog.Error("request_failed", "code", ae.Code, "error", ae.Cause)
		}
		RespondError(w, ae.HTTPStatus, ae.Message)
		return
	}
	slog.Error("request_failed", "error", err)
	RespondError(w, http.StatusInternalServerError, "An unexpected error occurred")
}
