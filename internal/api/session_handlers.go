package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/api/helpers"
	"github.com/finbridge/authcore/internal/api/middleware"
)

// currentSessionID pulls the jti of the presented access token; uuid.Nil
// when the token was not session-bound.
func currentSessionID(r *http.Request) uuid.UUID {
	id, err := middleware.GetSessionID(r.Context())
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	sessions, err := h.service.ListSessions(r.Context(), userID, currentSessionID(r))
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"sessions":    sessions,
		"total_count": len(sessions),
	})
}

func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	if err := h.service.RevokeSession(r.Context(), userID, sessionID, currentSessionID(r)); err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"message": "Session revoked"})
}

func (h *Handler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	count, err := h.service.RevokeOtherSessions(r.Context(), userID, currentSessionID(r))
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"message":       "Other sessions revoked",
		"revoked_count": count,
	})
}

func (h *Handler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	count, err := h.service.RevokeAllSessions(r.Context(), userID)
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"message":       "All sessions revoked; you have been logged out everywhere",
		"revoked_count": count,
	})
}
