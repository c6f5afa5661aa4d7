package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finbridge/authcore/internal/api/helpers"
	"github.com/finbridge/authcore/internal/api/middleware"
)

// RotateUserRequest invalidates all of a user's outstanding tokens.
type RotateUserRequest struct {
	Reason string `json:"reason"`
}

func (req *RotateUserRequest) Validate() error {
	if req.Reason == "" {
		return fmt.Errorf("reason required")
	}
	return nil
}

// RotateUser may only be initiated by the subject user.
func (h *Handler) RotateUser(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.MustGetUserID(r.Context())

	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if targetID != callerID {
		helpers.RespondError(w, http.StatusForbidden, "Cannot rotate another user's tokens")
		return
	}

	var req RotateUserRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.RotateUser(r.Context(), targetID, req.Reason)
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, result)
}

// RotateGlobalRequest invalidates every token in the system. The reason
// must be long enough to describe a real incident.
type RotateGlobalRequest struct {
	Reason             string `json:"reason"`
	GracePeriodMinutes int    `json:"grace_period_minutes"`
}

func (req *RotateGlobalRequest) Validate() error {
	if req.Reason == "" {
		return fmt.Errorf("reason required")
	}
	if req.GracePeriodMinutes < 0 {
		return fmt.Errorf("grace_period_minutes must not be negative")
	}
	return nil
}

func (h *Handler) RotateGlobal(w http.ResponseWriter, r *http.Request) {
	email, err := middleware.GetEmail(r.Context())
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "Authorization required")
		return
	}

	var req RotateGlobalRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.RotateGlobal(r.Context(), req.Reason, email, req.GracePeriodMinutes)
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) GetSecurityConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.SecurityConfig(r.Context())
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"global_min_token_version": cfg.GlobalMinTokenVersion,
		"updated_at":               cfg.UpdatedAt,
		"updated_by":               cfg.UpdatedBy,
		"reason":                   cfg.Reason,
	})
}
