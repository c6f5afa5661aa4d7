package api

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/go-chi/chi/v5"

	"github.com/finbridge/authcore/internal/api/helpers"
)

// RequestResetRequest starts the password-reset flow.
type RequestResetRequest struct {
	Email string `json:"email"`
}

func (req *RequestResetRequest) Validate() error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// RequestPasswordReset always answers 202 with the same message; the
// endpoint cannot be used to test whether an email is registered.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req RequestResetRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	_ = h.service.RequestPasswordReset(r.Context(), req.Email)
	helpers.RespondJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists for that address, a reset link has been sent",
	})
}

// ProbeResetToken lets a reset form check the token before the user types
// a new password.
func (h *Handler) ProbeResetToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		helpers.RespondError(w, http.StatusBadRequest, "token required")
		return
	}

	probe, err := h.service.ProbeReset(r.Context(), token)
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, probe)
}

// CompleteResetRequest finishes the reset with a new password.
type CompleteResetRequest struct {
	NewPassword string `json:"new_password"`
}

func (req *CompleteResetRequest) Validate() error {
	if req.NewPassword == "" {
		return fmt.Errorf("new_password required")
	}
	return nil
}

func (h *Handler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		helpers.RespondError(w, http.StatusBadRequest, "token required")
		return
	}

	var req CompleteResetRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(), token, req.NewPassword); err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Password has been reset; all sessions have been signed out",
	})
}
