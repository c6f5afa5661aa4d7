package api

import (
	"fmt"
	"net/http"
	"net/mail"
	"unicode/utf8"

	"github.com/finbridge/authcore/internal/api/helpers"
	"github.com/finbridge/authcore/internal/api/middleware"
	"github.com/finbridge/authcore/internal/auth"
)

// RegisterRequest defines the expected JSON body for registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (req *RegisterRequest) Validate() error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("invalid email format")
	}
	if req.Password == "" {
		return fmt.Errorf("password required")
	}
	if utf8.RuneCountInString(req.FullName) > 100 {
		return fmt.Errorf("full name too long (max 100 chars)")
	}
	return nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, map[string]string{
		"message": "Account created; check your email for a verification link",
	})
}

// VerifyEmailRequest carries the emailed verification token.
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

func (req *VerifyEmailRequest) Validate() error {
	if req.Token == "" {
		return fmt.Errorf("token required")
	}
	return nil
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req.Token); err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified; you can now log in",
	})
}

// LoginRequest defines the expected JSON body for login.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info,omitempty"`
}

func (req *LoginRequest) Validate() error {
	if req.Email == "" || req.Password == "" {
		return fmt.Errorf("email and password required")
	}
	return nil
}

// loginResponse is the token envelope returned on success.
type loginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	User         loginUser `json:"user"`
}

type loginUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Login(r.Context(), auth.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		IP:         helpers.ClientIP(r, h.trustProxyHeaders),
		UserAgent:  r.UserAgent(),
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}

	middleware.SetSentryUser(res.User.ID.String(), res.User.Email, r.RemoteAddr)

	helpers.RespondJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    res.ExpiresIn,
		User: loginUser{
			ID:       res.User.ID.String(),
			Email:    res.User.Email,
			FullName: res.User.FullName,
		},
	})
}

// RefreshRequest carries the opaque refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (req *RefreshRequest) Validate() error {
	if req.RefreshToken == "" {
		return fmt.Errorf("refresh_token required")
	}
	return nil
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}

	// Sticky refresh: the same opaque token stays valid, so it is echoed
	// back unchanged.
	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"access_token":  res.AccessToken,
		"refresh_token": req.RefreshToken,
		"token_type":    "bearer",
		"expires_in":    res.ExpiresIn,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}

	// Logout always succeeds; it never confirms whether the token was real.
	_ = h.service.Logout(r.Context(), req.RefreshToken)
	helpers.RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out",
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		helpers.RespondAppError(w, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"id":             user.ID,
		"email":          user.Email,
		"full_name":      user.FullName,
		"email_verified": user.EmailVerified,
		"created_at":     user.CreatedAt,
	})
}

// UpdateProfileRequest changes the display name.
type UpdateProfileRequest struct {
	FullName string `json:"full_name"`
}

func (req *UpdateProfileRequest) Validate() error {
	if req.FullName == "" {
		return fmt.Errorf("full_name required")
	}
	if utf8.RuneCountInString(req.FullName) > 100 {
		return fmt.Errorf("full name too long (max 100 chars)")
	}
	return nil
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	var req UpdateProfileRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.UpdateProfile(r.Context(), userID, req.FullName); err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"message": "Profile updated"})
}

// ChangePasswordRequest swaps the account password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (req *ChangePasswordRequest) Validate() error {
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fmt.Errorf("current_password and new_password required")
	}
	return nil
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustGetUserID(r.Context())

	var req ChangePasswordRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "Invalid request body format")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		helpers.RespondAppError(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Password changed; other sessions have been signed out",
	})
}
