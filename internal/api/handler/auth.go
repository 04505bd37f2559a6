package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/gameauth/internal/api/middleware"
	"github.com/mcoot/gameauth/internal/api/request"
	"github.com/mcoot/gameauth/internal/api/response"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/services/auth"
)

// AuthHandler handles password auth and token endpoints
type AuthHandler struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req request.SignupRequest
	if err := decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	session, err := h.authService.Signup(r.Context(), auth.SignupInput{
		Email:           req.Email,
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated,
		response.AuthResponseFromSession("User created successfully", session, h.authService.LifetimeLabel()))
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	verr := &model.ValidationError{}
	if req.Email == "" {
		verr.Add("email", "Email is required", nil)
	}
	if req.Password == "" {
		verr.Add("password", "Password is required", nil)
	}
	if err := verr.Err(); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	session, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK,
		response.AuthResponseFromSession("Login successful", session, h.authService.LifetimeLabel()))
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())
	h.authService.Logout(r.Context(), identity.Claims)

	response.JSON(w, http.StatusOK, response.MessageResponse{
		Message: "Logout successful",
		Note:    "Please remove the token from client storage",
	})
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	var req request.ChangePasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	err := h.authService.ChangePassword(r.Context(), identity.Account.ID,
		req.CurrentPassword, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MessageResponse{
		Message: "Password changed successfully",
		Note:    "Existing tokens remain valid until they expire",
	})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())
	response.JSON(w, http.StatusOK, response.UserResponse{User: response.UserFromModel(identity.Account)})
}

// Refresh handles POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	identity := middleware.MustGetIdentity(r.Context())

	session, err := h.authService.Refresh(r.Context(), identity.Account.ID)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RefreshResponse{
		Message:   "Token refreshed successfully",
		Token:     session.Token,
		ExpiresIn: h.authService.LifetimeLabel(),
		ExpiresAt: session.ExpiresAt,
	})
}
