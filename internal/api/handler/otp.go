package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/gameauth/internal/api/apierr"
	"github.com/mcoot/gameauth/internal/api/request"
	"github.com/mcoot/gameauth/internal/api/response"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/services/auth"
)

// OTPHandler handles one-time code endpoints
type OTPHandler struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewOTPHandler creates a new OTP handler
func NewOTPHandler(authService *auth.Service, logger *slog.Logger) *OTPHandler {
	return &OTPHandler{
		authService: authService,
		logger:      logger,
	}
}

// Send handles POST /api/otp/send
func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req request.OTPSendRequest
	if err := decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	if !model.ValidEmail(model.NormalizeEmail(req.Email)) {
		writeError(h.logger, w, r, apierr.New(http.StatusBadRequest, apierr.CodeInvalidEmail, "Please provide a valid email"))
		return
	}

	isNewUser, err := h.authService.SendOTP(r.Context(), req.Email)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, response.OTPSendResponse{
		Message:   "OTP sent successfully",
		IsNewUser: isNewUser,
	})
}

// Verify handles POST /api/otp/verify
func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req request.OTPVerifyRequest
	if err := decode(r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	result, err := h.authService.VerifyOTP(r.Context(), req.Email, req.OTP, req.Username)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	status := http.StatusOK
	message := "Login successful"
	switch {
	case result.NeedsUsername:
		message = "OTP verified. Please choose a username."
	case result.Created:
		status = http.StatusCreated
		message = "Account created successfully"
	}

	response.JSON(w, status, response.OTPVerifyResponseFromResult(message, result, h.authService.LifetimeLabel()))
}
