package request

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrEmptyBody is returned by Decode when the request has no body
var ErrEmptyBody = errors.New("request body is empty")

// Decode reads a JSON request body into v
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return ErrEmptyBody
	}
	return err
}

// SignupRequest is the request body for a password signup
type SignupRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the request body for changing password
type ChangePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// OTPSendRequest is the request body for requesting a one-time code
type OTPSendRequest struct {
	Email string `json:"email"`
}

// OTPVerifyRequest is the request body for verifying a one-time code.
// Username is only needed when the email has no account yet.
type OTPVerifyRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Username string `json:"username,omitempty"`
}

// UpdateProfileRequest is the request body for updating a profile
type UpdateProfileRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// UpdateStatsRequest is the request body for submitting game stats
type UpdateStatsRequest struct {
	TotalPlayTime *int64 `json:"totalPlayTime,omitempty"`
	GamesPlayed   *int64 `json:"gamesPlayed,omitempty"`
	HighScore     *int64 `json:"highScore,omitempty"`
}
