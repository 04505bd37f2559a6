package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/services/auth"
	"github.com/mcoot/gameauth/internal/services/token"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Details []model.FieldError `json:"details,omitempty"`
}

// Error codes
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeInvalidEmail           = "INVALID_EMAIL"
	CodeEmailExists            = "EMAIL_EXISTS"
	CodeUsernameTaken          = "USERNAME_TAKEN"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeTokenMissing           = "TOKEN_MISSING"
	CodeTokenInvalid           = "TOKEN_INVALID"
	CodeTokenExpired           = "TOKEN_EXPIRED"
	CodeAccountUnavailable     = "ACCOUNT_UNAVAILABLE"
	CodeAccountNotFound        = "ACCOUNT_NOT_FOUND"
	CodeInvalidOTP             = "INVALID_OTP"
	CodeOTPExpired             = "OTP_EXPIRED"
	CodeInvalidCurrentPassword = "INVALID_CURRENT_PASSWORD"
	CodeSendFailed             = "SEND_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeInternalError          = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an error body
type httpError struct {
	status int
	body   ErrorResponse
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.body.Message
}

// New creates an error with an explicit status and code
func New(status int, code, message string) error {
	return &httpError{status, ErrorResponse{Error: code, Message: message}}
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(he.body)
}

// Status returns the HTTP status err maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return &httpError{http.StatusBadRequest, ErrorResponse{
			Error:   CodeValidationFailed,
			Message: "Validation failed",
			Details: verr.Fields,
		}}
	}

	switch {
	// Duplicates
	case errors.Is(err, model.ErrEmailTaken):
		return badRequest(CodeEmailExists, "An account with this email already exists")
	case errors.Is(err, model.ErrUsernameTaken):
		return badRequest(CodeUsernameTaken, "Username is already taken")

	// Credentials
	case errors.Is(err, auth.ErrPasswordMismatch):
		return badRequest(CodeValidationFailed, "Passwords do not match")
	case errors.Is(err, auth.ErrWrongPassword):
		return badRequest(CodeInvalidCurrentPassword, "Current password is incorrect")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return unauthorized(CodeInvalidCredentials, "Invalid email or password")

	// Tokens
	case errors.Is(err, token.ErrTokenMissing):
		return unauthorized(CodeTokenMissing, "Access denied. No token provided.")
	case errors.Is(err, token.ErrTokenExpired):
		return unauthorized(CodeTokenExpired, "Token expired")
	case errors.Is(err, token.ErrTokenMalformed),
		errors.Is(err, token.ErrTokenSignatureInvalid),
		errors.Is(err, token.ErrTokenRevoked):
		return unauthorized(CodeTokenInvalid, "Invalid token")
	case errors.Is(err, auth.ErrAccountUnavailable):
		return unauthorized(CodeAccountUnavailable, "User not found or inactive")

	// One-time codes
	case errors.Is(err, model.ErrChallengeExpired):
		return badRequest(CodeOTPExpired, "OTP has expired. Please request a new one.")
	case errors.Is(err, model.ErrChallengeInvalid), errors.Is(err, model.ErrChallengeNotFound):
		return badRequest(CodeInvalidOTP, "Invalid OTP")

	case errors.Is(err, model.ErrAccountNotFound):
		return &httpError{http.StatusNotFound, ErrorResponse{Error: CodeAccountNotFound, Message: "User not found"}}

	// Dependencies
	case errors.Is(err, auth.ErrNotificationFailed):
		return &httpError{http.StatusInternalServerError, ErrorResponse{
			Error:   CodeSendFailed,
			Message: "Failed to send OTP. Please try again.",
		}}

	default:
		return &httpError{http.StatusInternalServerError, ErrorResponse{Error: CodeInternalError, Message: "Internal server error"}}
	}
}

func badRequest(code, message string) *httpError {
	return &httpError{http.StatusBadRequest, ErrorResponse{Error: code, Message: message}}
}

func unauthorized(code, message string) *httpError {
	return &httpError{http.StatusUnauthorized, ErrorResponse{Error: code, Message: message}}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return badRequest(CodeInvalidRequest, message)
}

// NewNotFoundError creates a route-not-found error
func NewNotFoundError() error {
	return &httpError{http.StatusNotFound, ErrorResponse{Error: CodeNotFound, Message: "Route not found"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, ErrorResponse{Error: CodeInternalError, Message: "Internal server error"}}
}
