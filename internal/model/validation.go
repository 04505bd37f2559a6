package model

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	emailPattern    = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)
	otpPattern      = regexp.MustCompile(`^[0-9]{6}$`)
)

const (
	// MinPasswordLength is the shortest password accepted at signup or change
	MinPasswordLength = 6
	// MaxPasswordLength is bcrypt's input limit in bytes
	MaxPasswordLength = 72
)

// FieldError describes a single invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationError collects every field problem found in one request
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field problem
func (e *ValidationError) Add(field, message string, value any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message, Value: value})
}

// Err returns nil when no field problems were recorded
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError creates a ValidationError for a single field
func NewValidationError(field, message string, value any) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message, value)
	return v
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail checks the syntax of an already normalized email
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidUsername checks length and allowed characters
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidOTPCode checks that a code is exactly six digits
func ValidOTPCode(code string) bool {
	return otpPattern.MatchString(code)
}

// ValidPassword requires a length within bounds plus at least one letter
// and one digit
func ValidPassword(password string) bool {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return false
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}
