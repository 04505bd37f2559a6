package model

import "errors"

// Common errors used across the application
var (
	// Account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is inactive")
	ErrEmailTaken      = errors.New("email already registered")
	ErrUsernameTaken   = errors.New("username already taken")

	// Challenge errors
	ErrChallengeNotFound = errors.New("no one-time code issued")
	ErrChallengeExpired  = errors.New("one-time code expired")
	ErrChallengeInvalid  = errors.New("one-time code invalid")
)
