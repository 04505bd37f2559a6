package model

import "time"

// AccountID uniquely identifies an account across the system
type AccountID string

// GameStats holds the per-account gameplay counters reported by the client
type GameStats struct {
	TotalPlayTime int64 `json:"total_play_time"` // seconds
	GamesPlayed   int64 `json:"games_played"`
	HighScore     int64 `json:"high_score"`
}

// Account is the durable identity record for a player.
// PasswordHash is empty for accounts created through OTP signup.
type Account struct {
	ID           AccountID  `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash,omitempty"`
	OTPCode      string     `json:"otp_code,omitempty"`
	OTPExpiry    *time.Time `json:"otp_expiry,omitempty"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	LoginCount   int64      `json:"login_count"`
	Stats        GameStats  `json:"stats"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasPassword reports whether the account can log in with a password
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// HasOTP reports whether a one-time code is attached to the account
func (a *Account) HasOTP() bool {
	return a.OTPCode != "" && a.OTPExpiry != nil
}

// ClearOTP removes any attached one-time code
func (a *Account) ClearOTP() {
	a.OTPCode = ""
	a.OTPExpiry = nil
}

// RecordLogin bumps the login counters
func (a *Account) RecordLogin(now time.Time) {
	t := now
	a.LastLogin = &t
	a.LoginCount++
}

// Clone returns a deep copy so callers can mutate without aliasing stored state
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.OTPExpiry != nil {
		t := *a.OTPExpiry
		c.OTPExpiry = &t
	}
	if a.LastLogin != nil {
		t := *a.LastLogin
		c.LastLogin = &t
	}
	return &c
}
