package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			o.printJSON(apiErr)
			return
		}
		o.printJSON(map[string]string{"message": err.Error()})
		return
	}
	fmt.Fprintf(o.w, "Error: %s\n", err)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case User:
		o.printUser(v)
	case UserResult:
		o.printMessage(v.Message)
		o.printUser(v.User)
	case AuthResult:
		o.printAuthResult(v)
	case TokenResult:
		o.printMessage(v.Message)
		fmt.Fprintf(o.w, "Token: %s\nExpires: %s (%s)\n", v.Token, v.ExpiresAt.Format(time.RFC3339), v.ExpiresIn)
	case OTPSendResult:
		o.printMessage(v.Message)
		fmt.Fprintf(o.w, "New user: %t\n", v.IsNewUser)
	case OTPVerifyResult:
		o.printOTPVerifyResult(v)
	case StatsResult:
		o.printStats(v)
	case StatsUpdateResult:
		o.printMessage(v.Message)
		o.printGameStats(v.Stats)
	case SessionResult:
		o.printMessage(v.Message)
		fmt.Fprintf(o.w, "Session: %s\n", v.SessionID)
		o.printUser(v.User)
	case LeaderboardResult:
		o.printLeaderboard(v)
	case MessageResult:
		o.printMessage(v.Message)
		if v.Note != "" {
			fmt.Fprintf(o.w, "Note: %s\n", v.Note)
		}
	case HealthResult:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// GameStats response type
type GameStats struct {
	TotalPlayTime int64 `json:"totalPlayTime"`
	GamesPlayed   int64 `json:"gamesPlayed"`
	HighScore     int64 `json:"highScore"`
}

// User response type (matches API)
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	HasPassword bool       `json:"hasPassword"`
	IsActive    bool       `json:"isActive"`
	LastLogin   *time.Time `json:"lastLogin"`
	LoginCount  int64      `json:"loginCount"`
	Stats       GameStats  `json:"gameStats"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// UserResult wraps a single user
type UserResult struct {
	Message string `json:"message,omitempty"`
	User    User   `json:"user"`
}

// AuthResult is returned by signup and login
type AuthResult struct {
	Message   string    `json:"message"`
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresIn string    `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenResult is returned by refresh
type TokenResult struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresIn string    `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// OTPSendResult response type
type OTPSendResult struct {
	Message   string `json:"message"`
	IsNewUser bool   `json:"isNewUser"`
}

// OTPVerifyResult response type. Token is empty when NeedsUsername is set.
type OTPVerifyResult struct {
	Message       string     `json:"message"`
	User          *User      `json:"user,omitempty"`
	Token         string     `json:"token,omitempty"`
	ExpiresIn     string     `json:"expiresIn,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	NeedsUsername bool       `json:"needsUsername"`
	Email         string     `json:"email,omitempty"`
}

// StatsResult response type
type StatsResult struct {
	Stats       GameStats  `json:"stats"`
	LastLogin   *time.Time `json:"lastLogin"`
	LoginCount  int64      `json:"loginCount"`
	MemberSince time.Time  `json:"memberSince"`
}

// StatsUpdateResult response type
type StatsUpdateResult struct {
	Message string    `json:"message"`
	Stats   GameStats `json:"stats"`
}

// SessionResult response type
type SessionResult struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	User      User   `json:"user"`
}

// LeaderboardEntry response type
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	Username      string `json:"username"`
	HighScore     int64  `json:"highScore"`
	GamesPlayed   int64  `json:"gamesPlayed"`
	TotalPlayTime int64  `json:"totalPlayTime"`
}

// LeaderboardResult response type
type LeaderboardResult struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Pagination  struct {
		Page       int  `json:"page"`
		Limit      int  `json:"limit"`
		Total      int  `json:"total"`
		TotalPages int  `json:"totalPages"`
		HasNext    bool `json:"hasNext"`
		HasPrev    bool `json:"hasPrev"`
	} `json:"pagination"`
	Me *struct {
		Rank      int    `json:"rank"`
		Username  string `json:"username"`
		HighScore int64  `json:"highScore"`
	} `json:"me,omitempty"`
}

// MessageResult response type
type MessageResult struct {
	Message string `json:"message"`
	Note    string `json:"note,omitempty"`
}

// HealthResult response type
type HealthResult struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *Output) printMessage(msg string) {
	if msg != "" {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printUser(u User) {
	fmt.Fprintf(o.w, "User: %s <%s> (%s)\n", u.Username, u.Email, u.ID)
	fmt.Fprintf(o.w, "Password set: %t\n", u.HasPassword)
	fmt.Fprintf(o.w, "Logins: %d\n", u.LoginCount)
	if u.LastLogin != nil {
		fmt.Fprintf(o.w, "Last login: %s\n", u.LastLogin.Format(time.RFC3339))
	}
	o.printGameStats(u.Stats)
}

func (o *Output) printGameStats(s GameStats) {
	fmt.Fprintf(o.w, "High score: %d\n", s.HighScore)
	fmt.Fprintf(o.w, "Games played: %d\n", s.GamesPlayed)
	fmt.Fprintf(o.w, "Play time: %ds\n", s.TotalPlayTime)
}

func (o *Output) printAuthResult(a AuthResult) {
	o.printMessage(a.Message)
	o.printUser(a.User)
	fmt.Fprintf(o.w, "Token: %s\n", a.Token)
}

func (o *Output) printOTPVerifyResult(v OTPVerifyResult) {
	o.printMessage(v.Message)
	if v.NeedsUsername {
		fmt.Fprintf(o.w, "Re-run with --username to finish creating %s\n", v.Email)
		return
	}
	if v.User != nil {
		o.printUser(*v.User)
	}
	if v.Token != "" {
		fmt.Fprintf(o.w, "Token: %s\n", v.Token)
	}
}

func (o *Output) printStats(s StatsResult) {
	o.printGameStats(s.Stats)
	fmt.Fprintf(o.w, "Logins: %d\n", s.LoginCount)
	fmt.Fprintf(o.w, "Member since: %s\n", s.MemberSince.Format(time.RFC3339))
}

func (o *Output) printLeaderboard(l LeaderboardResult) {
	p := l.Pagination
	fmt.Fprintf(o.w, "Leaderboard (page %d of %d, %d players)\n", p.Page, max(p.TotalPages, 1), p.Total)
	for _, e := range l.Leaderboard {
		fmt.Fprintf(o.w, "%4d. %-20s %d\n", e.Rank, e.Username, e.HighScore)
	}
	if l.Me != nil {
		fmt.Fprintf(o.w, "You: #%d %s (%d)\n", l.Me.Rank, l.Me.Username, l.Me.HighScore)
	}
}
