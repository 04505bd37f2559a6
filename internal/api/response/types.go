package response

import (
	"time"

	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/services/account"
	"github.com/mcoot/gameauth/internal/services/auth"
)

// GameStats represents an account's game statistics
type GameStats struct {
	TotalPlayTime int64 `json:"totalPlayTime"`
	GamesPlayed   int64 `json:"gamesPlayed"`
	HighScore     int64 `json:"highScore"`
}

// GameStatsFromModel converts model.GameStats
func GameStatsFromModel(s model.GameStats) GameStats {
	return GameStats{
		TotalPlayTime: s.TotalPlayTime,
		GamesPlayed:   s.GamesPlayed,
		HighScore:     s.HighScore,
	}
}

// User is the public projection of an account. It never carries the
// password hash or one-time code.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	HasPassword bool       `json:"hasPassword"`
	IsActive    bool       `json:"isActive"`
	LastLogin   *time.Time `json:"lastLogin"`
	LoginCount  int64      `json:"loginCount"`
	GameStats   GameStats  `json:"gameStats"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// UserFromModel converts a model.Account to a response User
func UserFromModel(a *model.Account) User {
	return User{
		ID:          string(a.ID),
		Email:       a.Email,
		Username:    a.Username,
		HasPassword: a.HasPassword(),
		IsActive:    a.IsActive,
		LastLogin:   a.LastLogin,
		LoginCount:  a.LoginCount,
		GameStats:   GameStatsFromModel(a.Stats),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// AuthResponse is the response for signup and login
type AuthResponse struct {
	Message   string    `json:"message"`
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresIn string    `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(message string, s *auth.Session, expiresIn string) AuthResponse {
	return AuthResponse{
		Message:   message,
		User:      UserFromModel(s.Account),
		Token:     s.Token,
		ExpiresIn: expiresIn,
		ExpiresAt: s.ExpiresAt,
	}
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
	Note    string `json:"note,omitempty"`
}

// UserResponse wraps a single user
type UserResponse struct {
	Message string `json:"message,omitempty"`
	User    User   `json:"user"`
}

// RefreshResponse is the response for token refresh
type RefreshResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresIn string    `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// OTPSendResponse is the response for requesting a one-time code
type OTPSendResponse struct {
	Message   string `json:"message"`
	IsNewUser bool   `json:"isNewUser"`
}

// OTPVerifyResponse is the response for verifying a one-time code.
// Session fields are empty when NeedsUsername is set.
type OTPVerifyResponse struct {
	Message       string     `json:"message"`
	User          *User      `json:"user,omitempty"`
	Token         string     `json:"token,omitempty"`
	ExpiresIn     string     `json:"expiresIn,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	NeedsUsername bool       `json:"needsUsername"`
	Email         string     `json:"email,omitempty"`
}

// OTPVerifyResponseFromResult converts an auth.OTPResult
func OTPVerifyResponseFromResult(message string, res *auth.OTPResult, expiresIn string) OTPVerifyResponse {
	resp := OTPVerifyResponse{
		Message:       message,
		NeedsUsername: res.NeedsUsername,
		Email:         res.Email,
	}
	if res.Session != nil {
		user := UserFromModel(res.Session.Account)
		expiresAt := res.Session.ExpiresAt
		resp.User = &user
		resp.Token = res.Session.Token
		resp.ExpiresIn = expiresIn
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

// StatsResponse is the response for reading stats
type StatsResponse struct {
	Stats       GameStats  `json:"stats"`
	LastLogin   *time.Time `json:"lastLogin"`
	LoginCount  int64      `json:"loginCount"`
	MemberSince time.Time  `json:"memberSince"`
}

// StatsFromModel creates a StatsResponse from an account
func StatsFromModel(a *model.Account) StatsResponse {
	return StatsResponse{
		Stats:       GameStatsFromModel(a.Stats),
		LastLogin:   a.LastLogin,
		LoginCount:  a.LoginCount,
		MemberSince: a.CreatedAt,
	}
}

// StatsUpdateResponse is the response for submitting stats
type StatsUpdateResponse struct {
	Message string    `json:"message"`
	Stats   GameStats `json:"stats"`
}

// SessionStartResponse is the response for starting a game session
type SessionStartResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	User      User   `json:"user"`
}

// LeaderboardEntry is one ranked player
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	Username      string `json:"username"`
	HighScore     int64  `json:"highScore"`
	GamesPlayed   int64  `json:"gamesPlayed"`
	TotalPlayTime int64  `json:"totalPlayTime"`
}

// Pagination describes a page of results
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// ViewerRank is the authenticated caller's leaderboard position
type ViewerRank struct {
	Rank      int    `json:"rank"`
	Username  string `json:"username"`
	HighScore int64  `json:"highScore"`
}

// LeaderboardResponse is one page of the leaderboard
type LeaderboardResponse struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Pagination  Pagination         `json:"pagination"`
	Me          *ViewerRank        `json:"me,omitempty"`
}

// LeaderboardFromPage converts an account.LeaderboardPage. viewer may be nil.
func LeaderboardFromPage(p *account.LeaderboardPage, viewer *model.Account) LeaderboardResponse {
	entries := make([]LeaderboardEntry, len(p.Entries))
	for i, e := range p.Entries {
		entries[i] = LeaderboardEntry{
			Rank:          e.Rank,
			Username:      e.Account.Username,
			HighScore:     e.Account.Stats.HighScore,
			GamesPlayed:   e.Account.Stats.GamesPlayed,
			TotalPlayTime: e.Account.Stats.TotalPlayTime,
		}
	}

	resp := LeaderboardResponse{
		Leaderboard: entries,
		Pagination: Pagination{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: p.TotalPages,
			HasNext:    p.Page < p.TotalPages,
			HasPrev:    p.Page > 1,
		},
	}
	if viewer != nil && p.ViewerRank > 0 {
		resp.Me = &ViewerRank{
			Rank:      p.ViewerRank,
			Username:  viewer.Username,
			HighScore: viewer.Stats.HighScore,
		}
	}
	return resp
}

// HealthResponse is the response for the health check
type HealthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
