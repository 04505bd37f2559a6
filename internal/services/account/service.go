package account

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/mcoot/gameauth/internal/dependencies/clock"
	"github.com/mcoot/gameauth/internal/dependencies/random"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/storage"
)

// Leaderboard paging limits
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// ProfileUpdate holds optional profile changes; nil fields are left alone
type ProfileUpdate struct {
	Username *string
	Email    *string
}

// StatsUpdate holds optional stat changes; nil fields are left alone
type StatsUpdate struct {
	TotalPlayTime *int64
	GamesPlayed   *int64
	HighScore     *int64
}

// LeaderboardEntry is one ranked account
type LeaderboardEntry struct {
	Rank    int
	Account *model.Account
}

// LeaderboardPage is one page of the leaderboard
type LeaderboardPage struct {
	Entries    []LeaderboardEntry
	Page       int
	Limit      int
	Total      int
	TotalPages int
	// ViewerRank is the caller's rank, zero when anonymous or unranked
	ViewerRank int
}

// Service manages profile and game statistics for existing accounts
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
}

// New creates a new account service
func New(store storage.Storage, clk clock.Clock, rnd random.Random, logger *slog.Logger) *Service {
	return &Service{
		storage: store,
		clock:   clk,
		random:  rnd,
		logger:  logger,
	}
}

// GetProfile returns the account
func (s *Service) GetProfile(ctx context.Context, id model.AccountID) (*model.Account, error) {
	return s.storage.GetAccount(ctx, id)
}

// UpdateProfile changes username and/or email. Both are validated first and
// uniqueness is enforced by the store.
func (s *Service) UpdateProfile(ctx context.Context, id model.AccountID, upd ProfileUpdate) (*model.Account, error) {
	var username, email string

	verr := &model.ValidationError{}
	if upd.Username != nil {
		username = strings.TrimSpace(*upd.Username)
		if !model.ValidUsername(username) {
			verr.Add("username", "Username must be 3-20 characters of letters, numbers, underscores or hyphens", *upd.Username)
		}
	}
	if upd.Email != nil {
		email = model.NormalizeEmail(*upd.Email)
		if !model.ValidEmail(email) {
			verr.Add("email", "Please provide a valid email", *upd.Email)
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updated, err := s.storage.UpdateAccount(ctx, id, func(a *model.Account) error {
		if upd.Username != nil {
			a.Username = username
		}
		if upd.Email != nil {
			a.Email = email
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile updated", slog.String("account_id", string(id)))
	return updated, nil
}

// Deactivate soft-deletes the account. It drops off the leaderboard and
// can no longer log in.
func (s *Service) Deactivate(ctx context.Context, id model.AccountID) error {
	now := s.clock.Now()
	_, err := s.storage.UpdateAccount(ctx, id, func(a *model.Account) error {
		a.IsActive = false
		a.ClearOTP()
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("account deactivated", slog.String("account_id", string(id)))
	return nil
}

// GetStats returns the account; stats and login activity live on it
func (s *Service) GetStats(ctx context.Context, id model.AccountID) (*model.Account, error) {
	return s.storage.GetAccount(ctx, id)
}

// UpdateStats applies a stats submission atomically. The high score only
// ever grows; play time and games played are overwritten, floored at zero.
func (s *Service) UpdateStats(ctx context.Context, id model.AccountID, upd StatsUpdate) (*model.Account, error) {
	now := s.clock.Now()
	return s.storage.UpdateAccount(ctx, id, func(a *model.Account) error {
		if upd.TotalPlayTime != nil {
			a.Stats.TotalPlayTime = max(*upd.TotalPlayTime, 0)
		}
		if upd.GamesPlayed != nil {
			a.Stats.GamesPlayed = max(*upd.GamesPlayed, 0)
		}
		if upd.HighScore != nil {
			a.Stats.HighScore = max(a.Stats.HighScore, *upd.HighScore)
		}
		a.UpdatedAt = now
		return nil
	})
}

// StartSession records a game session start and returns its id
func (s *Service) StartSession(ctx context.Context, id model.AccountID) (string, *model.Account, error) {
	now := s.clock.Now()
	updated, err := s.storage.UpdateAccount(ctx, id, func(a *model.Account) error {
		a.RecordLogin(now)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	sessionID := s.random.UUID()
	s.logger.Info("game session started",
		slog.String("account_id", string(id)),
		slog.String("session_id", sessionID),
	)
	return sessionID, updated, nil
}

// Leaderboard returns one page of active accounts by high score. Out of
// range page and limit values fall back to the defaults. When viewer is
// set its rank is included.
func (s *Service) Leaderboard(ctx context.Context, page, limit int, viewer model.AccountID) (*LeaderboardPage, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, MaxLeaderboardLimit)
	if page <= 0 {
		page = 1
	}
	// Keeps offset+limit within int
	page = min(page, math.MaxInt/limit)

	offset := (page - 1) * limit
	accounts, total, err := s.storage.Leaderboard(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(accounts))
	for i, acct := range accounts {
		entries[i] = LeaderboardEntry{Rank: offset + i + 1, Account: acct}
	}

	result := &LeaderboardPage{
		Entries:    entries,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}

	if viewer != "" {
		rank, err := s.storage.LeaderboardRank(ctx, viewer)
		switch {
		case err == nil:
			result.ViewerRank = rank
		case errors.Is(err, model.ErrAccountNotFound):
		default:
			return nil, err
		}
	}

	return result, nil
}
