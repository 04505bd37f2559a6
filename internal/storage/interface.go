package storage

import (
	"context"
	"time"

	"github.com/mcoot/gameauth/internal/model"
)

// AccountMutator edits an account in place. Returning an error aborts the
// update and nothing is written.
type AccountMutator func(acct *model.Account) error

// Storage defines the interface for data persistence
type Storage interface {
	// Account operations
	//
	// CreateAccount fails with model.ErrEmailTaken or model.ErrUsernameTaken
	// if either identity is already in use. Email is checked first.
	CreateAccount(ctx context.Context, acct *model.Account) error
	GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	// UpdateAccount atomically reads, mutates and writes one account.
	// Identity changes are re-checked for uniqueness.
	UpdateAccount(ctx context.Context, id model.AccountID, fn AccountMutator) (*model.Account, error)

	// Leaderboard operations (active accounts only)
	//
	// Leaderboard returns accounts ordered by high score descending, and the
	// total number of ranked accounts.
	Leaderboard(ctx context.Context, offset, limit int) ([]*model.Account, int, error)
	// LeaderboardRank returns the 1-based rank of an account, or
	// model.ErrAccountNotFound if it is not ranked.
	LeaderboardRank(ctx context.Context, id model.AccountID) (int, error)

	// Pending challenge operations
	//
	// SaveChallenge overwrites any existing challenge for the same email.
	SaveChallenge(ctx context.Context, c *model.Challenge) error
	GetChallenge(ctx context.Context, email string) (*model.Challenge, error)
	DeleteChallenge(ctx context.Context, email string) error
	// CheckChallenge compares a code against the stored challenge atomically.
	// Expired challenges are deleted. Mismatches leave the record untouched.
	CheckChallenge(ctx context.Context, email, code string, now time.Time, action model.ChallengeAction) (model.ChallengeStatus, error)

	// Token denylist operations
	//
	// RevokeToken denylists a token id for ttl, which should cover the
	// token's remaining lifetime.
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}
