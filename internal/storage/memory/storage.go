package memory

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// Records are cloned on the way in and out so callers never share state
// with the store.
type Storage struct {
	mu sync.RWMutex

	accounts      map[model.AccountID]*model.Account
	emailIndex    map[string]model.AccountID
	usernameIndex map[string]model.AccountID
	challenges    map[string]*model.Challenge
	revoked       map[string]struct{}
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		accounts:      make(map[model.AccountID]*model.Account),
		emailIndex:    make(map[string]model.AccountID),
		usernameIndex: make(map[string]model.AccountID),
		challenges:    make(map[string]*model.Challenge),
		revoked:       make(map[string]struct{}),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emailIndex[acct.Email]; ok {
		return model.ErrEmailTaken
	}
	if _, ok := s.usernameIndex[acct.Username]; ok {
		return model.ErrUsernameTaken
	}

	s.accounts[acct.ID] = acct.Clone()
	s.emailIndex[acct.Email] = acct.ID
	s.usernameIndex[acct.Username] = acct.ID
	return nil
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[email]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernameIndex[username]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *Storage) UpdateAccount(ctx context.Context, id model.AccountID, fn storage.AccountMutator) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.ID = current.ID

	if updated.Email != current.Email {
		if _, taken := s.emailIndex[updated.Email]; taken {
			return nil, model.ErrEmailTaken
		}
	}
	if updated.Username != current.Username {
		if _, taken := s.usernameIndex[updated.Username]; taken {
			return nil, model.ErrUsernameTaken
		}
	}

	if updated.Email != current.Email {
		delete(s.emailIndex, current.Email)
		s.emailIndex[updated.Email] = id
	}
	if updated.Username != current.Username {
		delete(s.usernameIndex, current.Username)
		s.usernameIndex[updated.Username] = id
	}

	s.accounts[id] = updated
	return updated.Clone(), nil
}

// Leaderboard operations

func (s *Storage) Leaderboard(ctx context.Context, offset, limit int) ([]*model.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := s.rankedLocked()
	total := len(ranked)

	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return []*model.Account{}, total, nil
	}
	end := min(offset+limit, total)

	page := make([]*model.Account, 0, end-offset)
	for _, acct := range ranked[offset:end] {
		page = append(page, acct.Clone())
	}
	return page, total, nil
}

func (s *Storage) LeaderboardRank(ctx context.Context, id model.AccountID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, acct := range s.rankedLocked() {
		if acct.ID == id {
			return i + 1, nil
		}
	}
	return 0, model.ErrAccountNotFound
}

// rankedLocked orders active accounts by high score descending, ties by id
func (s *Storage) rankedLocked() []*model.Account {
	ranked := make([]*model.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		if acct.IsActive {
			ranked = append(ranked, acct)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Stats.HighScore != ranked[j].Stats.HighScore {
			return ranked[i].Stats.HighScore > ranked[j].Stats.HighScore
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// Challenge operations

func (s *Storage) SaveChallenge(ctx context.Context, c *model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.challenges[c.Email] = &cp
	return nil
}

func (s *Storage) GetChallenge(ctx context.Context, email string) (*model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[email]
	if !ok {
		return nil, model.ErrChallengeNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Storage) DeleteChallenge(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, email)
	return nil
}

func (s *Storage) CheckChallenge(ctx context.Context, email, code string, now time.Time, action model.ChallengeAction) (model.ChallengeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[email]
	if !ok {
		return model.ChallengeMissing, nil
	}
	if c.Expired(now) {
		delete(s.challenges, email)
		return model.ChallengeExpired, nil
	}
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) != 1 {
		return model.ChallengeMismatch, nil
	}

	switch action {
	case model.ChallengeMark:
		if c.Verified {
			return model.ChallengeUsed, nil
		}
		c.Verified = true
	case model.ChallengeConsume:
		delete(s.challenges, email)
	}
	return model.ChallengeOK, nil
}

// Token denylist operations
//
// Entries are never pruned; a revoked token is also rejected by its own
// expiry once the ttl would have elapsed.

func (s *Storage) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = struct{}{}
	return nil
}

func (s *Storage) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok, nil
}
