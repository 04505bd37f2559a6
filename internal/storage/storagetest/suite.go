// Package storagetest holds the behaviour every storage.Storage
// implementation must share. Backend packages embed Suite and supply a
// fresh store per test.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/storage"
)

// Suite runs the shared storage contract against Store
type Suite struct {
	suite.Suite
	Store storage.Storage
	Ctx   context.Context
}

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// NewAccount builds an active account with the given identity
func NewAccount(id, email, username string) *model.Account {
	return &model.Account{
		ID:        model.AccountID(id),
		Email:     email,
		Username:  username,
		IsActive:  true,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func (s *Suite) create(id, email, username string) *model.Account {
	acct := NewAccount(id, email, username)
	s.Require().NoError(s.Store.CreateAccount(s.Ctx, acct))
	return acct
}

// Account tests

func (s *Suite) TestCreateAndGetAccount() {
	acct := NewAccount("acct-1", "alice@example.com", "alice")
	acct.PasswordHash = "hash"
	s.Require().NoError(s.Store.CreateAccount(s.Ctx, acct))

	got, err := s.Store.GetAccount(s.Ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal("alice@example.com", got.Email)
	s.Equal("alice", got.Username)
	s.Equal("hash", got.PasswordHash)
	s.True(got.IsActive)

	byEmail, err := s.Store.GetAccountByEmail(s.Ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(acct.ID, byEmail.ID)

	byUsername, err := s.Store.GetAccountByUsername(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(acct.ID, byUsername.ID)
}

func (s *Suite) TestGetAccountNotFound() {
	_, err := s.Store.GetAccount(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrAccountNotFound)

	_, err = s.Store.GetAccountByEmail(s.Ctx, "missing@example.com")
	s.ErrorIs(err, model.ErrAccountNotFound)

	_, err = s.Store.GetAccountByUsername(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *Suite) TestCreateAccountDuplicateEmail() {
	s.create("acct-1", "alice@example.com", "alice")

	err := s.Store.CreateAccount(s.Ctx, NewAccount("acct-2", "alice@example.com", "other"))
	s.ErrorIs(err, model.ErrEmailTaken)

	_, err = s.Store.GetAccount(s.Ctx, "acct-2")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *Suite) TestCreateAccountDuplicateUsername() {
	s.create("acct-1", "alice@example.com", "alice")

	err := s.Store.CreateAccount(s.Ctx, NewAccount("acct-2", "bob@example.com", "alice"))
	s.ErrorIs(err, model.ErrUsernameTaken)
}

func (s *Suite) TestCreateAccountEmailCheckedFirst() {
	s.create("acct-1", "alice@example.com", "alice")

	err := s.Store.CreateAccount(s.Ctx, NewAccount("acct-2", "alice@example.com", "alice"))
	s.ErrorIs(err, model.ErrEmailTaken)
}

func (s *Suite) TestReturnedAccountIsACopy() {
	s.create("acct-1", "alice@example.com", "alice")

	got, err := s.Store.GetAccount(s.Ctx, "acct-1")
	s.Require().NoError(err)
	got.Username = "mallory"

	again, err := s.Store.GetAccount(s.Ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal("alice", again.Username)
}

func (s *Suite) TestUpdateAccountAppliesMutation() {
	s.create("acct-1", "alice@example.com", "alice")

	updated, err := s.Store.UpdateAccount(s.Ctx, "acct-1", func(a *model.Account) error {
		a.LoginCount = 5
		a.Stats.HighScore = 42
		return nil
	})
	s.Require().NoError(err)
	s.EqualValues(5, updated.LoginCount)

	got, err := s.Store.GetAccount(s.Ctx, "acct-1")
	s.Require().NoError(err)
	s.EqualValues(42, got.Stats.HighScore)
}

func (s *Suite) TestUpdateAccountAbortsOnError() {
	s.create("acct-1", "alice@example.com", "alice")
	boom := fmt.Errorf("boom")

	_, err := s.Store.UpdateAccount(s.Ctx, "acct-1", func(a *model.Account) error {
		a.Username = "changed"
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.Store.GetAccount(s.Ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal("alice", got.Username)
}

func (s *Suite) TestUpdateAccountNotFound() {
	_, err := s.Store.UpdateAccount(s.Ctx, "missing", func(a *model.Account) error { return nil })
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *Suite) TestUpdateAccountCannotChangeID() {
	s.create("acct-1", "alice@example.com", "alice")

	updated, err := s.Store.UpdateAccount(s.Ctx, "acct-1", func(a *model.Account) error {
		a.ID = "acct-2"
		return nil
	})
	s.Require().NoError(err)
	s.Equal(model.AccountID("acct-1"), updated.ID)
}

func (s *Suite) TestUpdateAccountMovesIndexes() {
	s.create("acct-1", "alice@example.com", "alice")

	_, err := s.Store.UpdateAccount(s.Ctx, "acct-1", func(a *model.Account) error {
		a.Email = "alice2@example.com"
		a.Username = "alice2"
		return nil
	})
	s.Require().NoError(err)

	_, err = s.Store.GetAccountByEmail(s.Ctx, "alice@example.com")
	s.ErrorIs(err, model.ErrAccountNotFound)
	_, err = s.Store.GetAccountByUsername(s.Ctx, "alice")
	s.ErrorIs(err, model.ErrAccountNotFound)

	got, err := s.Store.GetAccountByUsername(s.Ctx, "alice2")
	s.Require().NoError(err)
	s.Equal("alice2@example.com", got.Email)

	// The released identity can be claimed again
	s.create("acct-2", "alice@example.com", "alice")
}

func (s *Suite) TestUpdateAccountRejectsTakenIdentity() {
	s.create("acct-1", "alice@example.com", "alice")
	s.create("acct-2", "bob@example.com", "bob")

	_, err := s.Store.UpdateAccount(s.Ctx, "acct-2", func(a *model.Account) error {
		a.Username = "alice"
		return nil
	})
	s.ErrorIs(err, model.ErrUsernameTaken)

	_, err = s.Store.UpdateAccount(s.Ctx, "acct-2", func(a *model.Account) error {
		a.Email = "alice@example.com"
		return nil
	})
	s.ErrorIs(err, model.ErrEmailTaken)

	got, err := s.Store.GetAccount(s.Ctx, "acct-2")
	s.Require().NoError(err)
	s.Equal("bob", got.Username)
	s.Equal("bob@example.com", got.Email)
}

func (s *Suite) TestConcurrentUpdatesAreSerialized() {
	s.create("acct-1", "alice@example.com", "alice")

	const workers = 20
	var wg sync.WaitGroup
	var failures atomic.Int32
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Store.UpdateAccount(s.Ctx, "acct-1", func(a *model.Account) error {
				a.LoginCount++
				return nil
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	got, err := s.Store.GetAccount(s.Ctx, "acct-1")
	s.Require().NoError(err)
	s.EqualValues(workers, got.LoginCount)
}

// Leaderboard tests

func (s *Suite) setHighScore(id model.AccountID, score int64) {
	_, err := s.Store.UpdateAccount(s.Ctx, id, func(a *model.Account) error {
		a.Stats.HighScore = score
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestLeaderboardOrdersByHighScore() {
	s.create("acct-a", "a@example.com", "aaa")
	s.create("acct-b", "b@example.com", "bbb")
	s.create("acct-c", "c@example.com", "ccc")
	s.setHighScore("acct-a", 10)
	s.setHighScore("acct-b", 30)
	s.setHighScore("acct-c", 20)

	page, total, err := s.Store.Leaderboard(s.Ctx, 0, 10)
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(page, 3)
	s.Equal(model.AccountID("acct-b"), page[0].ID)
	s.Equal(model.AccountID("acct-c"), page[1].ID)
	s.Equal(model.AccountID("acct-a"), page[2].ID)

	rank, err := s.Store.LeaderboardRank(s.Ctx, "acct-c")
	s.Require().NoError(err)
	s.Equal(2, rank)
}

func (s *Suite) TestLeaderboardTiesOrderedByID() {
	s.create("acct-b", "b@example.com", "bbb")
	s.create("acct-a", "a@example.com", "aaa")
	s.setHighScore("acct-a", 5)
	s.setHighScore("acct-b", 5)

	page, _, err := s.Store.Leaderboard(s.Ctx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(model.AccountID("acct-a"), page[0].ID)
}

func (s *Suite) TestLeaderboardPagination() {
	for i := range 5 {
		id := model.AccountID(fmt.Sprintf("acct-%d", i))
		s.create(string(id), fmt.Sprintf("p%d@example.com", i), fmt.Sprintf("player%d", i))
		s.setHighScore(id, int64(i*10))
	}

	page, total, err := s.Store.Leaderboard(s.Ctx, 2, 2)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(page, 2)
	s.Equal(model.AccountID("acct-2"), page[0].ID)
	s.Equal(model.AccountID("acct-1"), page[1].ID)

	page, _, err = s.Store.Leaderboard(s.Ctx, 10, 2)
	s.Require().NoError(err)
	s.Empty(page)
}

func (s *Suite) TestLeaderboardExcludesInactive() {
	s.create("acct-a", "a@example.com", "aaa")
	s.create("acct-b", "b@example.com", "bbb")
	s.setHighScore("acct-a", 100)

	_, err := s.Store.UpdateAccount(s.Ctx, "acct-a", func(a *model.Account) error {
		a.IsActive = false
		return nil
	})
	s.Require().NoError(err)

	page, total, err := s.Store.Leaderboard(s.Ctx, 0, 10)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(page, 1)
	s.Equal(model.AccountID("acct-b"), page[0].ID)

	_, err = s.Store.LeaderboardRank(s.Ctx, "acct-a")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

// Challenge tests

func (s *Suite) saveChallenge(email, code string) {
	s.Require().NoError(s.Store.SaveChallenge(s.Ctx, &model.Challenge{
		Email:     email,
		Code:      code,
		ExpiresAt: baseTime.Add(10 * time.Minute),
		CreatedAt: baseTime,
	}))
}

func (s *Suite) TestSaveAndGetChallenge() {
	s.saveChallenge("new@example.com", "123456")

	c, err := s.Store.GetChallenge(s.Ctx, "new@example.com")
	s.Require().NoError(err)
	s.Equal("123456", c.Code)
	s.True(c.ExpiresAt.Equal(baseTime.Add(10 * time.Minute)))
	s.False(c.Verified)
}

func (s *Suite) TestGetChallengeNotFound() {
	_, err := s.Store.GetChallenge(s.Ctx, "missing@example.com")
	s.ErrorIs(err, model.ErrChallengeNotFound)
}

func (s *Suite) TestSaveChallengeOverwrites() {
	s.saveChallenge("new@example.com", "111111")
	status, err := s.Store.CheckChallenge(s.Ctx, "new@example.com", "111111", baseTime, model.ChallengeMark)
	s.Require().NoError(err)
	s.Equal(model.ChallengeOK, status)

	s.saveChallenge("new@example.com", "222222")

	status, err = s.Store.CheckChallenge(s.Ctx, "new@example.com", "111111", baseTime, model.ChallengePeek)
	s.Require().NoError(err)
	s.Equal(model.ChallengeMismatch, status)

	c, err := s.Store.GetChallenge(s.Ctx, "new@example.com")
	s.Require().NoError(err)
	s.False(c.Verified)
}

func (s *Suite) TestDeleteChallenge() {
	s.saveChallenge("new@example.com", "123456")
	s.Require().NoError(s.Store.DeleteChallenge(s.Ctx, "new@example.com"))

	_, err := s.Store.GetChallenge(s.Ctx, "new@example.com")
	s.ErrorIs(err, model.ErrChallengeNotFound)
}

func (s *Suite) TestCheckChallengeMissing() {
	status, err := s.Store.CheckChallenge(s.Ctx, "missing@example.com", "123456", baseTime, model.ChallengePeek)
	s.Require().NoError(err)
	s.Equal(model.ChallengeMissing, status)
}

func (s *Suite) TestCheckChallengeMismatchKeepsRecord() {
	s.saveChallenge("new@example.com", "123456")

	status, err := s.Store.CheckChallenge(s.Ctx, "new@example.com", "654321", baseTime, model.ChallengeConsume)
	s.Require().NoError(err)
	s.Equal(model.ChallengeMismatch, status)

	_, err = s.Store.GetChallenge(s.Ctx, "new@example.com")
	s.NoError(err)
}

func (s *Suite) TestCheckChallengeExpiryBeforeEquality() {
	s.saveChallenge("new@example.com", "123456")

	// Valid at exactly the expiry instant
	status, err := s.Store.CheckChallenge(s.Ctx, "new@example.com", "123456", baseTime.Add(10*time.Minute), model.ChallengePeek)
	s.Require().NoError(err)
	s.Equal(model.ChallengeOK, status)

	// Correct code one second late is expired, and the record is removed
	status, err = s.Store.CheckChallenge(s.Ctx, "new@example.com", "123456", baseTime.Add(10*time.Minute+time.Second), model.ChallengePeek)
	s.Require().NoError(err)
	s.Equal(model.ChallengeExpired, status)

	status, err = s.Store.CheckChallenge(s.Ctx, "new@example.com", "123456", baseTime, model.ChallengePeek)
	s.Require().NoError(err)
	s.Equal(model.ChallengeMissing, status)
}

func (s *Suite) TestCheckChallengeMarkOnlyOnce() {
	s.saveChallenge("new@example.com", "123456")

	status, err := s.Store.CheckChallenge(s.Ctx, "new@example.com", "123456", baseTime, model.ChallengeMark)
	s.Require().NoError(err)
	s.Equal(model.ChallengeOK, status)

	status, err = s.Store.CheckChallenge(s.Ctx, "new@example.com", "123456", baseTime, model.ChallengeMark)
	s.Require().NoError(err)
	s.Equal(model.ChallengeUsed, status)

	// A marked challenge can still be consumed once
	status, err = s.Store.CheckChallenge(s.Ctx, "new@example.com", "123456", baseTime, model.ChallengeConsume)
	s.Require().NoError(err)
	s.Equal(model.ChallengeOK, status)
}

func (s *Suite) TestCheckChallengeConsumeHasOneWinner() {
	s.saveChallenge("new@example.com", "123456")

	const workers = 10
	var wg sync.WaitGroup
	var winners atomic.Int32
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := s.Store.CheckChallenge(s.Ctx, "new@example.com", "123456", baseTime, model.ChallengeConsume)
			if err == nil && status == model.ChallengeOK {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(1, winners.Load())
}

// Token denylist tests

func (s *Suite) TestRevokeToken() {
	revoked, err := s.Store.IsTokenRevoked(s.Ctx, "jti-1")
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.Store.RevokeToken(s.Ctx, "jti-1", time.Hour))

	revoked, err = s.Store.IsTokenRevoked(s.Ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.Store.IsTokenRevoked(s.Ctx, "jti-2")
	s.Require().NoError(err)
	s.False(revoked)
}
