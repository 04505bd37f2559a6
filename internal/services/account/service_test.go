package account

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameauth/internal/dependencies/mocks"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/storage/memory"
	"github.com/mcoot/gameauth/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.service = New(s.storage, s.clock, s.random, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) createAccount(id, username string, highScore int64) *model.Account {
	acct := &model.Account{
		ID:        model.AccountID(id),
		Email:     username + "@example.com",
		Username:  username,
		IsActive:  true,
		Stats:     model.GameStats{HighScore: highScore},
		CreatedAt: s.clock.Now(),
		UpdatedAt: s.clock.Now(),
	}
	s.Require().NoError(s.storage.CreateAccount(s.ctx, acct))
	return acct
}

func ptr[T any](v T) *T {
	return &v
}

// Profile tests

func (s *ServiceSuite) TestGetProfile() {
	s.createAccount("acct-1", "alice", 0)

	acct, err := s.service.GetProfile(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal("alice", acct.Username)
}

func (s *ServiceSuite) TestGetProfileMissing() {
	_, err := s.service.GetProfile(s.ctx, "missing")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *ServiceSuite) TestUpdateProfileChangesFields() {
	s.createAccount("acct-1", "alice", 0)
	s.clock.Advance(time.Minute)

	acct, err := s.service.UpdateProfile(s.ctx, "acct-1", ProfileUpdate{
		Username: ptr("alice2"),
		Email:    ptr(" Alice2@Example.com"),
	})
	s.Require().NoError(err)
	s.Equal("alice2", acct.Username)
	s.Equal("alice2@example.com", acct.Email)
	s.True(acct.UpdatedAt.Equal(s.clock.Now()))

	byEmail, err := s.storage.GetAccountByEmail(s.ctx, "alice2@example.com")
	s.Require().NoError(err)
	s.Equal(model.AccountID("acct-1"), byEmail.ID)
}

func (s *ServiceSuite) TestUpdateProfileOnlyUsername() {
	s.createAccount("acct-1", "alice", 0)

	acct, err := s.service.UpdateProfile(s.ctx, "acct-1", ProfileUpdate{Username: ptr("alice2")})
	s.Require().NoError(err)
	s.Equal("alice@example.com", acct.Email)
}

func (s *ServiceSuite) TestUpdateProfileValidation() {
	s.createAccount("acct-1", "alice", 0)

	_, err := s.service.UpdateProfile(s.ctx, "acct-1", ProfileUpdate{Username: ptr("a"), Email: ptr("nope")})
	var verr *model.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Len(verr.Fields, 2)
}

func (s *ServiceSuite) TestUpdateProfileDuplicates() {
	s.createAccount("acct-1", "alice", 0)
	s.createAccount("acct-2", "bob", 0)

	_, err := s.service.UpdateProfile(s.ctx, "acct-2", ProfileUpdate{Username: ptr("alice")})
	s.ErrorIs(err, model.ErrUsernameTaken)

	_, err = s.service.UpdateProfile(s.ctx, "acct-2", ProfileUpdate{Email: ptr("alice@example.com")})
	s.ErrorIs(err, model.ErrEmailTaken)
}

func (s *ServiceSuite) TestDeactivate() {
	s.createAccount("acct-1", "alice", 10)

	s.Require().NoError(s.service.Deactivate(s.ctx, "acct-1"))

	acct, err := s.storage.GetAccount(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.False(acct.IsActive)

	page, err := s.service.Leaderboard(s.ctx, 1, 10, "")
	s.Require().NoError(err)
	s.Empty(page.Entries)
}

// Stats tests

func (s *ServiceSuite) TestUpdateStatsHighScoreIsMonotonic() {
	s.createAccount("acct-1", "alice", 0)

	acct, err := s.service.UpdateStats(s.ctx, "acct-1", StatsUpdate{HighScore: ptr(int64(100))})
	s.Require().NoError(err)
	s.Equal(int64(100), acct.Stats.HighScore)

	acct, err = s.service.UpdateStats(s.ctx, "acct-1", StatsUpdate{HighScore: ptr(int64(50))})
	s.Require().NoError(err)
	s.Equal(int64(100), acct.Stats.HighScore)
}

func (s *ServiceSuite) TestUpdateStatsClampsAndOverwrites() {
	s.createAccount("acct-1", "alice", 0)

	acct, err := s.service.UpdateStats(s.ctx, "acct-1", StatsUpdate{
		TotalPlayTime: ptr(int64(300)),
		GamesPlayed:   ptr(int64(4)),
	})
	s.Require().NoError(err)
	s.Equal(int64(300), acct.Stats.TotalPlayTime)
	s.Equal(int64(4), acct.Stats.GamesPlayed)

	acct, err = s.service.UpdateStats(s.ctx, "acct-1", StatsUpdate{
		TotalPlayTime: ptr(int64(-5)),
		GamesPlayed:   ptr(int64(2)),
	})
	s.Require().NoError(err)
	s.Equal(int64(0), acct.Stats.TotalPlayTime)
	s.Equal(int64(2), acct.Stats.GamesPlayed)
}

func (s *ServiceSuite) TestUpdateStatsEmptyLeavesStats() {
	s.createAccount("acct-1", "alice", 42)

	acct, err := s.service.UpdateStats(s.ctx, "acct-1", StatsUpdate{})
	s.Require().NoError(err)
	s.Equal(int64(42), acct.Stats.HighScore)
}

func (s *ServiceSuite) TestUpdateStatsConcurrentHighScores() {
	s.createAccount("acct-1", "alice", 0)

	var wg sync.WaitGroup
	for _, score := range []int64{100, 50} {
		wg.Add(1)
		go func(score int64) {
			defer wg.Done()
			_, err := s.service.UpdateStats(s.ctx, "acct-1", StatsUpdate{HighScore: ptr(score)})
			s.NoError(err)
		}(score)
	}
	wg.Wait()

	acct, err := s.service.GetStats(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(int64(100), acct.Stats.HighScore)
}

// Session tests

func (s *ServiceSuite) TestStartSessionBumpsLogin() {
	s.createAccount("acct-1", "alice", 0)
	s.random.QueueUUID("session-1")

	sessionID, acct, err := s.service.StartSession(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal("session-1", sessionID)
	s.Equal(int64(1), acct.LoginCount)
	s.Require().NotNil(acct.LastLogin)
	s.True(acct.LastLogin.Equal(s.clock.Now()))
}

// Leaderboard tests

func (s *ServiceSuite) TestLeaderboardRanksAndPages() {
	for i := 1; i <= 25; i++ {
		s.createAccount(fmt.Sprintf("acct-%02d", i), fmt.Sprintf("user%02d", i), int64(i*10))
	}

	page, err := s.service.Leaderboard(s.ctx, 2, 10, "acct-01")
	s.Require().NoError(err)
	s.Equal(2, page.Page)
	s.Equal(10, page.Limit)
	s.Equal(25, page.Total)
	s.Equal(3, page.TotalPages)
	s.Require().Len(page.Entries, 10)
	s.Equal(11, page.Entries[0].Rank)
	s.Equal(int64(150), page.Entries[0].Account.Stats.HighScore)
	s.Equal(25, page.ViewerRank)
}

func (s *ServiceSuite) TestLeaderboardDefaultsAndCaps() {
	s.createAccount("acct-1", "alice", 10)

	page, err := s.service.Leaderboard(s.ctx, 0, 0, "")
	s.Require().NoError(err)
	s.Equal(1, page.Page)
	s.Equal(DefaultLeaderboardLimit, page.Limit)
	s.Zero(page.ViewerRank)

	page, err = s.service.Leaderboard(s.ctx, 1, 1000, "")
	s.Require().NoError(err)
	s.Equal(MaxLeaderboardLimit, page.Limit)
}

func (s *ServiceSuite) TestLeaderboardPastEndIsEmpty() {
	s.createAccount("acct-1", "alice", 10)

	page, err := s.service.Leaderboard(s.ctx, 5, 10, "")
	s.Require().NoError(err)
	s.Empty(page.Entries)
	s.Equal(1, page.Total)
}

func (s *ServiceSuite) TestLeaderboardHugePageIsEmpty() {
	s.createAccount("acct-1", "alice", 10)

	page, err := s.service.Leaderboard(s.ctx, math.MaxInt/10, 100, "")
	s.Require().NoError(err)
	s.Empty(page.Entries)
	s.Equal(math.MaxInt/100, page.Page)
	s.Equal(1, page.Total)
}

func (s *ServiceSuite) TestLeaderboardUnrankedViewer() {
	s.createAccount("acct-1", "alice", 10)

	page, err := s.service.Leaderboard(s.ctx, 1, 10, "ghost")
	s.Require().NoError(err)
	s.Zero(page.ViewerRank)
}
