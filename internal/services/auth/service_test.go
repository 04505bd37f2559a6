package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gameauth/internal/dependencies/mocks"
	"github.com/mcoot/gameauth/internal/metrics"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/services/otp"
	"github.com/mcoot/gameauth/internal/services/password"
	"github.com/mcoot/gameauth/internal/services/token"
	"github.com/mcoot/gameauth/internal/storage/memory"
	logtest "github.com/mcoot/gameauth/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	sender  *mocks.MockSender
	metrics *metrics.Metrics
	tokens  *token.Service
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
	s.sender = mocks.NewMockSender()
	s.metrics = metrics.New()
	s.ctx = context.Background()
	s.newService(DefaultConfig())
}

func (s *ServiceSuite) newService(cfg Config) {
	logger := logtest.NopLogger()

	hasher, err := password.New(bcrypt.MinCost)
	s.Require().NoError(err)

	s.tokens, err = token.New(token.Config{Secret: []byte("test-secret")}, s.clock, s.random)
	s.Require().NoError(err)

	s.service = New(Deps{
		Storage: s.storage,
		Hasher:  hasher,
		Tokens:  s.tokens,
		OTP:     otp.New(s.storage, s.clock, s.random, otp.DefaultConfig(), logger),
		Sender:  s.sender,
		Clock:   s.clock,
		Random:  s.random,
		Metrics: s.metrics,
		Logger:  logger,
	}, cfg)
}

func (s *ServiceSuite) signup(email, username string) *Session {
	session, err := s.service.Signup(s.ctx, SignupInput{
		Email:           email,
		Username:        username,
		Password:        "secret123",
		ConfirmPassword: "secret123",
	})
	s.Require().NoError(err)
	return session
}

func (s *ServiceSuite) fieldNames(err error) []string {
	var verr *model.ValidationError
	s.Require().ErrorAs(err, &verr)
	names := make([]string, len(verr.Fields))
	for i, f := range verr.Fields {
		names[i] = f.Field
	}
	return names
}

// Signup tests

func (s *ServiceSuite) TestSignupCreatesAccountAndToken() {
	session := s.signup("Alice@Example.com ", "alice")

	s.NotEmpty(session.Token)
	s.Equal("alice@example.com", session.Account.Email)
	s.Equal("alice", session.Account.Username)
	s.True(session.Account.IsActive)
	s.Equal(int64(1), session.Account.LoginCount)
	s.Require().NotNil(session.Account.LastLogin)
	s.True(session.Account.LastLogin.Equal(s.clock.Now()))
	s.True(session.ExpiresAt.Equal(s.clock.Now().Add(token.DefaultLifetime)))

	claims, err := s.tokens.Verify(session.Token)
	s.Require().NoError(err)
	s.Equal(session.Account.ID, claims.AccountID())
}

func (s *ServiceSuite) TestSignupStoresHashNotPlaintext() {
	session := s.signup("alice@example.com", "alice")

	stored, err := s.storage.GetAccount(s.ctx, session.Account.ID)
	s.Require().NoError(err)
	s.NotEmpty(stored.PasswordHash)
	s.NotEqual("secret123", stored.PasswordHash)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret123")))
}

func (s *ServiceSuite) TestSignupValidatesEveryField() {
	_, err := s.service.Signup(s.ctx, SignupInput{
		Email:           "not-an-email",
		Username:        "x",
		Password:        "short",
		ConfirmPassword: "different",
	})
	s.ElementsMatch([]string{"email", "username", "password", "confirmPassword"}, s.fieldNames(err))
}

func (s *ServiceSuite) TestSignupRejectsConfirmMismatch() {
	_, err := s.service.Signup(s.ctx, SignupInput{
		Email:           "alice@example.com",
		Username:        "alice",
		Password:        "secret123",
		ConfirmPassword: "secret124",
	})
	s.Equal([]string{"confirmPassword"}, s.fieldNames(err))

	_, err = s.storage.GetAccountByEmail(s.ctx, "alice@example.com")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *ServiceSuite) TestSignupDuplicateEmail() {
	s.signup("alice@example.com", "alice")

	_, err := s.service.Signup(s.ctx, SignupInput{
		Email: "ALICE@example.com", Username: "alice2", Password: "secret123", ConfirmPassword: "secret123",
	})
	s.ErrorIs(err, model.ErrEmailTaken)
}

func (s *ServiceSuite) TestSignupDuplicateUsername() {
	s.signup("alice@example.com", "alice")

	_, err := s.service.Signup(s.ctx, SignupInput{
		Email: "other@example.com", Username: "alice", Password: "secret123", ConfirmPassword: "secret123",
	})
	s.ErrorIs(err, model.ErrUsernameTaken)
}

func (s *ServiceSuite) TestSignupDropsPendingChallenge() {
	s.sendCode("alice@example.com", 123456)
	s.signup("alice@example.com", "alice")

	_, err := s.storage.GetChallenge(s.ctx, "alice@example.com")
	s.ErrorIs(err, model.ErrChallengeNotFound)

	// The code now routes to the existing account, which has no OTP issued
	_, err = s.service.VerifyOTP(s.ctx, "alice@example.com", "123456", "alice2")
	s.Error(err)
	_, err = s.storage.GetAccountByUsername(s.ctx, "alice2")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *ServiceSuite) TestSignupRecordsMetrics() {
	s.signup("alice@example.com", "alice")
	_, _ = s.service.Signup(s.ctx, SignupInput{Email: "bad"})

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.AuthEvents.WithLabelValues(metrics.EventSignup, "success")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.AuthEvents.WithLabelValues(metrics.EventSignup, "failure")))
}

// Login tests

func (s *ServiceSuite) TestLoginSucceeds() {
	created := s.signup("alice@example.com", "alice")
	s.clock.Advance(time.Hour)

	session, err := s.service.Login(s.ctx, " ALICE@example.com", "secret123")
	s.Require().NoError(err)
	s.Equal(created.Account.ID, session.Account.ID)
	s.Equal(int64(2), session.Account.LoginCount)
	s.True(session.Account.LastLogin.Equal(s.clock.Now()))
}

func (s *ServiceSuite) TestLoginFailuresAreGeneric() {
	s.signup("alice@example.com", "alice")

	_, err := s.service.Login(s.ctx, "alice@example.com", "wrong123")
	s.ErrorIs(err, ErrInvalidCredentials)

	_, err = s.service.Login(s.ctx, "nobody@example.com", "secret123")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginRejectsInactiveAccount() {
	session := s.signup("alice@example.com", "alice")
	_, err := s.storage.UpdateAccount(s.ctx, session.Account.ID, func(a *model.Account) error {
		a.IsActive = false
		return nil
	})
	s.Require().NoError(err)

	_, err = s.service.Login(s.ctx, "alice@example.com", "secret123")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginRejectsOTPOnlyAccount() {
	s.createViaOTP("otp@example.com", "otpuser")

	_, err := s.service.Login(s.ctx, "otp@example.com", "")
	s.ErrorIs(err, ErrInvalidCredentials)
}

// SendOTP tests

func (s *ServiceSuite) TestSendOTPNewUser() {
	isNew, err := s.service.SendOTP(s.ctx, "New@Example.com")
	s.Require().NoError(err)
	s.True(isNew)

	sent := s.sender.Sent()
	s.Require().Len(sent, 1)
	s.Equal("new@example.com", sent[0].Email)
	s.Equal("100000", sent[0].Code)
	s.Equal(otp.DefaultTTL, sent[0].TTL)
}

func (s *ServiceSuite) TestSendOTPExistingUser() {
	s.signup("alice@example.com", "alice")

	isNew, err := s.service.SendOTP(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.False(isNew)
}

func (s *ServiceSuite) TestSendOTPRejectsInvalidEmail() {
	_, err := s.service.SendOTP(s.ctx, "nope")
	s.Equal([]string{"email"}, s.fieldNames(err))
	s.Empty(s.sender.Sent())
}

func (s *ServiceSuite) TestSendOTPDeliveryFailure() {
	s.sender.FailWith(errors.New("smtp down"))

	_, err := s.service.SendOTP(s.ctx, "new@example.com")
	s.ErrorIs(err, ErrNotificationFailed)
}

// VerifyOTP tests

func (s *ServiceSuite) sendCode(email string, code int) {
	s.random.QueueIntn(code - 100000)
	_, err := s.service.SendOTP(s.ctx, email)
	s.Require().NoError(err)
}

func (s *ServiceSuite) createViaOTP(email, username string) *OTPResult {
	s.sendCode(email, 123456)
	result, err := s.service.VerifyOTP(s.ctx, email, "123456", username)
	s.Require().NoError(err)
	return result
}

func (s *ServiceSuite) TestVerifyOTPExistingAccountLogsIn() {
	created := s.signup("alice@example.com", "alice")
	s.sendCode("alice@example.com", 654321)

	result, err := s.service.VerifyOTP(s.ctx, "alice@example.com", "654321", "")
	s.Require().NoError(err)
	s.False(result.NeedsUsername)
	s.False(result.Created)
	s.Require().NotNil(result.Session)
	s.Equal(created.Account.ID, result.Session.Account.ID)
	s.Equal(int64(2), result.Session.Account.LoginCount)
	s.False(result.Session.Account.HasOTP())
}

func (s *ServiceSuite) TestVerifyOTPExistingAccountCodeIsSingleUse() {
	s.signup("alice@example.com", "alice")
	s.sendCode("alice@example.com", 654321)

	_, err := s.service.VerifyOTP(s.ctx, "alice@example.com", "654321", "")
	s.Require().NoError(err)

	_, err = s.service.VerifyOTP(s.ctx, "alice@example.com", "654321", "")
	s.ErrorIs(err, model.ErrChallengeNotFound)
}

func (s *ServiceSuite) TestVerifyOTPWrongCodeKeepsCode() {
	s.signup("alice@example.com", "alice")
	s.sendCode("alice@example.com", 654321)

	_, err := s.service.VerifyOTP(s.ctx, "alice@example.com", "111111", "")
	s.ErrorIs(err, model.ErrChallengeInvalid)

	_, err = s.service.VerifyOTP(s.ctx, "alice@example.com", "654321", "")
	s.NoError(err)
}

func (s *ServiceSuite) TestVerifyOTPExpiredEvenWhenEqual() {
	s.signup("alice@example.com", "alice")
	s.sendCode("alice@example.com", 654321)
	s.clock.Advance(otp.DefaultTTL + time.Second)

	_, err := s.service.VerifyOTP(s.ctx, "alice@example.com", "654321", "")
	s.ErrorIs(err, model.ErrChallengeExpired)
}

func (s *ServiceSuite) TestVerifyOTPInactiveAccount() {
	created := s.signup("alice@example.com", "alice")
	s.sendCode("alice@example.com", 654321)
	_, err := s.storage.UpdateAccount(s.ctx, created.Account.ID, func(a *model.Account) error {
		a.IsActive = false
		return nil
	})
	s.Require().NoError(err)

	_, err = s.service.VerifyOTP(s.ctx, "alice@example.com", "654321", "")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestVerifyOTPNewUserNeedsUsername() {
	s.sendCode("new@example.com", 123456)

	result, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "")
	s.Require().NoError(err)
	s.True(result.NeedsUsername)
	s.Equal("new@example.com", result.Email)
	s.Nil(result.Session)

	_, err = s.storage.GetAccountByEmail(s.ctx, "new@example.com")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *ServiceSuite) TestVerifyOTPNewUserSecondUsernamelessVerifyFails() {
	s.sendCode("new@example.com", 123456)

	_, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "")
	s.Require().NoError(err)

	_, err = s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "")
	s.ErrorIs(err, model.ErrChallengeInvalid)
}

func (s *ServiceSuite) TestVerifyOTPNewUserWithUsernameCreatesAccount() {
	s.sendCode("new@example.com", 123456)
	_, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "")
	s.Require().NoError(err)

	result, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "newbie")
	s.Require().NoError(err)
	s.True(result.Created)
	s.Require().NotNil(result.Session)
	s.Equal("newbie", result.Session.Account.Username)
	s.False(result.Session.Account.HasPassword())
	s.Equal(int64(1), result.Session.Account.LoginCount)

	_, err = s.storage.GetChallenge(s.ctx, "new@example.com")
	s.ErrorIs(err, model.ErrChallengeNotFound)

	_, err = s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "another")
	s.Error(err)
}

func (s *ServiceSuite) TestVerifyOTPNewUserDirectWithUsername() {
	result := s.createViaOTP("new@example.com", "newbie")
	s.True(result.Created)
}

func (s *ServiceSuite) TestVerifyOTPUsernameTakenLeavesCodeUsable() {
	s.signup("alice@example.com", "alice")
	s.sendCode("new@example.com", 123456)

	_, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "alice")
	s.ErrorIs(err, model.ErrUsernameTaken)

	result, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "bob")
	s.Require().NoError(err)
	s.True(result.Created)
}

func (s *ServiceSuite) TestVerifyOTPValidatesInput() {
	_, err := s.service.VerifyOTP(s.ctx, "bad", "12ab", "x")
	s.ElementsMatch([]string{"email", "otp"}, s.fieldNames(err))
}

func (s *ServiceSuite) TestVerifyOTPInvalidUsernameLeavesCodeUsable() {
	s.sendCode("new@example.com", 123456)

	_, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "x!")
	s.Equal([]string{"username"}, s.fieldNames(err))

	result, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "newbie")
	s.Require().NoError(err)
	s.True(result.Created)
}

func (s *ServiceSuite) TestVerifyOTPExistingAccountIgnoresUsername() {
	created := s.signup("alice@example.com", "alice")
	s.sendCode("alice@example.com", 654321)

	result, err := s.service.VerifyOTP(s.ctx, "alice@example.com", "654321", "x!")
	s.Require().NoError(err)
	s.False(result.Created)
	s.Require().NotNil(result.Session)
	s.Equal(created.Account.ID, result.Session.Account.ID)
	s.Equal("alice", result.Session.Account.Username)
}

func (s *ServiceSuite) TestVerifyOTPNoChallenge() {
	_, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", "")
	s.ErrorIs(err, model.ErrChallengeNotFound)
}

func (s *ServiceSuite) TestVerifyOTPConcurrentCreateHasOneWinner() {
	s.sendCode("new@example.com", 123456)

	const workers = 10
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			username := []string{"racer_a", "racer_b", "racer_c", "racer_d", "racer_e",
				"racer_f", "racer_g", "racer_h", "racer_i", "racer_j"}[i]
			if _, err := s.service.VerifyOTP(s.ctx, "new@example.com", "123456", username); err == nil {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
}

// Logout tests

func (s *ServiceSuite) TestLogoutWithoutDenylistKeepsTokenValid() {
	session := s.signup("alice@example.com", "alice")
	identity, err := s.service.Authenticate(s.ctx, session.Token)
	s.Require().NoError(err)

	s.service.Logout(s.ctx, identity.Claims)

	_, err = s.service.Authenticate(s.ctx, session.Token)
	s.NoError(err)
}

func (s *ServiceSuite) TestLogoutWithDenylistRevokesToken() {
	s.newService(Config{Denylist: true})
	session := s.signup("alice@example.com", "alice")
	identity, err := s.service.Authenticate(s.ctx, session.Token)
	s.Require().NoError(err)

	s.service.Logout(s.ctx, identity.Claims)

	_, err = s.service.Authenticate(s.ctx, session.Token)
	s.ErrorIs(err, token.ErrTokenRevoked)
}

func (s *ServiceSuite) TestLogoutNilClaimsIsNoop() {
	s.newService(Config{Denylist: true})
	s.NotPanics(func() { s.service.Logout(s.ctx, nil) })
}

// ChangePassword tests

func (s *ServiceSuite) TestChangePasswordSucceeds() {
	session := s.signup("alice@example.com", "alice")

	err := s.service.ChangePassword(s.ctx, session.Account.ID, "secret123", "newpass456", "newpass456")
	s.Require().NoError(err)

	_, err = s.service.Login(s.ctx, "alice@example.com", "secret123")
	s.ErrorIs(err, ErrInvalidCredentials)
	_, err = s.service.Login(s.ctx, "alice@example.com", "newpass456")
	s.NoError(err)

	// Existing tokens survive a password change
	_, err = s.service.Authenticate(s.ctx, session.Token)
	s.NoError(err)
}

func (s *ServiceSuite) TestChangePasswordWrongCurrent() {
	session := s.signup("alice@example.com", "alice")

	err := s.service.ChangePassword(s.ctx, session.Account.ID, "wrong123", "newpass456", "newpass456")
	s.ErrorIs(err, ErrWrongPassword)
}

func (s *ServiceSuite) TestChangePasswordConfirmMismatch() {
	session := s.signup("alice@example.com", "alice")

	err := s.service.ChangePassword(s.ctx, session.Account.ID, "secret123", "newpass456", "newpass457")
	s.ErrorIs(err, ErrPasswordMismatch)
}

func (s *ServiceSuite) TestChangePasswordWeakPassword() {
	session := s.signup("alice@example.com", "alice")

	err := s.service.ChangePassword(s.ctx, session.Account.ID, "secret123", "abc", "abc")
	s.Equal([]string{"newPassword"}, s.fieldNames(err))
}

func (s *ServiceSuite) TestChangePasswordSameValueRehashes() {
	session := s.signup("alice@example.com", "alice")
	before, err := s.storage.GetAccount(s.ctx, session.Account.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.service.ChangePassword(s.ctx, session.Account.ID, "secret123", "secret123", "secret123"))

	after, err := s.storage.GetAccount(s.ctx, session.Account.ID)
	s.Require().NoError(err)
	s.NotEqual(before.PasswordHash, after.PasswordHash)
}

// Refresh tests

func (s *ServiceSuite) TestRefreshIssuesNewToken() {
	session := s.signup("alice@example.com", "alice")
	s.clock.Advance(time.Hour)

	refreshed, err := s.service.Refresh(s.ctx, session.Account.ID)
	s.Require().NoError(err)
	s.NotEqual(session.Token, refreshed.Token)
	s.True(refreshed.ExpiresAt.After(session.ExpiresAt))

	_, err = s.service.Authenticate(s.ctx, session.Token)
	s.NoError(err)
}

func (s *ServiceSuite) TestRefreshUnknownAccount() {
	_, err := s.service.Refresh(s.ctx, "missing")
	s.ErrorIs(err, ErrAccountUnavailable)
}

// Authenticate tests

func (s *ServiceSuite) TestAuthenticateResolvesAccount() {
	session := s.signup("alice@example.com", "alice")

	identity, err := s.service.Authenticate(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal(session.Account.ID, identity.Account.ID)
	s.Equal(session.TokenID, identity.Claims.ID)
}

func (s *ServiceSuite) TestAuthenticateMissingToken() {
	_, err := s.service.Authenticate(s.ctx, "")
	s.ErrorIs(err, token.ErrTokenMissing)
}

func (s *ServiceSuite) TestAuthenticateExpiryBoundary() {
	session := s.signup("alice@example.com", "alice")

	s.clock.Advance(token.DefaultLifetime - time.Second)
	_, err := s.service.Authenticate(s.ctx, session.Token)
	s.NoError(err)

	s.clock.Advance(2 * time.Second)
	_, err = s.service.Authenticate(s.ctx, session.Token)
	s.ErrorIs(err, token.ErrTokenExpired)
}

func (s *ServiceSuite) TestAuthenticateDeactivatedAccount() {
	session := s.signup("alice@example.com", "alice")
	_, err := s.storage.UpdateAccount(s.ctx, session.Account.ID, func(a *model.Account) error {
		a.IsActive = false
		return nil
	})
	s.Require().NoError(err)

	_, err = s.service.Authenticate(s.ctx, session.Token)
	s.ErrorIs(err, ErrAccountUnavailable)
}

func (s *ServiceSuite) TestAuthenticateTokenForUnknownAccount() {
	issued, err := s.tokens.Issue("ghost")
	s.Require().NoError(err)

	_, err = s.service.Authenticate(s.ctx, issued.Token)
	s.ErrorIs(err, ErrAccountUnavailable)
}

func (s *ServiceSuite) TestLifetimeLabelDefaults() {
	s.Equal("7d", s.service.LifetimeLabel())
}
