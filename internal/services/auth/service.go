package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcoot/gameauth/internal/dependencies/clock"
	"github.com/mcoot/gameauth/internal/dependencies/random"
	"github.com/mcoot/gameauth/internal/metrics"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/services/notify"
	"github.com/mcoot/gameauth/internal/services/otp"
	"github.com/mcoot/gameauth/internal/services/password"
	"github.com/mcoot/gameauth/internal/services/token"
	"github.com/mcoot/gameauth/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrNotificationFailed = errors.New("failed to send verification code")
	ErrAccountUnavailable = errors.New("account not found or inactive")
)

// Session is an authenticated account plus the token minted for it
type Session struct {
	Account   *model.Account
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Identity is what a verified bearer token resolves to
type Identity struct {
	Account *model.Account
	Claims  *token.Claims
}

// SignupInput holds the fields of a password signup
type SignupInput struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
}

// OTPResult is the outcome of a successful code verification.
// Either NeedsUsername is set or Session is populated.
type OTPResult struct {
	Email         string
	NeedsUsername bool
	// Created is true when the verification created a new account
	Created bool
	Session *Session
}

// Config holds configuration for the auth service
type Config struct {
	// LifetimeLabel is echoed to clients as expiresIn, e.g. "7d"
	LifetimeLabel string
	// Denylist enables token revocation on logout
	Denylist bool
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{LifetimeLabel: "7d"}
}

// Deps are the collaborators of the auth service
type Deps struct {
	Storage storage.Storage
	Hasher  *password.Hasher
	Tokens  *token.Service
	OTP     *otp.Manager
	Sender  notify.Sender
	Clock   clock.Clock
	Random  random.Random
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Service drives the signup, login and one-time-code flows and resolves
// bearer tokens to accounts.
type Service struct {
	storage storage.Storage
	hasher  *password.Hasher
	tokens  *token.Service
	otp     *otp.Manager
	sender  notify.Sender
	clock   clock.Clock
	random  random.Random
	metrics *metrics.Metrics
	logger  *slog.Logger

	lifetimeLabel string
	denylist      bool
}

// New creates a new auth service
func New(deps Deps, cfg Config) *Service {
	if cfg.LifetimeLabel == "" {
		cfg.LifetimeLabel = DefaultConfig().LifetimeLabel
	}
	return &Service{
		storage:       deps.Storage,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		otp:           deps.OTP,
		sender:        deps.Sender,
		clock:         deps.Clock,
		random:        deps.Random,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		lifetimeLabel: cfg.LifetimeLabel,
		denylist:      cfg.Denylist,
	}
}

// LifetimeLabel returns the configured token lifetime as shown to clients
func (s *Service) LifetimeLabel() string {
	return s.lifetimeLabel
}

// Signup creates a password account and logs it in
func (s *Service) Signup(ctx context.Context, in SignupInput) (session *Session, err error) {
	defer func() { s.metrics.RecordAuthEvent(metrics.EventSignup, err) }()

	email := model.NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	verr := &model.ValidationError{}
	if !model.ValidEmail(email) {
		verr.Add("email", "Please provide a valid email", in.Email)
	}
	if !model.ValidUsername(username) {
		verr.Add("username", "Username must be 3-20 characters of letters, numbers, underscores or hyphens", in.Username)
	}
	if !model.ValidPassword(in.Password) {
		verr.Add("password", "Password must be 6-72 characters and contain a letter and a number", nil)
	}
	if in.Password != in.ConfirmPassword {
		verr.Add("confirmPassword", "Passwords do not match", nil)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	acct := &model.Account{
		ID:        model.AccountID(s.random.UUID()),
		Email:     email,
		Username:  username,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	acct.RecordLogin(now)
	if err := s.hasher.HashIfChanged(acct, in.Password); err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	if err := s.storage.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	// A pending code for this email can no longer create an account
	if err := s.storage.DeleteChallenge(ctx, email); err != nil {
		s.logger.Warn("dropping pending challenge failed",
			slog.String("account_id", string(acct.ID)),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("account created",
		slog.String("account_id", string(acct.ID)),
		slog.String("method", "password"),
	)

	return s.newSession(acct)
}

// Login verifies an email and password. Every failure is reported as
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, plaintext string) (session *Session, err error) {
	defer func() { s.metrics.RecordAuthEvent(metrics.EventLogin, err) }()

	email = model.NormalizeEmail(email)
	acct, err := s.storage.GetAccountByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrAccountNotFound) {
		return nil, err
	}
	if err != nil || !acct.IsActive {
		s.hasher.Verify(nil, plaintext)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(acct, plaintext) {
		return nil, ErrInvalidCredentials
	}

	updated, err := s.recordLogin(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login", slog.String("account_id", string(updated.ID)), slog.String("method", "password"))
	return s.newSession(updated)
}

// SendOTP issues a one-time code for email and delivers it. It reports
// whether the email belongs to no account yet.
func (s *Service) SendOTP(ctx context.Context, email string) (isNewUser bool, err error) {
	defer func() { s.metrics.RecordAuthEvent(metrics.EventOTPSend, err) }()

	normalized := model.NormalizeEmail(email)
	if !model.ValidEmail(normalized) {
		return false, model.NewValidationError("email", "Please provide a valid email", email)
	}

	issued, err := s.otp.Issue(ctx, normalized)
	if err != nil {
		return false, err
	}

	if err := s.sender.SendOTP(ctx, normalized, issued.Code, s.otp.TTL()); err != nil {
		s.logger.Error("otp delivery failed", slog.String("error", err.Error()))
		return false, fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	return issued.IsNewUser, nil
}

// VerifyOTP checks a one-time code. Existing accounts are logged in.
// Unseen emails either get NeedsUsername, or with a username an account
// is created and logged in.
func (s *Service) VerifyOTP(ctx context.Context, email, code, username string) (result *OTPResult, err error) {
	defer func() { s.metrics.RecordAuthEvent(metrics.EventOTPVerify, err) }()

	normalized := model.NormalizeEmail(email)
	username = strings.TrimSpace(username)

	verr := &model.ValidationError{}
	if !model.ValidEmail(normalized) {
		verr.Add("email", "Please provide a valid email", email)
	}
	if !model.ValidOTPCode(code) {
		verr.Add("otp", "OTP must be 6 digits", code)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	acct, err := s.storage.GetAccountByEmail(ctx, normalized)
	switch {
	case err == nil:
		return s.verifyExisting(ctx, acct, code)
	case errors.Is(err, model.ErrAccountNotFound):
		if username == "" {
			return s.verifyPending(ctx, normalized, code)
		}
		return s.createFromPending(ctx, normalized, code, username)
	default:
		return nil, err
	}
}

func (s *Service) verifyExisting(ctx context.Context, acct *model.Account, code string) (*OTPResult, error) {
	if !acct.IsActive {
		return nil, ErrInvalidCredentials
	}

	outcome, _, err := s.otp.VerifyAccount(ctx, acct.ID, code)
	if err != nil {
		return nil, err
	}
	if outcome != otp.Valid {
		return nil, outcome.Err()
	}

	updated, err := s.recordLogin(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	session, err := s.newSession(updated)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login", slog.String("account_id", string(updated.ID)), slog.String("method", "otp"))
	return &OTPResult{Email: updated.Email, Session: session}, nil
}

func (s *Service) verifyPending(ctx context.Context, email, code string) (*OTPResult, error) {
	outcome, err := s.otp.VerifyPending(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if outcome != otp.Valid {
		return nil, outcome.Err()
	}
	return &OTPResult{Email: email, NeedsUsername: true}, nil
}

// createFromPending checks the username before consuming the challenge so
// an invalid or taken username leaves the code usable.
func (s *Service) createFromPending(ctx context.Context, email, code, username string) (*OTPResult, error) {
	if !model.ValidUsername(username) {
		verr := &model.ValidationError{}
		verr.Add("username", "Username must be 3-20 characters of letters, numbers, underscores or hyphens", username)
		return nil, verr.Err()
	}

	_, err := s.storage.GetAccountByUsername(ctx, username)
	if err == nil {
		return nil, model.ErrUsernameTaken
	}
	if !errors.Is(err, model.ErrAccountNotFound) {
		return nil, err
	}

	outcome, err := s.otp.CheckPending(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if outcome != otp.Valid {
		return nil, outcome.Err()
	}

	outcome, err = s.otp.ConsumePending(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if outcome != otp.Valid {
		return nil, outcome.Err()
	}

	now := s.clock.Now()
	acct := &model.Account{
		ID:        model.AccountID(s.random.UUID()),
		Email:     email,
		Username:  username,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	acct.RecordLogin(now)

	if err := s.storage.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	session, err := s.newSession(acct)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		slog.String("account_id", string(acct.ID)),
		slog.String("method", "otp"),
	)
	return &OTPResult{Email: email, Created: true, Session: session}, nil
}

// Logout revokes the token when the denylist is enabled. It never fails;
// a revocation error is only logged.
func (s *Service) Logout(ctx context.Context, claims *token.Claims) {
	s.metrics.RecordAuthEvent(metrics.EventLogout, nil)
	if !s.denylist || claims == nil || claims.ExpiresAt == nil {
		return
	}

	ttl := claims.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return
	}
	if err := s.storage.RevokeToken(ctx, claims.ID, ttl); err != nil {
		s.logger.Warn("token revocation failed",
			slog.String("account_id", claims.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// ChangePassword re-verifies the current password and stores a new hash.
// Existing tokens remain valid.
func (s *Service) ChangePassword(ctx context.Context, id model.AccountID, current, next, confirm string) (err error) {
	defer func() { s.metrics.RecordAuthEvent(metrics.EventChangePassword, err) }()

	verr := &model.ValidationError{}
	if current == "" {
		verr.Add("currentPassword", "Current password is required", nil)
	}
	if !model.ValidPassword(next) {
		verr.Add("newPassword", "Password must be 6-72 characters and contain a letter and a number", nil)
	}
	if err := verr.Err(); err != nil {
		return err
	}
	if next != confirm {
		return ErrPasswordMismatch
	}

	acct, err := s.storage.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(acct, current) {
		return ErrWrongPassword
	}

	// Hash outside the update so a retried transaction does not re-run bcrypt
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := s.clock.Now()
	_, err = s.storage.UpdateAccount(ctx, id, func(a *model.Account) error {
		if a.PasswordHash != acct.PasswordHash {
			return ErrWrongPassword
		}
		a.PasswordHash = hash
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("password changed", slog.String("account_id", string(id)))
	return nil
}

// Refresh mints a fresh token for an authenticated account. The old token
// stays valid until it expires.
func (s *Service) Refresh(ctx context.Context, id model.AccountID) (session *Session, err error) {
	defer func() { s.metrics.RecordAuthEvent(metrics.EventRefresh, err) }()

	acct, err := s.storage.GetAccount(ctx, id)
	if errors.Is(err, model.ErrAccountNotFound) {
		return nil, ErrAccountUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, ErrAccountUnavailable
	}
	return s.newSession(acct)
}

// Authenticate resolves a bearer token to a live, active account
func (s *Service) Authenticate(ctx context.Context, tokenStr string) (identity *Identity, err error) {
	defer func() {
		if err != nil {
			s.metrics.RecordAuthEvent(metrics.EventAuthenticate, err)
		}
	}()

	claims, err := s.tokens.Verify(tokenStr)
	if err != nil {
		return nil, err
	}

	if s.denylist {
		revoked, err := s.storage.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, token.ErrTokenRevoked
		}
	}

	acct, err := s.storage.GetAccount(ctx, claims.AccountID())
	if errors.Is(err, model.ErrAccountNotFound) {
		return nil, ErrAccountUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, ErrAccountUnavailable
	}

	return &Identity{Account: acct, Claims: claims}, nil
}

func (s *Service) recordLogin(ctx context.Context, id model.AccountID) (*model.Account, error) {
	now := s.clock.Now()
	return s.storage.UpdateAccount(ctx, id, func(a *model.Account) error {
		a.RecordLogin(now)
		a.UpdatedAt = now
		return nil
	})
}

func (s *Service) newSession(acct *model.Account) (*Session, error) {
	issued, err := s.tokens.Issue(acct.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		Account:   acct,
		Token:     issued.Token,
		TokenID:   issued.ID,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}
