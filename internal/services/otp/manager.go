package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mcoot/gameauth/internal/dependencies/clock"
	"github.com/mcoot/gameauth/internal/dependencies/random"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/storage"
)

// DefaultTTL is how long an issued code stays valid
const DefaultTTL = 10 * time.Minute

// Outcome is the result of checking a submitted code
type Outcome int

const (
	Valid Outcome = iota
	Invalid
	Expired
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Expired:
		return "expired"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Err returns the model error for a failed outcome, or nil for Valid
func (o Outcome) Err() error {
	switch o {
	case Valid:
		return nil
	case Expired:
		return model.ErrChallengeExpired
	case NotFound:
		return model.ErrChallengeNotFound
	default:
		return model.ErrChallengeInvalid
	}
}

func outcomeFromStatus(status model.ChallengeStatus) Outcome {
	switch status {
	case model.ChallengeOK:
		return Valid
	case model.ChallengeExpired:
		return Expired
	case model.ChallengeMissing:
		return NotFound
	default:
		return Invalid
	}
}

// Issued describes a newly generated code
type Issued struct {
	Code      string
	ExpiresAt time.Time
	// IsNewUser is true when no account exists for the email
	IsNewUser bool
	// Account is the updated account when one exists
	Account *model.Account
}

// Config holds configuration for the OTP manager
type Config struct {
	TTL time.Duration
}

// DefaultConfig returns default OTP configuration
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL}
}

// Manager generates, stores and verifies six-digit one-time codes.
// Codes for existing accounts live on the account record; codes for
// unseen emails live in a pending challenge.
type Manager struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates a new OTP manager
func New(store storage.Storage, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Manager{
		storage: store,
		clock:   clk,
		random:  rnd,
		ttl:     cfg.TTL,
		logger:  logger,
	}
}

// TTL returns the code lifetime
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// errNoWrite aborts an account update without it being a failure
var errNoWrite = errors.New("no write")

// Issue generates a fresh code for email, replacing any earlier one.
// Inactive accounts receive a code too so the response does not reveal
// account state.
func (m *Manager) Issue(ctx context.Context, email string) (*Issued, error) {
	code := m.generateCode()
	now := m.clock.Now()
	expiresAt := now.Add(m.ttl)

	acct, err := m.storage.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		updated, err := m.storage.UpdateAccount(ctx, acct.ID, func(a *model.Account) error {
			exp := expiresAt
			a.OTPCode = code
			a.OTPExpiry = &exp
			a.UpdatedAt = now
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("attaching code to account: %w", err)
		}
		m.logger.Debug("otp issued", slog.String("account_id", string(updated.ID)))
		return &Issued{Code: code, ExpiresAt: expiresAt, Account: updated}, nil

	case errors.Is(err, model.ErrAccountNotFound):
		err := m.storage.SaveChallenge(ctx, &model.Challenge{
			Email:     email,
			Code:      code,
			ExpiresAt: expiresAt,
			CreatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("saving pending challenge: %w", err)
		}
		m.logger.Debug("otp issued for new email")
		return &Issued{Code: code, ExpiresAt: expiresAt, IsNewUser: true}, nil

	default:
		return nil, err
	}
}

// VerifyAccount checks code against the account's attached code and clears
// it on success. An expired code is cleared as well. Mismatches leave the
// account untouched so the user can retry.
func (m *Manager) VerifyAccount(ctx context.Context, id model.AccountID, code string) (Outcome, *model.Account, error) {
	now := m.clock.Now()
	var outcome Outcome

	updated, err := m.storage.UpdateAccount(ctx, id, func(a *model.Account) error {
		outcome = checkAccountCode(a, code, now)
		switch outcome {
		case Valid, Expired:
			a.ClearOTP()
			a.UpdatedAt = now
			return nil
		default:
			return errNoWrite
		}
	})
	if errors.Is(err, errNoWrite) {
		return outcome, nil, nil
	}
	if err != nil {
		return Invalid, nil, err
	}
	if outcome != Valid {
		return outcome, nil, nil
	}
	return Valid, updated, nil
}

// checkAccountCode evaluates expiry before equality
func checkAccountCode(a *model.Account, code string, now time.Time) Outcome {
	if !a.HasOTP() {
		return NotFound
	}
	if now.After(*a.OTPExpiry) {
		return Expired
	}
	if subtle.ConstantTimeCompare([]byte(a.OTPCode), []byte(code)) != 1 {
		return Invalid
	}
	return Valid
}

// VerifyPending marks a pending challenge as verified. It succeeds at most
// once per issued code.
func (m *Manager) VerifyPending(ctx context.Context, email, code string) (Outcome, error) {
	return m.checkPending(ctx, email, code, model.ChallengeMark)
}

// CheckPending validates a pending code without changing it
func (m *Manager) CheckPending(ctx context.Context, email, code string) (Outcome, error) {
	return m.checkPending(ctx, email, code, model.ChallengePeek)
}

// ConsumePending validates and deletes a pending challenge. Exactly one of
// any number of concurrent callers gets Valid.
func (m *Manager) ConsumePending(ctx context.Context, email, code string) (Outcome, error) {
	return m.checkPending(ctx, email, code, model.ChallengeConsume)
}

func (m *Manager) checkPending(ctx context.Context, email, code string, action model.ChallengeAction) (Outcome, error) {
	status, err := m.storage.CheckChallenge(ctx, email, code, m.clock.Now(), action)
	if err != nil {
		return Invalid, fmt.Errorf("checking pending challenge: %w", err)
	}
	return outcomeFromStatus(status), nil
}

// generateCode returns a uniformly random code in 100000-999999
func (m *Manager) generateCode() string {
	return strconv.Itoa(100000 + m.random.Intn(900000))
}
