package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcoot/gameauth/internal/dependencies/clock"
	"github.com/mcoot/gameauth/internal/dependencies/random"
	"github.com/mcoot/gameauth/internal/model"
)

// Errors
var (
	ErrTokenMissing          = errors.New("no token provided")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenRevoked          = errors.New("token revoked")
)

// DefaultLifetime is how long issued tokens stay valid
const DefaultLifetime = 7 * 24 * time.Hour

// Claims is the signed token payload
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// AccountID returns the subject account
func (c *Claims) AccountID() model.AccountID {
	return model.AccountID(c.UserID)
}

// Issued is a freshly signed token
type Issued struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config holds configuration for the token service
type Config struct {
	Secret   []byte
	Lifetime time.Duration
}

// Service issues and verifies HS256 bearer tokens. It is stateless apart
// from the injected clock and randomness.
type Service struct {
	secret   []byte
	lifetime time.Duration
	clock    clock.Clock
	random   random.Random
	parser   *jwt.Parser
}

// New creates a token service
func New(cfg Config, clk clock.Clock, rnd random.Random) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	return &Service{
		secret:   cfg.Secret,
		lifetime: cfg.Lifetime,
		clock:    clk,
		random:   rnd,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		),
	}, nil
}

// Lifetime returns how long issued tokens are valid
func (s *Service) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token for the given account
func (s *Service) Issue(id model.AccountID) (*Issued, error) {
	now := s.clock.Now()
	claims := Claims{
		UserID: string(id),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.random.UUID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &Issued{
		Token:     signed,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature and expiry and returns the claims.
// Failures are one of ErrTokenMissing, ErrTokenMalformed,
// ErrTokenSignatureInvalid or ErrTokenExpired.
func (s *Service) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenMissing
	}

	var claims Claims
	_, err := s.parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if claims.UserID == "" {
		return nil, ErrTokenMalformed
	}
	return &claims, nil
}

// classify maps library errors onto the service's error set
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignatureInvalid
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
