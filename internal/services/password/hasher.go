package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gameauth/internal/model"
)

// DefaultCost is the bcrypt work factor used when none is configured
const DefaultCost = 12

// Hasher hashes and verifies account passwords with bcrypt
type Hasher struct {
	cost      int
	dummyHash []byte
}

// New creates a Hasher. Costs outside bcrypt's range fall back to DefaultCost.
func New(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	// Compared against when the account has no usable hash so the
	// failure path costs as much as a real comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte("gameauth-timing-equalizer"), cost)
	if err != nil {
		return nil, fmt.Errorf("generating dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummyHash: dummy}, nil
}

// Cost returns the configured work factor
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt hash of plaintext
func (h *Hasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashIfChanged stores a fresh hash on acct when a new plaintext was supplied.
// An empty plaintext leaves the existing hash untouched.
func (h *Hasher) HashIfChanged(acct *model.Account, plaintext string) error {
	if plaintext == "" {
		return nil
	}
	hash, err := h.Hash(plaintext)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	return nil
}

// Verify reports whether plaintext matches the account's hash.
// Accounts without a password never verify. A nil account is compared
// against a dummy hash so unknown users take as long as known ones.
func (h *Hasher) Verify(acct *model.Account, plaintext string) bool {
	if acct == nil || !acct.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plaintext))
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(plaintext))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		// Malformed stored hash; treated as a mismatch
		return false
	}
	return err == nil
}
