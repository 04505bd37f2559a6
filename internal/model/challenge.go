package model

import "time"

// Challenge is a one-time code issued to an email that has no account yet
type Challenge struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	// Verified is set once the code has been shown correct without a username
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the challenge is past its expiry at now.
// A challenge is still valid at exactly ExpiresAt.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ChallengeAction selects what CheckChallenge does with a matching code
type ChallengeAction string

const (
	// ChallengePeek checks the code without changing the record
	ChallengePeek ChallengeAction = "peek"
	// ChallengeMark flags the record as verified; a second mark fails
	ChallengeMark ChallengeAction = "mark"
	// ChallengeConsume deletes the record
	ChallengeConsume ChallengeAction = "consume"
)

// ChallengeStatus is the result of checking a code against a stored challenge
type ChallengeStatus string

const (
	ChallengeOK       ChallengeStatus = "ok"
	ChallengeMissing  ChallengeStatus = "not_found"
	ChallengeExpired  ChallengeStatus = "expired"
	ChallengeMismatch ChallengeStatus = "mismatch"
	ChallengeUsed     ChallengeStatus = "used"
)
