package redis

import (
	"fmt"

	"github.com/mcoot/gameauth/internal/model"
)

// Key prefix for all auth-related data
const keyPrefix = "gameauth"

// accountKey returns the Redis key for an Account document
func accountKey(id model.AccountID) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, id)
}

// emailIndexKey returns the Redis key for the email -> account_id index
func emailIndexKey(email string) string {
	return fmt.Sprintf("%s:idx:email:%s", keyPrefix, email)
}

// usernameIndexKey returns the Redis key for the username -> account_id index
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, username)
}

// leaderboardKey returns the Redis key for the ZSET of active accounts.
// Scores are negated high scores so ZRANGE yields best first with ties
// ordered by account id.
func leaderboardKey() string {
	return fmt.Sprintf("%s:idx:leaderboard", keyPrefix)
}

// challengeKey returns the Redis key for the pending challenge HASH of an email
func challengeKey(email string) string {
	return fmt.Sprintf("%s:challenge:%s", keyPrefix, email)
}

// revokedTokenKey returns the Redis key marking a token id as revoked
func revokedTokenKey(tokenID string) string {
	return fmt.Sprintf("%s:revoked:%s", keyPrefix, tokenID)
}
