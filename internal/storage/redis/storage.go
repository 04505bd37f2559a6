package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
//
// Accounts are JSON documents with string index keys for email and
// username. Multi-key writes run inside WATCH/MULTI transactions and are
// retried when a watched key changes underneath them.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = DefaultConfig().MaxTxRetries
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// ErrTooMuchContention is returned when a transaction keeps losing races
var ErrTooMuchContention = errors.New("redis transaction retries exhausted")

// withRetry re-runs a WATCH transaction while it fails due to a concurrent write
func (s *Storage) withRetry(ctx context.Context, fn func() error) error {
	for range s.cfg.MaxTxRetries {
		err := fn()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ErrTooMuchContention
}

func leaderboardMember(acct *model.Account) redis.Z {
	return redis.Z{Score: float64(-acct.Stats.HighScore), Member: string(acct.ID)}
}

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, acct *model.Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return err
	}

	emailIdx := emailIndexKey(acct.Email)
	usernameIdx := usernameIndexKey(acct.Username)

	return s.withRetry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			if n, err := tx.Exists(ctx, emailIdx).Result(); err != nil {
				return err
			} else if n > 0 {
				return model.ErrEmailTaken
			}
			if n, err := tx.Exists(ctx, usernameIdx).Result(); err != nil {
				return err
			} else if n > 0 {
				return model.ErrUsernameTaken
			}

			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, accountKey(acct.ID), data, 0)
				pipe.Set(ctx, emailIdx, string(acct.ID), 0)
				pipe.Set(ctx, usernameIdx, string(acct.ID), 0)
				if acct.IsActive {
					pipe.ZAdd(ctx, leaderboardKey(), leaderboardMember(acct))
				}
				return nil
			})
			return err
		}, emailIdx, usernameIdx)
	})
}

func (s *Storage) GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error) {
	return getAccount(ctx, s.client, id)
}

// getAccount reads an account through either the client or a watching transaction
func getAccount(ctx context.Context, c redis.Cmdable, id model.AccountID) (*model.Account, error) {
	data, err := c.Get(ctx, accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}

	var acct model.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.getAccountByIndex(ctx, emailIndexKey(email))
}

func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.getAccountByIndex(ctx, usernameIndexKey(username))
}

func (s *Storage) getAccountByIndex(ctx context.Context, indexKey string) (*model.Account, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccount(ctx, model.AccountID(id))
}

func (s *Storage) UpdateAccount(ctx context.Context, id model.AccountID, fn storage.AccountMutator) (*model.Account, error) {
	key := accountKey(id)
	var updated *model.Account

	err := s.withRetry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := getAccount(ctx, tx, id)
			if err != nil {
				return err
			}

			next := current.Clone()
			if err := fn(next); err != nil {
				return err
			}
			next.ID = current.ID

			emailChanged := next.Email != current.Email
			usernameChanged := next.Username != current.Username

			if emailChanged {
				if err := claimIndex(ctx, tx, emailIndexKey(next.Email), model.ErrEmailTaken); err != nil {
					return err
				}
			}
			if usernameChanged {
				if err := claimIndex(ctx, tx, usernameIndexKey(next.Username), model.ErrUsernameTaken); err != nil {
					return err
				}
			}

			data, err := json.Marshal(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				if emailChanged {
					pipe.Del(ctx, emailIndexKey(current.Email))
					pipe.Set(ctx, emailIndexKey(next.Email), string(id), 0)
				}
				if usernameChanged {
					pipe.Del(ctx, usernameIndexKey(current.Username))
					pipe.Set(ctx, usernameIndexKey(next.Username), string(id), 0)
				}
				if next.IsActive {
					pipe.ZAdd(ctx, leaderboardKey(), leaderboardMember(next))
				} else {
					pipe.ZRem(ctx, leaderboardKey(), string(id))
				}
				return nil
			})
			if err != nil {
				return err
			}

			updated = next
			return nil
		}, key)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// claimIndex watches an index key and fails with taken if it is already set
func claimIndex(ctx context.Context, tx *redis.Tx, indexKey string, taken error) error {
	if err := tx.Watch(ctx, indexKey).Err(); err != nil {
		return err
	}
	n, err := tx.Exists(ctx, indexKey).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return taken
	}
	return nil
}

// Leaderboard operations

func (s *Storage) Leaderboard(ctx context.Context, offset, limit int) ([]*model.Account, int, error) {
	total, err := s.client.ZCard(ctx, leaderboardKey()).Result()
	if err != nil {
		return nil, 0, err
	}

	if offset < 0 {
		offset = 0
	}
	if int64(offset) >= total || limit <= 0 {
		return []*model.Account{}, int(total), nil
	}

	ids, err := s.client.ZRange(ctx, leaderboardKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []*model.Account{}, int(total), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = accountKey(model.AccountID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, err
	}

	accounts := make([]*model.Account, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// Removed between ZRANGE and MGET
			continue
		}
		var acct model.Account
		if err := json.Unmarshal([]byte(str), &acct); err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, &acct)
	}
	return accounts, int(total), nil
}

func (s *Storage) LeaderboardRank(ctx context.Context, id model.AccountID) (int, error) {
	rank, err := s.client.ZRank(ctx, leaderboardKey(), string(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, model.ErrAccountNotFound
		}
		return 0, err
	}
	return int(rank) + 1, nil
}

// Challenge operations
//
// A pending challenge is a HASH with fields code, expires_at (unix ms),
// verified ("0" or "1") and created_at (unix ms). The key TTL mirrors the
// challenge lifetime so abandoned records clean themselves up.

// checkChallengeLua atomically validates a code and applies an action.
// KEYS[1] = challenge key
// ARGV[1] = submitted code
// ARGV[2] = current unix ms
// ARGV[3] = action: peek, mark or consume
//
// Returns one of: ok, not_found, expired, mismatch, used
var checkChallengeLua = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code then
  return 'not_found'
end

local expiresAt = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if not expiresAt or tonumber(ARGV[2]) > expiresAt then
  redis.call('DEL', KEYS[1])
  return 'expired'
end

if code ~= ARGV[1] then
  return 'mismatch'
end

local action = ARGV[3]
if action == 'mark' then
  if redis.call('HGET', KEYS[1], 'verified') == '1' then
    return 'used'
  end
  redis.call('HSET', KEYS[1], 'verified', '1')
elseif action == 'consume' then
  redis.call('DEL', KEYS[1])
end
return 'ok'
`)

func (s *Storage) SaveChallenge(ctx context.Context, c *model.Challenge) error {
	key := challengeKey(c.Email)
	ttl := max(c.ExpiresAt.Sub(c.CreatedAt), s.cfg.MinChallengeTTL)

	verified := "0"
	if c.Verified {
		verified = "1"
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code", c.Code,
			"expires_at", strconv.FormatInt(c.ExpiresAt.UnixMilli(), 10),
			"verified", verified,
			"created_at", strconv.FormatInt(c.CreatedAt.UnixMilli(), 10),
		)
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (s *Storage) GetChallenge(ctx context.Context, email string) (*model.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, challengeKey(email)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, model.ErrChallengeNotFound
	}

	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt challenge expiry: %w", err)
	}
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)

	return &model.Challenge{
		Email:     email,
		Code:      fields["code"],
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		Verified:  fields["verified"] == "1",
		CreatedAt: time.UnixMilli(createdAt).UTC(),
	}, nil
}

func (s *Storage) DeleteChallenge(ctx context.Context, email string) error {
	return s.client.Del(ctx, challengeKey(email)).Err()
}

func (s *Storage) CheckChallenge(ctx context.Context, email, code string, now time.Time, action model.ChallengeAction) (model.ChallengeStatus, error) {
	result, err := checkChallengeLua.Run(ctx, s.client,
		[]string{challengeKey(email)},
		code,
		strconv.FormatInt(now.UnixMilli(), 10),
		string(action),
	).Text()
	if err != nil {
		return "", err
	}
	return model.ChallengeStatus(result), nil
}

// Token denylist operations

func (s *Storage) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, revokedTokenKey(tokenID), "1", ttl).Err()
}

func (s *Storage) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedTokenKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
