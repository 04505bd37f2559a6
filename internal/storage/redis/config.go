package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// MaxTxRetries bounds optimistic transaction retries on contended accounts
	MaxTxRetries int

	// MinChallengeTTL is the floor applied to pending challenge keys so a
	// record saved right at its expiry still reaches CheckChallenge
	MinChallengeTTL time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:             "redis://localhost:6379",
		PoolSize:        10,
		MinIdleConns:    2,
		MaxTxRetries:    100,
		MinChallengeTTL: time.Second,
	}
}
