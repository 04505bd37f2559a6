// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcoot/gameauth/internal/services/notify"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Notification drivers
const (
	NotifyLog   = "log"
	NotifySMTP  = "smtp"
	NotifyKafka = "kafka"
)

// Config holds server configuration
type Config struct {
	Port     int
	LogLevel slog.Level

	JWTSecret     string
	TokenLifetime time.Duration
	// TokenLifetimeLabel is the lifetime as written in the environment
	TokenLifetimeLabel string
	TokenDenylist      bool
	BcryptCost         int
	OTPTTL             time.Duration

	StorageType string
	RedisURL    string

	NotifyDriver  string
	NotifyTimeout time.Duration
	SMTP          notify.SMTPConfig
	KafkaBrokers  []string
	KafkaTopic    string

	CORSOrigins []string
}

// Load reads the given .env files (default ".env"), if present, then builds
// the config from the environment. Variables already set in the environment
// win over the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds the config from environment variables only
func FromEnv() (*Config, error) {
	var errs []error
	env := func(key, def string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return def
	}
	intVar := func(key string, def int) int {
		v, err := strconv.Atoi(env(key, strconv.Itoa(def)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		v, err := ParseLifetime(env(key, def.String()))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}
	boolVar := func(key string) bool {
		v, err := strconv.ParseBool(env(key, "false"))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return v
	}

	cfg := &Config{
		Port:               intVar("PORT", 8080),
		JWTSecret:          env("JWT_SECRET", ""),
		TokenLifetimeLabel: env("JWT_EXPIRES_IN", "7d"),
		TokenDenylist:      boolVar("TOKEN_DENYLIST"),
		BcryptCost:         intVar("BCRYPT_ROUNDS", 12),
		OTPTTL:             durationVar("OTP_TTL", 10*time.Minute),
		StorageType:        strings.ToLower(env("STORAGE_TYPE", StorageMemory)),
		RedisURL:           env("REDIS_URL", ""),
		NotifyDriver:       strings.ToLower(env("NOTIFY_DRIVER", NotifyLog)),
		NotifyTimeout:      durationVar("NOTIFY_TIMEOUT", notify.DefaultTimeout),
		SMTP: notify.SMTPConfig{
			Host:     env("SMTP_HOST", ""),
			Port:     intVar("SMTP_PORT", 587),
			Username: env("SMTP_USER", ""),
			Password: env("SMTP_PASS", ""),
			From:     env("SMTP_FROM", ""),
		},
		KafkaBrokers: splitList(env("KAFKA_BROKERS", "")),
		KafkaTopic:   env("KAFKA_TOPIC", "gameauth.otp"),
		CORSOrigins:  splitList(env("CORS_ORIGINS", "*")),
	}

	lifetime, err := ParseLifetime(cfg.TokenLifetimeLabel)
	if err != nil {
		errs = append(errs, fmt.Errorf("JWT_EXPIRES_IN: %w", err))
	}
	cfg.TokenLifetime = lifetime

	if err := cfg.LogLevel.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TokenLifetime <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}

	switch c.StorageType {
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL required when STORAGE_TYPE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORAGE_TYPE %q: must be 'memory' or 'redis'", c.StorageType))
	}

	switch c.NotifyDriver {
	case NotifyLog:
	case NotifySMTP:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			errs = append(errs, errors.New("SMTP_HOST and SMTP_FROM required when NOTIFY_DRIVER=smtp"))
		}
	case NotifyKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS required when NOTIFY_DRIVER=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid NOTIFY_DRIVER %q: must be 'log', 'smtp' or 'kafka'", c.NotifyDriver))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address for the configured port
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// ParseLifetime accepts Go durations ("12h"), whole days ("7d") and bare
// numbers, which are seconds.
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
