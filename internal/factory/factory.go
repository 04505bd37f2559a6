package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/gameauth/internal/api"
	"github.com/mcoot/gameauth/internal/config"
	"github.com/mcoot/gameauth/internal/dependencies/clock"
	"github.com/mcoot/gameauth/internal/dependencies/random"
	"github.com/mcoot/gameauth/internal/metrics"
	"github.com/mcoot/gameauth/internal/services/account"
	"github.com/mcoot/gameauth/internal/services/auth"
	"github.com/mcoot/gameauth/internal/services/notify"
	"github.com/mcoot/gameauth/internal/services/otp"
	"github.com/mcoot/gameauth/internal/services/password"
	"github.com/mcoot/gameauth/internal/services/token"
	"github.com/mcoot/gameauth/internal/storage"
	"github.com/mcoot/gameauth/internal/storage/memory"
	redisstorage "github.com/mcoot/gameauth/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory = config.StorageMemory
	StorageTypeRedis  = config.StorageRedis
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock   clock.Clock
	Random  random.Random
	Sender  notify.Sender
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Services
	Hasher         *password.Hasher
	TokenService   *token.Service
	OTPManager     *otp.Manager
	AuthService    *auth.Service
	AccountService *account.Service

	closers []io.Closer
}

// NotifyConfig selects and configures the OTP delivery channel
type NotifyConfig struct {
	// Driver is "log" (default), "smtp" or "kafka"
	Driver       string
	Timeout      time.Duration
	SMTP         notify.SMTPConfig
	KafkaBrokers []string
	KafkaTopic   string
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// JWTSecret signs bearer tokens (required)
	JWTSecret []byte
	// TokenLifetime defaults to token.DefaultLifetime
	TokenLifetime time.Duration
	// BcryptCost defaults to password.DefaultCost
	BcryptCost int
	AuthConfig auth.Config
	OTPConfig  otp.Config
	Notify     NotifyConfig
}

// ConfigFromEnv maps loaded server configuration onto the factory config
func ConfigFromEnv(c *config.Config, logger *slog.Logger) Config {
	cfg := Config{
		Logger:        logger,
		StorageType:   c.StorageType,
		JWTSecret:     []byte(c.JWTSecret),
		TokenLifetime: c.TokenLifetime,
		BcryptCost:    c.BcryptCost,
		AuthConfig: auth.Config{
			LifetimeLabel: c.TokenLifetimeLabel,
			Denylist:      c.TokenDenylist,
		},
		OTPConfig: otp.Config{TTL: c.OTPTTL},
		Notify: NotifyConfig{
			Driver:       c.NotifyDriver,
			Timeout:      c.NotifyTimeout,
			SMTP:         c.SMTP,
			KafkaBrokers: c.KafkaBrokers,
			KafkaTopic:   c.KafkaTopic,
		},
	}
	if c.StorageType == config.StorageRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.RedisURL
		cfg.RedisConfig = &redisCfg
	}
	return cfg
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var closers []io.Closer

	// Create storage based on type
	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
		closers = append(closers, redisStore)
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	sender, senderCloser, err := newSender(cfg.Notify, clk, logger)
	if err != nil {
		return nil, err
	}
	if senderCloser != nil {
		closers = append(closers, senderCloser)
	}

	app, err := newWithDependencies(store, clk, rnd, sender, metrics.New(), cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = closers
	return app, nil
}

// newSender builds the configured OTP sender wrapped in a timeout
func newSender(cfg NotifyConfig, clk clock.Clock, logger *slog.Logger) (notify.Sender, io.Closer, error) {
	var sender notify.Sender
	var closer io.Closer

	switch cfg.Driver {
	case "", config.NotifyLog:
		sender = notify.NewLogSender(logger)
	case config.NotifySMTP:
		sender = notify.NewSMTPSender(cfg.SMTP)
	case config.NotifyKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, nil, errors.New("kafka brokers required for kafka notify driver")
		}
		kafkaSender := notify.NewKafkaSender(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), clk.Now)
		sender = kafkaSender
		closer = kafkaSender
	default:
		return nil, nil, fmt.Errorf("invalid notify driver %q", cfg.Driver)
	}

	return notify.WithTimeout(sender, cfg.Timeout), closer, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, sender notify.Sender, m *metrics.Metrics, cfg Config, logger *slog.Logger) (*App, error) {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = password.DefaultCost
	}
	hasher, err := password.New(cost)
	if err != nil {
		return nil, fmt.Errorf("creating password hasher: %w", err)
	}

	tokens, err := token.New(token.Config{Secret: cfg.JWTSecret, Lifetime: cfg.TokenLifetime}, clk, rnd)
	if err != nil {
		return nil, err
	}

	otpManager := otp.New(store, clk, rnd, cfg.OTPConfig, logger)

	authService := auth.New(auth.Deps{
		Storage: store,
		Hasher:  hasher,
		Tokens:  tokens,
		OTP:     otpManager,
		Sender:  sender,
		Clock:   clk,
		Random:  rnd,
		Metrics: m,
		Logger:  logger,
	}, cfg.AuthConfig)

	accountService := account.New(store, clk, rnd, logger)

	return &App{
		Storage:        store,
		Clock:          clk,
		Random:         rnd,
		Sender:         sender,
		Metrics:        m,
		Logger:         logger,
		Hasher:         hasher,
		TokenService:   tokens,
		OTPManager:     otpManager,
		AuthService:    authService,
		AccountService: accountService,
	}, nil
}

// Router builds the HTTP handler for the app
func (a *App) Router(corsOrigins []string) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:         a.Logger,
		Clock:          a.Clock,
		AuthService:    a.AuthService,
		AccountService: a.AccountService,
		Metrics:        a.Metrics,
		CORSOrigins:    corsOrigins,
	})
}

// Close releases storage connections and notification writers
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
