package app

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aussiebroadwan/backoffice/internal/directory/relay"
	"github.com/aussiebroadwan/backoffice/internal/identitysync"
	"github.com/aussiebroadwan/backoffice/pkg/envx"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
)

type Config struct {
	DatabaseURL      string // Required: postgres DSN
	JWTSecret        string // Required: verifies admin tokens
	AuthoritiesClaim string

	RedisAddr     string // default: localhost:6379
	RedisPassword string
	RedisDB       int
	SyncPrefix    string // stream prefix (default: sync)

	OutboxInterval  time.Duration // relay poll interval (default: 2s)
	OutboxBatchSize int           // default: 100
	OutboxRetention time.Duration // published rows kept for (default: 168h)
	BcryptCost      int           // default: bcrypt.DefaultCost

	Env                 string
	LogLevel            string
	LogFormat           string
	Port                int // default: 8090
	ShutdownGracePeriod time.Duration
}

func LoadConfig() Config {
	return Config{
		DatabaseURL:      envx.String("DIRECTORY_DATABASE_URL", ""),
		JWTSecret:        envx.String("JWT_SECRET", ""),
		AuthoritiesClaim: envx.String("JWT_AUTHORITIES_CLAIM", jwtx.DefaultAuthoritiesClaim),

		RedisAddr:     envx.String("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envx.String("REDIS_PASSWORD", ""),
		RedisDB:       envx.Int("REDIS_DB", 0),
		SyncPrefix:    envx.String("SYNC_PREFIX", identitysync.DefaultPrefix),

		OutboxInterval:  envx.Duration("OUTBOX_INTERVAL", relay.DefaultInterval),
		OutboxBatchSize: envx.Int("OUTBOX_BATCH_SIZE", relay.DefaultBatchSize),
		OutboxRetention: envx.Duration("OUTBOX_RETENTION", relay.DefaultRetention),
		BcryptCost:      envx.Int("BCRYPT_COST", bcrypt.DefaultCost),

		Env:                 envx.String("APP_ENV", "dev"),
		LogLevel:            envx.String("LOG_LEVEL", "info"),
		LogFormat:           envx.String("LOG_FORMAT", "json"),
		Port:                envx.Int("PORT", 8090),
		ShutdownGracePeriod: envx.Duration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DIRECTORY_DATABASE_URL is required"))
	}
	if len(c.JWTSecret) < jwtx.MinSecretSize {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", jwtx.MinSecretSize))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.OutboxInterval <= 0 || c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_INTERVAL and OUTBOX_BATCH_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
