package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/identitysync"
	"github.com/aussiebroadwan/backoffice/pkg/envx"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

type Config struct {
	JWTSecret        string // Required: HMAC secret shared with the gateway
	AuthoritiesClaim string // Optional: claim carrying role names (default: authorities)
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	DatabaseFile string // Optional: path to SQLite database file (default: ./auth.db)

	CacheBackend    string        // redis or memory (default: redis)
	RedisAddr       string        // default: localhost:6379
	RedisPassword   string        // Optional
	RedisDB         int           // default: 0
	CacheTimeout    time.Duration // per attempt (default: 250ms)
	CacheMaxRetries int           // default: 2

	SyncPrefix  string        // stream prefix (default: sync)
	SyncGroup   string        // consumer group (default: auth)
	SyncMinIdle time.Duration // pending age before reclaim (default: 30s)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	CredentialRetention  time.Duration // How long expired credential records are kept (default: 24h)
}

func LoadConfig() Config {
	return Config{
		JWTSecret:        envx.String("JWT_SECRET", ""),
		AuthoritiesClaim: envx.String("JWT_AUTHORITIES_CLAIM", jwtx.DefaultAuthoritiesClaim),
		AccessTokenTTL:   envx.Duration("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL:  envx.Duration("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),

		DatabaseFile: envx.String("AUTH_DATABASE_FILE", "auth.db"),

		CacheBackend:    envx.String("CACHE_BACKEND", CacheBackendRedis),
		RedisAddr:       envx.String("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   envx.String("REDIS_PASSWORD", ""),
		RedisDB:         envx.Int("REDIS_DB", 0),
		CacheTimeout:    envx.Duration("CACHE_TIMEOUT", 250*time.Millisecond),
		CacheMaxRetries: envx.Int("CACHE_MAX_RETRIES", 2),

		SyncPrefix:  envx.String("SYNC_PREFIX", identitysync.DefaultPrefix),
		SyncGroup:   envx.String("SYNC_GROUP", "auth"),
		SyncMinIdle: envx.Duration("SYNC_MIN_IDLE", 30*time.Second),

		Env:                  envx.String("APP_ENV", "dev"),
		LogLevel:             envx.String("LOG_LEVEL", "info"),
		LogFormat:            envx.String("LOG_FORMAT", "json"),
		Port:                 envx.Int("PORT", 8080),
		ShutdownGracePeriod:  envx.Duration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: envx.Duration("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		CredentialRetention:  envx.Duration("CREDENTIAL_RETENTION", 24*time.Hour),
	}
}

// Validate reports configuration the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < jwtx.MinSecretSize {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", jwtx.MinSecretSize))
	}
	if c.CacheBackend != CacheBackendRedis && c.CacheBackend != CacheBackendMemory {
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheBackendRedis, CacheBackendMemory, c.CacheBackend))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	return errors.Join(errs...)
}
