package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/aussiebroadwan/backoffice/pkg/envx"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
)

type Config struct {
	JWTSecret        string // Required: HMAC secret shared with the credential service
	AuthoritiesClaim string // Optional: claim carrying role names (default: authorities)

	RoutesFile string // Optional: YAML route table; the built-in table is used when empty

	RedisAddr       string        // default: localhost:6379
	RedisPassword   string        // Optional
	RedisDB         int           // default: 0
	CacheTimeout    time.Duration // per attempt (default: 250ms)
	CacheMaxRetries int           // default: 2

	Env                 string
	LogLevel            string
	LogFormat           string
	Port                int           // HTTP server port (default: 8000)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		JWTSecret:        envx.String("JWT_SECRET", ""),
		AuthoritiesClaim: envx.String("JWT_AUTHORITIES_CLAIM", jwtx.DefaultAuthoritiesClaim),

		RoutesFile: envx.String("GATEWAY_ROUTES_FILE", ""),

		RedisAddr:       envx.String("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   envx.String("REDIS_PASSWORD", ""),
		RedisDB:         envx.Int("REDIS_DB", 0),
		CacheTimeout:    envx.Duration("CACHE_TIMEOUT", 250*time.Millisecond),
		CacheMaxRetries: envx.Int("CACHE_MAX_RETRIES", 2),

		Env:                 envx.String("APP_ENV", "dev"),
		LogLevel:            envx.String("LOG_LEVEL", "info"),
		LogFormat:           envx.String("LOG_FORMAT", "json"),
		Port:                envx.Int("PORT", 8000),
		ShutdownGracePeriod: envx.Duration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// ParseFlags applies command line overrides on top of the environment.
func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	fs.StringVar(&c.RoutesFile, "routes", c.RoutesFile, "path to the YAML route table")
	fs.IntVarP(&c.Port, "port", "p", c.Port, "HTTP listen port")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "revocation cache address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	return fs.Parse(args)
}

func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < jwtx.MinSecretSize {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", jwtx.MinSecretSize))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	return errors.Join(errs...)
}
