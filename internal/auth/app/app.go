package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/aussiebroadwan/backoffice/internal/auth/http"
	"github.com/aussiebroadwan/backoffice/internal/auth/service"
	"github.com/aussiebroadwan/backoffice/internal/auth/store"
	"github.com/aussiebroadwan/backoffice/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/backoffice/internal/identitysync"
	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/aussiebroadwan/backoffice/pkg/redisx"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the credential service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	redis    *redis.Client // nil with the memory cache backend
	cache    revocation.Cache
	memCache *revocation.MemoryCache
	codec    jwtx.Codec

	// Services
	tokenService        *service.TokenService
	mirrorService       *service.MirrorService
	housekeepingService *service.HousekeepingService
	consumers           *identitysync.ConsumerSet

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	codec, err := jwtx.NewHMACCodec([]byte(cfg.JWTSecret), jwtx.WithAuthoritiesClaim(cfg.AuthoritiesClaim))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCache(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()
	if app.memCache != nil {
		app.memCache.Start()
	}
	if app.consumers != nil {
		if err := app.consumers.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start sync consumers: %w", err)
		}
	}

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion, "cache", app.cfg.CacheBackend)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Consumers stop before the stores they write to
	if app.consumers != nil {
		app.consumers.Stop()
	}
	app.housekeepingService.Stop()
	if app.memCache != nil {
		app.memCache.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase opens the identity mirror and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initCache connects the revocation cache. The memory backend has no
// redis and therefore no sync consumers.
func (app *Application) initCache() error {
	if app.cfg.CacheBackend == CacheBackendMemory {
		app.memCache = revocation.NewMemoryCache()
		app.cache = app.memCache
		app.logger.Warn("using in-memory revocation cache; identity sync is disabled")
		return nil
	}

	client, err := redisx.NewClient(context.Background(), redisx.Config{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client
	app.cache = revocation.NewRedisCache(client,
		revocation.WithTimeout(app.cfg.CacheTimeout),
		revocation.WithMaxRetries(app.cfg.CacheMaxRetries),
	)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.tokenService = service.NewTokenService(
		app.codec,
		app.db,
		app.cache,
		app.cfg.AccessTokenTTL,
		app.cfg.RefreshTokenTTL,
	)
	app.mirrorService = service.NewMirrorService(app.db, app.tokenService)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.CredentialRetention = app.cfg.CredentialRetention

	if app.redis != nil {
		app.consumers = identitysync.NewConsumerSet(app.redis, app.mirrorService.Handle, app.logger, identitysync.ConsumerConfig{
			Prefix:  app.cfg.SyncPrefix,
			Group:   app.cfg.SyncGroup,
			MinIdle: app.cfg.SyncMinIdle,
		})
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.cache,
		app.tokenService,
		app.logger,
	)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
