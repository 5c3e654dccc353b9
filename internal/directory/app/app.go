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

	httpapi "github.com/aussiebroadwan/backoffice/internal/directory/http"
	"github.com/aussiebroadwan/backoffice/internal/directory/relay"
	"github.com/aussiebroadwan/backoffice/internal/directory/service"
	"github.com/aussiebroadwan/backoffice/internal/directory/store/drivers/postgres"
	"github.com/aussiebroadwan/backoffice/internal/identitysync"
	"github.com/aussiebroadwan/backoffice/pkg/cryptox"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/aussiebroadwan/backoffice/pkg/redisx"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

const BuildVersion = "v0.1.0"

// Application is the identity directory: user admin API, outbox and relay.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    *postgres.Store
	redis *redis.Client

	relay   *relay.OutboxRelay
	service *service.Service

	server *http.Server
}

func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "directory-service",
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.NewStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.db = db
	app.logger.Info("database migrations applied successfully")

	client, err := redisx.NewClient(ctx, redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client

	app.relay = relay.New(db, identitysync.NewStreamPublisher(client, cfg.SyncPrefix), app.logger)
	app.relay.Interval = cfg.OutboxInterval
	app.relay.BatchSize = cfg.OutboxBatchSize
	app.relay.Retention = cfg.OutboxRetention

	app.service = service.New(db, app.relay, cryptox.NewHasher(cfg.BcryptCost))

	router := httpapi.NewRouter(BuildVersion, app.service, codec, map[string]httpapi.Pinger{
		"database": db,
		"redis":    redisPinger{client},
	}, app.logger)
	router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return app, nil
}

// Run starts the relay and the HTTP server and blocks until shutdown.
func (app *Application) Run() error {
	app.relay.Start()

	app.logger.Info("directory service starting", "port", app.cfg.Port, "version", BuildVersion, "sync_prefix", app.cfg.SyncPrefix)

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

func (app *Application) Shutdown() error {
	app.logger.Info("shutting down directory service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		_ = app.server.Close()
	}

	// Pending rows stay in the outbox for the next start.
	app.relay.Stop()

	if err := app.redis.Close(); err != nil {
		app.logger.Error("error closing redis", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("directory service stopped")
	return nil
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }
