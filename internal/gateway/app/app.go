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

	"github.com/aussiebroadwan/backoffice/internal/gateway/filter"
	gatewayhttp "github.com/aussiebroadwan/backoffice/internal/gateway/http"
	"github.com/aussiebroadwan/backoffice/internal/gateway/routes"
	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/aussiebroadwan/backoffice/pkg/redisx"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

const BuildVersion = "v0.1.0"

// Application is the gateway process: route table, revocation cache client
// and the echo server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	routes *routes.Config
	redis  *redis.Client
	server *http.Server
}

func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gateway",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	app.routes = routes.Default()
	if cfg.RoutesFile != "" {
		rc, err := routes.Load(cfg.RoutesFile)
		if err != nil {
			return nil, err
		}
		app.routes = rc
	}
	app.logger.Info("route table loaded",
		"version", app.routes.Version,
		"open", len(app.routes.OpenPaths),
		"no_role_check", len(app.routes.NoRoleCheckPaths),
		"role_checked_prefixes", len(app.routes.RoleRequirements),
		"backends", len(app.routes.Backends),
	)

	codec, err := jwtx.NewHMACCodec([]byte(cfg.JWTSecret), jwtx.WithAuthoritiesClaim(cfg.AuthoritiesClaim))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	client, err := redisx.NewClient(context.Background(), redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client

	cache := revocation.NewRedisCache(client,
		revocation.WithTimeout(cfg.CacheTimeout),
		revocation.WithMaxRetries(cfg.CacheMaxRetries),
	)

	srv, err := gatewayhttp.NewServer(filter.New(codec, cache, app.routes), app.routes, cache, BuildVersion, app.logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return app, nil
}

// Run blocks until SIGINT/SIGTERM or a server error.
func (app *Application) Run() error {
	app.logger.Info("gateway starting", "port", app.cfg.Port, "version", BuildVersion)

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
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		_ = app.server.Close()
	}

	if err := app.redis.Close(); err != nil {
		app.logger.Error("error closing redis", "error", err)
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}
