// Package http is the gateway's echo server: the enforcement middleware in
// front of a reverse proxy per backend prefix.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aussiebroadwan/backoffice/internal/gateway/filter"
	"github.com/aussiebroadwan/backoffice/internal/gateway/routes"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

// Headers the gateway sets on forwarded requests. Copies sent by clients
// are removed before the filter runs.
const (
	HeaderAuthSubject  = "X-Auth-Subject"
	HeaderAuthRoles    = "X-Auth-Roles"
	HeaderRouteVersion = "X-Route-Config-Version"
)

// Pinger is the readiness probe of the revocation cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Echo *echo.Echo

	filter    *filter.Filter
	routes    *routes.Config
	cache     Pinger
	version   string
	startTime time.Time
	logger    *slog.Logger
}

// NewServer builds the echo instance with the filter as global middleware
// and one proxy per entry in cfg.Backends.
func NewServer(f *filter.Filter, cfg *routes.Config, cache Pinger, version string, logger *slog.Logger) (*Server, error) {
	s := &Server{
		Echo:      echo.New(),
		filter:    f,
		routes:    cfg,
		cache:     cache,
		version:   version,
		startTime: time.Now(),
		logger:    logger,
	}

	e := s.Echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(
		middleware.Recover(),
		echo.WrapMiddleware(slogx.HTTPMiddleware(logger)),
		handleErrorsInline,
		s.routeVersion,
		s.enforce,
	)

	e.GET("/livez", s.livez)
	e.GET("/readyz", s.readyz)

	if err := s.registerBackends(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Echo.ServeHTTP(w, r)
}

// handleErrorsInline writes handler errors before the logging middleware
// returns, so the logged status matches what the client saw.
func handleErrorsInline(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := next(c); err != nil {
			c.Error(err)
		}
		return nil
	}
}

func (s *Server) routeVersion(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(HeaderRouteVersion, s.routes.Version)
		return next(c)
	}
}

// enforce runs the filter and translates a rejection into its status. This
// is the only place filter errors become HTTP responses.
func (s *Server) enforce(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		req.Header.Del(HeaderAuthSubject)
		req.Header.Del(HeaderAuthRoles)

		if s.isOwnEndpoint(req.URL.Path) {
			return next(c)
		}

		decision, aerr := s.filter.Evaluate(req.Context(), req.URL.Path, req.Header.Get(echo.HeaderAuthorization))
		if aerr != nil {
			slogx.FromContext(req.Context()).Info("request rejected",
				slog.String("kind", string(aerr.Kind)),
				slog.String("prefix", routes.Prefix(req.URL.Path)),
			)
			aerr.WriteError(c.Response())
			return nil
		}

		if decision.Claims != nil {
			req.Header.Set(HeaderAuthSubject, decision.Claims.Subject)
			req.Header.Set(HeaderAuthRoles, strings.Join(decision.Claims.Authorities, ","))
		}
		return next(c)
	}
}

func (s *Server) isOwnEndpoint(path string) bool {
	return path == "/livez" || path == "/readyz"
}

func (s *Server) registerBackends() error {
	prefixes := make([]string, 0, len(s.routes.Backends))
	for p := range s.routes.Backends {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	for _, prefix := range prefixes {
		targets := make([]*middleware.ProxyTarget, 0, len(s.routes.Backends[prefix]))
		for _, raw := range s.routes.Backends[prefix] {
			u, err := url.Parse(raw)
			if err != nil {
				return fmt.Errorf("gateway: backend %s: %w", prefix, err)
			}
			targets = append(targets, &middleware.ProxyTarget{Name: raw, URL: u})
		}

		proxy := middleware.ProxyWithConfig(middleware.ProxyConfig{
			Balancer: middleware.NewRoundRobinBalancer(targets),
		})
		// The proxy answers every request itself; the handler is never reached.
		unreachable := func(echo.Context) error { return echo.ErrNotFound }

		prefix = strings.TrimSuffix(prefix, "/")
		s.Echo.Any(prefix, unreachable, proxy)
		s.Echo.Any(prefix+"/*", unreachable, proxy)

		s.logger.Info("backend registered", "prefix", prefix, "targets", len(targets))
	}
	return nil
}

func (s *Server) livez(c echo.Context) error {
	return c.JSON(http.StatusOK, authsdk.HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.startTime).String(),
		Version: s.version,
	})
}

func (s *Server) readyz(c echo.Context) error {
	status, code, cache := "ok", http.StatusOK, "ok"
	if err := s.cache.Ping(c.Request().Context()); err != nil {
		status, code, cache = "degraded", http.StatusServiceUnavailable, "error"
	}
	return c.JSON(code, authsdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(s.startTime).String(),
		Version: s.version,
		Checks:  map[string]string{"cache": cache, "routes": s.routes.Version},
	})
}
