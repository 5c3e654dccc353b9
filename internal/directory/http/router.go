// Package http serves the identity directory's user admin API. It sits
// behind the gateway, which has already checked revocation; the router
// still verifies the token signature and the ADMIN role itself.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/directory/domain"
	"github.com/aussiebroadwan/backoffice/internal/directory/service"
	"github.com/aussiebroadwan/backoffice/pkg/httpx"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

// AdminRole is required for every /users route.
const AdminRole = "ADMIN"

// UserService is the part of service.Service the handlers use.
type UserService interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
	CreateUser(ctx context.Context, in service.UserInput) (service.Result, error)
	UpdateUser(ctx context.Context, id int64, in service.UserInput) (service.Result, error)
	SoftDeleteUser(ctx context.Context, id int64) (service.Result, error)
	RestoreUser(ctx context.Context, id int64) (service.Result, error)
	DeleteUserPermanently(ctx context.Context, id int64) (service.Result, error)
}

// Pinger is satisfied by the store and the Redis client wrapper.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time

	users     UserService
	validator httpx.TokenValidator
	deps      map[string]Pinger
}

func NewRouter(buildVersion string, users UserService, validator httpx.TokenValidator, deps map[string]Pinger, logger *slog.Logger) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		middlewares:  []httpx.Middleware{slogx.HTTPMiddleware(logger)},
		buildVersion: buildVersion,
		startTime:    time.Now(),
		users:        users,
		validator:    validator,
		deps:         deps,
	}
}

func (r *Router) ApplyRoutes() {
	admin := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h,
			httpx.AuthnMiddleware(r.validator, writeAuthError),
			httpx.RequireAnyRole(writeAuthError, AdminRole),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		)
	}

	h := &UsersHandler{Users: r.users}
	r.Mux.Handle("POST /users", admin(h.Create))
	r.Mux.Handle("GET /users/{id}", admin(h.Get))
	r.Mux.Handle("PUT /users/{id}", admin(h.Update))
	r.Mux.Handle("DELETE /users/{id}", admin(h.SoftDelete))
	r.Mux.Handle("POST /users/{id}/restore", admin(h.Restore))
	r.Mux.Handle("DELETE /users/{id}/permanent", admin(h.Purge))

	r.Mux.Handle("GET /livez", livezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", readyzHandler(r.startTime, r.buildVersion, r.deps))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}
