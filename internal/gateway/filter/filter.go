// Package filter is the gateway enforcement pipeline. Evaluate runs every
// check in order and stops at the first failure; it never writes a
// response, the HTTP layer translates the result.
package filter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/backoffice/internal/gateway/routes"
	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/cryptox"
	"github.com/aussiebroadwan/backoffice/pkg/httpx"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

// Validator verifies signature, structure and expiry.
type Validator interface {
	Validate(token string) (jwtx.Claims, error)
}

// RevocationChecker is the read side of revocation.Cache.
type RevocationChecker interface {
	IsLoggedOut(ctx context.Context, token string) (bool, error)
}

// Decision is the outcome of a request that may be forwarded. Claims is
// nil for open paths.
type Decision struct {
	Class  routes.Class
	Claims *jwtx.Claims
}

type Filter struct {
	Codec  Validator
	Cache  RevocationChecker
	Routes *routes.Config
}

func New(codec Validator, cache RevocationChecker, cfg *routes.Config) *Filter {
	return &Filter{Codec: codec, Cache: cache, Routes: cfg}
}

// Evaluate decides whether a request for path carrying the given
// Authorization header may be forwarded.
func (f *Filter) Evaluate(ctx context.Context, path, authorization string) (Decision, *authsdk.Error) {
	class := routes.Classify(f.Routes, path)
	if class == routes.Open {
		return Decision{Class: class}, nil
	}

	token, err := httpx.BearerToken(authorization)
	if err != nil {
		return Decision{}, authsdk.ErrMissingAuthorizationHeader
	}

	claims, err := f.Codec.Validate(token)
	if err != nil {
		return Decision{}, authsdk.ErrInvalidToken
	}

	loggedOut, err := f.Cache.IsLoggedOut(ctx, token)
	switch {
	case errors.Is(err, revocation.ErrTokenNotFound):
		// An unknown token is treated exactly like a logged out one.
		return Decision{}, authsdk.ErrLoggedOutToken
	case err != nil:
		slogx.FromContext(ctx).Warn("revocation check failed",
			slog.String("token_fp", cryptox.FingerprintToken(token)),
			slog.Any("error", err),
		)
		return Decision{}, authsdk.ErrRevocationUnavailable
	case loggedOut:
		return Decision{}, authsdk.ErrLoggedOutToken
	}

	if class == routes.NoRoleCheck {
		return Decision{Class: class, Claims: &claims}, nil
	}

	if len(claims.Authorities) == 0 {
		return Decision{}, authsdk.ErrMissingRoles
	}

	required, ok := f.Routes.RequiredRoles(path)
	if !ok {
		slogx.FromContext(ctx).Info("no role requirement for prefix",
			slog.String("prefix", routes.Prefix(path)),
		)
		return Decision{}, authsdk.ErrInsufficientRoles
	}
	if !claims.HasAnyAuthority(required...) {
		return Decision{}, authsdk.ErrInsufficientRoles
	}

	return Decision{Class: class, Claims: &claims}, nil
}
