package httpx

import (
	"net/http"
	"slices"

	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

// TokenValidator is the part of jwtx.Codec the middleware needs.
type TokenValidator interface {
	Validate(token string) (jwtx.Claims, error)
}

// ErrorWriter renders a rejection. Services pass their own so that the body
// matches the rest of their API.
type ErrorWriter func(w http.ResponseWriter, status int)

// AuthnMiddleware verifies the bearer token and stores the claims in the
// request context. It does not consult the revocation cache.
func AuthnMiddleware(v TokenValidator, onError ErrorWriter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, err := RequestBearer(r)
			if err != nil {
				onError(w, http.StatusUnauthorized)
				return
			}

			claims, err := v.Validate(raw)
			if err != nil {
				log.Warn("jwt validate failed", "err", err)
				onError(w, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAuth(ctx, raw, claims)))
		})
	}
}

// RequireAnyRole lets the request through when the caller holds at least one
// of roles. It must run after AuthnMiddleware.
func RequireAnyRole(onError ErrorWriter, roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				onError(w, http.StatusUnauthorized)
				return
			}

			for _, have := range claims.Authorities {
				if slices.Contains(roles, have) {
					next.ServeHTTP(w, r)
					return
				}
			}

			onError(w, http.StatusForbidden)
		})
	}
}
