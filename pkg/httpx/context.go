package httpx

import (
	"context"

	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeySubject ctxKey = "subject"
	CtxKeyClaims  ctxKey = "claims"
	CtxKeyToken   ctxKey = "token"
)

// ContextWithAuth stores the verified claims and the raw bearer token.
func ContextWithAuth(ctx context.Context, raw string, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeySubject, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	ctx = context.WithValue(ctx, CtxKeyToken, raw)
	return ctx
}

// ClaimsFromContext returns the claims stored by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// TokenFromContext returns the raw bearer token stored by AuthnMiddleware.
func TokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(CtxKeyToken).(string)
	return s
}
