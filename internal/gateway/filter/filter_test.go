package filter_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/gateway/filter"
	"github.com/aussiebroadwan/backoffice/internal/gateway/routes"
	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type brokenCache struct{}

func (brokenCache) IsLoggedOut(context.Context, string) (bool, error) {
	return false, revocation.ErrUnavailable
}

type env struct {
	codec  *jwtx.HMACCodec
	cache  *revocation.MemoryCache
	filter *filter.Filter
	nextID int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	codec, err := jwtx.NewHMACCodec([]byte(strings.Repeat("g", 32)))
	require.NoError(t, err)
	cache := revocation.NewMemoryCache()
	return &env{codec: codec, cache: cache, filter: filter.New(codec, cache, routes.Default())}
}

// issue signs an access token and records it in the cache.
func (e *env) issue(t *testing.T, roles ...string) string {
	t.Helper()
	tok, _, err := e.codec.SignAccess("alice", roles, time.Minute)
	require.NoError(t, err)
	e.nextID++
	require.NoError(t, e.cache.RecordIssuedToken(context.Background(), e.nextID, tok, time.Minute))
	return tok
}

func TestEvaluate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cashier := e.issue(t, "CASHIER")
	admin := e.issue(t, "ADMIN")
	noRoles := e.issue(t)

	loggedOut := e.issue(t, "ADMIN")
	require.NoError(t, e.cache.MarkLoggedOut(ctx, e.nextID))

	unrecorded, _, err := e.codec.SignAccess("alice", []string{"ADMIN"}, time.Minute)
	require.NoError(t, err)

	otherCodec, err := jwtx.NewHMACCodec([]byte(strings.Repeat("x", 32)))
	require.NoError(t, err)
	forged, _, err := otherCodec.SignAccess("alice", []string{"ADMIN"}, time.Minute)
	require.NoError(t, err)

	expired, _, err := e.codec.SignAccess("alice", []string{"ADMIN"}, -time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name    string
		path    string
		header  string
		wantErr *authsdk.Error
		class   routes.Class
	}{
		{name: "open path needs nothing", path: "/auth/login", class: routes.Open},
		{name: "open path ignores a bad header", path: "/auth/login", header: "Bearer junk", class: routes.Open},
		{name: "missing header", path: "/sales/42", wantErr: authsdk.ErrMissingAuthorizationHeader},
		{name: "wrong scheme", path: "/sales/42", header: "Basic " + cashier, wantErr: authsdk.ErrMissingAuthorizationHeader},
		{name: "garbage token", path: "/sales/42", header: "Bearer junk", wantErr: authsdk.ErrInvalidToken},
		{name: "foreign signature", path: "/sales/42", header: "Bearer " + forged, wantErr: authsdk.ErrInvalidToken},
		{name: "expired", path: "/sales/42", header: "Bearer " + expired, wantErr: authsdk.ErrInvalidToken},
		{name: "logged out", path: "/sales/42", header: "Bearer " + loggedOut, wantErr: authsdk.ErrLoggedOutToken},
		{name: "not in cache", path: "/sales/42", header: "Bearer " + unrecorded, wantErr: authsdk.ErrLoggedOutToken},
		{name: "no role check with zero roles", path: "/products", header: "Bearer " + noRoles, class: routes.NoRoleCheck},
		{name: "no roles on role checked path", path: "/sales/42", header: "Bearer " + noRoles, wantErr: authsdk.ErrMissingRoles},
		{name: "cashier on users", path: "/users", header: "Bearer " + cashier, wantErr: authsdk.ErrInsufficientRoles},
		{name: "cashier on sales", path: "/sales/42", header: "Bearer " + cashier, class: routes.RoleChecked},
		{name: "admin on users", path: "/users/7", header: "Bearer " + admin, class: routes.RoleChecked},
		{name: "unconfigured prefix", path: "/inventory/1", header: "Bearer " + admin, wantErr: authsdk.ErrInsufficientRoles},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, aerr := e.filter.Evaluate(ctx, tc.path, tc.header)
			if tc.wantErr != nil {
				require.NotNil(t, aerr)
				require.Equal(t, tc.wantErr.Kind, aerr.Kind)
				require.Nil(t, d.Claims)
				return
			}
			require.Nil(t, aerr)
			require.Equal(t, tc.class, d.Class)
			if tc.class == routes.Open {
				require.Nil(t, d.Claims)
			} else {
				require.NotNil(t, d.Claims)
				require.Equal(t, "alice", d.Claims.Subject)
			}
		})
	}
}

func TestEvaluateStatuses(t *testing.T) {
	// Every gateway rejection is 401 except role mismatches and an
	// unreachable cache.
	require.Equal(t, 401, authsdk.ErrMissingAuthorizationHeader.Status)
	require.Equal(t, 401, authsdk.ErrInvalidToken.Status)
	require.Equal(t, 401, authsdk.ErrLoggedOutToken.Status)
	require.Equal(t, 401, authsdk.ErrMissingRoles.Status)
	require.Equal(t, 403, authsdk.ErrInsufficientRoles.Status)
	require.Equal(t, 503, authsdk.ErrRevocationUnavailable.Status)
}

func TestEvaluateFailsClosed(t *testing.T) {
	e := newEnv(t)
	tok := e.issue(t, "ADMIN")

	f := filter.New(e.codec, brokenCache{}, routes.Default())

	_, aerr := f.Evaluate(context.Background(), "/users", "Bearer "+tok)
	require.Equal(t, authsdk.ErrRevocationUnavailable, aerr)

	d, aerr := f.Evaluate(context.Background(), "/auth/login", "")
	require.Nil(t, aerr, "open paths never touch the cache")
	require.Equal(t, routes.Open, d.Class)
}
