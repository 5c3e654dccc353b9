package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/domain"
	"github.com/aussiebroadwan/backoffice/internal/auth/service"
	"github.com/aussiebroadwan/backoffice/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/cryptox"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type downCache struct{ revocation.Cache }

func (downCache) Ping(context.Context) error { return revocation.ErrUnavailable }

func (downCache) MarkLoggedOut(context.Context, ...int64) error { return revocation.ErrUnavailable }

func (downCache) IsLoggedOut(context.Context, string) (bool, error) {
	return false, revocation.ErrUnavailable
}

type harness struct {
	router *Router
	tokens *service.TokenService
}

func newHarness(t *testing.T, cache revocation.Cache) *harness {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	hash, err := cryptox.NewHasher(bcrypt.MinCost).Hash("hunter22")
	require.NoError(t, err)
	require.NoError(t, st.Identities().Upsert(context.Background(), domain.Identity{
		ID: 1, Username: "alice", PasswordHash: hash, Roles: []string{"ADMIN"},
	}))

	codec, err := jwtx.NewHMACCodec([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	tokens := service.NewTokenService(codec, st, cache, time.Minute, time.Hour)
	r := NewRouter("test", st, cache, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.ApplyRoutes()
	return &harness{router: r, tokens: tokens}
}

func (h *harness) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func requireKind(t *testing.T, rec *httptest.ResponseRecorder, status int, kind authsdk.Kind) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, kind, decodeBody[authsdk.Error](t, rec).Kind)
}

func TestLoginRefreshLogout(t *testing.T) {
	h := newHarness(t, revocation.NewMemoryCache())

	rec := h.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Username: "alice", Password: "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	pair := decodeBody[authsdk.TokenResponse](t, rec)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, 60, pair.ExpiresIn)

	t.Run("validate reports a live token", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/auth/validate", pair.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		v := decodeBody[authsdk.ValidateResponse](t, rec)
		require.Equal(t, "alice", v.Subject)
		require.Equal(t, []string{"ADMIN"}, v.Authorities)
		require.False(t, v.LoggedOut)
		require.NotZero(t, v.ExpiresAt)
	})

	var refreshed authsdk.TokenResponse
	t.Run("refresh returns the same refresh token", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/auth/refresh", pair.RefreshToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		refreshed = decodeBody[authsdk.TokenResponse](t, rec)
		require.Equal(t, pair.RefreshToken, refreshed.RefreshToken)
		require.NotEqual(t, pair.AccessToken, refreshed.AccessToken)

		v := decodeBody[authsdk.ValidateResponse](t, h.do(http.MethodPost, "/auth/validate", pair.AccessToken, nil))
		require.True(t, v.LoggedOut, "refresh revokes the previous access token")
	})

	t.Run("refresh rejects an access token", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/auth/refresh", refreshed.AccessToken, nil)
		requireKind(t, rec, http.StatusUnauthorized, authsdk.KindInvalidRefreshToken)
	})

	t.Run("logout revokes immediately", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/auth/logout", refreshed.AccessToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Empty(t, rec.Body.Bytes())

		v := decodeBody[authsdk.ValidateResponse](t, h.do(http.MethodPost, "/auth/validate", refreshed.AccessToken, nil))
		require.True(t, v.LoggedOut)
	})

	t.Run("logout twice is still 204", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/auth/logout", refreshed.AccessToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestAuthErrors(t *testing.T) {
	h := newHarness(t, revocation.NewMemoryCache())

	t.Run("wrong password", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Username: "alice", Password: "nope"})
		requireKind(t, rec, http.StatusUnauthorized, authsdk.KindAuthenticationFailed)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("malformed login body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		requireKind(t, rec, http.StatusBadRequest, authsdk.KindInvalidRequest)
	})

	t.Run("refresh without header", func(t *testing.T) {
		requireKind(t, h.do(http.MethodPost, "/auth/refresh", "", nil), http.StatusUnauthorized, authsdk.KindInvalidRefreshToken)
	})

	t.Run("refresh with garbage", func(t *testing.T) {
		requireKind(t, h.do(http.MethodPost, "/auth/refresh", "not.a.jwt", nil), http.StatusUnauthorized, authsdk.KindInvalidRefreshToken)
	})

	t.Run("logout without header", func(t *testing.T) {
		requireKind(t, h.do(http.MethodPost, "/auth/logout", "", nil), http.StatusUnauthorized, authsdk.KindMissingAuthorizationHeader)
	})

	t.Run("logout with garbage", func(t *testing.T) {
		requireKind(t, h.do(http.MethodPost, "/auth/logout", "not.a.jwt", nil), http.StatusUnauthorized, authsdk.KindInvalidToken)
	})

	t.Run("validate with garbage", func(t *testing.T) {
		requireKind(t, h.do(http.MethodPost, "/auth/validate", "not.a.jwt", nil), http.StatusUnauthorized, authsdk.KindInvalidToken)
	})

	t.Run("wrong method", func(t *testing.T) {
		require.Equal(t, http.StatusMethodNotAllowed, h.do(http.MethodGet, "/auth/login", "", nil).Code)
	})
}

func TestCacheUnavailable(t *testing.T) {
	h := newHarness(t, downCache{Cache: revocation.NewMemoryCache()})

	rec := h.do(http.MethodPost, "/auth/login", "", authsdk.LoginRequest{Username: "alice", Password: "hunter22"})
	requireKind(t, rec, http.StatusServiceUnavailable, authsdk.KindRevocationUnavailable)

	rec = h.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decodeBody[authsdk.HealthResponse](t, rec)
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, map[string]string{"database": "ok", "cache": "error"}, health.Checks)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, revocation.NewMemoryCache())

	rec := h.do(http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	live := decodeBody[authsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	rec = h.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decodeBody[authsdk.HealthResponse](t, rec)
	require.Equal(t, map[string]string{"database": "ok", "cache": "ok"}, ready.Checks)
}

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		err  error
		want *authsdk.Error
	}{
		{service.ErrAuthenticationFailed, authsdk.ErrAuthenticationFailed},
		{service.ErrInvalidRefresh, authsdk.ErrInvalidRefreshToken},
		{service.ErrUsernameExtraction, authsdk.ErrUsernameExtractionFailed},
		{service.ErrUserNotFound, authsdk.ErrUserNotFound},
		{service.ErrInvalidToken, authsdk.ErrInvalidToken},
		{errors.Join(errors.New("redis"), revocation.ErrUnavailable), authsdk.ErrRevocationUnavailable},
		{errors.New("boom"), authsdk.ErrServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.want.Kind), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			requireKind(t, rec, tc.want.Status, tc.want.Kind)
		})
	}
}
