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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/backoffice/internal/directory/domain"
	"github.com/aussiebroadwan/backoffice/internal/directory/service"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
)

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) GetUser(ctx context.Context, id int64) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *MockUserService) CreateUser(ctx context.Context, in service.UserInput) (service.Result, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *MockUserService) UpdateUser(ctx context.Context, id int64, in service.UserInput) (service.Result, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *MockUserService) SoftDeleteUser(ctx context.Context, id int64) (service.Result, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *MockUserService) RestoreUser(ctx context.Context, id int64) (service.Result, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *MockUserService) DeleteUserPermanently(ctx context.Context, id int64) (service.Result, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.Result), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type harness struct {
	router *Router
	users  *MockUserService
	codec  *jwtx.HMACCodec
}

func newHarness(t *testing.T, deps map[string]Pinger) *harness {
	t.Helper()
	codec, err := jwtx.NewHMACCodec([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	users := new(MockUserService)
	r := NewRouter("test", users, codec, deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.ApplyRoutes()
	return &harness{router: r, users: users, codec: codec}
}

func (h *harness) token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, _, err := h.codec.SignAccess("admin", roles, time.Minute)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) authsdk.Kind {
	t.Helper()
	var e authsdk.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Kind
}

func TestAdminGuard(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name   string
		token  string
		status int
		kind   authsdk.Kind
	}{
		{"no token", "", http.StatusUnauthorized, authsdk.KindInvalidToken},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized, authsdk.KindInvalidToken},
		{"cashier", h.token(t, "CASHIER"), http.StatusForbidden, authsdk.KindInsufficientRoles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodGet, "/users/1", tt.token, nil)
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.kind, errorKind(t, rec))
		})
	}
	h.users.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}

func TestUserRoutes(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.token(t, "ADMIN")
	alice := domain.User{ID: 7, Username: "alice", Roles: []string{"CASHIER"}, Version: 1}

	t.Run("create", func(t *testing.T) {
		in := service.UserInput{Username: "alice", Password: "password1", Roles: []string{"CASHIER"}}
		h.users.On("CreateUser", mock.Anything, in).Return(service.Result{User: alice, Published: true}, nil).Once()

		rec := h.do(http.MethodPost, "/users", admin, authsdk.UserRequest{Username: "alice", Password: "password1", Roles: []string{"CASHIER"}})
		require.Equal(t, http.StatusCreated, rec.Code)

		var got authsdk.UserResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Equal(t, int64(7), got.ID)
		require.Equal(t, authsdk.SyncStatePublished, got.SyncState)
		require.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("get", func(t *testing.T) {
		h.users.On("GetUser", mock.Anything, int64(7)).Return(alice, nil).Once()
		rec := h.do(http.MethodGet, "/users/7", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("update with dispatch failure", func(t *testing.T) {
		in := service.UserInput{Username: "alice", Roles: []string{"ADMIN"}}
		h.users.On("UpdateUser", mock.Anything, int64(7), in).
			Return(service.Result{User: alice}, service.ErrSynchronizationDispatchFailed).Once()

		rec := h.do(http.MethodPut, "/users/7", admin, authsdk.UserRequest{Username: "alice", Roles: []string{"ADMIN"}})
		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Equal(t, authsdk.KindSynchronizationDispatchFailed, errorKind(t, rec))
	})

	t.Run("soft delete twice", func(t *testing.T) {
		h.users.On("SoftDeleteUser", mock.Anything, int64(7)).Return(service.Result{}, service.ErrAlreadyInState).Once()
		rec := h.do(http.MethodDelete, "/users/7", admin, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, authsdk.KindUserStateConflict, errorKind(t, rec))
	})

	t.Run("restore", func(t *testing.T) {
		h.users.On("RestoreUser", mock.Anything, int64(7)).Return(service.Result{User: alice}, nil).Once()
		rec := h.do(http.MethodPost, "/users/7/restore", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("purge", func(t *testing.T) {
		h.users.On("DeleteUserPermanently", mock.Anything, int64(7)).Return(service.Result{User: alice}, nil).Once()
		rec := h.do(http.MethodDelete, "/users/7/permanent", admin, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("purge unknown", func(t *testing.T) {
		h.users.On("DeleteUserPermanently", mock.Anything, int64(8)).Return(service.Result{}, service.ErrNotFound).Once()
		rec := h.do(http.MethodDelete, "/users/8/permanent", admin, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("username taken", func(t *testing.T) {
		h.users.On("CreateUser", mock.Anything, mock.MatchedBy(func(in service.UserInput) bool { return in.Username == "bob" })).
			Return(service.Result{}, service.ErrUsernameTaken).Once()
		rec := h.do(http.MethodPost, "/users", admin, authsdk.UserRequest{Username: "bob", Password: "password1"})
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, authsdk.KindUsernameTaken, errorKind(t, rec))
	})

	t.Run("invalid input", func(t *testing.T) {
		h.users.On("CreateUser", mock.Anything, mock.MatchedBy(func(in service.UserInput) bool { return in.Username == "carol" })).
			Return(service.Result{}, errors.Join(service.ErrInvalidInput, errors.New("password too short"))).Once()
		rec := h.do(http.MethodPost, "/users", admin, authsdk.UserRequest{Username: "carol", Password: "x"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, authsdk.KindInvalidRequest, errorKind(t, rec))
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/users", admin, map[string]any{"username": "x", "admin": true})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/users/abc", admin, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	h.users.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, map[string]Pinger{
		"database": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return errors.New("dial tcp 10.0.0.1:6379") }),
	})

	rec := h.do(http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body authsdk.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, map[string]string{"database": "ok", "redis": "error"}, body.Checks)
	require.NotContains(t, rec.Body.String(), "10.0.0.1")
}
