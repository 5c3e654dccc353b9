package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/domain"
	"github.com/aussiebroadwan/backoffice/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/pkg/cryptox"
	"github.com/aussiebroadwan/backoffice/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// spyCache counts writes and can be told to fail them.
type spyCache struct {
	*revocation.MemoryCache

	mu       sync.Mutex
	records  int
	marks    int
	failMark error
}

func (c *spyCache) RecordIssuedToken(ctx context.Context, id int64, token string, ttl time.Duration) error {
	c.mu.Lock()
	c.records++
	c.mu.Unlock()
	return c.MemoryCache.RecordIssuedToken(ctx, id, token, ttl)
}

func (c *spyCache) MarkLoggedOut(ctx context.Context, ids ...int64) error {
	c.mu.Lock()
	c.marks++
	fail := c.failMark
	c.mu.Unlock()
	if fail != nil {
		return fail
	}
	return c.MemoryCache.MarkLoggedOut(ctx, ids...)
}

func (c *spyCache) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records + c.marks
}

var errCacheDown = errors.New("cache down")

type fixture struct {
	store  *sqlite.Store
	cache  *spyCache
	codec  *jwtx.HMACCodec
	tokens *TokenService
	mirror *MirrorService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec, err := jwtx.NewHMACCodec([]byte(strings.Repeat("s", 32)))
	require.NoError(t, err)

	cache := &spyCache{MemoryCache: revocation.NewMemoryCache()}
	tokens := NewTokenService(codec, st, cache, time.Minute, time.Hour)

	return &fixture{
		store:  st,
		cache:  cache,
		codec:  codec,
		tokens: tokens,
		mirror: NewMirrorService(st, tokens),
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := cryptox.NewHasher(4).Hash(password)
	require.NoError(t, err)
	return h
}

// seed mirrors an identity directly.
func (f *fixture) seed(t *testing.T, id int64, username, password string, roles ...string) {
	t.Helper()
	require.NoError(t, f.store.Identities().Upsert(context.Background(), domain.Identity{
		ID:           id,
		Username:     username,
		PasswordHash: mustHash(t, password),
		Roles:        roles,
	}))
}

func (f *fixture) loggedOut(t *testing.T, token string) bool {
	t.Helper()
	out, err := f.cache.IsLoggedOut(context.Background(), token)
	require.NoError(t, err)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
