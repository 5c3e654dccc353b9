package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/internal/testutil"
	"github.com/aussiebroadwan/backoffice/pkg/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// exerciseCache runs the behaviour every Cache must share.
func exerciseCache(t *testing.T, c revocation.Cache) {
	ctx := context.Background()

	t.Run("unknown token", func(t *testing.T) {
		_, err := c.IsLoggedOut(ctx, "never-issued")
		require.ErrorIs(t, err, revocation.ErrTokenNotFound)
	})

	t.Run("issued token is active", func(t *testing.T) {
		require.NoError(t, c.RecordIssuedToken(ctx, 1, "tok-1", time.Minute))

		out, err := c.IsLoggedOut(ctx, "tok-1")
		require.NoError(t, err)
		require.False(t, out)
	})

	t.Run("mark logged out", func(t *testing.T) {
		require.NoError(t, c.RecordIssuedToken(ctx, 2, "tok-2", time.Minute))
		require.NoError(t, c.RecordIssuedToken(ctx, 3, "tok-3", time.Minute))
		require.NoError(t, c.MarkLoggedOut(ctx, 2))

		out, err := c.IsLoggedOut(ctx, "tok-2")
		require.NoError(t, err)
		require.True(t, out)

		out, err = c.IsLoggedOut(ctx, "tok-3")
		require.NoError(t, err)
		require.False(t, out)
	})

	t.Run("mark is idempotent and skips missing ids", func(t *testing.T) {
		require.NoError(t, c.MarkLoggedOut(ctx, 2, 2, 999))
		require.NoError(t, c.MarkLoggedOut(ctx))

		out, err := c.IsLoggedOut(ctx, "tok-2")
		require.NoError(t, err)
		require.True(t, out)
	})

	t.Run("missing id ahead of a live one", func(t *testing.T) {
		require.NoError(t, c.MarkLoggedOut(ctx, 998, 3))

		out, err := c.IsLoggedOut(ctx, "tok-3")
		require.NoError(t, err)
		require.True(t, out)
	})

	t.Run("entries expire", func(t *testing.T) {
		require.NoError(t, c.RecordIssuedToken(ctx, 4, "tok-4", time.Second))
		require.Eventually(t, func() bool {
			_, err := c.IsLoggedOut(ctx, "tok-4")
			return err != nil
		}, 5*time.Second, 100*time.Millisecond)

		_, err := c.IsLoggedOut(ctx, "tok-4")
		require.ErrorIs(t, err, revocation.ErrTokenNotFound)
	})

	t.Run("cancelled caller still writes both keys", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		require.NoError(t, c.RecordIssuedToken(cancelled, 5, "tok-5", time.Minute))
		out, err := c.IsLoggedOut(ctx, "tok-5")
		require.NoError(t, err)
		require.False(t, out)
	})

	require.NoError(t, c.Ping(ctx))
}

func TestMemoryCache(t *testing.T) {
	c := revocation.NewMemoryCache()
	exerciseCache(t, c)
}

func TestRedisCache(t *testing.T) {
	addr := testutil.StartRedis(t)

	client, err := redisx.NewClient(context.Background(), redisx.Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := revocation.NewRedisCache(client)
	exerciseCache(t, c)

	t.Run("key format", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.RecordIssuedToken(ctx, 42, "raw.jwt.value", time.Minute))

		require.Equal(t, "42", client.Get(ctx, "raw.jwt.value").Val())
		require.Equal(t, "false", client.Get(ctx, "token:42:is_logged_out").Val())

		require.NoError(t, c.MarkLoggedOut(ctx, 42))
		require.Equal(t, "true", client.Get(ctx, "token:42:is_logged_out").Val())
		require.Greater(t, client.TTL(ctx, "token:42:is_logged_out").Val(), time.Duration(0))
	})

	t.Run("missing flag with index present", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, client.Set(ctx, "orphan", "77", time.Minute).Err())

		_, err := c.IsLoggedOut(ctx, "orphan")
		require.ErrorIs(t, err, revocation.ErrTokenNotFound)
	})
}

func TestRedisCacheUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	c := revocation.NewRedisCache(client,
		revocation.WithTimeout(100*time.Millisecond),
		revocation.WithMaxRetries(1),
	)
	ctx := context.Background()

	_, err := c.IsLoggedOut(ctx, "tok")
	require.ErrorIs(t, err, revocation.ErrUnavailable)
	require.NotErrorIs(t, err, revocation.ErrTokenNotFound)

	require.ErrorIs(t, c.RecordIssuedToken(ctx, 1, "tok", time.Minute), revocation.ErrUnavailable)
	require.ErrorIs(t, c.MarkLoggedOut(ctx, 1), revocation.ErrUnavailable)
	require.ErrorIs(t, c.Ping(ctx), revocation.ErrUnavailable)
}

func TestFlagKey(t *testing.T) {
	require.Equal(t, "token:17:is_logged_out", revocation.FlagKey(17))
}
