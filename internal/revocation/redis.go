package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTimeout    = 250 * time.Millisecond
	DefaultMaxRetries = 2
)

// RedisCache is the shared Cache used in deployment.
type RedisCache struct {
	client     redis.UniversalClient
	timeout    time.Duration
	maxRetries uint64
	initial    time.Duration
}

var _ Cache = (*RedisCache)(nil)

type RedisOption func(*RedisCache)

// WithTimeout bounds every attempt.
func WithTimeout(d time.Duration) RedisOption {
	return func(c *RedisCache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries bounds the retries after the first attempt.
func WithMaxRetries(n int) RedisOption {
	return func(c *RedisCache) {
		if n >= 0 {
			c.maxRetries = uint64(n)
		}
	}
}

func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client:     client,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		initial:    25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) RecordIssuedToken(ctx context.Context, tokenID int64, token string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}

	// A cancelled caller must not leave one key written without the other.
	ctx = context.WithoutCancel(ctx)
	return c.retry(ctx, "record", func(ctx context.Context) error {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, FlagKey(tokenID), flagFalse, ttl)
			pipe.Set(ctx, token, strconv.FormatInt(tokenID, 10), ttl)
			return nil
		})
		return err
	})
}

func (c *RedisCache) IsLoggedOut(ctx context.Context, token string) (bool, error) {
	var loggedOut bool
	err := c.retry(ctx, "lookup", func(ctx context.Context) error {
		rawID, err := c.client.Get(ctx, token).Result()
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return backoff.Permanent(ErrTokenNotFound)
		}

		flag, err := c.client.Get(ctx, FlagKey(id)).Result()
		if err != nil {
			return err
		}
		loggedOut = flag == flagTrue
		return nil
	})
	return loggedOut, err
}

func (c *RedisCache) MarkLoggedOut(ctx context.Context, tokenIDs ...int64) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	return c.retry(ctx, "revoke", func(ctx context.Context) error {
		cmds, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range tokenIDs {
				// XX skips expired entries, KEEPTTL keeps them expiring.
				pipe.SetArgs(ctx, FlagKey(id), flagTrue, redis.SetArgs{Mode: "XX", KeepTTL: true})
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		return firstFailure(cmds)
	})
}

// firstFailure returns the first command error other than redis.Nil. XX on a
// missing key replies nil, which is not a failure here.
func firstFailure(cmds []redis.Cmder) error {
	for _, cmd := range cmds {
		if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return nil
}

// retry runs fn with a per-attempt timeout and bounded exponential backoff.
// redis.Nil is final and becomes ErrTokenNotFound.
func (c *RedisCache) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initial
	eb.MaxInterval = 4 * c.initial
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)

	err := backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		err := fn(attemptCtx)
		if errors.Is(err, redis.Nil) {
			return backoff.Permanent(ErrTokenNotFound)
		}
		return err
	}, policy)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTokenNotFound):
		return ErrTokenNotFound
	default:
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
}
