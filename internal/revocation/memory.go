package revocation

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache keeps entries in process. It is only correct when the
// Credential Service and the gateway share one process, so it serves
// development and tests.
type MemoryCache struct {
	mu    sync.Mutex
	items *ttlcache.Cache[string, string]
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

// Start runs the expiry sweeper until Stop is called.
func (c *MemoryCache) Start() { go c.items.Start() }

func (c *MemoryCache) Stop() { c.items.Stop() }

func (c *MemoryCache) RecordIssuedToken(_ context.Context, tokenID int64, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Set(FlagKey(tokenID), flagFalse, ttl)
	c.items.Set(token, strconv.FormatInt(tokenID, 10), ttl)
	return nil
}

func (c *MemoryCache) IsLoggedOut(_ context.Context, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idItem := c.items.Get(token)
	if idItem == nil {
		return false, ErrTokenNotFound
	}
	id, err := strconv.ParseInt(idItem.Value(), 10, 64)
	if err != nil {
		return false, ErrTokenNotFound
	}

	flag := c.items.Get(FlagKey(id))
	if flag == nil {
		return false, ErrTokenNotFound
	}
	return flag.Value() == flagTrue, nil
}

func (c *MemoryCache) MarkLoggedOut(_ context.Context, tokenIDs ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range tokenIDs {
		key := FlagKey(id)
		if c.items.Get(key) == nil {
			continue
		}
		c.items.Set(key, flagTrue, ttlcache.PreviousOrDefaultTTL)
	}
	return nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }
