package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scholaris/scholaris-access/internal/catalog"
)

const genKey = "perm:gen"

// Cache stores per-user effective pairs in Redis. Invalidation is explicit:
// grant writes drop one user, catalog writes bump a generation counter that
// orphans every existing entry at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache with the given default TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached pairs for the user, if present.
func (c *Cache) Get(ctx context.Context, userID int64) ([]catalog.Pair, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	key, err := c.entryKey(ctx, userID)
	if err != nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var pairs []catalog.Pair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, false
	}
	return pairs, true
}

// Set stores the user's pairs. The entry TTL is capped at the earliest grant
// expiry so a cached set can never outlive the grant that produced it.
func (c *Cache) Set(ctx context.Context, userID int64, pairs []catalog.Pair, at time.Time, earliestExpiry *time.Time) {
	if c == nil || c.client == nil {
		return
	}
	ttl := c.ttl
	if earliestExpiry != nil {
		if remaining := earliestExpiry.Sub(at); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}
	key, err := c.entryKey(ctx, userID)
	if err != nil {
		return
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, raw, ttl)
}

// InvalidateUser drops the cached entry for a single user.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.entryKey(ctx, userID)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, key).Err()
}

// InvalidateAll orphans every cached entry by bumping the generation.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, genKey).Err()
}

func (c *Cache) entryKey(ctx context.Context, userID int64) (string, error) {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("perm:eff:%d:%d", gen, userID), nil
}
