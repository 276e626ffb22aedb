// Package cache is a small redis cache-aside layer for the engine's read
// models. A nil *Cache (or one built without a client) degrades to
// always-miss, so callers never branch on whether redis is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache wraps a redis client with JSON encoding and a fixed TTL.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds a cache over the given client. A nil client yields a no-op
// cache.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// GetJSON loads key into v, reporting whether it was present. Redis errors
// other than a miss are returned so callers can log them; a nil cache is a
// silent miss.
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key with the cache TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops keys, ignoring misses.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
