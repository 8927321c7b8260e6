// Package rediscache provides a Redis-backed cache manager. Each slot
// maps to a Redis hash whose fields are Vary sub-keys, so variant
// replacement and whole-slot invalidation are single commands.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "httpcache:"

// Config tunes the Redis manager.
type Config struct {
	// TTL is applied to each slot on every write. Zero disables
	// Redis-side expiry (the policy engine still governs freshness).
	TTL time.Duration
}

// Cache is a Redis-backed cache.Manager.
type Cache struct {
	client *redis.Client
	cfg    Config
}

// New creates a Redis cache manager.
func New(client *redis.Client, cfg Config) *Cache {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &Cache{client: client, cfg: cfg}
}

// Get returns every encoded variant stored under the slot.
func (c *Cache) Get(ctx context.Context, key string) ([][]byte, error) {
	fields, err := c.client.HGetAll(ctx, keyPrefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([][]byte, 0, len(fields))
	for _, data := range fields {
		out = append(out, []byte(data))
	}
	return out, nil
}

// Put stores an encoded variant as a hash field of the slot.
func (c *Cache) Put(ctx context.Context, key, variant string, data []byte) error {
	rkey := keyPrefix + key
	if err := c.client.HSet(ctx, rkey, variant, data).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	if c.cfg.TTL > 0 {
		if err := c.client.Expire(ctx, rkey, c.cfg.TTL).Err(); err != nil {
			return fmt.Errorf("redis expire: %w", err)
		}
	}
	return nil
}

// Delete removes the slot and all its variants.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
