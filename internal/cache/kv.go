// Package cache is a small JSON key-value cache on redis. It is strictly an
// accelerator: every lookup has a store fallback, and a nil cache is a valid
// cache that always misses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache: miss")

type KV struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKV connects a cache to the redis instance at addr. An empty addr returns
// a nil cache.
func NewKV(addr string, ttl time.Duration) *KV {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Protocol: 2,
	})
	return &KV{client: client, ttl: ttl}
}

// Get unmarshals the cached value of key into out.
func (c *KV) Get(ctx context.Context, key string, out any) error {
	if c == nil {
		return ErrMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Set stores v under key for the configured ttl.
func (c *KV) Set(ctx context.Context, key string, v any) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete drops key from the cache.
func (c *KV) Delete(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
