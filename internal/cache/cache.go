// Package cache provides the Redis-backed cache layer.
//
// It plays two roles: a read-through cache for serialized assembled
// contexts (TTL-based eviction) and the connection shared with the
// ingestion queue broker. Values beyond the configured TTL simply
// disappear; nothing here is durable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragline/ragline/internal/ragerr"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Cache wraps a Redis client with struct (de)serialization helpers.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New opens a Redis connection and verifies it with a ping.
func New(opts Options, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ragerr.Transient("redis ping", err)
	}

	return &Cache{client: client, logger: logger}, nil
}

// Client exposes the underlying connection for the queue broker, which
// shares it rather than opening a second one.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Get returns (found, value). A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) (bool, string, error) {
	s, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", ragerr.Transient("cache get", err)
	}
	return true, s, nil
}

// Set stores a value with the given TTL. A non-positive TTL skips
// caching entirely rather than storing forever.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return ragerr.Transient("cache set", err)
	}
	return nil
}

// GetStruct reads a JSON-serialized value into target.
// Returns (false, nil) on a miss.
func (c *Cache) GetStruct(ctx context.Context, key string, target any) (bool, error) {
	found, s, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), target); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		c.logger.Warn("discarding corrupt cache entry", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// SetStruct stores a JSON-serialized value with the given TTL.
func (c *Cache) SetStruct(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}

// Delete removes keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return ragerr.Transient("cache delete", err)
	}
	return nil
}

// Ping verifies Redis connectivity, used by readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return ragerr.Transient("redis ping", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
