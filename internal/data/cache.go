package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache key prefixes.
const (
	// CacheKeyCircuit is the prefix for breaker records: oraclegate:circuit:{name}
	CacheKeyCircuit = "oraclegate:circuit"
	// CacheKeyRate is the prefix for rate-limit timestamps: oraclegate:ratelimit:{key}
	CacheKeyRate = "oraclegate:ratelimit"
)

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient stores JSON values in Redis.
// Implementations must be thread-safe and handle serialization/deserialization.
type CacheClient interface {
	// Get retrieves a value from cache and deserializes it into dest.
	// Returns ErrCacheNotFound if key doesn't exist.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache. A zero ttl keeps the key forever.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys lists the keys under prefix using SCAN.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// redisCache is the Redis-based implementation of CacheClient.
type redisCache struct {
	client *redis.Client
}

// NewCacheClient creates a new Redis-based cache client.
// If the Redis client is nil, cache operations will gracefully fail.
func NewCacheClient(rdb *redis.Client) CacheClient {
	return &redisCache{
		client: rdb,
	}
}

// Get retrieves a value from cache and deserializes it into dest.
// Returns ErrCacheNotFound if the key doesn't exist (redis.Nil).
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// Set stores a value in cache with the specified TTL.
// The value is serialized to JSON before storage.
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes a key from cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}

	return nil
}

// Exists checks if a key exists in cache.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return false, errors.New("cache: redis client is nil")
	}

	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}

	return count > 0, nil
}

// Keys lists every key that starts with prefix.
func (c *redisCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	if c.client == nil {
		return nil, errors.New("cache: redis client is nil")
	}

	var keys []string
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: failed to scan prefix %s: %w", prefix, err)
	}
	return keys, nil
}

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeyCircuit, "goldsky") -> "oraclegate:circuit:goldsky"
//   - BuildCacheKey(CacheKeyRate, "0xabc") -> "oraclegate:ratelimit:0xabc"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// trimCacheKey strips prefix and its separator from key.
func trimCacheKey(prefix, key string) string {
	return strings.TrimPrefix(key, prefix+":")
}
