package probgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheStore implements CacheStore on Redis. Entries expire server-side
// via the configured TTL; the age check in ProblemCache still applies on top
// so behavior matches the SQLite store.
type RedisCacheStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCacheStore connects to Redis and verifies the connection.
func NewRedisCacheStore(ctx context.Context, addr string, ttl time.Duration) (*RedisCacheStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCacheStore{client: client, ttl: ttl, prefix: "probgen:cache:"}, nil
}

// Close releases the Redis connection.
func (r *RedisCacheStore) Close() error {
	return r.client.Close()
}

func (r *RedisCacheStore) GetEntry(ctx context.Context, key string) (*CacheEntry, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

func (r *RedisCacheStore) PutEntry(ctx context.Context, entry *CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+entry.Key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

func (r *RedisCacheStore) DeleteEntry(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}
