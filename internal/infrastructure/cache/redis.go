package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hszk-dev/reelfeed/internal/domain/model"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	// catalogCacheKeyPrefix is the prefix for catalog page keys in Redis.
	catalogCacheKeyPrefix = "catalog:"
)

// pageJSON is the JSON representation of a cached catalog page.
// It mirrors the remote endpoint's {"urls": [...]} shape.
type pageJSON struct {
	URLs     []string `json:"urls"`
	CachedAt string   `json:"cached_at"`
}

// RedisCatalogCache implements CatalogCache using Redis as the backing store.
type RedisCatalogCache struct {
	client *redis.Client
}

// NewRedisCatalogCache creates a new Redis-backed catalog cache.
func NewRedisCatalogCache(client *redis.Client) *RedisCatalogCache {
	return &RedisCatalogCache{
		client: client,
	}
}

var _ CatalogCache = (*RedisCatalogCache)(nil)

// Get retrieves a page from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisCatalogCache) Get(ctx context.Context, key string) ([]model.Video, error) {
	data, err := c.client.Get(ctx, c.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
			return nil, nil // Cache miss
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	videos, err := c.deserialize(data)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("deserialize page: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
	return videos, nil
}

// Set stores a page in Redis cache with the specified TTL.
func (c *RedisCatalogCache) Set(ctx context.Context, key string, videos []model.Video, ttl time.Duration) error {
	data, err := c.serialize(videos)
	if err != nil {
		return fmt.Errorf("serialize page: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(key), data, ttl).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Delete removes a page from Redis cache.
func (c *RedisCatalogCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.buildKey(key)).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Ping verifies the Redis connection is alive.
func (c *RedisCatalogCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// buildKey constructs the Redis key for a page.
func (c *RedisCatalogCache) buildKey(key string) string {
	return catalogCacheKeyPrefix + key
}

// serialize converts a page to JSON bytes.
func (c *RedisCatalogCache) serialize(videos []model.Video) ([]byte, error) {
	p := pageJSON{
		URLs:     make([]string, len(videos)),
		CachedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for i, v := range videos {
		p.URLs[i] = v.SourceURL
	}
	return json.Marshal(p)
}

// deserialize converts JSON bytes to a page.
func (c *RedisCatalogCache) deserialize(data []byte) ([]model.Video, error) {
	var p pageJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	videos := make([]model.Video, 0, len(p.URLs))
	for _, raw := range p.URLs {
		v, err := model.NewVideo(raw)
		if err != nil {
			return nil, fmt.Errorf("parse source URL %q: %w", raw, err)
		}
		videos = append(videos, v)
	}
	return videos, nil
}
