package cache

import (
	"context"
	"time"

	"github.com/hszk-dev/reelfeed/internal/domain/model"
)

// CatalogCache defines the interface for caching catalog pages.
// Implementations should handle serialization/deserialization transparently.
type CatalogCache interface {
	// Get retrieves a cached page by key.
	// Returns nil, nil if the page is not found in cache (cache miss).
	Get(ctx context.Context, key string) ([]model.Video, error)

	// Set stores a page in cache with the specified TTL.
	Set(ctx context.Context, key string, videos []model.Video, ttl time.Duration) error

	// Delete removes a page from cache.
	// Returns nil if the page was not in cache.
	Delete(ctx context.Context, key string) error
}
