package player

import (
	"time"

	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
	"github.com/maypok86/otter/v2"
)

// ManifestCache holds raw playlist bodies keyed by URL, shared by all engines
// so that re-creating a handle for an item does not refetch its playlists.
type ManifestCache struct {
	cache *otter.Cache[string, []byte]
}

// NewManifestCache creates a bounded cache whose entries expire ttl after being written.
func NewManifestCache(maxEntries int, ttl time.Duration) *ManifestCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	opts := &otter.Options[string, []byte]{
		MaximumSize: maxEntries,
	}
	if ttl > 0 {
		opts.ExpiryCalculator = otter.ExpiryWriting[string, []byte](ttl)
	}
	return &ManifestCache{cache: otter.Must(opts)}
}

// Get returns the cached body for url.
func (c *ManifestCache) Get(url string) ([]byte, bool) {
	body, ok := c.cache.GetIfPresent(url)
	if ok {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeManifest).Inc()
	} else {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeManifest).Inc()
	}
	return body, ok
}

// Set stores body for url.
func (c *ManifestCache) Set(url string, body []byte) {
	c.cache.Set(url, body)
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeManifest).Inc()
}

// Invalidate drops url from the cache.
func (c *ManifestCache) Invalidate(url string) {
	c.cache.Invalidate(url)
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeManifest).Inc()
}
