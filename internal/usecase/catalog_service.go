package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hszk-dev/reelfeed/internal/domain/model"
	"github.com/hszk-dev/reelfeed/internal/domain/repository"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/cache"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

// FallbackCatalogConfig holds configuration for FallbackCatalog.
type FallbackCatalogConfig struct {
	// Source labels the primary catalog in metrics (remote, bucket).
	Source string
	// NextPageFallback makes an empty primary next page consult the fallback.
	// Primary next-page errors still yield an empty page.
	NextPageFallback bool
	Logger           *slog.Logger
}

// FallbackCatalog pairs a primary catalog with a fixed local list.
//
// The first page falls back on any failure or empty result. The next page
// never falls back on failure: an error is treated as the end of the feed.
type FallbackCatalog struct {
	primary  repository.Catalog
	fallback repository.Catalog
	cfg      FallbackCatalogConfig
	logger   *slog.Logger
}

// NewFallbackCatalog creates a FallbackCatalog.
func NewFallbackCatalog(primary, fallback repository.Catalog, cfg FallbackCatalogConfig) *FallbackCatalog {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Source == "" {
		cfg.Source = metrics.CatalogSourceRemote
	}
	return &FallbackCatalog{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
	}
}

var _ repository.Catalog = (*FallbackCatalog)(nil)

func (c *FallbackCatalog) FetchFirstPage(ctx context.Context, pageSize int) ([]model.Video, error) {
	videos, err := c.primary.FetchFirstPage(ctx, pageSize)
	if err == nil && len(videos) > 0 {
		return truncatePage(videos, pageSize), nil
	}

	if err != nil {
		c.logger.Warn("primary catalog failed, using fallback list",
			slog.String("source", c.cfg.Source),
			slog.Any("error", err),
		)
	} else {
		c.logger.Info("primary catalog returned no items, using fallback list",
			slog.String("source", c.cfg.Source),
		)
	}
	metrics.CatalogRequestsTotal.WithLabelValues(c.cfg.Source, metrics.CatalogPageFirst, metrics.CatalogStatusFallback).Inc()

	videos, err = c.fallback.FetchFirstPage(ctx, pageSize)
	if err != nil {
		return nil, fmt.Errorf("fallback first page: %w", err)
	}
	return truncatePage(videos, pageSize), nil
}

func (c *FallbackCatalog) FetchNextPage(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error) {
	videos, err := c.primary.FetchNextPage(ctx, afterSourceURL, pageSize)
	if err != nil {
		c.logger.Warn("next page fetch failed, treating as end of feed",
			slog.String("source", c.cfg.Source),
			slog.String("cursor", afterSourceURL),
			slog.Any("error", err),
		)
		return []model.Video{}, nil
	}
	if len(videos) > 0 || !c.cfg.NextPageFallback {
		return truncatePage(videos, pageSize), nil
	}

	metrics.CatalogRequestsTotal.WithLabelValues(c.cfg.Source, metrics.CatalogPageNext, metrics.CatalogStatusFallback).Inc()
	videos, err = c.fallback.FetchNextPage(ctx, afterSourceURL, pageSize)
	if err != nil {
		c.logger.Warn("fallback next page failed",
			slog.String("cursor", afterSourceURL),
			slog.Any("error", err),
		)
		return []model.Video{}, nil
	}
	return truncatePage(videos, pageSize), nil
}

func truncatePage(videos []model.Video, pageSize int) []model.Video {
	if pageSize >= 0 && len(videos) > pageSize {
		return videos[:pageSize]
	}
	return videos
}

// CachedCatalogConfig holds configuration for CachedCatalog.
type CachedCatalogConfig struct {
	// CacheTTL is the TTL for cached first pages.
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// DefaultCachedCatalogConfig returns the default configuration.
func DefaultCachedCatalogConfig() CachedCatalogConfig {
	return CachedCatalogConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// CachedCatalog wraps a Catalog with a cache-aside first page.
// It implements the decorator pattern; next pages always go to the delegate.
type CachedCatalog struct {
	delegate repository.Catalog
	cache    cache.CatalogCache
	sfGroup  singleflight.Group

	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewCachedCatalog creates a new CachedCatalog wrapping delegate.
func NewCachedCatalog(delegate repository.Catalog, pageCache cache.CatalogCache, cfg CachedCatalogConfig) *CachedCatalog {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{
		delegate: delegate,
		cache:    pageCache,
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}
}

var _ repository.Catalog = (*CachedCatalog)(nil)

// FetchFirstPage returns the first page with caching.
// Uses singleflight so concurrent sessions starting together hit the delegate once.
func (c *CachedCatalog) FetchFirstPage(ctx context.Context, pageSize int) ([]model.Video, error) {
	key := firstPageKey(pageSize)
	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		return c.firstPageWithCache(ctx, key, pageSize)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	// Copy so callers sharing a result cannot alias each other.
	videos := result.([]model.Video)
	return append([]model.Video(nil), videos...), nil
}

// FetchNextPage delegates; cursor pages are not cached.
func (c *CachedCatalog) FetchNextPage(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error) {
	return c.delegate.FetchNextPage(ctx, afterSourceURL, pageSize)
}

// InvalidateFirstPage removes the cached first page for pageSize.
func (c *CachedCatalog) InvalidateFirstPage(ctx context.Context, pageSize int) error {
	return c.cache.Delete(ctx, firstPageKey(pageSize))
}

// firstPageWithCache implements the cache-aside pattern.
func (c *CachedCatalog) firstPageWithCache(ctx context.Context, key string, pageSize int) ([]model.Video, error) {
	videos, err := c.cache.Get(ctx, key)
	if err != nil {
		// Log cache error but continue to the delegate
		c.logger.Warn("cache get failed, falling back to catalog",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}

	if len(videos) > 0 {
		return videos, nil // Cache hit
	}

	videos, err = c.delegate.FetchFirstPage(ctx, pageSize)
	if err != nil {
		return nil, err
	}

	// Empty pages are never cached.
	if len(videos) == 0 {
		return videos, nil
	}

	if err := c.cache.Set(ctx, key, videos, c.cacheTTL); err != nil {
		c.logger.Warn("failed to cache first page",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}

	return videos, nil
}

func firstPageKey(pageSize int) string {
	return fmt.Sprintf("first:%d", pageSize)
}
