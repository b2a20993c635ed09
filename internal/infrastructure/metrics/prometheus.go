// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reelfeed"

var (
	// PlayerHandlesLive tracks handles that have been created and not yet released.
	PlayerHandlesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "player_handles_live",
			Help:      "Number of live media player handles",
		},
	)

	// PlayerHandleEventsTotal tracks handle lifecycle events.
	// Labels:
	//   - event: created, prepared, prepare_failed, released
	PlayerHandleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "player_handle_events_total",
			Help:      "Total number of media player handle lifecycle events",
		},
		[]string{"event"},
	)

	// WindowSize tracks the number of items currently holding a handle.
	WindowSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prefetch_window_size",
			Help:      "Number of feed items holding a live handle",
		},
	)

	// PaginationFetchesTotal tracks load-more requests.
	// Labels:
	//   - result: appended, empty, dropped, error
	PaginationFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagination_fetches_total",
			Help:      "Total number of pagination fetches",
		},
		[]string{"result"},
	)

	// CatalogRequestsTotal tracks catalog source calls.
	// Labels:
	//   - source: remote, local, bucket
	//   - page: first, next
	//   - status: success, error, fallback
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_requests_total",
			Help:      "Total number of catalog requests",
		},
		[]string{"source", "page", "status"},
	)

	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis, manifest
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal tracks control API requests.
	// Labels:
	//   - method: HTTP method
	//   - route: chi route pattern
	//   - status: response status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of control API requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks control API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Control API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// BandwidthBytesPerSecond is the rolling average media download rate.
	BandwidthBytesPerSecond = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bandwidth_bytes_per_second",
			Help:      "Rolling average media download rate",
		},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis    = "redis"
	CacheTypeManifest = "manifest"
)

// Handle event constants.
const (
	HandleCreated       = "created"
	HandlePrepared      = "prepared"
	HandlePrepareFailed = "prepare_failed"
	HandleReleased      = "released"
)

// Pagination result constants.
const (
	PaginationAppended = "appended"
	PaginationEmpty    = "empty"
	PaginationDropped  = "dropped"
	PaginationError    = "error"
)

// Catalog label constants.
const (
	CatalogSourceRemote = "remote"
	CatalogSourceLocal  = "local"
	CatalogSourceBucket = "bucket"

	CatalogPageFirst = "first"
	CatalogPageNext  = "next"

	CatalogStatusSuccess  = "success"
	CatalogStatusError    = "error"
	CatalogStatusFallback = "fallback"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
