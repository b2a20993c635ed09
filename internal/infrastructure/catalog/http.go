package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hszk-dev/reelfeed/internal/domain/model"
	"github.com/hszk-dev/reelfeed/internal/domain/repository"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
)

// maxBodyBytes bounds the catalog response body.
const maxBodyBytes = 4 << 20

// HTTPConfig holds configuration for the remote catalog client.
type HTTPConfig struct {
	// Endpoint is the video-list URL answering {"urls": [...]}.
	Endpoint string
	// Timeout bounds a single request. Zero means no client-side timeout.
	Timeout time.Duration
	// UserAgent is sent on every request when non-empty.
	UserAgent string
}

// listResponse is the wire shape of the video-list endpoint.
type listResponse struct {
	URLs []string `json:"urls"`
}

// HTTPCatalog fetches the video list from a remote endpoint.
//
// The endpoint has no pagination parameter, so FetchNextPage always returns an
// empty page. Callers wanting to keep scrolling past the first page must
// configure a fallback source for next pages.
type HTTPCatalog struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

// NewHTTPCatalog creates a remote catalog client.
func NewHTTPCatalog(cfg HTTPConfig) *HTTPCatalog {
	return &HTTPCatalog{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
	}
}

// NewHTTPCatalogWithClient creates a remote catalog client using client.
func NewHTTPCatalogWithClient(client *http.Client, cfg HTTPConfig) *HTTPCatalog {
	c := NewHTTPCatalog(cfg)
	c.client = client
	return c
}

var _ repository.Catalog = (*HTTPCatalog)(nil)

// Endpoint returns the configured list URL.
func (c *HTTPCatalog) Endpoint() string {
	return c.endpoint
}

// FetchFirstPage requests the full list and returns its first pageSize entries.
func (c *HTTPCatalog) FetchFirstPage(ctx context.Context, pageSize int) ([]model.Video, error) {
	videos, err := c.fetch(ctx)
	if err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceRemote, metrics.CatalogPageFirst, metrics.CatalogStatusError).Inc()
		return nil, err
	}
	metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceRemote, metrics.CatalogPageFirst, metrics.CatalogStatusSuccess).Inc()

	if pageSize >= 0 && len(videos) > pageSize {
		videos = videos[:pageSize]
	}
	return videos, nil
}

// FetchNextPage always returns an empty page: the endpoint cannot paginate.
func (c *HTTPCatalog) FetchNextPage(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error) {
	metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceRemote, metrics.CatalogPageNext, metrics.CatalogStatusSuccess).Inc()
	return []model.Video{}, nil
}

func (c *HTTPCatalog) fetch(ctx context.Context) ([]model.Video, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrCatalogUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: %d", repository.ErrUnexpectedStatus, resp.StatusCode)
	}

	var body listResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrMalformedCatalog, err)
	}

	videos, _ := model.VideosFromURLs(body.URLs)
	return videos, nil
}
