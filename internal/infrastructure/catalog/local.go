package catalog

import (
	"context"
	_ "embed"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/hszk-dev/reelfeed/internal/domain/model"
	"github.com/hszk-dev/reelfeed/internal/domain/repository"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
)

//go:embed fallback_urls.txt
var fallbackURLs string

// DefaultURLs returns the embedded list of known-good media locators, in order.
func DefaultURLs() []string {
	var urls []string
	for _, line := range strings.Split(fallbackURLs, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls
}

// LocalCatalog serves pages from a fixed, ordered list. It is the fallback for
// the remote catalog and the source for local-only demo mode.
type LocalCatalog struct {
	videos     []model.Video
	maxLatency time.Duration
}

// LocalOption configures a LocalCatalog.
type LocalOption func(*LocalCatalog)

// WithMaxLatency delays every call by a random duration in [0, d], emulating a
// slow network for demos.
func WithMaxLatency(d time.Duration) LocalOption {
	return func(c *LocalCatalog) {
		c.maxLatency = d
	}
}

// NewLocalCatalog creates a catalog over urls. Invalid locators are dropped.
func NewLocalCatalog(urls []string, opts ...LocalOption) *LocalCatalog {
	videos, _ := model.VideosFromURLs(urls)
	c := &LocalCatalog{videos: videos}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefaultLocalCatalog creates a catalog over the embedded list.
func NewDefaultLocalCatalog(opts ...LocalOption) *LocalCatalog {
	return NewLocalCatalog(DefaultURLs(), opts...)
}

var _ repository.Catalog = (*LocalCatalog)(nil)

// FetchFirstPage returns the first pageSize entries of the list.
func (c *LocalCatalog) FetchFirstPage(ctx context.Context, pageSize int) ([]model.Video, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceLocal, metrics.CatalogPageFirst, metrics.CatalogStatusSuccess).Inc()
	return c.slice(0, pageSize), nil
}

// FetchNextPage returns up to pageSize entries strictly after afterSourceURL.
// An unknown cursor yields an empty page.
func (c *LocalCatalog) FetchNextPage(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceLocal, metrics.CatalogPageNext, metrics.CatalogStatusSuccess).Inc()
	for i, v := range c.videos {
		if v.SourceURL == afterSourceURL {
			return c.slice(i+1, pageSize), nil
		}
	}
	return []model.Video{}, nil
}

// Len returns the number of entries in the list.
func (c *LocalCatalog) Len() int {
	return len(c.videos)
}

func (c *LocalCatalog) slice(start, pageSize int) []model.Video {
	if pageSize <= 0 || start >= len(c.videos) {
		return []model.Video{}
	}
	end := min(start+pageSize, len(c.videos))
	out := make([]model.Video, end-start)
	copy(out, c.videos[start:end])
	return out
}

func (c *LocalCatalog) wait(ctx context.Context) error {
	if c.maxLatency <= 0 {
		return ctx.Err()
	}
	d := rand.N(c.maxLatency + 1)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
