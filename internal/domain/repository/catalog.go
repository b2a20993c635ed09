package repository

import (
	"context"

	"github.com/hszk-dev/reelfeed/internal/domain/model"
)

// Catalog defines the interface for fetching pages of feed videos.
// Implementations should be provided by the infrastructure layer (HTTP, bucket, local list).
type Catalog interface {
	// FetchFirstPage returns up to pageSize videos from the head of the catalog.
	FetchFirstPage(ctx context.Context, pageSize int) ([]model.Video, error)

	// FetchNextPage returns up to pageSize videos strictly after the video whose
	// SourceURL equals afterSourceURL. An empty page means no more items.
	FetchNextPage(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error)
}

// CatalogFunc adapts a pair of functions to Catalog. Nil functions return empty pages.
type CatalogFunc struct {
	First func(ctx context.Context, pageSize int) ([]model.Video, error)
	Next  func(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error)
}

func (f CatalogFunc) FetchFirstPage(ctx context.Context, pageSize int) ([]model.Video, error) {
	if f.First == nil {
		return nil, nil
	}
	return f.First(ctx, pageSize)
}

func (f CatalogFunc) FetchNextPage(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error) {
	if f.Next == nil {
		return nil, nil
	}
	return f.Next(ctx, afterSourceURL, pageSize)
}
