package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/reelfeed/internal/domain/model"
	"github.com/hszk-dev/reelfeed/internal/domain/repository"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
)

// keyPrefix is where packaged HLS renditions live: hls/<video-id>/<manifest>.
const keyPrefix = "hls/"

// minioClient defines the MinIO operations the bucket catalog needs.
// *minio.Client satisfies this interface.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// ClientConfig holds configuration for the MinIO client.
type ClientConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// PublicBaseURL is prepended to object keys to build playable URLs,
	// e.g. a CDN or the bucket's public endpoint.
	PublicBaseURL string
	// ManifestName is the master playlist file name inside each video prefix.
	ManifestName string

	Logger *slog.Logger
}

// BucketCatalog serves the feed from master playlists stored in a bucket.
// Keys are listed in lexical order, so pages are stable between calls.
type BucketCatalog struct {
	client        minioClient
	bucket        string
	publicBaseURL string
	manifestName  string
	logger        *slog.Logger
}

// NewBucketCatalog creates a catalog backed by a MinIO bucket.
// It verifies the bucket exists during initialization to fail fast on misconfiguration.
func NewBucketCatalog(ctx context.Context, cfg ClientConfig) (*BucketCatalog, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newBucketCatalogWithClient(ctx, client, cfg)
}

// newBucketCatalogWithClient creates a BucketCatalog with a given minioClient implementation.
// This is used for dependency injection in tests.
func newBucketCatalogWithClient(ctx context.Context, client minioClient, cfg ClientConfig) (*BucketCatalog, error) {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, cfg.Bucket)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manifest := cfg.ManifestName
	if manifest == "" {
		manifest = "master.m3u8"
	}

	return &BucketCatalog{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		manifestName:  manifest,
		logger:        logger,
	}, nil
}

var _ repository.Catalog = (*BucketCatalog)(nil)

// FetchFirstPage lists the first pageSize manifests in the bucket.
func (c *BucketCatalog) FetchFirstPage(ctx context.Context, pageSize int) ([]model.Video, error) {
	videos, err := c.list(ctx, "", pageSize)
	if err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceBucket, metrics.CatalogPageFirst, metrics.CatalogStatusError).Inc()
		return nil, err
	}
	metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceBucket, metrics.CatalogPageFirst, metrics.CatalogStatusSuccess).Inc()
	return videos, nil
}

// FetchNextPage lists the manifests after the object behind afterSourceURL.
func (c *BucketCatalog) FetchNextPage(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error) {
	key, ok := c.keyOf(afterSourceURL)
	if !ok {
		metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceBucket, metrics.CatalogPageNext, metrics.CatalogStatusError).Inc()
		return nil, fmt.Errorf("%w: %s", repository.ErrForeignCursor, afterSourceURL)
	}

	videos, err := c.list(ctx, key, pageSize)
	if err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceBucket, metrics.CatalogPageNext, metrics.CatalogStatusError).Inc()
		return nil, err
	}
	metrics.CatalogRequestsTotal.WithLabelValues(metrics.CatalogSourceBucket, metrics.CatalogPageNext, metrics.CatalogStatusSuccess).Inc()
	return videos, nil
}

// Ping verifies the MinIO connection is alive by checking bucket access.
func (c *BucketCatalog) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *BucketCatalog) Bucket() string {
	return c.bucket
}

func (c *BucketCatalog) list(ctx context.Context, startAfter string, pageSize int) ([]model.Video, error) {
	videos := []model.Video{}
	if pageSize <= 0 {
		return videos, nil
	}

	// Cancelling stops the listing goroutine once the page is full.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:     keyPrefix,
		Recursive:  true,
		StartAfter: startAfter,
	})
	for obj := range objects {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if path.Base(obj.Key) != c.manifestName {
			continue
		}
		v, err := model.NewVideo(c.publicBaseURL + "/" + obj.Key)
		if err != nil {
			c.logger.Warn("skipping object with unusable URL",
				slog.String("key", obj.Key),
				slog.Any("error", err),
			)
			continue
		}
		videos = append(videos, v)
		if len(videos) == pageSize {
			break
		}
	}
	return videos, nil
}

// keyOf maps a source URL built by this catalog back to its object key.
func (c *BucketCatalog) keyOf(sourceURL string) (string, bool) {
	key, ok := strings.CutPrefix(sourceURL, c.publicBaseURL+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
