package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Catalog modes.
const (
	CatalogModeRemote = "remote"
	CatalogModeLocal  = "local"
	CatalogModeBucket = "bucket"
)

type Config struct {
	Server  ServerConfig
	Feed    FeedConfig
	Player  PlayerConfig
	Catalog CatalogConfig
	Redis   RedisConfig
	MinIO   MinIOConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

// FeedConfig holds the prefetch window policy.
type FeedConfig struct {
	PrefetchDistance    int     `envconfig:"FEED_PREFETCH_DISTANCE" default:"3"`
	EvictionLag         int     `envconfig:"FEED_EVICTION_LAG" default:"1"`
	PageSize            int     `envconfig:"FEED_PAGE_SIZE" default:"5"`
	PaginationThreshold float64 `envconfig:"FEED_PAGINATION_THRESHOLD" default:"100"`
	ViewportHeight      float64 `envconfig:"FEED_VIEWPORT_HEIGHT" default:"844"`
}

type PlayerConfig struct {
	ForwardBuffer     time.Duration `envconfig:"PLAYER_FORWARD_BUFFER" default:"5s"`
	MaxWidth          int           `envconfig:"PLAYER_MAX_WIDTH" default:"390"`
	MaxHeight         int           `envconfig:"PLAYER_MAX_HEIGHT" default:"844"`
	PeakBitRate       int           `envconfig:"PLAYER_PEAK_BITRATE" default:"2000"`
	Workers           int           `envconfig:"PLAYER_WORKERS" default:"8"`
	TickInterval      time.Duration `envconfig:"PLAYER_TICK_INTERVAL" default:"100ms"`
	SegmentRate       int           `envconfig:"PLAYER_SEGMENT_RATE" default:"10"`
	ManifestCacheSize int           `envconfig:"PLAYER_MANIFEST_CACHE_SIZE" default:"256"`
	ManifestCacheTTL  time.Duration `envconfig:"PLAYER_MANIFEST_CACHE_TTL" default:"2m"`
	SeekTolerance     time.Duration `envconfig:"PLAYER_SEEK_TOLERANCE" default:"100ms"`
}

type CatalogConfig struct {
	Mode             string        `envconfig:"CATALOG_MODE" default:"remote"`
	URL              string        `envconfig:"CATALOG_URL" default:"http://localhost:8081/videos"`
	Timeout          time.Duration `envconfig:"CATALOG_TIMEOUT" default:"10s"`
	UserAgent        string        `envconfig:"CATALOG_USER_AGENT" default:"reelfeed/1.0"`
	NextPageFallback bool          `envconfig:"CATALOG_NEXT_PAGE_FALLBACK" default:"false"`
	CacheTTL         time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"5m"`
	LocalMaxLatency  time.Duration `envconfig:"LOCAL_CATALOG_MAX_LATENCY" default:"0s"`
}

// RedisConfig configures the catalog page cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:""`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type MinIOConfig struct {
	Endpoint      string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey     string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey     string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket        string `envconfig:"MINIO_BUCKET" default:"videos"`
	UseSSL        bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	PublicBaseURL string `envconfig:"MINIO_PUBLIC_BASE_URL" default:"http://localhost:8081"`
	ManifestName  string `envconfig:"MINIO_MANIFEST_NAME" default:"master.m3u8"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Catalog.Mode {
	case CatalogModeRemote, CatalogModeLocal, CatalogModeBucket:
	default:
		return fmt.Errorf("invalid CATALOG_MODE %q", c.Catalog.Mode)
	}
	if c.Feed.PrefetchDistance < 0 {
		return fmt.Errorf("FEED_PREFETCH_DISTANCE must be >= 0, got %d", c.Feed.PrefetchDistance)
	}
	if c.Feed.EvictionLag < 0 {
		return fmt.Errorf("FEED_EVICTION_LAG must be >= 0, got %d", c.Feed.EvictionLag)
	}
	if c.Feed.PageSize <= 0 {
		return fmt.Errorf("FEED_PAGE_SIZE must be > 0, got %d", c.Feed.PageSize)
	}
	return nil
}
