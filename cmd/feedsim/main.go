package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/ratelimit"

	"github.com/hszk-dev/reelfeed/internal/api/handler"
	"github.com/hszk-dev/reelfeed/internal/api/middleware"
	"github.com/hszk-dev/reelfeed/internal/config"
	"github.com/hszk-dev/reelfeed/internal/domain/repository"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/cache"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/catalog"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/storage"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/telemetry"
	"github.com/hszk-dev/reelfeed/internal/player"
	"github.com/hszk-dev/reelfeed/internal/usecase"
)

// Compile-time verification that handles can be driven by the window manager.
var _ usecase.MediaPlayer = (*player.Handle)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	health := make(map[string]handler.Pinger)

	feedCatalog, closeCatalog, err := buildCatalog(ctx, cfg, logger, health)
	if err != nil {
		return err
	}
	defer closeCatalog()

	factory, err := buildPlayerFactory(cfg, logger)
	if err != nil {
		return err
	}

	buffer := player.BufferConfig{
		ForwardBuffer: cfg.Player.ForwardBuffer,
		MaxWidth:      cfg.Player.MaxWidth,
		MaxHeight:     cfg.Player.MaxHeight,
		PeakBitRate:   cfg.Player.PeakBitRate,
		SeekTolerance: cfg.Player.SeekTolerance,
	}
	players := usecase.PlayerFactoryFunc(func(sourceURL string, listener player.Listener) usecase.MediaPlayer {
		return factory.Create(sourceURL, buffer, listener)
	})

	feed := usecase.NewFeedController(feedCatalog, players, usecase.FeedControllerConfig{
		Window: usecase.WindowConfig{
			PrefetchDistance: cfg.Feed.PrefetchDistance,
			EvictionLag:      cfg.Feed.EvictionLag,
			PageSize:         cfg.Feed.PageSize,
		},
		ViewportHeight:      cfg.Feed.ViewportHeight,
		PaginationThreshold: cfg.Feed.PaginationThreshold,
		Logger:              logger,
	})

	if err := feed.Start(ctx); err != nil {
		_ = feed.Close()
		_ = factory.Close(cfg.Server.ShutdownTimeout)
		return fmt.Errorf("failed to start feed session: %w", err)
	}

	r := setupRouter(logger, handler.NewFeedHandler(feed), handler.NewHealthHandler(health, logger))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.Int("port", cfg.Server.Port),
			slog.String("catalog_mode", cfg.Catalog.Mode),
			slog.String("session_id", feed.ID().String()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errCh:
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown error: %w", err)
	}
	if err := feed.Close(); err != nil {
		logger.Error("failed to close feed session", slog.Any("error", err))
	}
	if err := factory.Close(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("failed to close player factory", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return runErr
}

// buildCatalog assembles the catalog chain for the configured mode:
// primary source, optional Redis first-page cache, then the local fallback list.
func buildCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger, health map[string]handler.Pinger) (repository.Catalog, func(), error) {
	local := catalog.NewDefaultLocalCatalog(catalog.WithMaxLatency(cfg.Catalog.LocalMaxLatency))
	noop := func() {}

	var primary repository.Catalog
	var source string
	switch cfg.Catalog.Mode {
	case config.CatalogModeLocal:
		logger.Info("using local catalog", slog.Int("entries", local.Len()))
		return local, noop, nil

	case config.CatalogModeBucket:
		bucket, err := storage.NewBucketCatalog(ctx, storage.ClientConfig{
			Endpoint:      cfg.MinIO.Endpoint,
			AccessKey:     cfg.MinIO.AccessKey,
			SecretKey:     cfg.MinIO.SecretKey,
			Bucket:        cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
			PublicBaseURL: cfg.MinIO.PublicBaseURL,
			ManifestName:  cfg.MinIO.ManifestName,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		logger.Info("connected to MinIO", slog.String("bucket", bucket.Bucket()))
		health["bucket"] = bucket
		primary, source = bucket, metrics.CatalogSourceBucket

	default:
		primary = catalog.NewHTTPCatalog(catalog.HTTPConfig{
			Endpoint:  cfg.Catalog.URL,
			Timeout:   cfg.Catalog.Timeout,
			UserAgent: cfg.Catalog.UserAgent,
		})
		source = metrics.CatalogSourceRemote
	}

	closeFn := noop
	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis")

		pageCache := cache.NewRedisCatalogCache(redisClient)
		health["redis"] = pageCache
		primary = usecase.NewCachedCatalog(primary, pageCache, usecase.CachedCatalogConfig{
			CacheTTL: cfg.Catalog.CacheTTL,
			Logger:   logger,
		})
		closeFn = func() { _ = redisClient.Close() }
	}

	return usecase.NewFallbackCatalog(primary, local, usecase.FallbackCatalogConfig{
		Source:           source,
		NextPageFallback: cfg.Catalog.NextPageFallback,
		Logger:           logger,
	}), closeFn, nil
}

// buildPlayerFactory wires HLS engines to the shared manifest cache, segment
// limiter and bandwidth monitor.
func buildPlayerFactory(cfg *config.Config, logger *slog.Logger) (*player.Factory, error) {
	limiter := ratelimit.NewUnlimited()
	if cfg.Player.SegmentRate > 0 {
		limiter = ratelimit.New(cfg.Player.SegmentRate)
	}

	engineCfg := player.HLSEngineConfig{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		Manifests:    player.NewManifestCache(cfg.Player.ManifestCacheSize, cfg.Player.ManifestCacheTTL),
		Limiter:      limiter,
		Bandwidth:    telemetry.NewBandwidthMonitor(20),
		TickInterval: cfg.Player.TickInterval,
		Logger:       logger,
	}

	factory, err := player.NewFactory(player.FactoryConfig{
		Workers:   cfg.Player.Workers,
		NewEngine: func() player.Engine { return player.NewHLSEngine(engineCfg) },
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create player factory: %w", err)
	}
	return factory, nil
}

func setupRouter(logger *slog.Logger, feed *handler.FeedHandler, health *handler.HealthHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Method(http.MethodGet, "/health", health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/feed", func(r chi.Router) {
		r.Get("/", feed.Get)
		r.Post("/scroll", feed.Scroll)
		r.Post("/decelerate", feed.Decelerate)
		r.Post("/settle", feed.Settle)
		r.Post("/swipe", feed.Swipe)
		r.Post("/pause", feed.Pause)
		r.Post("/resume", feed.Resume)
		r.Post("/items/{index}/seek", feed.Seek)
	})

	return r
}
