package player

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// Workers bounds how many handles prepare concurrently.
	// Default: 8
	Workers int

	// NewEngine builds the engine for each new handle.
	NewEngine func() Engine

	Logger *slog.Logger
}

// Factory creates handles and tracks the ones not yet released.
type Factory struct {
	pool      *ants.Pool
	newEngine func() Engine
	live      *xsync.MapOf[uuid.UUID, *Handle]
	logger    *slog.Logger
}

// NewFactory creates a Factory backed by a non-blocking worker pool.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.NewEngine == nil {
		return nil, errors.New("player factory requires an engine constructor")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create prepare pool: %w", err)
	}

	return &Factory{
		pool:      pool,
		newEngine: cfg.NewEngine,
		live:      xsync.NewMapOf[uuid.UUID, *Handle](),
		logger:    logger,
	}, nil
}

// Create returns a handle bound to sourceURL. It never fails; preparation
// runs in the background and failures surface as persistent buffering.
func (f *Factory) Create(sourceURL string, cfg BufferConfig, listener Listener) *Handle {
	h := NewHandle(sourceURL, cfg, f.newEngine(), listener, f.logger)
	h.onRelease = f.forget
	f.live.Store(h.ID(), h)

	metrics.PlayerHandlesLive.Inc()
	metrics.PlayerHandleEventsTotal.WithLabelValues(metrics.HandleCreated).Inc()
	f.logger.Debug("player handle created",
		slog.String("handle_id", h.ID().String()),
		slog.String("source_url", sourceURL),
	)

	prepare := func() { _ = h.Prepare() }
	if err := f.pool.Submit(prepare); err != nil {
		// Pool saturated or closed: preparation must still happen.
		f.logger.Debug("prepare pool unavailable, running inline goroutine",
			slog.String("handle_id", h.ID().String()),
			slog.Any("error", err),
		)
		go prepare()
	}
	return h
}

// Live returns the number of handles created and not yet released.
func (f *Factory) Live() int {
	return f.live.Size()
}

// LiveHandles returns the handles not yet released, in no particular order.
func (f *Factory) LiveHandles() []*Handle {
	handles := make([]*Handle, 0, f.live.Size())
	f.live.Range(func(_ uuid.UUID, h *Handle) bool {
		handles = append(handles, h)
		return true
	})
	return handles
}

// Close releases every live handle and shuts the worker pool down.
func (f *Factory) Close(timeout time.Duration) error {
	for _, h := range f.LiveHandles() {
		h.Release()
	}
	if err := f.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("release prepare pool: %w", err)
	}
	return nil
}

func (f *Factory) forget(h *Handle) {
	if _, ok := f.live.LoadAndDelete(h.ID()); !ok {
		return
	}
	metrics.PlayerHandlesLive.Dec()
	metrics.PlayerHandleEventsTotal.WithLabelValues(metrics.HandleReleased).Inc()
	f.logger.Debug("player handle released",
		slog.String("handle_id", h.ID().String()),
		slog.String("source_url", h.SourceURL()),
	)
}
