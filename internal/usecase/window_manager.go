package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hszk-dev/reelfeed/internal/domain/model"
	"github.com/hszk-dev/reelfeed/internal/domain/repository"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
	"github.com/hszk-dev/reelfeed/internal/player"
)

var (
	// ErrManagerClosed is returned by operations on a closed WindowManager.
	ErrManagerClosed = errors.New("window manager closed")
	// ErrNoPlayer is returned when an item has no attached player.
	ErrNoPlayer = errors.New("item has no attached player")
)

// MediaPlayer is the handle surface the feed drives.
type MediaPlayer interface {
	model.PlayerHandle
	ID() uuid.UUID
	Play()
	Pause()
	SeekNormalized(fraction float64, done func(bool))
	BeginScrub()
	ScrubTo(fraction float64)
	EndScrub(fraction float64, done func(bool))
	State() player.State
}

// PlayerFactory creates a player bound to sourceURL. Create must not fail;
// load errors surface later through the listener.
type PlayerFactory interface {
	Create(sourceURL string, listener player.Listener) MediaPlayer
}

// PlayerFactoryFunc adapts a function to PlayerFactory.
type PlayerFactoryFunc func(sourceURL string, listener player.Listener) MediaPlayer

func (f PlayerFactoryFunc) Create(sourceURL string, listener player.Listener) MediaPlayer {
	return f(sourceURL, listener)
}

// WindowConfig holds the prefetch window policy.
type WindowConfig struct {
	// PrefetchDistance is how many items ahead of the current one stay warm.
	PrefetchDistance int
	// EvictionLag is how many items behind the current one stay warm.
	EvictionLag int
	// PageSize is the number of items requested per catalog page.
	PageSize int
	// Listener receives events from every player the manager creates.
	// It must not call back into the manager.
	Listener player.Listener
	// Attached, if set, is called with each player once it is bound to an item.
	// Released, if set, is called with the ID of each player after it has been
	// released; no event for that ID follows. Neither may call back into the manager.
	Attached func(mp MediaPlayer)
	Released func(id uuid.UUID)
	Logger   *slog.Logger
}

// DefaultWindowConfig returns the default window policy.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		PrefetchDistance: 3,
		EvictionLag:      1,
		PageSize:         5,
	}
}

// ItemSnapshot is a read-only copy of one feed item.
type ItemSnapshot struct {
	Index     int
	SourceURL string
	Slot      model.SlotState
	HasHandle bool
	HandleID  uuid.UUID
}

// WindowSnapshot is a consistent copy of the manager's state.
// WindowLow and WindowHigh are -1 when no item holds a player.
// Loading covers the first page only; Paginating covers next-page fetches.
type WindowSnapshot struct {
	CurrentIndex int
	WindowLow    int
	WindowHigh   int
	Loading      bool
	Paginating   bool
	Items        []ItemSnapshot
}

// WindowManager decides which feed items hold a live player.
//
// After OnIndexChanged(i) the items holding a player are exactly
// [max(0, i-EvictionLag), min(i+PrefetchDistance, len-1)]. Catalog fetches run
// outside the lock; at most one is in flight and further requests are dropped.
type WindowManager struct {
	catalog repository.Catalog
	players PlayerFactory
	cfg     WindowConfig
	logger  *slog.Logger

	mu           sync.Mutex
	list         *model.FeedList
	currentIndex int
	windowLow    int
	windowHigh   int
	// loading is set while any catalog fetch is in flight; initialLoading only
	// while that fetch is the first page.
	loading        bool
	initialLoading bool
	closed         bool
}

// NewWindowManager creates a manager with an empty feed.
func NewWindowManager(catalog repository.Catalog, players PlayerFactory, cfg WindowConfig) *WindowManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PrefetchDistance < 0 {
		cfg.PrefetchDistance = 0
	}
	if cfg.EvictionLag < 0 {
		cfg.EvictionLag = 0
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultWindowConfig().PageSize
	}
	return &WindowManager{
		catalog:    catalog,
		players:    players,
		cfg:        cfg,
		logger:     logger,
		list:       model.NewFeedList(),
		windowLow:  -1,
		windowHigh: -1,
	}
}

// LoadInitial fetches the first page and attaches a player to item 0 only.
// It is a no-op when the feed already has items or a fetch is in flight.
func (m *WindowManager) LoadInitial(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.list.Len() > 0 {
		m.mu.Unlock()
		return nil
	}
	if m.loading {
		m.mu.Unlock()
		metrics.PaginationFetchesTotal.WithLabelValues(metrics.PaginationDropped).Inc()
		return nil
	}
	m.loading = true
	m.initialLoading = true
	m.mu.Unlock()

	videos, err := m.catalog.FetchFirstPage(ctx, m.cfg.PageSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	m.initialLoading = false
	if m.closed {
		return ErrManagerClosed
	}
	if err != nil {
		metrics.PaginationFetchesTotal.WithLabelValues(metrics.PaginationError).Inc()
		m.logger.Error("failed to load first page", slog.Any("error", err))
		return fmt.Errorf("fetch first page: %w", err)
	}

	added := m.list.Append(videos...)
	m.logger.Info("first page loaded",
		slog.Int("received", len(videos)),
		slog.Int("added", added),
	)
	if added == 0 {
		metrics.PaginationFetchesTotal.WithLabelValues(metrics.PaginationEmpty).Inc()
		return nil
	}
	metrics.PaginationFetchesTotal.WithLabelValues(metrics.PaginationAppended).Inc()

	m.currentIndex = 0
	m.attachLocked(0)
	m.updateBoundsLocked()
	return nil
}

// OnIndexChanged recomputes the window around index, clamped to the feed.
// It is a no-op on an empty feed.
func (m *WindowManager) OnIndexChanged(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}

	n := m.list.Len()
	if n == 0 {
		return nil
	}
	if index < 0 {
		index = 0
	}
	if index > n-1 {
		m.logger.Warn("index beyond feed, clamping",
			slog.Int("index", index),
			slog.Int("length", n),
		)
		index = n - 1
	}

	m.currentIndex = index
	m.recomputeLocked()
	return nil
}

// OnNearEnd fetches the page after the last item and re-runs the window at the
// unchanged current index. A call while a fetch is in flight is dropped. On an
// empty feed it behaves like LoadInitial. Next-page errors count as an empty page.
func (m *WindowManager) OnNearEnd(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.list.Len() == 0 {
		m.mu.Unlock()
		return m.LoadInitial(ctx)
	}
	if m.loading {
		m.mu.Unlock()
		metrics.PaginationFetchesTotal.WithLabelValues(metrics.PaginationDropped).Inc()
		m.logger.Debug("pagination already in flight, dropping request")
		return nil
	}
	m.loading = true
	cursor := m.list.Last().SourceURL()
	m.mu.Unlock()

	videos, err := m.catalog.FetchNextPage(ctx, cursor, m.cfg.PageSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	if m.closed {
		return ErrManagerClosed
	}
	if err != nil {
		metrics.PaginationFetchesTotal.WithLabelValues(metrics.PaginationError).Inc()
		m.logger.Warn("next page fetch failed, treating as empty",
			slog.String("cursor", cursor),
			slog.Any("error", err),
		)
		return nil
	}

	added := m.list.Append(videos...)
	if added == 0 {
		metrics.PaginationFetchesTotal.WithLabelValues(metrics.PaginationEmpty).Inc()
		m.logger.Debug("next page added no items",
			slog.String("cursor", cursor),
			slog.Int("received", len(videos)),
		)
		return nil
	}

	metrics.PaginationFetchesTotal.WithLabelValues(metrics.PaginationAppended).Inc()
	m.logger.Info("next page appended",
		slog.String("cursor", cursor),
		slog.Int("added", added),
		slog.Int("length", m.list.Len()),
	)
	m.recomputeLocked()
	return nil
}

// Player returns the player attached at index.
func (m *WindowManager) Player(index int) (MediaPlayer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	item := m.list.At(index)
	if item == nil {
		return nil, fmt.Errorf("index %d: %w", index, ErrNoPlayer)
	}
	mp, ok := item.Handle().(MediaPlayer)
	if !ok || item.Slot() != model.SlotReady {
		return nil, fmt.Errorf("index %d: %w", index, ErrNoPlayer)
	}
	return mp, nil
}

// Len returns the number of loaded items.
func (m *WindowManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list.Len()
}

// CurrentIndex returns the last settled index.
func (m *WindowManager) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentIndex
}

// Snapshot returns a consistent copy of the feed and window.
func (m *WindowManager) Snapshot() WindowSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := m.list.Snapshot()
	items := make([]ItemSnapshot, len(views))
	for i, v := range views {
		items[i] = ItemSnapshot{
			Index:     v.Index,
			SourceURL: v.SourceURL,
			Slot:      v.Slot,
			HasHandle: v.HasHandle,
		}
		if mp, ok := m.list.At(i).Handle().(MediaPlayer); ok {
			items[i].HandleID = mp.ID()
		}
	}

	return WindowSnapshot{
		CurrentIndex: m.currentIndex,
		WindowLow:    m.windowLow,
		WindowHigh:   m.windowHigh,
		Loading:      m.initialLoading,
		Paginating:   m.loading && !m.initialLoading,
		Items:        items,
	}
}

// Close releases every player. Subsequent operations return ErrManagerClosed.
func (m *WindowManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	for _, i := range m.list.HandleIndices() {
		m.detachLocked(i)
	}
	m.updateBoundsLocked()
	m.logger.Info("window manager closed", slog.Int("length", m.list.Len()))
	return nil
}

// recomputeLocked attaches every missing player in the target window, then
// releases every player outside it.
func (m *WindowManager) recomputeLocked() {
	n := m.list.Len()
	if n == 0 {
		return
	}

	low := max(0, m.currentIndex-m.cfg.EvictionLag)
	high := min(m.currentIndex+m.cfg.PrefetchDistance, n-1)

	for i := low; i <= high; i++ {
		if m.list.At(i).Slot() == model.SlotEmpty {
			m.attachLocked(i)
		}
	}

	for _, i := range m.list.HandleIndices() {
		if i < low || i > high {
			m.detachLocked(i)
		}
	}

	// The displayed item must never be left without a player.
	if !m.list.At(m.currentIndex).HasHandle() {
		m.logger.Warn("current item lost its player, re-attaching",
			slog.Int("index", m.currentIndex),
		)
		m.attachLocked(m.currentIndex)
	}

	m.updateBoundsLocked()
	m.logger.Debug("window recomputed",
		slog.Int("index", m.currentIndex),
		slog.Int("window_low", m.windowLow),
		slog.Int("window_high", m.windowHigh),
	)
}

func (m *WindowManager) attachLocked(i int) {
	item := m.list.At(i)
	if item == nil {
		return
	}
	if err := item.BeginAttach(); err != nil {
		m.logger.Warn("cannot attach player",
			slog.Int("index", i),
			slog.String("slot", item.Slot().String()),
			slog.Any("error", err),
		)
		return
	}

	mp := m.players.Create(item.SourceURL(), m.cfg.Listener)
	if mp == nil {
		_ = item.AbortAttach()
		m.logger.Warn("player factory returned nil", slog.Int("index", i))
		return
	}
	if err := item.CompleteAttach(mp); err != nil {
		mp.Release()
		_ = item.AbortAttach()
		m.logger.Warn("discarding player bound to another item",
			slog.Int("index", i),
			slog.String("source_url", item.SourceURL()),
			slog.String("player_source_url", mp.SourceURL()),
			slog.Any("error", err),
		)
		m.notifyReleased(mp)
		return
	}
	if m.cfg.Attached != nil {
		m.cfg.Attached(mp)
	}
}

func (m *WindowManager) detachLocked(i int) {
	item := m.list.At(i)
	if item == nil {
		return
	}
	mp, _ := item.Handle().(MediaPlayer)
	if err := item.Detach(); err != nil {
		m.logger.Warn("cannot release player",
			slog.Int("index", i),
			slog.String("slot", item.Slot().String()),
			slog.Any("error", err),
		)
		return
	}
	if mp != nil {
		m.notifyReleased(mp)
	}
}

func (m *WindowManager) notifyReleased(mp MediaPlayer) {
	if m.cfg.Released != nil {
		m.cfg.Released(mp.ID())
	}
}

func (m *WindowManager) updateBoundsLocked() {
	indices := m.list.HandleIndices()
	if len(indices) == 0 {
		m.windowLow, m.windowHigh = -1, -1
	} else {
		m.windowLow, m.windowHigh = indices[0], indices[len(indices)-1]
	}
	metrics.WindowSize.Set(float64(len(indices)))
}
