package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hszk-dev/reelfeed/internal/domain/repository"
	"github.com/hszk-dev/reelfeed/internal/player"
)

// ErrInputLocked is returned when a swipe arrives while the surface is decelerating.
var ErrInputLocked = errors.New("scroll input locked until settle")

// FeedControllerConfig holds configuration for FeedController.
type FeedControllerConfig struct {
	Window WindowConfig
	// ViewportHeight is the height of one page; every item fills the viewport.
	ViewportHeight float64
	// PaginationThreshold is the distance from the end that triggers a fetch.
	PaginationThreshold float64
	Logger              *slog.Logger
}

// ItemPresentation is what a feed cell shows for one item.
type ItemPresentation struct {
	Index          int     `json:"index"`
	SourceURL      string  `json:"source_url"`
	Slot           string  `json:"slot"`
	HasHandle      bool    `json:"has_handle"`
	HandleID       string  `json:"handle_id,omitempty"`
	Position       float64 `json:"position"`
	Buffered       float64 `json:"buffered"`
	Buffering      bool    `json:"buffering"`
	Playing        bool    `json:"playing"`
	Scrubbing      bool    `json:"scrubbing"`
	PauseIndicator bool    `json:"pause_indicator"`
	Loops          int     `json:"loops"`
}

// FeedSnapshot is a consistent view of the whole feed session.
type FeedSnapshot struct {
	SessionID    string             `json:"session_id"`
	CurrentIndex int                `json:"current_index"`
	WindowLow    int                `json:"window_low"`
	WindowHigh   int                `json:"window_high"`
	Loading      bool               `json:"loading"`
	InputEnabled bool               `json:"input_enabled"`
	Paused       bool               `json:"paused"`
	Offset       float64            `json:"offset"`
	Items        []ItemPresentation `json:"items"`
}

// presentation is the event-derived overlay state of one player.
type presentation struct {
	position       float64
	buffered       float64
	buffering      bool
	playing        bool
	scrubbing      bool
	pauseIndicator bool
	loops          int
}

// FeedController wires the scroll tracker, the window manager and the players.
// Controller operations are serialized; player events only touch the
// presentation map.
type FeedController struct {
	id      uuid.UUID
	manager *WindowManager
	tracker *ScrollTracker
	cfg     FeedControllerConfig
	logger  *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup

	mu     sync.Mutex
	offset float64
	paused bool

	presMu sync.Mutex
	pres   map[uuid.UUID]*presentation
}

// NewFeedController creates a controller and its window manager.
func NewFeedController(catalog repository.Catalog, players PlayerFactory, cfg FeedControllerConfig) *FeedController {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &FeedController{
		id:      uuid.New(),
		tracker: NewScrollTracker(cfg.PaginationThreshold),
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		pres:    make(map[uuid.UUID]*presentation),
	}
	c.logger = logger.With(slog.String("session_id", c.id.String()))

	windowCfg := cfg.Window
	windowCfg.Listener = c.handleEvent
	windowCfg.Attached = c.seedPresentation
	windowCfg.Released = c.dropPresentation
	windowCfg.Logger = c.logger
	c.manager = NewWindowManager(catalog, players, windowCfg)
	return c
}

// ID returns the session ID.
func (c *FeedController) ID() uuid.UUID {
	return c.id
}

// Start loads the first page, warms the window at item 0 and plays it.
func (c *FeedController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.manager.LoadInitial(ctx); err != nil {
		return err
	}
	if err := c.manager.OnIndexChanged(0); err != nil {
		return err
	}
	if !c.paused {
		c.playLocked(0)
	}
	c.logger.Info("feed session started", slog.Int("length", c.manager.Len()))
	return nil
}

// Scroll reports a new offset. Near the end of the content it starts a
// pagination fetch in the background and returns true.
func (c *FeedController) Scroll(offset float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scrollLocked(offset)
}

// BeginDeceleration locks input until the next settle.
func (c *FeedController) BeginDeceleration() bool {
	return c.tracker.BeginDeceleration()
}

// EndDeceleration settles the surface at the current offset, moves the window
// and switches playback to the visible item.
func (c *FeedController) EndDeceleration() (Settle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settleLocked()
}

// Swipe performs a whole paging gesture to index: lock, scroll, settle.
func (c *FeedController) Swipe(index int) (Settle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.tracker.BeginDeceleration() {
		return Settle{}, ErrInputLocked
	}
	c.scrollLocked(float64(index) * c.cfg.ViewportHeight)
	settle, _ := c.settleLocked()
	return settle, nil
}

// Pause stops the current item and shows its pause indicator.
func (c *FeedController) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = true
	idx := c.tracker.CurrentIndex()
	mp, err := c.manager.Player(idx)
	if err != nil {
		return err
	}
	mp.Pause()
	c.updatePresentation(mp.ID(), func(p *presentation) { p.pauseIndicator = true })
	return nil
}

// Resume plays the current item again.
func (c *FeedController) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false
	idx := c.tracker.CurrentIndex()
	if _, err := c.manager.Player(idx); err != nil {
		return err
	}
	c.playLocked(idx)
	return nil
}

// Seek scrubs the item at index to fraction and waits for the seek to finish.
// A refused seek is logged and reported as false, never as an error.
func (c *FeedController) Seek(ctx context.Context, index int, fraction float64) (bool, error) {
	c.mu.Lock()
	mp, err := c.manager.Player(index)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}

	done := make(chan bool, 1)
	mp.BeginScrub()
	mp.ScrubTo(fraction)
	mp.EndScrub(fraction, func(ok bool) { done <- ok })

	select {
	case ok := <-done:
		if !ok {
			c.logger.Warn("seek did not complete",
				slog.Int("index", index),
				slog.Float64("fraction", fraction),
			)
		}
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Snapshot returns the feed as a cell renderer would see it.
func (c *FeedController) Snapshot() FeedSnapshot {
	c.mu.Lock()
	offset := c.offset
	paused := c.paused
	c.mu.Unlock()

	ws := c.manager.Snapshot()

	c.presMu.Lock()
	defer c.presMu.Unlock()

	items := make([]ItemPresentation, len(ws.Items))
	for i, it := range ws.Items {
		items[i] = ItemPresentation{
			Index:     it.Index,
			SourceURL: it.SourceURL,
			Slot:      it.Slot.String(),
			HasHandle: it.HasHandle,
		}
		if !it.HasHandle {
			continue
		}
		items[i].HandleID = it.HandleID.String()
		if p, ok := c.pres[it.HandleID]; ok {
			items[i].Position = p.position
			items[i].Buffered = p.buffered
			items[i].Buffering = p.buffering
			items[i].Playing = p.playing
			items[i].Scrubbing = p.scrubbing
			items[i].PauseIndicator = p.pauseIndicator
			items[i].Loops = p.loops
		}
	}

	return FeedSnapshot{
		SessionID:    c.id.String(),
		CurrentIndex: ws.CurrentIndex,
		WindowLow:    ws.WindowLow,
		WindowHigh:   ws.WindowHigh,
		Loading:      ws.Loading,
		InputEnabled: c.tracker.InputEnabled(),
		Paused:       paused,
		Offset:       offset,
		Items:        items,
	}
}

// Close stops background pagination and releases every player.
func (c *FeedController) Close() error {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.pending.Wait()
	if err := c.manager.Close(); err != nil {
		return fmt.Errorf("close window manager: %w", err)
	}
	c.logger.Info("feed session closed")
	return nil
}

func (c *FeedController) scrollLocked(offset float64) bool {
	c.offset = offset
	nearEnd := c.tracker.OnScroll(c.geometry())
	if nearEnd {
		c.loadMore()
	}
	return nearEnd
}

func (c *FeedController) settleLocked() (Settle, bool) {
	settle, ok := c.tracker.EndDeceleration(c.geometry(), c.manager.Len())
	if !ok {
		return Settle{}, false
	}

	if err := c.manager.OnIndexChanged(settle.CurrentIndex); err != nil {
		c.logger.Warn("window update failed",
			slog.Int("index", settle.CurrentIndex),
			slog.Any("error", err),
		)
		return settle, true
	}

	for _, i := range settle.NonVisible {
		if mp, err := c.manager.Player(i); err == nil {
			mp.Pause()
		}
	}
	if !c.paused {
		for _, i := range settle.Visible {
			c.playLocked(i)
		}
	}

	c.logger.Debug("settled", slog.Int("index", settle.CurrentIndex))
	return settle, true
}

func (c *FeedController) playLocked(index int) {
	mp, err := c.manager.Player(index)
	if err != nil {
		c.logger.Warn("no player for visible item", slog.Int("index", index), slog.Any("error", err))
		return
	}
	mp.Play()
}

// loadMore runs OnNearEnd in the background; the manager drops overlapping calls.
func (c *FeedController) loadMore() {
	if c.ctx.Err() != nil {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		if err := c.manager.OnNearEnd(c.ctx); err != nil && !errors.Is(err, ErrManagerClosed) {
			c.logger.Warn("load more failed", slog.Any("error", err))
		}
	}()
}

func (c *FeedController) geometry() Geometry {
	return Geometry{
		Offset:         c.offset,
		ContentExtent:  float64(c.manager.Len()) * c.cfg.ViewportHeight,
		ViewportExtent: c.cfg.ViewportHeight,
	}
}

// handleEvent is the listener given to every player. It must not call into
// the manager or take c.mu.
func (c *FeedController) handleEvent(ev player.Event) {
	c.updatePresentation(ev.HandleID, func(p *presentation) {
		switch ev.Kind {
		case player.EventPositionChanged:
			p.position = ev.Fraction
		case player.EventBufferedChanged:
			p.buffered = ev.Fraction
		case player.EventBufferingChanged:
			p.buffering = ev.Flag
		case player.EventPlayingChanged:
			p.playing = ev.Flag
			if ev.Flag {
				// Starting playback clears the overlay; the player re-sends
				// its buffer and stall state right after.
				p.pauseIndicator = false
				p.position = 0
				p.buffered = 0
				p.buffering = false
			}
		case player.EventScrubbingChanged:
			p.scrubbing = ev.Flag
		case player.EventReachedEnd:
			p.loops++
		}
	})
}

// seedPresentation copies a newly attached player's state into the overlay.
// Events that arrived earlier are older than this state.
func (c *FeedController) seedPresentation(mp MediaPlayer) {
	st := mp.State()
	c.updatePresentation(mp.ID(), func(p *presentation) {
		p.position = st.Position
		p.buffered = st.Buffered
		p.buffering = st.Buffering
		p.playing = st.Playing
		p.scrubbing = st.Scrubbing
	})
}

func (c *FeedController) dropPresentation(id uuid.UUID) {
	c.presMu.Lock()
	defer c.presMu.Unlock()
	delete(c.pres, id)
}

func (c *FeedController) updatePresentation(id uuid.UUID, fn func(*presentation)) {
	c.presMu.Lock()
	defer c.presMu.Unlock()
	p, ok := c.pres[id]
	if !ok {
		p = &presentation{}
		c.pres[id] = p
	}
	fn(p)
}
