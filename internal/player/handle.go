package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/metrics"
)

// Handle owns one engine bound to one source URL for its whole lifetime.
//
// Events reach the listener synchronously on the goroutine that caused them.
// Once Release returns no further event is delivered.
type Handle struct {
	id        uuid.UUID
	sourceURL string
	cfg       BufferConfig
	engine    Engine
	listener  Listener
	logger    *slog.Logger
	onRelease func(*Handle)

	ctx    context.Context
	cancel context.CancelFunc

	released    atomic.Bool
	releaseOnce sync.Once
	// deliveryMu is held for reading while a listener runs and for writing
	// by Release, so Release waits out in-flight deliveries.
	deliveryMu sync.RWMutex

	mu    sync.Mutex
	state State
}

// NewHandle binds engine to sourceURL. Nothing is loaded until Prepare runs.
func NewHandle(sourceURL string, cfg BufferConfig, engine Engine, listener Listener, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		id:        uuid.New(),
		sourceURL: sourceURL,
		cfg:       cfg,
		engine:    engine,
		listener:  listener,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		state:     State{Buffering: true},
	}
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) SourceURL() string {
	return h.sourceURL
}

// State returns a snapshot of the handle's runtime state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Prepare loads the engine. It blocks and is meant to run off the caller's
// goroutine. A load failure leaves the handle buffering indefinitely; the
// returned error is informational only.
func (h *Handle) Prepare() error {
	if h.released.Load() {
		return ErrHandleReleased
	}

	err := h.engine.Load(h.ctx, h.sourceURL, h.cfg, handleObserver{h: h})
	if err != nil {
		if h.released.Load() || errors.Is(err, context.Canceled) {
			return ErrHandleReleased
		}
		metrics.PlayerHandleEventsTotal.WithLabelValues(metrics.HandlePrepareFailed).Inc()
		h.logger.Warn("failed to prepare player",
			slog.String("handle_id", h.id.String()),
			slog.String("source_url", h.sourceURL),
			slog.Any("error", err),
		)
		h.mu.Lock()
		h.state.Buffering = true
		h.mu.Unlock()
		h.emit(Event{Kind: EventBufferingChanged, Flag: true})
		return fmt.Errorf("prepare %s: %w", h.sourceURL, err)
	}

	metrics.PlayerHandleEventsTotal.WithLabelValues(metrics.HandlePrepared).Inc()
	return nil
}

// Play starts playback. Listeners reset their overlay on PlayingChanged(true),
// so the buffered fraction and an ongoing stall are re-sent right after it.
// Calling Play while already playing does nothing.
func (h *Handle) Play() {
	if h.released.Load() {
		return
	}

	h.mu.Lock()
	if h.state.Playing {
		h.mu.Unlock()
		return
	}
	h.state.Playing = true
	buffered := h.state.Buffered
	buffering := h.state.Buffering
	h.mu.Unlock()

	h.engine.Play()
	h.emit(Event{Kind: EventPlayingChanged, Flag: true})
	h.emit(Event{Kind: EventBufferedChanged, Fraction: buffered})
	if buffering {
		h.emit(Event{Kind: EventBufferingChanged, Flag: true})
	}
}

// Pause stops playback. Calling Pause while paused does nothing.
func (h *Handle) Pause() {
	if h.released.Load() {
		return
	}

	h.mu.Lock()
	if !h.state.Playing {
		h.mu.Unlock()
		return
	}
	h.state.Playing = false
	h.mu.Unlock()

	h.engine.Pause()
	h.emit(Event{Kind: EventPlayingChanged, Flag: false})
}

// SeekNormalized seeks to fraction (clamped to [0,1]) asynchronously.
// done, if non-nil, receives whether the seek took effect.
func (h *Handle) SeekNormalized(fraction float64, done func(bool)) {
	if h.released.Load() {
		if done != nil {
			done(false)
		}
		return
	}

	f := clampFraction(fraction)
	go func() {
		ok := h.engine.Seek(h.ctx, f, h.cfg.SeekTolerance)
		if !ok {
			h.logger.Debug("seek did not complete",
				slog.String("handle_id", h.id.String()),
				slog.Float64("fraction", f),
			)
		}
		if done != nil {
			done(ok && !h.released.Load())
		}
	}()
}

// BeginScrub freezes position updates coming from playback.
func (h *Handle) BeginScrub() {
	if h.released.Load() {
		return
	}
	if !h.setScrubbing(true) {
		return
	}
	h.emit(Event{Kind: EventScrubbingChanged, Flag: true})
}

// ScrubTo moves the displayed position while scrubbing without seeking.
func (h *Handle) ScrubTo(fraction float64) {
	if h.released.Load() {
		return
	}
	f := clampFraction(fraction)

	h.mu.Lock()
	if !h.state.Scrubbing {
		h.mu.Unlock()
		return
	}
	h.state.Position = f
	h.mu.Unlock()

	h.emit(Event{Kind: EventPositionChanged, Fraction: f})
}

// EndScrub unfreezes position updates and seeks to fraction.
func (h *Handle) EndScrub(fraction float64, done func(bool)) {
	if h.released.Load() {
		if done != nil {
			done(false)
		}
		return
	}
	if h.setScrubbing(false) {
		h.emit(Event{Kind: EventScrubbingChanged, Flag: false})
	}
	h.SeekNormalized(fraction, done)
}

// Release tears down the engine. It is idempotent; concurrent callers block
// until the first one has finished.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		h.released.Store(true)

		// Wait for in-flight deliveries; later ones see released and return.
		h.deliveryMu.Lock()
		h.deliveryMu.Unlock()

		h.cancel()
		h.engine.Close()

		h.mu.Lock()
		h.state.Released = true
		h.state.Playing = false
		h.mu.Unlock()

		if h.onRelease != nil {
			h.onRelease(h)
		}
	})
}

func (h *Handle) setScrubbing(v bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Scrubbing == v {
		return false
	}
	h.state.Scrubbing = v
	return true
}

func (h *Handle) emit(ev Event) {
	if h.listener == nil {
		return
	}

	h.deliveryMu.RLock()
	defer h.deliveryMu.RUnlock()
	if h.released.Load() {
		return
	}

	ev.HandleID = h.id
	ev.SourceURL = h.sourceURL
	h.listener(ev)
}

// handleObserver adapts engine callbacks onto the handle.
type handleObserver struct {
	h *Handle
}

func (o handleObserver) PositionChanged(fraction float64) {
	h := o.h
	h.mu.Lock()
	if h.state.Scrubbing {
		h.mu.Unlock()
		return
	}
	h.state.Position = fraction
	h.mu.Unlock()

	h.emit(Event{Kind: EventPositionChanged, Fraction: fraction})
}

func (o handleObserver) BufferedChanged(fraction float64) {
	h := o.h
	h.mu.Lock()
	h.state.Buffered = fraction
	h.mu.Unlock()

	h.emit(Event{Kind: EventBufferedChanged, Fraction: fraction})
}

func (o handleObserver) BufferingChanged(buffering bool) {
	h := o.h
	h.mu.Lock()
	if h.state.Buffering == buffering {
		h.mu.Unlock()
		return
	}
	h.state.Buffering = buffering
	h.mu.Unlock()

	h.emit(Event{Kind: EventBufferingChanged, Flag: buffering})
}

// ReachedEnd loops the item: seek to the start and keep playing.
func (o handleObserver) ReachedEnd() {
	h := o.h
	h.emit(Event{Kind: EventReachedEnd})
	if h.released.Load() {
		return
	}

	h.engine.Seek(h.ctx, 0, 0)

	h.mu.Lock()
	wasPlaying := h.state.Playing
	h.state.Playing = true
	h.mu.Unlock()

	h.engine.Play()
	if !wasPlaying {
		h.emit(Event{Kind: EventPlayingChanged, Flag: true})
	}
}
