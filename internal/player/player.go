package player

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrHandleReleased is returned by operations issued on a released handle.
	ErrHandleReleased = errors.New("player handle released")
	// ErrNoPlaylist is returned when a manifest yields no playable segments.
	ErrNoPlaylist = errors.New("manifest has no playable segments")
	// ErrEngineClosed is returned by an engine operation after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// BufferConfig bounds how much a single engine buffers and at what quality.
type BufferConfig struct {
	// ForwardBuffer is how far ahead of the playhead the engine downloads.
	ForwardBuffer time.Duration
	// MaxWidth and MaxHeight cap the variant resolution, typically the viewport size.
	MaxWidth  int
	MaxHeight int
	// PeakBitRate caps the variant bandwidth in bits per second.
	PeakBitRate int
	// SeekTolerance is the window within which a seek snaps instead of precision-seeking.
	SeekTolerance time.Duration
}

// DefaultBufferConfig returns the standard buffer configuration used for feed items.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		ForwardBuffer: 5 * time.Second,
		MaxWidth:      390,
		MaxHeight:     844,
		PeakBitRate:   2000,
		SeekTolerance: 100 * time.Millisecond,
	}
}

// EngineObserver receives state pushed by an Engine. Calls may come from any
// goroutine but never while the engine holds its own lock.
type EngineObserver interface {
	PositionChanged(fraction float64)
	BufferedChanged(fraction float64)
	BufferingChanged(buffering bool)
	ReachedEnd()
}

// Engine is the opaque media capability behind a Handle.
// Implementations render nothing; they fetch, buffer and advance a playhead.
type Engine interface {
	// Load resolves sourceURL and starts buffering. It blocks until the media
	// is ready to buffer or ctx is cancelled. Play may be called before Load returns.
	Load(ctx context.Context, sourceURL string, cfg BufferConfig, obs EngineObserver) error

	Play()
	Pause()

	// Seek moves the playhead to fraction of the total duration. It reports
	// whether the seek took effect.
	Seek(ctx context.Context, fraction float64, tolerance time.Duration) bool

	// Close stops all background work. It must be safe to call more than once.
	Close()
}

// EventKind identifies a handle event.
type EventKind int

const (
	EventPositionChanged EventKind = iota
	EventBufferedChanged
	EventBufferingChanged
	EventPlayingChanged
	EventReachedEnd
	EventScrubbingChanged
)

func (k EventKind) String() string {
	switch k {
	case EventPositionChanged:
		return "position_changed"
	case EventBufferedChanged:
		return "buffered_changed"
	case EventBufferingChanged:
		return "buffering_changed"
	case EventPlayingChanged:
		return "playing_changed"
	case EventReachedEnd:
		return "reached_end"
	case EventScrubbingChanged:
		return "scrubbing_changed"
	default:
		return "unknown"
	}
}

// Event is delivered to a handle's Listener.
// Fraction is set for position and buffered events, Flag for the boolean ones.
type Event struct {
	Kind      EventKind
	HandleID  uuid.UUID
	SourceURL string
	Fraction  float64
	Flag      bool
}

// Listener receives handle events. It must not call Release on the handle
// that delivered the event.
type Listener func(Event)

// State is a point-in-time copy of a handle's runtime state.
type State struct {
	Position  float64 `json:"position"`
	Buffered  float64 `json:"buffered"`
	Buffering bool    `json:"buffering"`
	Playing   bool    `json:"playing"`
	Scrubbing bool    `json:"scrubbing"`
	Released  bool    `json:"released"`
}

func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
