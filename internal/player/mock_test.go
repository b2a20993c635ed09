package player

import (
	"context"
	"sync"
	"time"
)

// fakeEngine provides a configurable Engine that records the calls it receives.
type fakeEngine struct {
	loadFn func(ctx context.Context, sourceURL string, cfg BufferConfig, obs EngineObserver) error
	seekFn func(ctx context.Context, fraction float64, tolerance time.Duration) bool

	mu     sync.Mutex
	obs    EngineObserver
	loads  int
	plays  int
	pauses int
	closes int
	seeks  []float64
	loaded chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{loaded: make(chan struct{}, 1)}
}

func (e *fakeEngine) Load(ctx context.Context, sourceURL string, cfg BufferConfig, obs EngineObserver) error {
	e.mu.Lock()
	e.loads++
	e.obs = obs
	e.mu.Unlock()

	defer func() {
		select {
		case e.loaded <- struct{}{}:
		default:
		}
	}()
	if e.loadFn != nil {
		return e.loadFn(ctx, sourceURL, cfg, obs)
	}
	return nil
}

func (e *fakeEngine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plays++
}

func (e *fakeEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses++
}

func (e *fakeEngine) Seek(ctx context.Context, fraction float64, tolerance time.Duration) bool {
	e.mu.Lock()
	e.seeks = append(e.seeks, fraction)
	e.mu.Unlock()
	if e.seekFn != nil {
		return e.seekFn(ctx, fraction, tolerance)
	}
	return true
}

func (e *fakeEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
}

func (e *fakeEngine) counts() (plays, pauses, closes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plays, e.pauses, e.closes
}

func (e *fakeEngine) seekCalls() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.seeks...)
}

// eventRecorder collects handle events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// observerRecorder collects engine observer calls.
type observerRecorder struct {
	mu         sync.Mutex
	positions  []float64
	buffered   []float64
	buffering  []bool
	reachedEnd int
}

func (o *observerRecorder) PositionChanged(f float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.positions = append(o.positions, f)
}

func (o *observerRecorder) BufferedChanged(f float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffered = append(o.buffered, f)
}

func (o *observerRecorder) BufferingChanged(b bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffering = append(o.buffering, b)
}

func (o *observerRecorder) ReachedEnd() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reachedEnd++
}

func (o *observerRecorder) lastBuffered() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.buffered) == 0 {
		return 0
	}
	return o.buffered[len(o.buffered)-1]
}

func (o *observerRecorder) lastBuffering() (bool, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.buffering) == 0 {
		return false, false
	}
	return o.buffering[len(o.buffering)-1], true
}

func (o *observerRecorder) ends() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reachedEnd
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
