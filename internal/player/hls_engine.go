package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grafov/m3u8"
	"github.com/hszk-dev/reelfeed/internal/infrastructure/telemetry"
	"go.uber.org/ratelimit"
)

const (
	defaultTickInterval = 100 * time.Millisecond
	maxPlaylistBytes    = 4 << 20
)

// HLSEngineConfig holds the collaborators shared by every HLSEngine.
type HLSEngineConfig struct {
	// Client performs playlist and segment requests.
	// If nil, http.DefaultClient is used.
	Client *http.Client

	// Manifests caches playlist bodies across engines. Optional.
	Manifests *ManifestCache

	// Limiter paces segment requests across engines. Optional.
	Limiter ratelimit.Limiter

	// Bandwidth receives one sample per downloaded segment. Optional.
	Bandwidth telemetry.BandwidthRecorder

	// TickInterval is the playhead resolution.
	// Default: 100ms
	TickInterval time.Duration

	Logger *slog.Logger
}

type segment struct {
	uri      string
	start    time.Duration
	duration time.Duration
}

// HLSEngine plays an HLS stream headlessly: it picks a variant, downloads
// segments up to the forward buffer and advances a simulated playhead.
type HLSEngine struct {
	cfg    HLSEngineConfig
	client *http.Client
	logger *slog.Logger

	mu           sync.Mutex
	obs          EngineObserver
	buf          BufferConfig
	segments     []segment
	total        time.Duration
	position     time.Duration
	bufferedFrom int
	nextSegment  int
	generation   int
	playing      bool
	buffering    bool
	fetching     bool
	stalled      bool
	started      bool
	closed       bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Compile-time verification that HLSEngine implements Engine.
var _ Engine = (*HLSEngine)(nil)

// NewHLSEngine creates an engine. One engine serves exactly one handle.
func NewHLSEngine(cfg HLSEngineConfig) *HLSEngine {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	return &HLSEngine{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Load resolves the playlist chain for sourceURL and starts the playback loop.
func (e *HLSEngine) Load(ctx context.Context, sourceURL string, cfg BufferConfig, obs EngineObserver) error {
	segments, err := e.resolve(ctx, sourceURL, cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already loaded")
	}
	last := segments[len(segments)-1]
	e.obs = obs
	e.buf = cfg
	e.segments = segments
	e.total = last.start + last.duration
	e.buffering = true
	e.started = true
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	obs.BufferingChanged(true)
	go e.run(runCtx)
	return nil
}

func (e *HLSEngine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.playing = true
}

func (e *HLSEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

// Seek moves the playhead. Targets within tolerance of the current position
// are no-ops, and targets within tolerance after a segment start snap to it.
// Seeking outside the buffered range discards it and refills from the target.
func (e *HLSEngine) Seek(ctx context.Context, fraction float64, tolerance time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}

	e.mu.Lock()
	if e.closed || !e.started {
		e.mu.Unlock()
		return false
	}

	target := time.Duration(clampFraction(fraction) * float64(e.total))
	if absDuration(target-e.position) <= tolerance {
		e.mu.Unlock()
		return true
	}

	idx := e.segmentAt(target)
	if target-e.segments[idx].start <= tolerance {
		target = e.segments[idx].start
	}
	e.position = target

	var n notifications
	n.setPosition(e.fractionOf(e.position))
	if idx < e.bufferedFrom || idx >= e.nextSegment {
		e.generation++
		e.bufferedFrom = idx
		e.nextSegment = idx
		e.fetching = false
		e.stalled = false
		n.setBuffered(e.fractionOf(e.bufferedEdge()))
		if !e.buffering {
			e.buffering = true
			n.setBuffering(true)
		}
	}
	obs := e.obs
	e.mu.Unlock()

	n.deliver(obs)
	return true
}

// Close stops the playback loop and waits for in-flight downloads.
func (e *HLSEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.playing = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *HLSEngine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.step(ctx, 0)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.step(ctx, now.Sub(last))
			last = now
		}
	}
}

// step advances the playhead by elapsed and schedules the next download.
func (e *HLSEngine) step(ctx context.Context, elapsed time.Duration) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	var n notifications
	edge := e.bufferedEdge()

	if e.playing && !e.buffering && elapsed > 0 {
		next := min(e.position+elapsed, edge)
		if next != e.position {
			e.position = next
			n.setPosition(e.fractionOf(next))
		}
	}

	switch {
	case e.playing && e.position >= e.total:
		e.position = e.total
		e.playing = false
		n.reachedEnd = true
	case e.playing && !e.buffering && e.position >= edge:
		e.buffering = true
		n.setBuffering(true)
	case e.buffering && (edge > e.position || edge >= e.total):
		e.buffering = false
		n.setBuffering(false)
	}

	if e.shouldFetch(edge) {
		idx := e.nextSegment
		gen := e.generation
		seg := e.segments[idx]
		e.fetching = true
		e.wg.Add(1)
		go e.fetch(ctx, gen, idx, seg)
	}
	obs := e.obs
	e.mu.Unlock()

	n.deliver(obs)
}

func (e *HLSEngine) shouldFetch(edge time.Duration) bool {
	if e.fetching || e.stalled || e.nextSegment >= len(e.segments) {
		return false
	}
	return edge <= e.position || edge < e.position+e.buf.ForwardBuffer
}

func (e *HLSEngine) fetch(ctx context.Context, gen, idx int, seg segment) {
	defer e.wg.Done()

	if e.cfg.Limiter != nil {
		e.cfg.Limiter.Take()
	}

	start := time.Now()
	n, err := e.download(ctx, seg.uri)
	if err == nil && e.cfg.Bandwidth != nil {
		e.cfg.Bandwidth.RecordTransfer(n, time.Since(start))
	}

	e.mu.Lock()
	if e.closed || gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.fetching = false

	if err != nil {
		e.stalled = true
		e.mu.Unlock()
		if ctx.Err() == nil {
			e.logger.Warn("segment download failed, playback will stall",
				slog.String("segment_url", seg.uri),
				slog.Any("error", err),
			)
		}
		return
	}

	var notes notifications
	e.nextSegment = idx + 1
	edge := e.bufferedEdge()
	notes.setBuffered(e.fractionOf(edge))
	if e.buffering && (edge > e.position || edge >= e.total) {
		e.buffering = false
		notes.setBuffering(false)
	}
	obs := e.obs
	e.mu.Unlock()

	notes.deliver(obs)
}

func (e *HLSEngine) download(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("request %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return n, nil
}

// resolve follows a master playlist to the selected variant and returns its segments.
func (e *HLSEngine) resolve(ctx context.Context, sourceURL string, cfg BufferConfig) ([]segment, error) {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse source URL: %w", err)
	}

	playlist, listType, err := e.fetchPlaylist(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	if listType == m3u8.MASTER {
		master := playlist.(*m3u8.MasterPlaylist)
		variant := selectVariant(master.Variants, cfg)
		if variant == nil {
			return nil, ErrNoPlaylist
		}

		mediaURL, err := base.Parse(variant.URI)
		if err != nil {
			return nil, fmt.Errorf("resolve variant URI: %w", err)
		}
		e.logger.Debug("selected variant",
			slog.String("source_url", sourceURL),
			slog.String("variant_url", mediaURL.String()),
			slog.Int("bandwidth", int(variant.Bandwidth)),
			slog.String("resolution", variant.Resolution),
		)

		playlist, listType, err = e.fetchPlaylist(ctx, mediaURL.String())
		if err != nil {
			return nil, err
		}
		if listType != m3u8.MEDIA {
			return nil, ErrNoPlaylist
		}
		base = mediaURL
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, ErrNoPlaylist
	}
	return buildSegments(base, media)
}

func (e *HLSEngine) fetchPlaylist(ctx context.Context, rawURL string) (m3u8.Playlist, m3u8.ListType, error) {
	var (
		body   []byte
		cached bool
	)
	if e.cfg.Manifests != nil {
		body, cached = e.cfg.Manifests.Get(rawURL)
	}

	if !cached {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("create playlist request: %w", err)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch playlist %s: %w", rawURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, 0, fmt.Errorf("fetch playlist %s: unexpected status %d", rawURL, resp.StatusCode)
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
		if err != nil {
			return nil, 0, fmt.Errorf("read playlist %s: %w", rawURL, err)
		}
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, 0, fmt.Errorf("decode playlist %s: %w", rawURL, err)
	}
	if e.cfg.Manifests != nil && !cached {
		e.cfg.Manifests.Set(rawURL, body)
	}
	return playlist, listType, nil
}

// selectVariant returns the highest-bandwidth variant within the peak bit rate
// and resolution caps, or the lowest-bandwidth variant when none fits.
func selectVariant(variants []*m3u8.Variant, cfg BufferConfig) *m3u8.Variant {
	var best, lowest *m3u8.Variant
	for _, v := range variants {
		if v == nil || v.URI == "" {
			continue
		}
		if lowest == nil || v.Bandwidth < lowest.Bandwidth {
			lowest = v
		}
		if !variantFits(v, cfg) {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best != nil {
		return best
	}
	return lowest
}

func variantFits(v *m3u8.Variant, cfg BufferConfig) bool {
	if cfg.PeakBitRate > 0 && int64(v.Bandwidth) > int64(cfg.PeakBitRate) {
		return false
	}
	w, h, ok := parseResolution(v.Resolution)
	if !ok {
		return true
	}
	if cfg.MaxWidth > 0 && w > cfg.MaxWidth {
		return false
	}
	if cfg.MaxHeight > 0 && h > cfg.MaxHeight {
		return false
	}
	return true
}

// parseResolution parses a RESOLUTION attribute such as "1280x720".
func parseResolution(s string) (int, int, bool) {
	ws, hs, found := strings.Cut(strings.ToLower(s), "x")
	if !found {
		return 0, 0, false
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}

func buildSegments(base *url.URL, media *m3u8.MediaPlaylist) ([]segment, error) {
	var (
		segments []segment
		offset   time.Duration
	)
	for _, s := range media.Segments {
		if s == nil {
			break
		}
		u, err := base.Parse(s.URI)
		if err != nil {
			return nil, fmt.Errorf("resolve segment URI: %w", err)
		}
		d := time.Duration(s.Duration * float64(time.Second))
		segments = append(segments, segment{uri: u.String(), start: offset, duration: d})
		offset += d
	}
	if len(segments) == 0 || offset <= 0 {
		return nil, ErrNoPlaylist
	}
	return segments, nil
}

func (e *HLSEngine) bufferedEdge() time.Duration {
	if e.nextSegment >= len(e.segments) {
		return e.total
	}
	return e.segments[e.nextSegment].start
}

func (e *HLSEngine) segmentAt(t time.Duration) int {
	for i := len(e.segments) - 1; i > 0; i-- {
		if e.segments[i].start <= t {
			return i
		}
	}
	return 0
}

func (e *HLSEngine) fractionOf(d time.Duration) float64 {
	if e.total <= 0 {
		return 0
	}
	return clampFraction(float64(d) / float64(e.total))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// notifications collects observer calls made under the engine lock so they
// can be delivered after it is released.
type notifications struct {
	hasPosition  bool
	position     float64
	hasBuffered  bool
	buffered     float64
	hasBuffering bool
	buffering    bool
	reachedEnd   bool
}

func (n *notifications) setPosition(f float64) {
	n.hasPosition = true
	n.position = f
}

func (n *notifications) setBuffered(f float64) {
	n.hasBuffered = true
	n.buffered = f
}

func (n *notifications) setBuffering(b bool) {
	n.hasBuffering = true
	n.buffering = b
}

func (n notifications) deliver(obs EngineObserver) {
	if obs == nil {
		return
	}
	if n.hasBuffering {
		obs.BufferingChanged(n.buffering)
	}
	if n.hasPosition {
		obs.PositionChanged(n.position)
	}
	if n.hasBuffered {
		obs.BufferedChanged(n.buffered)
	}
	if n.reachedEnd {
		obs.ReachedEnd()
	}
}
