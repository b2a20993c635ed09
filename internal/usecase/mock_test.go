package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/reelfeed/internal/domain/model"
	"github.com/hszk-dev/reelfeed/internal/player"
)

// mockCatalog provides a configurable mock for repository.Catalog.
type mockCatalog struct {
	firstPageFn func(ctx context.Context, pageSize int) ([]model.Video, error)
	nextPageFn  func(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error)
	firstCount  atomic.Int32
	nextCount   atomic.Int32
}

func (m *mockCatalog) FetchFirstPage(ctx context.Context, pageSize int) ([]model.Video, error) {
	m.firstCount.Add(1)
	if m.firstPageFn != nil {
		return m.firstPageFn(ctx, pageSize)
	}
	return nil, nil
}

func (m *mockCatalog) FetchNextPage(ctx context.Context, afterSourceURL string, pageSize int) ([]model.Video, error) {
	m.nextCount.Add(1)
	if m.nextPageFn != nil {
		return m.nextPageFn(ctx, afterSourceURL, pageSize)
	}
	return nil, nil
}

// listCatalog serves pages from a fixed list the way the local fallback does.
func listCatalog(urls []string) *mockCatalog {
	videos := testVideos(urls...)
	return &mockCatalog{
		firstPageFn: func(_ context.Context, pageSize int) ([]model.Video, error) {
			return append([]model.Video(nil), videos[:min(pageSize, len(videos))]...), nil
		},
		nextPageFn: func(_ context.Context, after string, pageSize int) ([]model.Video, error) {
			for i, v := range videos {
				if v.SourceURL == after {
					rest := videos[i+1:]
					return append([]model.Video(nil), rest[:min(pageSize, len(rest))]...), nil
				}
			}
			return []model.Video{}, nil
		},
	}
}

func testURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.example.com/v%02d/master.m3u8", i)
	}
	return urls
}

func testVideos(urls ...string) []model.Video {
	videos := make([]model.Video, len(urls))
	for i, u := range urls {
		videos[i] = model.Video{SourceURL: u}
	}
	return videos
}

// mockCatalogCache is a mock implementation of cache.CatalogCache for testing.
type mockCatalogCache struct {
	mu       sync.RWMutex
	data     map[string][]model.Video
	getFn    func(ctx context.Context, key string) ([]model.Video, error)
	setFn    func(ctx context.Context, key string, videos []model.Video, ttl time.Duration) error
	deleteFn func(ctx context.Context, key string) error
}

func newMockCatalogCache() *mockCatalogCache {
	return &mockCatalogCache{
		data: make(map[string][]model.Video),
	}
}

func (m *mockCatalogCache) Get(ctx context.Context, key string) ([]model.Video, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

func (m *mockCatalogCache) Set(ctx context.Context, key string, videos []model.Video, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, videos, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = videos
	return nil
}

func (m *mockCatalogCache) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockCatalogCache) has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

// mockPlayer is a MediaPlayer that records calls and lets tests emit events.
type mockPlayer struct {
	id        uuid.UUID
	sourceURL string
	listener  player.Listener

	mu       sync.Mutex
	state    player.State
	plays    int
	pauses   int
	releases int
	seeks    []float64
	seekOK   bool
}

func (p *mockPlayer) ID() uuid.UUID { return p.id }

func (p *mockPlayer) SourceURL() string { return p.sourceURL }

func (p *mockPlayer) State() player.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *mockPlayer) Play() {
	p.mu.Lock()
	p.plays++
	already := p.state.Playing
	p.state.Playing = true
	p.mu.Unlock()
	if !already {
		p.emit(player.Event{Kind: player.EventPlayingChanged, Flag: true})
	}
}

func (p *mockPlayer) Pause() {
	p.mu.Lock()
	p.pauses++
	was := p.state.Playing
	p.state.Playing = false
	p.mu.Unlock()
	if was {
		p.emit(player.Event{Kind: player.EventPlayingChanged, Flag: false})
	}
}

func (p *mockPlayer) SeekNormalized(fraction float64, done func(bool)) {
	p.mu.Lock()
	p.seeks = append(p.seeks, fraction)
	ok := p.seekOK
	p.mu.Unlock()
	if done != nil {
		go done(ok)
	}
}

func (p *mockPlayer) BeginScrub() {
	p.emit(player.Event{Kind: player.EventScrubbingChanged, Flag: true})
}

func (p *mockPlayer) ScrubTo(fraction float64) {
	p.emit(player.Event{Kind: player.EventPositionChanged, Fraction: fraction})
}

func (p *mockPlayer) EndScrub(fraction float64, done func(bool)) {
	p.emit(player.Event{Kind: player.EventScrubbingChanged, Flag: false})
	p.SeekNormalized(fraction, done)
}

func (p *mockPlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	p.state.Released = true
}

func (p *mockPlayer) emit(ev player.Event) {
	p.mu.Lock()
	released := p.state.Released
	p.mu.Unlock()
	if released || p.listener == nil {
		return
	}
	ev.HandleID = p.id
	ev.SourceURL = p.sourceURL
	p.listener(ev)
}

func (p *mockPlayer) counts() (plays, pauses, releases int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays, p.pauses, p.releases
}

// mockPlayerFactory records every player it creates.
type mockPlayerFactory struct {
	mu      sync.Mutex
	created []*mockPlayer
	seekOK  bool
	// bindTo overrides the URL a created player is bound to when set.
	bindTo func(sourceURL string) string
}

func newMockPlayerFactory() *mockPlayerFactory {
	return &mockPlayerFactory{seekOK: true}
}

func (f *mockPlayerFactory) Create(sourceURL string, listener player.Listener) MediaPlayer {
	bound := sourceURL
	if f.bindTo != nil {
		bound = f.bindTo(sourceURL)
	}
	p := &mockPlayer{
		id:        uuid.New(),
		sourceURL: bound,
		listener:  listener,
		seekOK:    f.seekOK,
	}
	f.mu.Lock()
	f.created = append(f.created, p)
	f.mu.Unlock()
	return p
}

func (f *mockPlayerFactory) all() []*mockPlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mockPlayer(nil), f.created...)
}

// live returns the players not yet released.
func (f *mockPlayerFactory) live() []*mockPlayer {
	var out []*mockPlayer
	for _, p := range f.all() {
		if _, _, releases := p.counts(); releases == 0 {
			out = append(out, p)
		}
	}
	return out
}

// createdFor returns how many players were created for sourceURL.
func (f *mockPlayerFactory) createdFor(sourceURL string) int {
	n := 0
	for _, p := range f.all() {
		if p.sourceURL == sourceURL {
			n++
		}
	}
	return n
}

// stallingEngine is a player.Engine whose Load blocks until ready is closed,
// reports buffering finished, then holds until the handle is released.
type stallingEngine struct {
	ready    <-chan struct{}
	reported chan<- struct{}
}

func (e *stallingEngine) Load(ctx context.Context, _ string, _ player.BufferConfig, obs player.EngineObserver) error {
	select {
	case <-e.ready:
		obs.BufferingChanged(false)
		e.reported <- struct{}{}
		<-ctx.Done()
	case <-ctx.Done():
	}
	return ctx.Err()
}

func (e *stallingEngine) Play()  {}
func (e *stallingEngine) Pause() {}

func (e *stallingEngine) Seek(context.Context, float64, time.Duration) bool { return true }

func (e *stallingEngine) Close() {}

// handleFactory creates real player handles over stalling engines and
// prepares them in the background.
func handleFactory(ready <-chan struct{}, reported chan<- struct{}) PlayerFactoryFunc {
	return func(sourceURL string, listener player.Listener) MediaPlayer {
		engine := &stallingEngine{ready: ready, reported: reported}
		h := player.NewHandle(sourceURL, player.DefaultBufferConfig(), engine, listener, nil)
		go func() { _ = h.Prepare() }()
		return h
	}
}
