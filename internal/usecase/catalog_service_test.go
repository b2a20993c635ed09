package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hszk-dev/reelfeed/internal/domain/model"
)

func sourceURLs(videos []model.Video) []string {
	out := make([]string, len(videos))
	for i, v := range videos {
		out[i] = v.SourceURL
	}
	return out
}

func equalURLs(t *testing.T, got []model.Video, want []string) {
	t.Helper()
	g := sourceURLs(got)
	if len(g) != len(want) {
		t.Fatalf("got %d videos %v, want %d %v", len(g), g, len(want), want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Errorf("video %d = %s, want %s", i, g[i], want[i])
		}
	}
}

func TestFallbackCatalog_FetchFirstPage(t *testing.T) {
	remoteURLs := []string{"https://remote.example.com/a.m3u8", "https://remote.example.com/b.m3u8"}
	localURLs := testURLs(10)

	tests := []struct {
		name    string
		primary func(context.Context, int) ([]model.Video, error)
		want    []string
	}{
		{
			name: "primary success",
			primary: func(context.Context, int) ([]model.Video, error) {
				return testVideos(remoteURLs...), nil
			},
			want: remoteURLs,
		},
		{
			name: "primary error uses fallback",
			primary: func(context.Context, int) ([]model.Video, error) {
				return nil, errors.New("connection refused")
			},
			want: localURLs[:5],
		},
		{
			name: "primary empty uses fallback",
			primary: func(context.Context, int) ([]model.Video, error) {
				return []model.Video{}, nil
			},
			want: localURLs[:5],
		},
		{
			name: "oversized primary page is truncated",
			primary: func(context.Context, int) ([]model.Video, error) {
				return testVideos(testURLs(8)...), nil
			},
			want: testURLs(8)[:5],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &mockCatalog{firstPageFn: tt.primary}
			fallback := listCatalog(localURLs)
			c := NewFallbackCatalog(primary, fallback, FallbackCatalogConfig{})

			got, err := c.FetchFirstPage(context.Background(), 5)
			if err != nil {
				t.Fatalf("FetchFirstPage failed: %v", err)
			}
			equalURLs(t, got, tt.want)
		})
	}
}

func TestFallbackCatalog_FetchFirstPage_FallbackError(t *testing.T) {
	fallbackErr := errors.New("list unreadable")
	primary := &mockCatalog{
		firstPageFn: func(context.Context, int) ([]model.Video, error) {
			return nil, errors.New("timeout")
		},
	}
	fallback := &mockCatalog{
		firstPageFn: func(context.Context, int) ([]model.Video, error) {
			return nil, fallbackErr
		},
	}
	c := NewFallbackCatalog(primary, fallback, FallbackCatalogConfig{})

	if _, err := c.FetchFirstPage(context.Background(), 5); !errors.Is(err, fallbackErr) {
		t.Errorf("error = %v, want %v", err, fallbackErr)
	}
}

func TestFallbackCatalog_FetchNextPage(t *testing.T) {
	localURLs := testURLs(10)

	tests := []struct {
		name             string
		primary          func(context.Context, string, int) ([]model.Video, error)
		nextPageFallback bool
		want             []string
		wantFallback     bool
	}{
		{
			name: "primary page returned as is",
			primary: func(context.Context, string, int) ([]model.Video, error) {
				return testVideos("https://remote.example.com/c.m3u8"), nil
			},
			want: []string{"https://remote.example.com/c.m3u8"},
		},
		{
			name: "error is an empty page",
			primary: func(context.Context, string, int) ([]model.Video, error) {
				return nil, errors.New("HTTP 500")
			},
			nextPageFallback: true,
			want:             []string{},
		},
		{
			name: "empty page without next-page fallback",
			primary: func(context.Context, string, int) ([]model.Video, error) {
				return []model.Video{}, nil
			},
			want: []string{},
		},
		{
			name: "empty page with next-page fallback",
			primary: func(context.Context, string, int) ([]model.Video, error) {
				return []model.Video{}, nil
			},
			nextPageFallback: true,
			want:             localURLs[5:10],
			wantFallback:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &mockCatalog{nextPageFn: tt.primary}
			fallback := listCatalog(localURLs)
			c := NewFallbackCatalog(primary, fallback, FallbackCatalogConfig{NextPageFallback: tt.nextPageFallback})

			got, err := c.FetchNextPage(context.Background(), localURLs[4], 5)
			if err != nil {
				t.Fatalf("FetchNextPage returned error: %v", err)
			}
			if got == nil {
				t.Error("FetchNextPage returned nil, want a non-nil page")
			}
			equalURLs(t, got, tt.want)

			calledFallback := fallback.nextCount.Load() > 0
			if calledFallback != tt.wantFallback {
				t.Errorf("fallback consulted = %v, want %v", calledFallback, tt.wantFallback)
			}
		})
	}
}

func TestCachedCatalog_FetchFirstPage_CacheHit(t *testing.T) {
	delegate := listCatalog(testURLs(10))
	pageCache := newMockCatalogCache()
	pageCache.data[firstPageKey(5)] = testVideos("https://cdn.example.com/cached.m3u8")

	c := NewCachedCatalog(delegate, pageCache, DefaultCachedCatalogConfig())

	got, err := c.FetchFirstPage(context.Background(), 5)
	if err != nil {
		t.Fatalf("FetchFirstPage failed: %v", err)
	}
	equalURLs(t, got, []string{"https://cdn.example.com/cached.m3u8"})

	if n := delegate.firstCount.Load(); n != 0 {
		t.Errorf("delegate called %d times, want 0 on cache hit", n)
	}
}

func TestCachedCatalog_FetchFirstPage_CacheMiss(t *testing.T) {
	delegate := listCatalog(testURLs(10))
	var gotTTL time.Duration
	pageCache := newMockCatalogCache()
	pageCache.setFn = func(_ context.Context, key string, videos []model.Video, ttl time.Duration) error {
		gotTTL = ttl
		pageCache.mu.Lock()
		defer pageCache.mu.Unlock()
		pageCache.data[key] = videos
		return nil
	}

	c := NewCachedCatalog(delegate, pageCache, CachedCatalogConfig{CacheTTL: time.Minute})

	got, err := c.FetchFirstPage(context.Background(), 5)
	if err != nil {
		t.Fatalf("FetchFirstPage failed: %v", err)
	}
	equalURLs(t, got, testURLs(10)[:5])

	if !pageCache.has(firstPageKey(5)) {
		t.Error("first page should be cached after a miss")
	}
	if gotTTL != time.Minute {
		t.Errorf("TTL = %v, want %v", gotTTL, time.Minute)
	}

	// Second call is served from the cache.
	if _, err := c.FetchFirstPage(context.Background(), 5); err != nil {
		t.Fatalf("second FetchFirstPage failed: %v", err)
	}
	if n := delegate.firstCount.Load(); n != 1 {
		t.Errorf("delegate called %d times, want 1", n)
	}
}

func TestCachedCatalog_FetchFirstPage_EmptyNotCached(t *testing.T) {
	delegate := &mockCatalog{
		firstPageFn: func(context.Context, int) ([]model.Video, error) {
			return []model.Video{}, nil
		},
	}
	pageCache := newMockCatalogCache()
	c := NewCachedCatalog(delegate, pageCache, DefaultCachedCatalogConfig())

	got, err := c.FetchFirstPage(context.Background(), 5)
	if err != nil {
		t.Fatalf("FetchFirstPage failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d videos, want 0", len(got))
	}
	if pageCache.has(firstPageKey(5)) {
		t.Error("empty page should not be cached")
	}
}

func TestCachedCatalog_FetchFirstPage_DelegateError(t *testing.T) {
	wantErr := errors.New("upstream down")
	delegate := &mockCatalog{
		firstPageFn: func(context.Context, int) ([]model.Video, error) {
			return nil, wantErr
		},
	}
	c := NewCachedCatalog(delegate, newMockCatalogCache(), DefaultCachedCatalogConfig())

	if _, err := c.FetchFirstPage(context.Background(), 5); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestCachedCatalog_FetchFirstPage_CacheErrorFallsBackToDelegate(t *testing.T) {
	delegate := listCatalog(testURLs(3))
	pageCache := &mockCatalogCache{
		getFn: func(context.Context, string) ([]model.Video, error) {
			return nil, errors.New("redis connection error")
		},
		setFn: func(context.Context, string, []model.Video, time.Duration) error {
			return errors.New("redis connection error")
		},
	}
	c := NewCachedCatalog(delegate, pageCache, DefaultCachedCatalogConfig())

	got, err := c.FetchFirstPage(context.Background(), 5)
	if err != nil {
		t.Fatalf("FetchFirstPage should not fail on cache error: %v", err)
	}
	equalURLs(t, got, testURLs(3))
}

func TestCachedCatalog_FetchFirstPage_Singleflight(t *testing.T) {
	delegate := listCatalog(testURLs(10))
	inner := delegate.firstPageFn
	delegate.firstPageFn = func(ctx context.Context, pageSize int) ([]model.Video, error) {
		// Simulate a slow catalog endpoint
		time.Sleep(50 * time.Millisecond)
		return inner(ctx, pageSize)
	}
	c := NewCachedCatalog(delegate, newMockCatalogCache(), DefaultCachedCatalogConfig())

	var wg sync.WaitGroup
	results := make([][]model.Video, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			videos, err := c.FetchFirstPage(context.Background(), 5)
			if err != nil {
				t.Errorf("FetchFirstPage failed: %v", err)
			}
			results[i] = videos
		}(i)
	}
	wg.Wait()

	if n := delegate.firstCount.Load(); n != 1 {
		t.Errorf("delegate called %d times, want 1 (singleflight should coalesce)", n)
	}

	// Shared results must not alias each other.
	results[0][0] = model.Video{SourceURL: "https://cdn.example.com/mutated.m3u8"}
	if results[1][0].SourceURL == "https://cdn.example.com/mutated.m3u8" {
		t.Error("callers share the same backing slice")
	}
}

func TestCachedCatalog_FetchNextPage_Delegates(t *testing.T) {
	delegate := listCatalog(testURLs(10))
	pageCache := newMockCatalogCache()
	c := NewCachedCatalog(delegate, pageCache, DefaultCachedCatalogConfig())

	got, err := c.FetchNextPage(context.Background(), testURLs(10)[2], 3)
	if err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}
	equalURLs(t, got, testURLs(10)[3:6])

	if len(pageCache.data) != 0 {
		t.Errorf("next pages should not be cached, cache has %d entries", len(pageCache.data))
	}
}

func TestCachedCatalog_InvalidateFirstPage(t *testing.T) {
	pageCache := newMockCatalogCache()
	pageCache.data[firstPageKey(5)] = testVideos("https://cdn.example.com/cached.m3u8")
	c := NewCachedCatalog(listCatalog(testURLs(5)), pageCache, DefaultCachedCatalogConfig())

	if err := c.InvalidateFirstPage(context.Background(), 5); err != nil {
		t.Fatalf("InvalidateFirstPage failed: %v", err)
	}
	if pageCache.has(firstPageKey(5)) {
		t.Error("cached first page should be removed")
	}
}
