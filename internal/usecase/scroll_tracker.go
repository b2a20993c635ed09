package usecase

import (
	"math"
	"slices"
	"sync"
)

// Geometry is the scroll surface state along the paging axis.
type Geometry struct {
	Offset         float64
	ContentExtent  float64
	ViewportExtent float64
}

// Settle describes the page a swipe came to rest on.
type Settle struct {
	CurrentIndex int
	Visible      []int
	NonVisible   []int
}

// ScrollTracker turns raw scroll geometry into a settled page index and a
// near-end signal. The index only changes on settle; near-end is evaluated on
// every scroll update.
type ScrollTracker struct {
	threshold float64

	mu           sync.Mutex
	decelerating bool
	currentIndex int
	visible      []int
}

// NewScrollTracker creates a tracker. paginationThreshold is the distance from
// the end of the content at which near-end fires.
func NewScrollTracker(paginationThreshold float64) *ScrollTracker {
	return &ScrollTracker{
		threshold: paginationThreshold,
		visible:   []int{0},
	}
}

// OnScroll reports whether the surface is within the pagination threshold of
// the end of its content.
func (t *ScrollTracker) OnScroll(g Geometry) bool {
	return g.Offset > g.ContentExtent-g.ViewportExtent-t.threshold
}

// BeginDeceleration locks the surface against input until the next settle.
// It returns false if a deceleration is already in progress.
func (t *ScrollTracker) BeginDeceleration() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.decelerating {
		return false
	}
	t.decelerating = true
	return true
}

// EndDeceleration settles the surface and re-enables input. It returns false
// when no deceleration was in progress, so each swipe settles exactly once.
func (t *ScrollTracker) EndDeceleration(g Geometry, itemCount int) (Settle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.decelerating {
		return Settle{}, false
	}
	t.decelerating = false

	index := pageIndex(g, itemCount)
	visible := []int{index}
	var nonVisible []int
	for _, i := range t.visible {
		if !slices.Contains(visible, i) {
			nonVisible = append(nonVisible, i)
		}
	}

	t.currentIndex = index
	t.visible = visible
	return Settle{
		CurrentIndex: index,
		Visible:      slices.Clone(visible),
		NonVisible:   nonVisible,
	}, true
}

// InputEnabled reports whether the surface accepts user input.
func (t *ScrollTracker) InputEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.decelerating
}

// CurrentIndex returns the last settled page.
func (t *ScrollTracker) CurrentIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentIndex
}

// pageIndex returns the page filling the viewport, clamped to [0, itemCount-1].
func pageIndex(g Geometry, itemCount int) int {
	if itemCount <= 0 || g.ViewportExtent <= 0 {
		return 0
	}
	i := int(math.Round(g.Offset / g.ViewportExtent))
	return max(0, min(i, itemCount-1))
}
