package usecase

import (
	"slices"
	"testing"
)

func TestScrollTracker_OnScroll(t *testing.T) {
	tracker := NewScrollTracker(100)

	tests := []struct {
		name   string
		offset float64
		want   bool
	}{
		{name: "top of feed", offset: 0, want: false},
		{name: "at threshold", offset: 3900, want: false},
		{name: "past threshold", offset: 3901, want: true},
		{name: "last page", offset: 4000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Five pages of 1000: content 5000, viewport 1000.
			g := Geometry{Offset: tt.offset, ContentExtent: 5000, ViewportExtent: 1000}
			if got := tracker.OnScroll(g); got != tt.want {
				t.Errorf("OnScroll(%v) = %v, want %v", tt.offset, got, tt.want)
			}
		})
	}
}

func TestScrollTracker_SettleLifecycle(t *testing.T) {
	tracker := NewScrollTracker(100)

	if !tracker.InputEnabled() {
		t.Fatal("input should start enabled")
	}
	if _, ok := tracker.EndDeceleration(Geometry{ViewportExtent: 1000}, 5); ok {
		t.Error("EndDeceleration without a deceleration should not settle")
	}

	if !tracker.BeginDeceleration() {
		t.Fatal("BeginDeceleration should succeed")
	}
	if tracker.InputEnabled() {
		t.Error("input should be locked while decelerating")
	}
	if tracker.BeginDeceleration() {
		t.Error("second BeginDeceleration should be refused")
	}

	settle, ok := tracker.EndDeceleration(Geometry{Offset: 2000, ContentExtent: 5000, ViewportExtent: 1000}, 5)
	if !ok {
		t.Fatal("EndDeceleration should settle")
	}
	if settle.CurrentIndex != 2 {
		t.Errorf("CurrentIndex = %d, want 2", settle.CurrentIndex)
	}
	if !slices.Equal(settle.Visible, []int{2}) {
		t.Errorf("Visible = %v, want [2]", settle.Visible)
	}
	if !slices.Equal(settle.NonVisible, []int{0}) {
		t.Errorf("NonVisible = %v, want [0]", settle.NonVisible)
	}
	if !tracker.InputEnabled() {
		t.Error("input should be enabled after settle")
	}
	if tracker.CurrentIndex() != 2 {
		t.Errorf("tracker CurrentIndex = %d, want 2", tracker.CurrentIndex())
	}

	// Settling twice on the same page reports nothing newly hidden.
	tracker.BeginDeceleration()
	settle, _ = tracker.EndDeceleration(Geometry{Offset: 2000, ContentExtent: 5000, ViewportExtent: 1000}, 5)
	if len(settle.NonVisible) != 0 {
		t.Errorf("NonVisible = %v, want none", settle.NonVisible)
	}
}

func TestPageIndex(t *testing.T) {
	tests := []struct {
		name      string
		offset    float64
		viewport  float64
		itemCount int
		want      int
	}{
		{name: "exact page", offset: 3000, viewport: 1000, itemCount: 5, want: 3},
		{name: "rounds down", offset: 1400, viewport: 1000, itemCount: 5, want: 1},
		{name: "rounds up", offset: 1600, viewport: 1000, itemCount: 5, want: 2},
		{name: "clamped to last", offset: 9000, viewport: 1000, itemCount: 5, want: 4},
		{name: "negative offset", offset: -500, viewport: 1000, itemCount: 5, want: 0},
		{name: "empty feed", offset: 2000, viewport: 1000, itemCount: 0, want: 0},
		{name: "zero viewport", offset: 2000, viewport: 0, itemCount: 5, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Geometry{Offset: tt.offset, ViewportExtent: tt.viewport}
			if got := pageIndex(g, tt.itemCount); got != tt.want {
				t.Errorf("pageIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}
