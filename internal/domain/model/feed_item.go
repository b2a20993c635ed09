package model

import "errors"

// PlayerHandle is the part of a media player handle the feed model owns.
// Implementations must make Release idempotent.
type PlayerHandle interface {
	SourceURL() string
	Release()
}

var (
	// ErrHandleMismatch is returned when attaching a handle bound to another URL.
	ErrHandleMismatch = errors.New("handle is bound to a different source URL")
	// ErrNilHandle is returned when attaching a nil handle.
	ErrNilHandle = errors.New("handle cannot be nil")
)

// FeedItem is one page of the feed. It exclusively owns its player handle,
// which is only present while the item sits inside the prefetch window.
type FeedItem struct {
	video  Video
	slot   SlotState
	handle PlayerHandle
}

// NewFeedItem creates an item with an empty slot.
func NewFeedItem(v Video) *FeedItem {
	return &FeedItem{video: v, slot: SlotEmpty}
}

func (i *FeedItem) SourceURL() string {
	return i.video.SourceURL
}

func (i *FeedItem) Video() Video {
	return i.video
}

func (i *FeedItem) Slot() SlotState {
	return i.slot
}

// Handle returns the attached handle, or nil outside READY/RELEASING.
func (i *FeedItem) Handle() PlayerHandle {
	return i.handle
}

// HasHandle reports whether a live handle is attached.
func (i *FeedItem) HasHandle() bool {
	return i.handle != nil
}

// BeginAttach moves the slot from EMPTY to ATTACHING.
func (i *FeedItem) BeginAttach() error {
	return i.transitionTo(SlotAttaching)
}

// CompleteAttach binds h to the item. The slot must be ATTACHING and h must be
// bound to the item's source URL.
func (i *FeedItem) CompleteAttach(h PlayerHandle) error {
	if h == nil {
		return ErrNilHandle
	}
	if h.SourceURL() != i.video.SourceURL {
		return ErrHandleMismatch
	}
	if err := i.transitionTo(SlotReady); err != nil {
		return err
	}
	i.handle = h
	return nil
}

// AbortAttach returns an ATTACHING slot to EMPTY without binding a handle.
func (i *FeedItem) AbortAttach() error {
	return i.transitionTo(SlotEmpty)
}

// BeginRelease moves a READY slot to RELEASING and hands back the handle so
// the caller can release it. The handle stays attached until CompleteRelease.
func (i *FeedItem) BeginRelease() (PlayerHandle, error) {
	if err := i.transitionTo(SlotReleasing); err != nil {
		return nil, err
	}
	return i.handle, nil
}

// CompleteRelease detaches the handle and empties the slot.
func (i *FeedItem) CompleteRelease() error {
	if err := i.transitionTo(SlotEmpty); err != nil {
		return err
	}
	i.handle = nil
	return nil
}

// Detach releases and detaches a READY handle in one step.
func (i *FeedItem) Detach() error {
	h, err := i.BeginRelease()
	if err != nil {
		return err
	}
	h.Release()
	return i.CompleteRelease()
}

func (i *FeedItem) transitionTo(next SlotState) error {
	if !i.slot.CanTransitionTo(next) {
		return ErrInvalidSlotTransition
	}
	i.slot = next
	return nil
}
