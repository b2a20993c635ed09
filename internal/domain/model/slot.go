package model

import "errors"

// SlotState represents the player-attachment state of a feed item.
type SlotState string

const (
	SlotEmpty     SlotState = "EMPTY"
	SlotAttaching SlotState = "ATTACHING"
	SlotReady     SlotState = "READY"
	SlotReleasing SlotState = "RELEASING"
)

// Valid slot transitions:
// EMPTY -> ATTACHING -> READY -> RELEASING -> EMPTY
//              \-> EMPTY (aborted attach)
var validSlotTransitions = map[SlotState][]SlotState{
	SlotEmpty:     {SlotAttaching},
	SlotAttaching: {SlotReady, SlotEmpty},
	SlotReady:     {SlotReleasing},
	SlotReleasing: {SlotEmpty},
}

var ErrInvalidSlotTransition = errors.New("invalid slot transition")

func (s SlotState) IsValid() bool {
	switch s {
	case SlotEmpty, SlotAttaching, SlotReady, SlotReleasing:
		return true
	default:
		return false
	}
}

func (s SlotState) CanTransitionTo(next SlotState) bool {
	allowed, exists := validSlotTransitions[s]
	if !exists {
		return false
	}
	for _, state := range allowed {
		if state == next {
			return true
		}
	}
	return false
}

// HoldsHandle reports whether an item in this state owns a player handle.
func (s SlotState) HoldsHandle() bool {
	return s == SlotReady || s == SlotReleasing
}

func (s SlotState) String() string {
	return string(s)
}
