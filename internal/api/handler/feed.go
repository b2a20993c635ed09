package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/reelfeed/internal/usecase"
)

// FeedSession is the feed surface driven over HTTP.
// *usecase.FeedController satisfies this interface.
type FeedSession interface {
	Snapshot() usecase.FeedSnapshot
	Scroll(offset float64) bool
	BeginDeceleration() bool
	EndDeceleration() (usecase.Settle, bool)
	Swipe(index int) (usecase.Settle, error)
	Pause() error
	Resume() error
	Seek(ctx context.Context, index int, fraction float64) (bool, error)
}

var _ FeedSession = (*usecase.FeedController)(nil)

// Request/Response types

type ScrollRequest struct {
	Offset *float64 `json:"offset"`
}

type ScrollResponse struct {
	NearEnd bool `json:"near_end"`
}

type SwipeRequest struct {
	Index *int `json:"index"`
}

type SettleResponse struct {
	CurrentIndex int   `json:"current_index"`
	Visible      []int `json:"visible"`
	NonVisible   []int `json:"non_visible"`
}

type SeekRequest struct {
	Fraction *float64 `json:"fraction"`
}

type SeekResponse struct {
	Completed bool `json:"completed"`
}

// FeedHandler handles feed session HTTP requests.
type FeedHandler struct {
	session FeedSession
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(session FeedSession) *FeedHandler {
	return &FeedHandler{session: session}
}

// Get handles GET /v1/feed
func (h *FeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.session.Snapshot())
}

// Scroll handles POST /v1/feed/scroll
func (h *FeedHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	var req ScrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Offset == nil {
		Error(w, http.StatusBadRequest, "invalid_offset", "Offset is required")
		return
	}

	JSON(w, http.StatusOK, ScrollResponse{NearEnd: h.session.Scroll(*req.Offset)})
}

// Decelerate handles POST /v1/feed/decelerate
func (h *FeedHandler) Decelerate(w http.ResponseWriter, r *http.Request) {
	if !h.session.BeginDeceleration() {
		Error(w, http.StatusConflict, "input_locked", "A swipe is already decelerating")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Settle handles POST /v1/feed/settle
func (h *FeedHandler) Settle(w http.ResponseWriter, r *http.Request) {
	settle, ok := h.session.EndDeceleration()
	if !ok {
		Error(w, http.StatusConflict, "not_decelerating", "No swipe is decelerating")
		return
	}
	JSON(w, http.StatusOK, toSettleResponse(settle))
}

// Swipe handles POST /v1/feed/swipe
func (h *FeedHandler) Swipe(w http.ResponseWriter, r *http.Request) {
	var req SwipeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Index == nil || *req.Index < 0 {
		Error(w, http.StatusBadRequest, "invalid_index", "Index must be a non-negative integer")
		return
	}

	settle, err := h.session.Swipe(*req.Index)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, toSettleResponse(settle))
}

// Pause handles POST /v1/feed/pause
func (h *FeedHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Pause(); err != nil {
		h.handleSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resume handles POST /v1/feed/resume
func (h *FeedHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Resume(); err != nil {
		h.handleSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Seek handles POST /v1/feed/items/{index}/seek
func (h *FeedHandler) Seek(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		Error(w, http.StatusBadRequest, "invalid_index", "Index must be a non-negative integer")
		return
	}

	var req SeekRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Fraction == nil || *req.Fraction < 0 || *req.Fraction > 1 {
		Error(w, http.StatusBadRequest, "invalid_fraction", "Fraction must be between 0 and 1")
		return
	}

	completed, err := h.session.Seek(r.Context(), index, *req.Fraction)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, SeekResponse{Completed: completed})
}

func (h *FeedHandler) handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrInputLocked):
		Error(w, http.StatusConflict, "input_locked", "A swipe is already decelerating")
	case errors.Is(err, usecase.ErrNoPlayer):
		Error(w, http.StatusNotFound, "no_player", "Item has no attached player")
	case errors.Is(err, usecase.ErrManagerClosed):
		Error(w, http.StatusServiceUnavailable, "session_closed", "Feed session is closed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusGatewayTimeout, "timeout", "Request did not complete in time")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toSettleResponse(s usecase.Settle) SettleResponse {
	visible := s.Visible
	if visible == nil {
		visible = []int{}
	}
	nonVisible := s.NonVisible
	if nonVisible == nil {
		nonVisible = []int{}
	}
	return SettleResponse{
		CurrentIndex: s.CurrentIndex,
		Visible:      visible,
		NonVisible:   nonVisible,
	}
}
