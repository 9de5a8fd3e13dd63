package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// VisibilityHandler lets the UI report whether the app is in the
// foreground. The flag feeds the location strategy selection: a hidden
// app drops to background tracking.
type VisibilityHandler struct {
	visible *atomic.Bool
}

// NewVisibilityHandler creates a new VisibilityHandler.
func NewVisibilityHandler(visible *atomic.Bool) *VisibilityHandler {
	return &VisibilityHandler{visible: visible}
}

// VisibilityRequest is the body of POST /api/visibility.
type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// Handle updates the visibility flag. POST /api/visibility
func (h *VisibilityHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.visible.Store(req.Visible)
	writeJSON(w, map[string]bool{"visible": req.Visible})
}
