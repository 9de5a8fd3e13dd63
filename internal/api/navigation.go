package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/nav"
	"github.com/luizidebook/morro-digital-sub002/pkg/session"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NavigationHandler exposes the navigation session over HTTP.
type NavigationHandler struct {
	session *session.Session
}

// NewNavigationHandler creates a new NavigationHandler.
func NewNavigationHandler(s *session.Session) *NavigationHandler {
	return &NavigationHandler{session: s}
}

// NavigateRequest is the body of POST /api/navigate.
type NavigateRequest struct {
	Name string  `json:"name" validate:"required"`
	Lat  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// HandleState returns the current navigation state.
// GET /api/navigation
func (h *NavigationHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.session.Machine.State())
}

// HandleNavigate starts navigation to the given destination and responds
// with the resulting state. Route calculation and the initial position
// acquisition happen synchronously, so this call can take a few seconds.
// POST /api/navigate
func (h *NavigationHandler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dest := model.Destination{Name: req.Name, Lat: req.Lat, Lon: req.Lon}
	if err := h.session.Navigate(r.Context(), dest); err != nil {
		slog.Error("Navigation start failed", "destination", dest.Name, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(h.session.Machine.State())
		return
	}

	writeJSON(w, h.session.Machine.State())
}

// HandlePause pauses guidance. POST /api/navigation/pause
func (h *NavigationHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if !h.session.Pause() {
		http.Error(w, "cannot pause in current state", http.StatusConflict)
		return
	}
	writeJSON(w, h.session.Machine.State())
}

// HandleResume resumes guidance. POST /api/navigation/resume
func (h *NavigationHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if !h.session.Resume() {
		http.Error(w, "cannot resume in current state", http.StatusConflict)
		return
	}
	writeJSON(w, h.session.Machine.State())
}

// HandleEnd ends the session and returns the reset state. Tracking
// continues so the map can keep following the user.
// POST /api/navigation/end
func (h *NavigationHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	h.session.End()
	writeJSON(w, h.session.Machine.State())
}

// HandlePreviousDestination returns the destination persisted by the last
// session, if any. The client may offer it; navigation never auto-resumes.
// GET /api/destination/previous
func (h *NavigationHandler) HandlePreviousDestination(w http.ResponseWriter, r *http.Request) {
	dest, ok := h.session.PreviousDestination(r.Context())
	if !ok {
		http.Error(w, "no previous destination", http.StatusNotFound)
		return
	}
	writeJSON(w, dest)
}

// HandlePrefs reads (GET) or replaces (PUT) the user preferences.
// /api/prefs
func (h *NavigationHandler) HandlePrefs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.session.Machine.State().Prefs)
	case http.MethodPut, http.MethodPost:
		var p nav.Prefs
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.session.SetPrefs(r.Context(), p); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, p)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
