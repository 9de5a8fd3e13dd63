package api

import (
	"net/http"

	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/session"
)

// PositionHandler serves the current (or predicted) position together
// with the tracking diagnostics the map UI renders.
type PositionHandler struct {
	session *session.Session
}

// NewPositionHandler creates a new PositionHandler.
func NewPositionHandler(s *session.Session) *PositionHandler {
	return &PositionHandler{session: s}
}

// PositionResponse is the payload of GET /api/position. Exactly one of
// Sample and Predicted is set while tracking; both are nil before the
// first fix.
type PositionResponse struct {
	Sample    *model.LocationSample    `json:"sample,omitempty"`
	Predicted *model.PredictedPosition `json:"predicted,omitempty"`

	Tracking   bool    `json:"tracking"`
	Strategy   string  `json:"strategy"`
	Quality    string  `json:"quality"`
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
}

// Handle returns the position snapshot. GET /api/position
func (h *PositionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sample, predicted := h.session.Position()

	resp := PositionResponse{
		Sample:     sample,
		Predicted:  predicted,
		Tracking:   h.session.Manager.IsTracking(),
		Strategy:   string(h.session.Manager.Strategy()),
		Quality:    string(h.session.Manager.Quality()),
		Pattern:    string(h.session.Manager.Pattern()),
		Confidence: h.session.Predictor.Confidence(),
	}
	writeJSON(w, resp)
}
