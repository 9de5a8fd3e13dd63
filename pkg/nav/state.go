// Package nav owns the canonical navigation state. All mutation funnels
// through the Machine, which validates status transitions against a
// closed table and publishes change events to subscribers.
package nav

import (
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/model"
)

// Status is the navigation session phase.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusCalculating  Status = "calculating"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusRerouting    Status = "rerouting"
	StatusArrived      Status = "arrived"
	StatusError        Status = "error"
)

// RecalcStatus is the recalculation queue phase mirrored into the state.
type RecalcStatus string

const (
	RecalcIdle       RecalcStatus = "idle"
	RecalcInProgress RecalcStatus = "in-progress"
	RecalcCompleted  RecalcStatus = "completed"
	RecalcFailed     RecalcStatus = "failed"
)

// transitions is the closed table of allowed status changes. Anything
// not listed is rejected.
var transitions = map[Status][]Status{
	StatusIdle:         {StatusInitializing, StatusError},
	StatusInitializing: {StatusCalculating, StatusError, StatusIdle},
	StatusCalculating:  {StatusActive, StatusError, StatusIdle},
	StatusActive:       {StatusPaused, StatusRerouting, StatusArrived, StatusError, StatusIdle},
	StatusPaused:       {StatusActive, StatusRerouting, StatusError, StatusIdle},
	StatusRerouting:    {StatusActive, StatusError, StatusIdle},
	StatusArrived:      {StatusIdle, StatusInitializing},
	StatusError:        {StatusIdle, StatusInitializing},
}

func allowed(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Prefs are the user preferences that survive a session reset.
type Prefs struct {
	Language      string `json:"language"`
	VoiceGuidance bool   `json:"voiceGuidance"`
	Haptics       bool   `json:"haptics"`
}

// State is the single mutable navigation record. One instance per
// session; the Machine is the only writer.
type State struct {
	Status      Status             `json:"status"`
	Destination *model.Destination `json:"destination,omitempty"`
	Route       *model.Route       `json:"route,omitempty"`

	CurrentStepIndex int                      `json:"currentStepIndex"`
	Position         *model.LocationSample    `json:"position,omitempty"`
	Predicted        *model.PredictedPosition `json:"predicted,omitempty"`

	IsActive   bool `json:"isActive"`
	IsPaused   bool `json:"isPaused"`
	HasArrived bool `json:"hasArrived"`
	IsOffRoute bool `json:"isOffRoute"`

	RecalculationStatus RecalcStatus `json:"recalculationStatus"`

	LastError string `json:"lastError,omitempty"`

	RouteStartTime time.Time `json:"routeStartTime"`
	LastUpdated    time.Time `json:"lastUpdated"`

	Prefs Prefs `json:"prefs"`
}

// Instructions returns the active route's steps, or nil.
func (s *State) Instructions() []model.Instruction {
	if s.Route == nil {
		return nil
	}
	return s.Route.Instructions
}

// CurrentInstruction returns the step at the current index, or nil when
// out of range.
func (s *State) CurrentInstruction() *model.Instruction {
	ins := s.Instructions()
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(ins) {
		return nil
	}
	return &ins[s.CurrentStepIndex]
}
