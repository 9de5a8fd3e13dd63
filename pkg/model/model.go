// Package model defines the shared data types of the navigation engine.
package model

import (
	"time"

	"github.com/paulmach/orb"
)

// LocationSample is one processed position reading. Immutable once created.
type LocationSample struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM float64 `json:"accuracy_m"`

	// Optional fields reported by the device; nil when absent.
	HeadingDeg *float64 `json:"heading_deg,omitempty"`
	SpeedMps   *float64 `json:"speed_mps,omitempty"`

	// Timestamp is when the device produced the fix, ReceivedAt when we saw it.
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
}

// Validate rejects samples with out-of-range coordinates or negative accuracy.
func (s *LocationSample) Validate() error {
	if s.Lat < -90 || s.Lat > 90 || s.Lon < -180 || s.Lon > 180 {
		return ErrInvalidCoordinates
	}
	if s.AccuracyM < 0 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Age returns how old the fix is relative to now.
func (s *LocationSample) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// PredictedPosition is a dead-reckoned position. Derived, never persisted.
type PredictedPosition struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"` // 0..0.95
	BasedOn    time.Time `json:"based_on"`   // timestamp of the sample projected from
}

// Destination is a navigation target selected by the user.
type Destination struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Instruction is one turn-by-turn step of a route.
type Instruction struct {
	Text      string  `json:"text"`
	Maneuver  string  `json:"maneuver"` // e.g. "turn-left", "depart", "arrive"
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	DistanceM float64 `json:"distance_m"` // distance covered by this step
}

// Route is the geometry and steps returned by the directions provider.
type Route struct {
	Geometry     orb.LineString `json:"geometry"` // lon/lat order, per GeoJSON
	Instructions []Instruction  `json:"instructions"`
	DistanceM    float64        `json:"distance_m"`
	Duration     time.Duration  `json:"duration"`
	FetchedAt    time.Time      `json:"fetched_at"`
}

// MovementPattern classifies the user's mode of movement from speed.
type MovementPattern string

const (
	PatternStationary MovementPattern = "stationary"
	PatternWalking    MovementPattern = "walking"
	PatternJogging    MovementPattern = "jogging"
	PatternVehicle    MovementPattern = "vehicle"
)

// ClassifyMovement maps a speed in m/s to a movement pattern.
// Thresholds: <0.5 stationary, <4 walking, <15 jogging, else vehicle.
func ClassifyMovement(speedMps float64) MovementPattern {
	switch {
	case speedMps < 0.5:
		return PatternStationary
	case speedMps < 4:
		return PatternWalking
	case speedMps < 15:
		return PatternJogging
	default:
		return PatternVehicle
	}
}
