// Package predictor maintains a rolling history of location samples and
// extrapolates position between fixes using dead reckoning.
//
// The turn detector is an accumulated-curvature heuristic, not a Kalman
// filter. With at most 10 samples of pedestrian movement the full filter
// buys very little over the weighted circular mean used here.
package predictor

import (
	"math"
	"sync"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/geo"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
)

const (
	maxHistory  = 10
	maxSegments = 5
	maxConf     = 0.95
)

// TurnTrend describes a detected sustained change of direction.
type TurnTrend struct {
	Direction     string  // "left" or "right"
	Intensity     float64 // 0..1
	BearingChange float64 // cumulative degrees, positive = clockwise
}

// Predictor owns its sample history; callers never mutate it directly.
type Predictor struct {
	mu         sync.RWMutex
	cfg        *config.PredictorConfig
	history    []model.LocationSample
	lastPred   *model.PredictedPosition
	confidence float64
}

// New creates a predictor with an empty history.
func New(cfg *config.PredictorConfig) *Predictor {
	return &Predictor{cfg: cfg, confidence: 0.5}
}

// Track appends a sample, evicting the oldest beyond the window.
// Invalid samples are rejected and not stored.
func (p *Predictor) Track(s model.LocationSample) error {
	if err := s.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = append(p.history, s)
	if len(p.history) > maxHistory {
		p.history = p.history[1:]
	}
	return nil
}

// Len returns the number of samples currently held.
func (p *Predictor) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.history)
}

// Confidence returns the rolling prediction confidence (0..1).
func (p *Predictor) Confidence() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.confidence
}

// Reset clears the history and last prediction.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
	p.lastPred = nil
	p.confidence = 0.5
}

// segment is one leg between consecutive samples.
type segment struct {
	bearing  float64
	speedMps float64
	dt       float64 // seconds
}

// recentSegments builds up to maxSegments legs from the newest samples.
// Caller must hold at least the read lock.
func (p *Predictor) recentSegments() []segment {
	n := len(p.history)
	if n < 2 {
		return nil
	}
	start := n - (maxSegments + 1)
	if start < 0 {
		start = 0
	}

	var segs []segment
	for i := start; i < n-1; i++ {
		a, b := p.history[i], p.history[i+1]
		dt := b.Timestamp.Sub(a.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		pa := geo.Point{Lat: a.Lat, Lon: a.Lon}
		pb := geo.Point{Lat: b.Lat, Lon: b.Lon}
		segs = append(segs, segment{
			bearing:  geo.Bearing(pa, pb),
			speedMps: geo.Distance(pa, pb) / dt,
			dt:       dt,
		})
	}
	return segs
}

// motion computes the time-weighted speed, circular mean bearing and the
// concentration statistic R over the recent segments.
func motion(segs []segment) (speed, bearing, r float64) {
	if len(segs) == 0 {
		return 0, 0, 0
	}

	bearings := make([]float64, len(segs))
	weights := make([]float64, len(segs))
	var speedSum, dtSum float64
	for i, s := range segs {
		bearings[i] = s.bearing
		weights[i] = s.dt
		speedSum += s.speedMps * s.dt
		dtSum += s.dt
	}

	bearing, r = geo.CircularMean(bearings, weights)
	return speedSum / dtSum, bearing, r
}

// PredictNext extrapolates the newest sample forward by leadTime.
// Returns nil with fewer than 3 samples or when the average speed is at
// or below the moving threshold.
func (p *Predictor) PredictNext(leadTime time.Duration) *model.PredictedPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.predictLocked(leadTime)
}

func (p *Predictor) predictLocked(leadTime time.Duration) *model.PredictedPosition {
	if len(p.history) < 3 {
		return nil
	}

	segs := p.recentSegments()
	speed, bearing, r := motion(segs)
	if speed <= p.cfg.MovingSpeedMin {
		return nil
	}

	speeds := make([]float64, len(segs))
	for i, s := range segs {
		speeds[i] = s.speedMps
	}
	speedConsistency := 1.0 / (1.0 + geo.StdDev(speeds))
	conf := 0.3*speedConsistency + 0.7*r
	if conf > maxConf {
		conf = maxConf
	}

	latest := p.history[len(p.history)-1]
	dest := geo.DestinationPoint(geo.Point{Lat: latest.Lat, Lon: latest.Lon},
		speed*leadTime.Seconds(), bearing)

	pred := &model.PredictedPosition{
		Lat:        dest.Lat,
		Lon:        dest.Lon,
		Timestamp:  latest.Timestamp.Add(leadTime),
		Confidence: conf,
		BasedOn:    latest.Timestamp,
	}
	p.lastPred = pred
	return pred
}

// CurrentOrPredicted returns the latest sample verbatim when it is no
// older than tolerance, otherwise a prediction for now. Both results are
// nil when the history is empty or no prediction is possible.
func (p *Predictor) CurrentOrPredicted(now time.Time, tolerance time.Duration) (*model.LocationSample, *model.PredictedPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.history) == 0 {
		return nil, nil
	}

	latest := p.history[len(p.history)-1]
	age := now.Sub(latest.Timestamp)
	if age <= tolerance {
		return &latest, nil
	}
	return nil, p.predictLocked(age)
}

// TurnTrend sums consecutive bearing deltas over the last samples and
// reports a turn when the total exceeds the configured threshold.
func (p *Predictor) TurnTrend() *TurnTrend {
	p.mu.RLock()
	defer p.mu.RUnlock()

	segs := p.recentSegments()
	if len(segs) < 2 {
		return nil
	}

	var total float64
	for i := 1; i < len(segs); i++ {
		total += geo.NormalizeAngle(segs[i].bearing - segs[i-1].bearing)
	}

	if math.Abs(total) <= p.cfg.TurnTrendThreshold {
		return nil
	}

	dir := "right"
	if total < 0 {
		dir = "left"
	}
	return &TurnTrend{
		Direction:     dir,
		Intensity:     math.Min(1, math.Abs(total)/90),
		BearingChange: total,
	}
}

// EvaluateAccuracy scores the last prediction against an actual fix and
// folds the score into the rolling confidence. Predictions older than the
// accuracy window are ignored. Returns the updated confidence.
func (p *Predictor) EvaluateAccuracy(actual model.LocationSample) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastPred == nil {
		return p.confidence
	}

	lag := actual.Timestamp.Sub(p.lastPred.Timestamp)
	if lag < 0 {
		lag = -lag
	}
	if lag > time.Duration(p.cfg.AccuracyWindow) {
		return p.confidence
	}

	d := geo.Distance(
		geo.Point{Lat: p.lastPred.Lat, Lon: p.lastPred.Lon},
		geo.Point{Lat: actual.Lat, Lon: actual.Lon},
	)
	score := 1 - d/p.cfg.AccuracyScale.Meters()
	if score < 0 {
		score = 0
	}
	p.confidence = 0.7*p.confidence + 0.3*score
	return p.confidence
}

// PointAhead projects the newest sample forward by a fixed distance along
// the smoothed bearing. Used for look-ahead checks such as upcoming-turn
// warnings. Returns nil when no direction of travel is established.
func (p *Predictor) PointAhead(distMeters float64) *geo.Point {
	p.mu.RLock()
	defer p.mu.RUnlock()

	segs := p.recentSegments()
	if len(segs) == 0 {
		return nil
	}
	_, bearing, _ := motion(segs)

	latest := p.history[len(p.history)-1]
	dest := geo.DestinationPoint(geo.Point{Lat: latest.Lat, Lon: latest.Lon}, distMeters, bearing)
	return &dest
}
