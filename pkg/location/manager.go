package location

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/geo"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/request"
	"github.com/luizidebook/morro-digital-sub002/pkg/tracker"
)

const backoffSource = "gps"

// Env supplies the ambient signals that drive strategy selection.
// Nil fields default to "not navigating" and "app visible".
type Env struct {
	Navigating   func() bool
	NextManeuver func() *geo.Point
	Visible      func() bool
}

func (e Env) navigating() bool {
	return e.Navigating != nil && e.Navigating()
}

func (e Env) visible() bool {
	return e.Visible == nil || e.Visible()
}

func (e Env) nextManeuver() *geo.Point {
	if e.NextManeuver == nil {
		return nil
	}
	return e.NextManeuver()
}

// Callbacks are the collaborator hooks. Nil hooks are no-ops.
type Callbacks struct {
	OnUpdate          func(model.LocationSample)
	OnSignalLost      func(sinceLastFix time.Duration)
	OnSignalRecovered func(model.LocationSample, SignalQuality)
}

// Manager owns the subscription handle exclusively and adapts the
// polling strategy as conditions change.
type Manager struct {
	cfg      *config.LocationConfig
	provider Provider
	trk      *tracker.Tracker
	backoff  *request.SourceBackoff
	env      Env
	cb       Callbacks

	mu        sync.Mutex
	tracking  bool
	gen       uint64 // bumped on every (re)start and stop; stale callbacks check it
	handle    WatchHandle
	strategy  Strategy
	flipAcc   bool // accuracy-flag toggle used as poor-signal recovery
	startedAt time.Time

	accWindow  []float64
	quality    SignalQuality
	lastFix    *model.LocationSample
	lastFixAt  time.Time
	lastGoodAt time.Time
	speedMps   float64
	pattern    model.MovementPattern

	cancelTimers context.CancelFunc
}

// NewManager wires a manager to its provider and collaborators.
func NewManager(cfg *config.LocationConfig, p Provider, trk *tracker.Tracker, b *request.SourceBackoff, env Env, cb Callbacks) *Manager {
	return &Manager{
		cfg:      cfg,
		provider: p,
		trk:      trk,
		backoff:  b,
		env:      env,
		cb:       cb,
		strategy: StrategyBatterySaving,
		quality:  QualityUnknown,
		pattern:  model.PatternStationary,
	}
}

// StartTracking begins a continuous subscription plus the health-check
// and movement-analysis timers. Idempotent: an existing subscription is
// stopped first.
func (m *Manager) StartTracking(ctx context.Context) error {
	m.mu.Lock()
	if m.tracking {
		m.stopLocked()
	}

	m.strategy = m.selectStrategyLocked()
	if err := m.startWatchLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.tracking = true
	m.startedAt = time.Now()

	tctx, cancel := context.WithCancel(ctx)
	m.cancelTimers = cancel
	m.mu.Unlock()

	go m.runTimers(tctx)
	slog.Info("Location tracking started", "strategy", m.Strategy())
	return nil
}

// StopTracking cancels the subscription and timers. The generation bump
// makes any already-scheduled callback a no-op. Safe when not tracking.
func (m *Manager) StopTracking() {
	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()
	slog.Info("Location tracking stopped")
}

func (m *Manager) stopLocked() {
	m.gen++
	if m.handle != 0 {
		m.provider.ClearWatch(m.handle)
		m.handle = 0
	}
	if m.cancelTimers != nil {
		m.cancelTimers()
		m.cancelTimers = nil
	}
	m.tracking = false
}

// watchOptions builds subscription options for the current strategy,
// applying the recovery accuracy flip.
func (m *Manager) watchOptionsLocked() WatchOptions {
	p := m.cfg.Params(string(m.strategy))
	high := p.HighAccuracy
	if m.flipAcc {
		high = !high
	}
	return WatchOptions{
		HighAccuracy: high,
		Interval:     time.Duration(p.Interval),
		Timeout:      time.Duration(p.AcquisitionTimeout),
		MaxFixAge:    time.Duration(m.cfg.MaxFixAge),
	}
}

func (m *Manager) startWatchLocked() error {
	m.gen++
	gen := m.gen
	opts := m.watchOptionsLocked()

	onFix := func(s model.LocationSample) { m.handleFix(gen, s) }
	onErr := func(err error) { m.handleWatchError(gen, err) }

	handle, err := m.provider.Watch(opts, onFix, onErr)
	if err != nil {
		return fmt.Errorf("failed to start location watch: %w", err)
	}
	m.handle = handle
	return nil
}

func (m *Manager) restartWatchLocked() {
	if m.handle != 0 {
		m.provider.ClearWatch(m.handle)
		m.handle = 0
	}
	if err := m.startWatchLocked(); err != nil {
		slog.Error("Failed to restart location watch", "error", err)
		return
	}
	m.trk.TrackRestart(m.cfg.Provider)
}

// selectStrategyLocked applies the strategy selection rule: navigating
// near a maneuver wants high accuracy, navigating wants normal, a hidden
// app drops to background, everything else saves battery.
func (m *Manager) selectStrategyLocked() Strategy {
	if m.env.navigating() {
		if next := m.env.nextManeuver(); next != nil && m.lastFix != nil {
			d := geo.Distance(geo.Point{Lat: m.lastFix.Lat, Lon: m.lastFix.Lon}, *next)
			if d <= m.cfg.ManeuverProximity.Meters() {
				return StrategyHighAccuracy
			}
		}
		return StrategyNormal
	}
	if !m.env.visible() {
		return StrategyBackground
	}
	return StrategyBatterySaving
}

// handleFix is the per-fix pipeline: staleness guard, validation,
// quality classification, speed/pattern update, strategy re-evaluation.
func (m *Manager) handleFix(gen uint64, fix model.LocationSample) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return // stale subscription callback
	}

	if fix.ReceivedAt.IsZero() {
		fix.ReceivedAt = time.Now()
	}
	if err := fix.Validate(); err != nil {
		m.trk.TrackRejectedFix(m.cfg.Provider)
		m.mu.Unlock()
		slog.Warn("Rejected location fix", "error", err)
		return
	}
	m.trk.TrackFix(m.cfg.Provider)

	m.accWindow = append(m.accWindow, fix.AccuracyM)
	if len(m.accWindow) > qualityWindow {
		m.accWindow = m.accWindow[1:]
	}
	var sum float64
	for _, a := range m.accWindow {
		sum += a
	}
	prevQuality := m.quality
	m.quality = classifyQuality(sum/float64(len(m.accWindow)), m.cfg)
	if m.quality == QualityGood {
		m.lastGoodAt = fix.ReceivedAt
	}

	switch {
	case fix.SpeedMps != nil && *fix.SpeedMps >= 0:
		m.speedMps = *fix.SpeedMps
	case m.lastFix != nil:
		if dt := fix.Timestamp.Sub(m.lastFix.Timestamp).Seconds(); dt > 0 {
			m.speedMps = geo.Distance(
				geo.Point{Lat: m.lastFix.Lat, Lon: m.lastFix.Lon},
				geo.Point{Lat: fix.Lat, Lon: fix.Lon},
			) / dt
		}
	}
	m.pattern = model.ClassifyMovement(m.speedMps)

	m.lastFix = &fix
	m.lastFixAt = time.Now()

	if next := m.selectStrategyLocked(); next != m.strategy && m.tracking {
		slog.Info("Polling strategy changed", "from", m.strategy, "to", next,
			"pattern", m.pattern, "quality", m.quality)
		m.strategy = next
		m.restartWatchLocked()
	}

	quality := m.quality
	m.mu.Unlock()

	if prevQuality == QualityLost && m.cb.OnSignalRecovered != nil {
		m.cb.OnSignalRecovered(fix, quality)
	}
	if m.cb.OnUpdate != nil {
		m.cb.OnUpdate(fix)
	}
}

func (m *Manager) handleWatchError(gen uint64, err error) {
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}
	m.backoff.RecordFailure(backoffSource)
	slog.Warn("Location watch error", "error", err)
}

// runTimers drives the periodic health check and movement re-analysis.
func (m *Manager) runTimers(ctx context.Context) {
	health := time.NewTicker(time.Duration(m.cfg.HealthInterval))
	defer health.Stop()
	analysis := time.NewTicker(time.Duration(m.cfg.AnalysisInterval))
	defer analysis.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-health.C:
			m.healthCheck(ctx)
		case <-analysis.C:
			m.reanalyze()
		}
	}
}

// reanalyze re-evaluates the strategy outside the fix pipeline, so
// visibility changes take effect even when no fixes arrive.
func (m *Manager) reanalyze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tracking {
		return
	}
	if next := m.selectStrategyLocked(); next != m.strategy {
		slog.Info("Polling strategy changed", "from", m.strategy, "to", next)
		m.strategy = next
		m.restartWatchLocked()
	}
}

// healthCheck detects signal loss and persistently poor signal, and
// drives the recovery attempts for both.
func (m *Manager) healthCheck(ctx context.Context) {
	m.mu.Lock()
	if !m.tracking {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	loss := time.Duration(m.cfg.SignalLossAfter)

	lastSeen := m.lastFixAt
	if lastSeen.Before(m.startedAt) {
		lastSeen = m.startedAt
	}
	sinceFix := time.Since(lastSeen)

	lastGood := m.lastGoodAt
	if lastGood.Before(m.startedAt) {
		lastGood = m.startedAt
	}
	poorFor := time.Since(lastGood)
	m.mu.Unlock()

	if sinceFix > loss {
		m.rescue(ctx, gen, sinceFix)
		return
	}

	if poorFor > loss {
		// No good reading for a while: flip the accuracy flag as a
		// recovery attempt.
		m.mu.Lock()
		if gen == m.gen && m.tracking {
			m.flipAcc = !m.flipAcc
			m.lastGoodAt = time.Now() // re-arm the window
			slog.Warn("Persistently poor signal, toggling accuracy flag", "flip", m.flipAcc)
			m.restartWatchLocked()
		}
		m.mu.Unlock()
	}
}

// rescue attempts one high-priority one-shot fix after signal loss. On
// failure it declares the signal lost and, while navigating, restarts
// tracking with high accuracy forced.
func (m *Manager) rescue(ctx context.Context, gen uint64, sinceFix time.Duration) {
	if err := m.backoff.Wait(ctx, backoffSource); err != nil {
		return
	}

	opts := WatchOptions{
		HighAccuracy: true,
		Timeout:      time.Duration(m.cfg.HighAccuracy.AcquisitionTimeout),
		MaxFixAge:    time.Duration(m.cfg.MaxFixAge),
	}
	fctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	fix, err := m.provider.CurrentFix(fctx, opts)
	if err == nil {
		m.backoff.RecordSuccess(backoffSource)
		m.handleFix(gen, fix)
		return
	}
	m.backoff.RecordFailure(backoffSource)
	slog.Warn("Signal lost, rescue fix failed", "since_fix", sinceFix, "error", err)

	m.mu.Lock()
	if gen != m.gen || !m.tracking {
		m.mu.Unlock()
		return
	}
	m.quality = QualityLost
	if m.env.navigating() {
		m.strategy = StrategyHighAccuracy
		m.restartWatchLocked()
	}
	m.mu.Unlock()

	if m.cb.OnSignalLost != nil {
		m.cb.OnSignalLost(sinceFix)
	}
}

// IsTracking reports whether a subscription is active.
func (m *Manager) IsTracking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracking
}

// Strategy returns the current polling strategy.
func (m *Manager) Strategy() Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strategy
}

// Quality returns the current signal quality class.
func (m *Manager) Quality() SignalQuality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quality
}

// Pattern returns the current movement classification.
func (m *Manager) Pattern() model.MovementPattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

// LastFix returns the most recent accepted fix, or nil.
func (m *Manager) LastFix() *model.LocationSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFix
}
