// Package session assembles the navigation engine: strategy manager,
// predictor, state machine, deviation monitor and recalculation queue,
// owned as one explicit instance instead of ambient globals.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/directions"
	"github.com/luizidebook/morro-digital-sub002/pkg/geo"
	"github.com/luizidebook/morro-digital-sub002/pkg/location"
	"github.com/luizidebook/morro-digital-sub002/pkg/logging"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/nav"
	"github.com/luizidebook/morro-digital-sub002/pkg/predictor"
	"github.com/luizidebook/morro-digital-sub002/pkg/request"
	"github.com/luizidebook/morro-digital-sub002/pkg/route"
	"github.com/luizidebook/morro-digital-sub002/pkg/store"
	"github.com/luizidebook/morro-digital-sub002/pkg/tracker"
)

const (
	stateKeyPrefs       = "user_prefs"
	stateKeyDestination = "last_destination"
)

// Session owns one navigation engine instance and its lifecycle.
type Session struct {
	cfg   *config.Config
	store store.Store
	trk   *tracker.Tracker

	Machine   *nav.Machine
	Predictor *predictor.Predictor
	Manager   *location.Manager
	Monitor   *route.Monitor
	Queue     *route.Queue

	directions *directions.Client

	ctx     context.Context
	cancel  context.CancelFunc
	visible func() bool
}

// Options inject the external collaborators.
type Options struct {
	Config     *config.Config
	Store      store.Store
	Tracker    *tracker.Tracker
	Provider   location.Provider
	Directions *directions.Client

	// Visible reports app visibility; nil means always visible.
	Visible func() bool
}

// New wires a session. Start must be called before navigating.
func New(opts Options) *Session {
	cfg := opts.Config

	s := &Session{
		cfg:        cfg,
		store:      opts.Store,
		trk:        opts.Tracker,
		directions: opts.Directions,
		visible:    opts.Visible,
	}

	s.Machine = nav.NewMachine(s.loadPrefs())
	s.Predictor = predictor.New(&cfg.Predictor)

	s.Queue = route.NewQueue(s.Machine, s.recalculate, time.Duration(cfg.Route.RecalcBackoff))
	s.Monitor = route.NewMonitor(&cfg.Route, s.Machine, s.Queue)

	backoff := request.NewSourceBackoff(
		time.Duration(cfg.Request.Backoff.BaseDelay),
		time.Duration(cfg.Request.Backoff.MaxDelay),
	)
	env := location.Env{
		Navigating:   s.navigating,
		NextManeuver: s.nextManeuver,
		Visible:      opts.Visible,
	}
	cb := location.Callbacks{
		OnUpdate:          s.onLocationUpdate,
		OnSignalLost:      s.onSignalLost,
		OnSignalRecovered: s.onSignalRecovered,
	}
	s.Manager = location.NewManager(&cfg.Location, opts.Provider, opts.Tracker, backoff, env, cb)

	return s
}

// Start launches the recalculation worker. The context bounds the whole
// session lifetime.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.Queue.Run(s.ctx)
}

// Shutdown stops tracking and the worker.
func (s *Session) Shutdown() {
	s.Manager.StopTracking()
	if s.cancel != nil {
		s.cancel()
	}
}

// Navigate runs the session start sequence: initialize, acquire a start
// position, calculate the route, go active. The selected destination is
// persisted so a later launch can offer (not resume) it.
func (s *Session) Navigate(ctx context.Context, dest model.Destination) error {
	switch s.Machine.Status() {
	case nav.StatusIdle, nav.StatusArrived, nav.StatusError:
	default:
		s.Machine.Reset()
	}

	if !s.Machine.ChangeStatus(nav.StatusInitializing, nav.WithDestination(&dest)) {
		return fmt.Errorf("cannot start navigation from status %q", s.Machine.Status())
	}

	if !s.Manager.IsTracking() {
		if err := s.Manager.StartTracking(s.ctx); err != nil {
			s.Machine.ChangeStatus(nav.StatusError, nav.WithError(err.Error()))
			return err
		}
	}

	origin, err := s.Manager.GetBestLocation(ctx, location.BestOptions{
		MaxWait:         time.Duration(s.cfg.Location.Normal.AcquisitionTimeout),
		DesiredAccuracy: s.cfg.Location.FairAccuracy.Meters(),
		TimeoutStrategy: location.TimeoutBestAvailable,
	})
	if err != nil {
		s.Machine.ChangeStatus(nav.StatusError, nav.WithError(err.Error()))
		return fmt.Errorf("no start position: %w", err)
	}

	s.Machine.ChangeStatus(nav.StatusCalculating)
	r, err := s.directions.FetchRoute(ctx, directions.RouteParams{
		FromLat:  origin.Lat,
		FromLon:  origin.Lon,
		ToLat:    dest.Lat,
		ToLon:    dest.Lon,
		Language: s.Machine.State().Prefs.Language,
	})
	if err != nil {
		s.Machine.ChangeStatus(nav.StatusError, nav.WithError(err.Error()))
		return fmt.Errorf("initial route failed: %w", err)
	}

	s.Machine.ChangeStatus(nav.StatusActive, nav.WithRoute(r))
	s.persistDestination(dest)
	logging.EventLogger.Info("Navigation started",
		"destination", dest.Name, "distance_m", r.DistanceM)
	return nil
}

// Pause suspends guidance without tearing the session down.
func (s *Session) Pause() bool { return s.Machine.ChangeStatus(nav.StatusPaused) }

// Resume continues a paused session.
func (s *Session) Resume() bool { return s.Machine.ChangeStatus(nav.StatusActive) }

// End terminates navigation and resets the state, keeping preferences.
// Location tracking continues; the strategy drops on the next analysis.
func (s *Session) End() {
	s.Machine.Reset()
	logging.EventLogger.Info("Navigation ended")
}

// Position returns the freshest position estimate: the latest fix when
// recent, a dead-reckoned prediction otherwise.
func (s *Session) Position() (*model.LocationSample, *model.PredictedPosition) {
	return s.Predictor.CurrentOrPredicted(time.Now(), time.Duration(s.cfg.Location.MaxFixAge))
}

// PreviousDestination returns the persisted last destination, if any.
// It is only ever offered to the user, never silently resumed.
func (s *Session) PreviousDestination(ctx context.Context) (*model.Destination, bool) {
	raw, ok := s.store.GetState(ctx, stateKeyDestination)
	if !ok {
		return nil, false
	}
	var d model.Destination
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		slog.Warn("Discarding unreadable stored destination", "error", err)
		return nil, false
	}
	return &d, true
}

// SetPrefs updates and persists the user preferences.
func (s *Session) SetPrefs(ctx context.Context, p nav.Prefs) error {
	s.Machine.Apply(func(st *nav.State) { st.Prefs = p })
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.store.SetState(ctx, stateKeyPrefs, string(raw))
}

// onLocationUpdate is the per-fix pipeline: close the prediction
// feedback loop, extend the history, publish the position, and run the
// deviation check.
func (s *Session) onLocationUpdate(fix model.LocationSample) {
	s.Predictor.EvaluateAccuracy(fix)
	if err := s.Predictor.Track(fix); err != nil {
		return
	}

	// Predict one polling interval ahead so consumers have an estimate
	// if the next fix is late.
	lead := time.Duration(s.cfg.Location.Params(string(s.Manager.Strategy())).Interval)
	pred := s.Predictor.PredictNext(lead)

	s.Machine.Apply(func(st *nav.State) {
		st.Position = &fix
		st.Predicted = pred
	})

	s.Monitor.CheckPosition(fix)
}

func (s *Session) onSignalLost(since time.Duration) {
	logging.EventLogger.Warn("GPS signal lost", "silent_for", since)
}

func (s *Session) onSignalRecovered(fix model.LocationSample, q location.SignalQuality) {
	logging.EventLogger.Info("GPS signal recovered",
		"quality", q, "accuracy_m", fix.AccuracyM)
}

func (s *Session) navigating() bool {
	switch s.Machine.Status() {
	case nav.StatusActive, nav.StatusRerouting:
		return true
	}
	return false
}

func (s *Session) nextManeuver() *geo.Point {
	st := s.Machine.State()
	inst := st.CurrentInstruction()
	if inst == nil {
		return nil
	}
	return &geo.Point{Lat: inst.Lat, Lon: inst.Lon}
}

// recalculate adapts the directions client to the queue.
func (s *Session) recalculate(ctx context.Context, req route.Request) (*model.Route, error) {
	return s.directions.FetchRoute(ctx, directions.RouteParams{
		FromLat:  req.OriginLat,
		FromLon:  req.OriginLon,
		ToLat:    req.DestLat,
		ToLon:    req.DestLon,
		Language: s.Machine.State().Prefs.Language,
	})
}

func (s *Session) persistDestination(d model.Destination) {
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.store.SetState(context.Background(), stateKeyDestination, string(raw)); err != nil {
		slog.Error("Failed to persist destination", "error", err)
	}
}

// loadPrefs merges persisted preferences over the config defaults.
func (s *Session) loadPrefs() nav.Prefs {
	prefs := nav.Prefs{
		Language:      s.cfg.Prefs.Language,
		VoiceGuidance: s.cfg.Prefs.VoiceGuidance,
		Haptics:       s.cfg.Prefs.Haptics,
	}
	if raw, ok := s.store.GetState(context.Background(), stateKeyPrefs); ok {
		if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
			slog.Warn("Discarding unreadable stored preferences", "error", err)
		}
	}
	return prefs
}
