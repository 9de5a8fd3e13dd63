package route

import (
	"log/slog"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/geo"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/nav"
)

// Monitor evaluates each accepted position against the active route:
// step advancement, arrival, and deviation with hysteresis.
type Monitor struct {
	cfg     *config.RouteConfig
	machine *nav.Machine
	queue   *Queue
}

// NewMonitor wires the monitor to the state machine and queue.
func NewMonitor(cfg *config.RouteConfig, machine *nav.Machine, queue *Queue) *Monitor {
	return &Monitor{cfg: cfg, machine: machine, queue: queue}
}

// CheckPosition runs the deviation evaluation for one accepted fix.
// Only active navigation is monitored.
func (m *Monitor) CheckPosition(s model.LocationSample) {
	st := m.machine.State()
	if st.Status != nav.StatusActive || st.Route == nil || len(st.Route.Geometry) < 2 {
		return
	}

	pos := geo.Point{Lat: s.Lat, Lon: s.Lon}

	if dest := st.Destination; dest != nil {
		d := geo.Distance(pos, geo.Point{Lat: dest.Lat, Lon: dest.Lon})
		if d <= m.cfg.ArrivalRadius.Meters() {
			m.machine.ChangeStatus(nav.StatusArrived)
			return
		}
	}

	m.advanceStep(st, pos)

	dist, _ := geo.DistanceToPolyline(pos, st.Route.Geometry)
	threshold := m.cfg.DeviationThreshold.Meters()
	clearBelow := threshold - m.cfg.HysteresisMargin.Meters()

	switch {
	case !st.IsOffRoute && dist > threshold:
		slog.Warn("Route deviation detected", "distance_m", dist, "threshold_m", threshold)
		m.machine.Apply(func(ns *nav.State) { ns.IsOffRoute = true })
		m.requestRecalculation(st, pos)
	case st.IsOffRoute && dist < clearBelow:
		// Back on the route; clear without re-requesting.
		slog.Info("Back on route", "distance_m", dist)
		m.machine.Apply(func(ns *nav.State) { ns.IsOffRoute = false })
	}
}

// advanceStep moves the instruction pointer when the user reaches the
// current maneuver point.
func (m *Monitor) advanceStep(st nav.State, pos geo.Point) {
	inst := st.CurrentInstruction()
	if inst == nil || st.CurrentStepIndex >= len(st.Instructions())-1 {
		return
	}
	d := geo.Distance(pos, geo.Point{Lat: inst.Lat, Lon: inst.Lon})
	if d <= m.cfg.ArrivalRadius.Meters() {
		next := st.CurrentStepIndex + 1
		m.machine.Apply(func(ns *nav.State) { ns.CurrentStepIndex = next })
	}
}

func (m *Monitor) requestRecalculation(st nav.State, pos geo.Point) {
	if st.Destination == nil {
		return
	}
	m.queue.Enqueue(Request{
		OriginLat: pos.Lat,
		OriginLon: pos.Lon,
		DestLat:   st.Destination.Lat,
		DestLon:   st.Destination.Lon,
		Reason:    "route_deviation",
	})
}
