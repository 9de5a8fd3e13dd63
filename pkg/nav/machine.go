package nav

import (
	"log/slog"
	"sync"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/model"
)

// EventType identifies a narrow subscription channel.
type EventType string

const (
	EventStatusChanged      EventType = "status_changed"
	EventInstructionChanged EventType = "instruction_changed"
	EventRouteDeviation     EventType = "route_deviation"
	EventArrival            EventType = "arrival"
	EventStateUpdated       EventType = "state_updated"
)

// Event carries the before/after payload for a state change.
type Event struct {
	Type      EventType `json:"type"`
	OldStatus Status    `json:"oldStatus,omitempty"`
	NewStatus Status    `json:"newStatus,omitempty"`
	StepIndex int       `json:"stepIndex,omitempty"`
	OffRoute  bool      `json:"offRoute,omitempty"`
	State     State     `json:"state"`
}

// Handler receives events synchronously. Handlers must not call back
// into the Machine's mutation methods.
type Handler func(Event)

// Machine serializes all writes to the navigation state.
type Machine struct {
	mu    sync.RWMutex
	state State

	subMu sync.RWMutex
	subs  map[EventType][]Handler

	now func() time.Time // test hook
}

// NewMachine creates a machine in the idle state.
func NewMachine(prefs Prefs) *Machine {
	return &Machine{
		state: State{
			Status:              StatusIdle,
			RecalculationStatus: RecalcIdle,
			CurrentStepIndex:    -1,
			Prefs:               prefs,
		},
		subs: make(map[EventType][]Handler),
		now:  time.Now,
	}
}

// Subscribe registers a handler for one event type.
func (m *Machine) Subscribe(t EventType, h Handler) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subs[t] = append(m.subs[t], h)
}

// State returns a snapshot copy of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status returns the current navigation status.
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status
}

// ChangeOption attaches extra payload to a status change.
type ChangeOption func(*State)

// WithError records the error message carried into StatusError.
func WithError(msg string) ChangeOption {
	return func(s *State) { s.LastError = msg }
}

// WithDestination sets the selected destination.
func WithDestination(d *model.Destination) ChangeOption {
	return func(s *State) { s.Destination = d }
}

// WithRoute installs a route and rewinds the step index.
func WithRoute(r *model.Route) ChangeOption {
	return func(s *State) {
		s.Route = r
		s.CurrentStepIndex = 0
	}
}

// ChangeStatus attempts a status transition. Transitions absent from the
// table are rejected: it returns false, logs, and mutates nothing.
// Status-specific side effects are applied atomically with the write.
func (m *Machine) ChangeStatus(target Status, opts ...ChangeOption) bool {
	m.mu.Lock()

	from := m.state.Status
	if !allowed(from, target) {
		m.mu.Unlock()
		slog.Warn("Rejected navigation transition", "from", from, "to", target)
		return false
	}

	events := m.mutateLocked(func(s *State) {
		s.Status = target
		for _, opt := range opts {
			opt(s)
		}

		switch target {
		case StatusIdle:
			s.IsActive = false
			s.IsPaused = false
			s.HasArrived = false
			s.IsOffRoute = false
		case StatusActive:
			s.IsActive = true
			s.IsPaused = false
			if s.RouteStartTime.IsZero() {
				s.RouteStartTime = m.now()
			}
		case StatusPaused:
			s.IsPaused = true
		case StatusArrived:
			s.HasArrived = true
		case StatusError:
			if s.LastError == "" {
				s.LastError = "navigation error"
			}
		}
	})
	m.mu.Unlock()

	slog.Info("Navigation status changed", "from", from, "to", target)
	m.dispatch(events)
	return true
}

// Apply runs a field update through the single serializing entry point.
// It stamps LastUpdated and fires the generic state_updated event plus
// targeted events for fields that changed. The status field cannot be
// changed here; use ChangeStatus.
func (m *Machine) Apply(fn func(*State)) {
	m.mu.Lock()
	status := m.state.Status
	events := m.mutateLocked(func(s *State) {
		fn(s)
		s.Status = status // transitions only via ChangeStatus
	})
	m.mu.Unlock()
	m.dispatch(events)
}

// mutateLocked applies fn, stamps time, and returns the events to fire.
// Caller holds the write lock.
func (m *Machine) mutateLocked(fn func(*State)) []Event {
	before := m.state
	fn(&m.state)
	m.state.LastUpdated = m.now()
	after := m.state

	events := []Event{{Type: EventStateUpdated, State: after}}
	if before.Status != after.Status {
		events = append(events, Event{
			Type:      EventStatusChanged,
			OldStatus: before.Status,
			NewStatus: after.Status,
			State:     after,
		})
	}
	if before.CurrentStepIndex != after.CurrentStepIndex {
		events = append(events, Event{
			Type:      EventInstructionChanged,
			StepIndex: after.CurrentStepIndex,
			State:     after,
		})
	}
	if before.IsOffRoute != after.IsOffRoute {
		events = append(events, Event{
			Type:     EventRouteDeviation,
			OffRoute: after.IsOffRoute,
			State:    after,
		})
	}
	if !before.HasArrived && after.HasArrived {
		events = append(events, Event{Type: EventArrival, State: after})
	}
	return events
}

func (m *Machine) dispatch(events []Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, ev := range events {
		for _, h := range m.subs[ev.Type] {
			h(ev)
		}
	}
}

// Reset restores every field to its zero value except the user
// preferences, landing in the idle status.
func (m *Machine) Reset() {
	m.mu.Lock()
	prefs := m.state.Prefs
	events := m.mutateLocked(func(s *State) {
		*s = State{
			Status:              StatusIdle,
			RecalculationStatus: RecalcIdle,
			CurrentStepIndex:    -1,
			Prefs:               prefs,
		}
	})
	m.mu.Unlock()
	m.dispatch(events)
}
