// Package route watches live position against the active route and
// serializes recalculation requests.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/nav"
)

// Request describes one recalculation. At most one is pending; a newer
// request replaces a not-yet-started one.
type Request struct {
	OriginLat  float64
	OriginLon  float64
	DestLat    float64
	DestLon    float64
	Reason     string
	EnqueuedAt time.Time
}

// Recalculator fetches a fresh route for a request.
type Recalculator func(ctx context.Context, req Request) (*model.Route, error)

// Queue is the single-flight recalculation processor: one request in
// flight, one pending slot, latest wins.
type Queue struct {
	machine *nav.Machine
	recalc  Recalculator
	backoff time.Duration

	mu       sync.Mutex
	pending  *Request
	inFlight bool
	status   nav.RecalcStatus

	wake chan struct{}
}

// NewQueue creates a queue. Run must be started for requests to be
// processed.
func NewQueue(machine *nav.Machine, recalc Recalculator, backoff time.Duration) *Queue {
	return &Queue{
		machine: machine,
		recalc:  recalc,
		backoff: backoff,
		status:  nav.RecalcIdle,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue replaces any not-yet-started pending request with req.
func (q *Queue) Enqueue(req Request) {
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	replaced := q.pending != nil
	q.pending = &req
	q.mu.Unlock()

	if replaced {
		slog.Debug("Pending recalculation replaced", "reason", req.Reason)
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Status returns the queue phase.
func (q *Queue) Status() nav.RecalcStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// InFlight reports whether a recalculation is currently running.
func (q *Queue) InFlight() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Run processes requests until the context is canceled. After each
// completion it waits a short backoff before starting a newer pending
// request, to avoid thrashing on noisy fixes.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			req := q.pending
			q.pending = nil
			if req == nil {
				q.mu.Unlock()
				break
			}
			q.inFlight = true
			q.mu.Unlock()

			q.process(ctx, *req)

			q.mu.Lock()
			q.inFlight = false
			q.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-time.After(q.backoff):
			}
		}
	}
}

func (q *Queue) process(ctx context.Context, req Request) {
	q.setStatus(nav.RecalcInProgress)
	q.machine.ChangeStatus(nav.StatusRerouting)
	slog.Info("Recalculating route", "reason", req.Reason,
		"queued_for", time.Since(req.EnqueuedAt))

	route, err := q.recalc(ctx, req)
	if err != nil {
		// Keep navigating on the last valid route.
		q.setStatus(nav.RecalcFailed)
		q.machine.ChangeStatus(nav.StatusActive)
		slog.Error("Route recalculation failed, keeping previous route",
			"error", fmt.Errorf("%w: %w", model.ErrRecalculationFailed, err))
		return
	}

	q.setStatus(nav.RecalcCompleted)
	q.machine.Apply(func(s *nav.State) { s.IsOffRoute = false })
	q.machine.ChangeStatus(nav.StatusActive, nav.WithRoute(route))
	slog.Info("Route recalculated", "distance_m", route.DistanceM,
		"steps", len(route.Instructions))
}

func (q *Queue) setStatus(s nav.RecalcStatus) {
	q.mu.Lock()
	q.status = s
	q.mu.Unlock()
	q.machine.Apply(func(st *nav.State) { st.RecalculationStatus = s })
}
