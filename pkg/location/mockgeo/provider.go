// Package mockgeo implements location.Provider with a simulated walker,
// used for demos and development away from a real device.
package mockgeo

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/geo"
	"github.com/luizidebook/morro-digital-sub002/pkg/location"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
)

// Provider simulates a pedestrian walking at constant speed. The shared
// position advances in real time; every watch observes the same walker.
type Provider struct {
	mu         sync.Mutex
	cfg        config.MockConfig
	pos        geo.Point
	bearing    float64
	lastMoved  time.Time
	nextHandle location.WatchHandle
	watches    map[location.WatchHandle]chan struct{}
}

// New creates a walker at the configured start position.
func New(cfg config.MockConfig) *Provider {
	if cfg.Interval <= 0 {
		cfg.Interval = config.Duration(time.Second)
	}
	return &Provider{
		cfg:       cfg,
		pos:       geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		bearing:   cfg.BearingDeg,
		lastMoved: time.Now(),
		watches:   make(map[location.WatchHandle]chan struct{}),
	}
}

// SetBearing steers the walker, e.g. to script a turn.
func (p *Provider) SetBearing(deg float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked(time.Now())
	p.bearing = geo.NormalizeAngle(deg)
	if p.bearing < 0 {
		p.bearing += 360
	}
}

// advanceLocked moves the walker by the elapsed wall time.
func (p *Provider) advanceLocked(now time.Time) {
	dt := now.Sub(p.lastMoved).Seconds()
	if dt <= 0 {
		return
	}
	p.pos = geo.DestinationPoint(p.pos, p.cfg.SpeedMps*dt, p.bearing)
	p.lastMoved = now
}

func (p *Provider) fixLocked(now time.Time) model.LocationSample {
	p.advanceLocked(now)
	speed := p.cfg.SpeedMps
	heading := p.bearing
	// A touch of jitter keeps the accuracy history from being constant.
	acc := p.cfg.AccuracyM * (0.9 + 0.2*rand.Float64())
	return model.LocationSample{
		Lat:        p.pos.Lat,
		Lon:        p.pos.Lon,
		AccuracyM:  acc,
		HeadingDeg: &heading,
		SpeedMps:   &speed,
		Timestamp:  now,
		ReceivedAt: now,
	}
}

// Watch emits a fix per interval until ClearWatch.
func (p *Provider) Watch(opts location.WatchOptions, onFix func(model.LocationSample), onErr func(error)) (location.WatchHandle, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Duration(p.cfg.Interval)
	}

	p.mu.Lock()
	p.nextHandle++
	handle := p.nextHandle
	stop := make(chan struct{})
	p.watches[handle] = stop
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				p.mu.Lock()
				fix := p.fixLocked(now)
				p.mu.Unlock()
				onFix(fix)
			}
		}
	}()

	return handle, nil
}

// ClearWatch stops the watch goroutine. Unknown handles are ignored.
func (p *Provider) ClearWatch(h location.WatchHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stop, ok := p.watches[h]; ok {
		close(stop)
		delete(p.watches, h)
	}
}

// CurrentFix returns the walker's position immediately.
func (p *Provider) CurrentFix(ctx context.Context, opts location.WatchOptions) (model.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return model.LocationSample{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fixLocked(time.Now()), nil
}
