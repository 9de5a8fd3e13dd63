// Package netgeo implements location.Provider on a UDP socket. A
// companion app on the phone streams fixes as one JSON object per
// datagram; this is how the engine runs against a real GPS without a
// platform binding.
package netgeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/location"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
)

// maxDatagram bounds a single fix message.
const maxDatagram = 2048

// ErrClosed is returned once the provider has been shut down.
var ErrClosed = errors.New("netgeo: provider closed")

// wireFix is the datagram payload. Timestamp is optional; a missing or
// zero value means "now".
type wireFix struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	AccuracyM float64   `json:"accuracy_m"`
	Heading   *float64  `json:"heading_deg,omitempty"`
	Speed     *float64  `json:"speed_mps,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type watch struct {
	onFix func(model.LocationSample)
	onErr func(error)
}

// Provider fans incoming datagrams out to every active watch. The
// subscription interval is ignored: the sender controls the rate.
type Provider struct {
	mu         sync.Mutex
	conn       *net.UDPConn
	closed     bool
	nextHandle location.WatchHandle
	watches    map[location.WatchHandle]watch
}

// Listen binds the configured UDP address and starts the read loop.
func Listen(cfg config.NetConfig) (*Provider, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("netgeo: bad listen address %q: %w", cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("netgeo: listen: %w", err)
	}

	p := &Provider{
		conn:    conn,
		watches: make(map[location.WatchHandle]watch),
	}
	go p.readLoop()
	slog.Info("netgeo listening", "addr", conn.LocalAddr().String())
	return p, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (p *Provider) Addr() net.Addr {
	return p.conn.LocalAddr()
}

// Close stops the read loop and releases the socket.
func (p *Provider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.conn.Close()
}

func (p *Provider) readLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			p.fanoutErr(err)
			continue
		}

		var wf wireFix
		if err := json.Unmarshal(buf[:n], &wf); err != nil {
			slog.Warn("netgeo: discarding malformed datagram", "error", err)
			continue
		}

		now := time.Now()
		ts := wf.Timestamp
		if ts.IsZero() {
			ts = now
		}
		fix := model.LocationSample{
			Lat:        wf.Lat,
			Lon:        wf.Lon,
			AccuracyM:  wf.AccuracyM,
			HeadingDeg: wf.Heading,
			SpeedMps:   wf.Speed,
			Timestamp:  ts,
			ReceivedAt: now,
		}
		p.fanout(fix)
	}
}

func (p *Provider) fanout(fix model.LocationSample) {
	p.mu.Lock()
	targets := make([]watch, 0, len(p.watches))
	for _, w := range p.watches {
		targets = append(targets, w)
	}
	p.mu.Unlock()
	for _, w := range targets {
		w.onFix(fix)
	}
}

func (p *Provider) fanoutErr(err error) {
	p.mu.Lock()
	targets := make([]watch, 0, len(p.watches))
	for _, w := range p.watches {
		targets = append(targets, w)
	}
	p.mu.Unlock()
	for _, w := range targets {
		if w.onErr != nil {
			w.onErr(err)
		}
	}
}

// Watch registers the callbacks. Fixes flow at whatever rate the sender
// pushes them.
func (p *Provider) Watch(opts location.WatchOptions, onFix func(model.LocationSample), onErr func(error)) (location.WatchHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	p.nextHandle++
	h := p.nextHandle
	p.watches[h] = watch{onFix: onFix, onErr: onErr}
	return h, nil
}

// ClearWatch removes a subscription. Unknown handles are ignored.
func (p *Provider) ClearWatch(h location.WatchHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watches, h)
}

// CurrentFix waits for the next datagram, honoring the context and the
// acquisition timeout.
func (p *Provider) CurrentFix(ctx context.Context, opts location.WatchOptions) (model.LocationSample, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	fixes := make(chan model.LocationSample, 1)
	h, err := p.Watch(opts, func(fix model.LocationSample) {
		select {
		case fixes <- fix:
		default:
		}
	}, nil)
	if err != nil {
		return model.LocationSample{}, err
	}
	defer p.ClearWatch(h)

	select {
	case fix := <-fixes:
		return fix, nil
	case <-ctx.Done():
		return model.LocationSample{}, ctx.Err()
	}
}
