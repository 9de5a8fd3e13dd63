package location

import (
	"context"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/model"
)

// TimeoutStrategy decides how GetBestLocation resolves when the accuracy
// target is not met in time.
type TimeoutStrategy string

const (
	TimeoutFail          TimeoutStrategy = "fail"
	TimeoutBestAvailable TimeoutStrategy = "best-available"
	TimeoutLastKnown     TimeoutStrategy = "last-known"
)

// BestOptions configure a one-shot best-effort acquisition.
type BestOptions struct {
	MaxWait         time.Duration
	DesiredAccuracy float64 // meters
	TimeoutStrategy TimeoutStrategy
}

// GetBestLocation races a fresh one-shot subscription against a timer.
// It resolves immediately when a fix meets the accuracy target; on
// timeout it resolves per the timeout strategy or fails with
// ErrNoLocationAvailable. The losing subscription is always cleaned up.
func (m *Manager) GetBestLocation(ctx context.Context, opts BestOptions) (model.LocationSample, error) {
	if opts.MaxWait <= 0 {
		opts.MaxWait = time.Duration(m.cfg.Normal.AcquisitionTimeout)
	}

	fixes := make(chan model.LocationSample, qualityWindow)
	wopts := WatchOptions{
		HighAccuracy: true,
		Timeout:      opts.MaxWait,
		MaxFixAge:    time.Duration(m.cfg.MaxFixAge),
	}
	handle, err := m.provider.Watch(wopts,
		func(s model.LocationSample) {
			select {
			case fixes <- s:
			default:
			}
		},
		func(error) {}, // acquisition errors resolve via the timeout path
	)
	if err == nil {
		defer m.provider.ClearWatch(handle)
	}

	timer := time.NewTimer(opts.MaxWait)
	defer timer.Stop()

	var best *model.LocationSample
	for {
		select {
		case fix := <-fixes:
			if fix.Validate() != nil {
				continue
			}
			if best == nil || fix.AccuracyM < best.AccuracyM {
				f := fix
				best = &f
			}
			if fix.AccuracyM <= opts.DesiredAccuracy {
				return fix, nil
			}
		case <-ctx.Done():
			return m.resolveTimeout(best, opts.TimeoutStrategy)
		case <-timer.C:
			return m.resolveTimeout(best, opts.TimeoutStrategy)
		}
	}
}

func (m *Manager) resolveTimeout(best *model.LocationSample, ts TimeoutStrategy) (model.LocationSample, error) {
	if ts == TimeoutBestAvailable && best != nil {
		return *best, nil
	}
	if ts == TimeoutBestAvailable || ts == TimeoutLastKnown {
		m.mu.Lock()
		last := m.lastFix
		m.mu.Unlock()
		if last != nil {
			return *last, nil
		}
	}
	return model.LocationSample{}, model.ErrNoLocationAvailable
}
