package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/location"
	"github.com/luizidebook/morro-digital-sub002/pkg/store"
)

// StoreProbe verifies the persistent store round-trips a value.
func StoreProbe(s store.StateStore) Probe {
	return Probe{
		Name:     "Persistent Store",
		Critical: true,
		Check: func(ctx context.Context) error {
			key := "probe_startup"
			want := time.Now().Format(time.RFC3339Nano)
			if err := s.SetState(ctx, key, want); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
			got, ok := s.GetState(ctx, key)
			if !ok || got != want {
				return fmt.Errorf("read mismatch: got %q", got)
			}
			return s.DeleteState(ctx, key)
		},
	}
}

// ProviderProbe verifies the location provider answers a one-shot
// acquisition. Non-critical: a push source (the UDP receiver) stays
// silent until the companion app starts streaming, and the session
// handles late fixes anyway.
func ProviderProbe(p location.Provider, cfg *config.LocationConfig) Probe {
	return Probe{
		Name:     "Location Provider",
		Critical: false,
		Check: func(ctx context.Context) error {
			opts := location.WatchOptions{
				HighAccuracy: false,
				Timeout:      time.Duration(cfg.BatterySaving.AcquisitionTimeout),
				MaxFixAge:    time.Duration(cfg.MaxFixAge),
			}
			fix, err := p.CurrentFix(ctx, opts)
			if err != nil {
				return err
			}
			return fix.Validate()
		},
	}
}

// DirectionsProbe checks the routing service is reachable. Non-critical:
// the app starts without it and surfaces failures per-recalculation.
func DirectionsProbe(ping func(ctx context.Context) error) Probe {
	return Probe{
		Name:     "Directions Service",
		Critical: false,
		Check:    ping,
	}
}
