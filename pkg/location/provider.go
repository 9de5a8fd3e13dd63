// Package location owns the device location subscription. It classifies
// signal quality, adapts the polling strategy to navigation activity and
// power state, and exposes best-effort one-shot retrieval.
package location

import (
	"context"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
)

// WatchOptions configure a subscription or one-shot acquisition.
type WatchOptions struct {
	HighAccuracy bool
	Interval     time.Duration
	Timeout      time.Duration
	MaxFixAge    time.Duration
}

// WatchHandle identifies an active subscription.
type WatchHandle uint64

// Provider abstracts a device geolocation source.
type Provider interface {
	// Watch starts a continuous subscription. Fixes and errors are
	// delivered via the callbacks until ClearWatch is called.
	Watch(opts WatchOptions, onFix func(model.LocationSample), onErr func(error)) (WatchHandle, error)

	// ClearWatch cancels a subscription. Safe with an unknown handle.
	ClearWatch(h WatchHandle)

	// CurrentFix acquires a single fix, honoring the context deadline.
	CurrentFix(ctx context.Context, opts WatchOptions) (model.LocationSample, error)
}

// Strategy names a row of the polling strategy table.
type Strategy string

const (
	StrategyHighAccuracy  Strategy = "high-accuracy"
	StrategyNormal        Strategy = "normal"
	StrategyBatterySaving Strategy = "battery-saving"
	StrategyBackground    Strategy = "background"
)

// SignalQuality classifies recent fix accuracy.
type SignalQuality string

const (
	QualityUnknown  SignalQuality = "unknown"
	QualityGood     SignalQuality = "good"
	QualityFair     SignalQuality = "fair"
	QualityPoor     SignalQuality = "poor"
	QualityVeryPoor SignalQuality = "very-poor"
	QualityLost     SignalQuality = "lost"
)

// qualityWindow is the rolling accuracy sample count.
const qualityWindow = 5

func classifyQuality(avgAccuracy float64, cfg *config.LocationConfig) SignalQuality {
	switch {
	case avgAccuracy <= cfg.GoodAccuracy.Meters():
		return QualityGood
	case avgAccuracy <= cfg.FairAccuracy.Meters():
		return QualityFair
	case avgAccuracy <= cfg.PoorAccuracy.Meters():
		return QualityPoor
	default:
		return QualityVeryPoor
	}
}
