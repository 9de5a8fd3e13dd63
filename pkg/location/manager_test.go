package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/geo"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/request"
	"github.com/luizidebook/morro-digital-sub002/pkg/tracker"
)

type watchRec struct {
	opts  WatchOptions
	onFix func(model.LocationSample)
	onErr func(error)
}

// fakeProvider records watches and lets tests push fixes by hand.
type fakeProvider struct {
	mu         sync.Mutex
	next       WatchHandle
	watches    map[WatchHandle]watchRec
	cleared    int
	currentFix func(context.Context, WatchOptions) (model.LocationSample, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{watches: make(map[WatchHandle]watchRec)}
}

func (f *fakeProvider) Watch(opts WatchOptions, onFix func(model.LocationSample), onErr func(error)) (WatchHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.watches[f.next] = watchRec{opts: opts, onFix: onFix, onErr: onErr}
	return f.next, nil
}

func (f *fakeProvider) ClearWatch(h WatchHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watches[h]; ok {
		delete(f.watches, h)
		f.cleared++
	}
}

func (f *fakeProvider) CurrentFix(ctx context.Context, opts WatchOptions) (model.LocationSample, error) {
	if f.currentFix != nil {
		return f.currentFix(ctx, opts)
	}
	return model.LocationSample{}, model.ErrPositionUnavailable
}

// emit pushes a fix to every active watch.
func (f *fakeProvider) emit(s model.LocationSample) {
	f.mu.Lock()
	recs := make([]watchRec, 0, len(f.watches))
	for _, r := range f.watches {
		recs = append(recs, r)
	}
	f.mu.Unlock()
	for _, r := range recs {
		r.onFix(s)
	}
}

func (f *fakeProvider) activeWatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watches)
}

func (f *fakeProvider) lastOpts() WatchOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best WatchHandle
	for h := range f.watches {
		if h > best {
			best = h
		}
	}
	return f.watches[best].opts
}

func fix(lat, lon, acc float64, ts time.Time) model.LocationSample {
	return model.LocationSample{Lat: lat, Lon: lon, AccuracyM: acc, Timestamp: ts, ReceivedAt: ts}
}

type managerFixture struct {
	m    *Manager
	prov *fakeProvider
	cfg  *config.LocationConfig
}

func newFixture(t *testing.T, env Env, cb Callbacks) *managerFixture {
	t.Helper()
	cfg := &config.DefaultConfig().Location
	prov := newFakeProvider()
	m := NewManager(cfg, prov, tracker.New(),
		request.NewSourceBackoff(time.Millisecond, 10*time.Millisecond), env, cb)
	t.Cleanup(m.StopTracking)
	return &managerFixture{m: m, prov: prov, cfg: cfg}
}

func TestStartTracking_Idempotent(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})

	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := f.prov.activeWatches(); got != 1 {
		t.Errorf("active watches = %d, want 1 (previous subscription stopped)", got)
	}
	if f.prov.cleared != 1 {
		t.Errorf("cleared watches = %d, want 1", f.prov.cleared)
	}
}

func TestStopTracking_DiscardsStaleCallbacks(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Capture the live callback, then stop. The already-scheduled
	// callback must become a no-op.
	f.prov.mu.Lock()
	var rec watchRec
	for _, r := range f.prov.watches {
		rec = r
	}
	f.prov.mu.Unlock()

	f.m.StopTracking()
	rec.onFix(fix(-13.3776, -38.9142, 5, time.Now()))

	if f.m.LastFix() != nil {
		t.Error("stale callback mutated state after StopTracking")
	}
	if f.m.IsTracking() {
		t.Error("still tracking after StopTracking")
	}
}

func TestFixPipeline_QualityAndPattern(t *testing.T) {
	var updates []model.LocationSample
	f := newFixture(t, Env{}, Callbacks{
		OnUpdate: func(s model.LocationSample) { updates = append(updates, s) },
	})
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}

	speed := 1.4
	base := time.Now()
	for i := 0; i < 5; i++ {
		s := fix(-13.3776, -38.9142, 6, base.Add(time.Duration(i)*time.Second))
		s.SpeedMps = &speed
		f.prov.emit(s)
	}

	if got := f.m.Quality(); got != QualityGood {
		t.Errorf("quality = %s, want good", got)
	}
	if got := f.m.Pattern(); got != model.PatternWalking {
		t.Errorf("pattern = %s, want walking", got)
	}
	if len(updates) != 5 {
		t.Errorf("onUpdate calls = %d, want 5", len(updates))
	}
}

func TestFixPipeline_RejectsInvalid(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.prov.emit(fix(91, 0, 5, time.Now()))
	if f.m.LastFix() != nil {
		t.Error("invalid fix stored")
	}
}

func TestFixPipeline_SpeedFromDistance(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	start := geo.Point{Lat: -13.3776, Lon: -38.9142}
	f.prov.emit(fix(start.Lat, start.Lon, 6, base))
	// 6 m/s over one second, no GPS speed: classified from displacement.
	next := geo.DestinationPoint(start, 6, 45)
	f.prov.emit(fix(next.Lat, next.Lon, 6, base.Add(time.Second)))

	if got := f.m.Pattern(); got != model.PatternJogging {
		t.Errorf("pattern = %s, want jogging", got)
	}
}

func TestStrategySelection(t *testing.T) {
	maneuver := geo.DestinationPoint(geo.Point{Lat: -13.3776, Lon: -38.9142}, 50, 45)
	tests := []struct {
		name       string
		navigating bool
		visible    bool
		nearTurn   bool
		want       Strategy
	}{
		{"idle and visible", false, true, false, StrategyBatterySaving},
		{"hidden app", false, false, false, StrategyBackground},
		{"navigating", true, true, false, StrategyNormal},
		{"navigating near maneuver", true, true, true, StrategyHighAccuracy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Env{
				Navigating: func() bool { return tt.navigating },
				Visible:    func() bool { return tt.visible },
			}
			if tt.nearTurn {
				env.NextManeuver = func() *geo.Point { return &maneuver }
			}
			f := newFixture(t, env, Callbacks{})
			if err := f.m.StartTracking(context.Background()); err != nil {
				t.Fatal(err)
			}
			// A fix feeds the maneuver-proximity rule.
			f.prov.emit(fix(-13.3776, -38.9142, 6, time.Now()))

			if got := f.m.Strategy(); got != tt.want {
				t.Errorf("strategy = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStrategyChange_RestartsWatch(t *testing.T) {
	navigating := false
	f := newFixture(t, Env{Navigating: func() bool { return navigating }}, Callbacks{})
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.m.Strategy(); got != StrategyBatterySaving {
		t.Fatalf("initial strategy = %s", got)
	}

	navigating = true
	f.prov.emit(fix(-13.3776, -38.9142, 6, time.Now()))

	if got := f.m.Strategy(); got != StrategyNormal {
		t.Errorf("strategy = %s, want normal", got)
	}
	opts := f.prov.lastOpts()
	if opts.Interval != time.Duration(f.cfg.Normal.Interval) {
		t.Errorf("watch interval = %v, want %v", opts.Interval, time.Duration(f.cfg.Normal.Interval))
	}
	if f.prov.activeWatches() != 1 {
		t.Errorf("active watches = %d, want 1", f.prov.activeWatches())
	}
}

func TestHealthCheck_SignalLossAndRecovery(t *testing.T) {
	var lost time.Duration
	var recovered bool
	navigating := true
	f := newFixture(t, Env{Navigating: func() bool { return navigating }}, Callbacks{
		OnSignalLost:      func(d time.Duration) { lost = d },
		OnSignalRecovered: func(model.LocationSample, SignalQuality) { recovered = true },
	})
	f.prov.currentFix = func(context.Context, WatchOptions) (model.LocationSample, error) {
		return model.LocationSample{}, model.ErrAcquisitionTimeout
	}
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Pretend the subscription has been silent past the loss threshold.
	f.m.mu.Lock()
	f.m.startedAt = time.Now().Add(-time.Minute)
	f.m.mu.Unlock()

	f.m.healthCheck(context.Background())

	if lost == 0 {
		t.Error("onSignalLost not fired")
	}
	if got := f.m.Quality(); got != QualityLost {
		t.Errorf("quality = %s, want lost", got)
	}
	// While navigating, tracking restarts with high accuracy forced.
	if got := f.m.Strategy(); got != StrategyHighAccuracy {
		t.Errorf("strategy = %s, want high-accuracy", got)
	}
	if !f.prov.lastOpts().HighAccuracy {
		t.Error("restarted watch is not high accuracy")
	}

	// The next fix announces recovery.
	f.prov.emit(fix(-13.3776, -38.9142, 6, time.Now()))
	if !recovered {
		t.Error("onSignalRecovered not fired")
	}
}

func TestHealthCheck_RescueFixFeedsPipeline(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})
	f.prov.currentFix = func(context.Context, WatchOptions) (model.LocationSample, error) {
		return fix(-13.3776, -38.9142, 6, time.Now()), nil
	}
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.m.mu.Lock()
	f.m.startedAt = time.Now().Add(-time.Minute)
	f.m.mu.Unlock()

	f.m.healthCheck(context.Background())

	if f.m.LastFix() == nil {
		t.Error("rescue fix not processed")
	}
	if got := f.m.Quality(); got == QualityLost || got == QualityUnknown {
		t.Errorf("quality = %s after successful rescue", got)
	}
}

func TestHealthCheck_PersistentlyPoorTogglesAccuracy(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	wasHigh := f.prov.lastOpts().HighAccuracy

	// Fresh fixes keep arriving but none of them are good.
	f.m.mu.Lock()
	f.m.startedAt = time.Now().Add(-time.Minute)
	f.m.lastFixAt = time.Now()
	f.m.quality = QualityPoor
	f.m.mu.Unlock()

	f.m.healthCheck(context.Background())

	if got := f.prov.lastOpts().HighAccuracy; got == wasHigh {
		t.Error("accuracy flag not toggled")
	}
}

func TestGetBestLocation_AccuracyTargetMet(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s, err := f.m.GetBestLocation(context.Background(), BestOptions{
			MaxWait:         time.Second,
			DesiredAccuracy: 10,
			TimeoutStrategy: TimeoutFail,
		})
		if err != nil {
			t.Errorf("GetBestLocation: %v", err)
			return
		}
		if s.AccuracyM > 10 {
			t.Errorf("accuracy = %f, want <= 10", s.AccuracyM)
		}
	}()

	// Give the one-shot watch a moment to register, then feed it.
	time.Sleep(20 * time.Millisecond)
	f.prov.emit(fix(-13.3776, -38.9142, 25, time.Now()))
	f.prov.emit(fix(-13.3776, -38.9142, 8, time.Now()))
	<-done

	if f.prov.activeWatches() != 0 {
		t.Error("one-shot watch leaked")
	}
}

func TestGetBestLocation_LastKnownResolvesFast(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})
	if err := f.m.StartTracking(context.Background()); err != nil {
		t.Fatal(err)
	}
	stored := fix(-13.3776, -38.9142, 4, time.Now())
	f.prov.emit(stored)

	start := time.Now()
	s, err := f.m.GetBestLocation(context.Background(), BestOptions{
		MaxWait:         100 * time.Millisecond,
		DesiredAccuracy: 5,
		TimeoutStrategy: TimeoutLastKnown,
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("GetBestLocation: %v", err)
	}
	if s.Lat != stored.Lat || s.Lon != stored.Lon {
		t.Errorf("resolved sample = %+v, want stored sample", s)
	}
	if elapsed >= 150*time.Millisecond {
		t.Errorf("resolved in %v, want < 150ms", elapsed)
	}
}

func TestGetBestLocation_FailStrategy(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})

	_, err := f.m.GetBestLocation(context.Background(), BestOptions{
		MaxWait:         20 * time.Millisecond,
		DesiredAccuracy: 5,
		TimeoutStrategy: TimeoutFail,
	})
	if !errors.Is(err, model.ErrNoLocationAvailable) {
		t.Errorf("err = %v, want ErrNoLocationAvailable", err)
	}
}

func TestGetBestLocation_BestAvailable(t *testing.T) {
	f := newFixture(t, Env{}, Callbacks{})

	type result struct {
		s   model.LocationSample
		err error
	}
	res := make(chan result, 1)
	go func() {
		s, err := f.m.GetBestLocation(context.Background(), BestOptions{
			MaxWait:         100 * time.Millisecond,
			DesiredAccuracy: 5,
			TimeoutStrategy: TimeoutBestAvailable,
		})
		res <- result{s, err}
	}()

	time.Sleep(20 * time.Millisecond)
	f.prov.emit(fix(-13.3776, -38.9142, 40, time.Now()))
	f.prov.emit(fix(-13.3777, -38.9141, 18, time.Now()))

	r := <-res
	if r.err != nil {
		t.Fatalf("GetBestLocation: %v", r.err)
	}
	if r.s.AccuracyM != 18 {
		t.Errorf("accuracy = %f, want best seen (18)", r.s.AccuracyM)
	}
}
