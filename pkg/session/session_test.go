package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/db"
	"github.com/luizidebook/morro-digital-sub002/pkg/directions"
	"github.com/luizidebook/morro-digital-sub002/pkg/location/mockgeo"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/nav"
	"github.com/luizidebook/morro-digital-sub002/pkg/request"
	"github.com/luizidebook/morro-digital-sub002/pkg/store"
	"github.com/luizidebook/morro-digital-sub002/pkg/tracker"
)

const osrmFixture = `{
	"code": "Ok",
	"routes": [{
		"geometry": {"type": "LineString", "coordinates": [[-38.9142, -13.3776], [-38.9138, -13.3772], [-38.9133, -13.3769]]},
		"distance": 412.5,
		"duration": 310.2,
		"legs": [{
			"steps": [
				{"distance": 210.0, "name": "Caminho do Farol", "maneuver": {"type": "depart", "modifier": "", "location": [-38.9142, -13.3776]}},
				{"distance": 202.5, "name": "", "maneuver": {"type": "arrive", "modifier": "", "location": [-38.9133, -13.3769]}}
			]
		}]
	}]
}`

// farol is the lighthouse at the end of the fixture route.
var farol = model.Destination{Name: "Farol do Morro", Lat: -13.3769, Lon: -38.9133}

func testSession(t *testing.T, st store.Store) *Session {
	t.Helper()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(osrmFixture)); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	t.Cleanup(svr.Close)

	cfg := config.DefaultConfig()
	cfg.Directions.BaseURL = svr.URL
	cfg.Location.Mock.Interval = config.Duration(10 * time.Millisecond)
	cfg.Location.Normal.AcquisitionTimeout = config.Duration(time.Second)
	// Walk the strategy table at test speed.
	cfg.Location.HighAccuracy.Interval = config.Duration(10 * time.Millisecond)
	cfg.Location.Normal.Interval = config.Duration(20 * time.Millisecond)
	cfg.Location.BatterySaving.Interval = config.Duration(20 * time.Millisecond)
	cfg.Location.Background.Interval = config.Duration(50 * time.Millisecond)

	trk := tracker.New()
	rc := request.New(st, trk, request.ClientConfig{})

	s := New(Options{
		Config:     cfg,
		Store:      st,
		Tracker:    trk,
		Provider:   mockgeo.New(cfg.Location.Mock),
		Directions: directions.NewClient(rc, &cfg.Directions),
	})
	s.Start(context.Background())
	t.Cleanup(s.Shutdown)
	return s
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "session_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return store.NewSQLiteStore(d)
}

func TestNavigate_ReachesActive(t *testing.T) {
	s := testSession(t, testStore(t))

	err := s.Navigate(context.Background(), farol)
	require.NoError(t, err)

	st := s.Machine.State()
	assert.Equal(t, nav.StatusActive, st.Status)
	require.NotNil(t, st.Route)
	assert.InDelta(t, 412.5, st.Route.DistanceM, 0.001)
	require.NotNil(t, st.Destination)
	assert.Equal(t, "Farol do Morro", st.Destination.Name)
	assert.True(t, s.Manager.IsTracking())
}

func TestNavigate_FixPipelineFeedsState(t *testing.T) {
	s := testSession(t, testStore(t))
	require.NoError(t, s.Navigate(context.Background(), farol))

	deadline := time.After(2 * time.Second)
	for s.Machine.State().Position == nil {
		select {
		case <-deadline:
			t.Fatal("no position flowed into the navigation state")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if s.Predictor.Len() == 0 {
		t.Error("fixes not tracked by the predictor")
	}
}

func TestNavigate_RouteFailureEntersError(t *testing.T) {
	st := testStore(t)

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(svr.Close)

	cfg := config.DefaultConfig()
	cfg.Directions.BaseURL = svr.URL
	cfg.Location.Mock.Interval = config.Duration(10 * time.Millisecond)

	trk := tracker.New()
	s := New(Options{
		Config:     cfg,
		Store:      st,
		Tracker:    trk,
		Provider:   mockgeo.New(cfg.Location.Mock),
		Directions: directions.NewClient(request.New(st, trk, request.ClientConfig{}), &cfg.Directions),
	})
	s.Start(context.Background())
	t.Cleanup(s.Shutdown)

	err := s.Navigate(context.Background(), farol)
	require.Error(t, err)
	state := s.Machine.State()
	assert.Equal(t, nav.StatusError, state.Status)
	assert.NotEmpty(t, state.LastError)
}

func TestEnd_ResetsButKeepsTracking(t *testing.T) {
	s := testSession(t, testStore(t))
	require.NoError(t, s.Navigate(context.Background(), farol))

	s.End()

	st := s.Machine.State()
	assert.Equal(t, nav.StatusIdle, st.Status)
	assert.Nil(t, st.Route)
	assert.Equal(t, "pt-BR", st.Prefs.Language)
	assert.True(t, s.Manager.IsTracking())
}

func TestPauseResume(t *testing.T) {
	s := testSession(t, testStore(t))
	require.NoError(t, s.Navigate(context.Background(), farol))

	assert.True(t, s.Pause())
	assert.Equal(t, nav.StatusPaused, s.Machine.Status())
	assert.True(t, s.Resume())
	assert.Equal(t, nav.StatusActive, s.Machine.Status())
}

func TestPreviousDestination_OfferedNotResumed(t *testing.T) {
	st := testStore(t)
	s := testSession(t, st)
	require.NoError(t, s.Navigate(context.Background(), farol))
	s.End()

	// A fresh session on the same store offers the destination but
	// stays idle.
	s2 := testSession(t, st)
	prev, ok := s2.PreviousDestination(context.Background())
	require.True(t, ok)
	assert.Equal(t, farol.Name, prev.Name)
	assert.Equal(t, nav.StatusIdle, s2.Machine.Status())
}

func TestPrefs_PersistAcrossSessions(t *testing.T) {
	st := testStore(t)
	s := testSession(t, st)

	require.NoError(t, s.SetPrefs(context.Background(), nav.Prefs{
		Language: "en-US", VoiceGuidance: false, Haptics: true,
	}))

	s2 := testSession(t, st)
	prefs := s2.Machine.State().Prefs
	assert.Equal(t, "en-US", prefs.Language)
	assert.False(t, prefs.VoiceGuidance)
	assert.True(t, prefs.Haptics)
}
