package directions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/db"
	"github.com/luizidebook/morro-digital-sub002/pkg/request"
	"github.com/luizidebook/morro-digital-sub002/pkg/store"
	"github.com/luizidebook/morro-digital-sub002/pkg/tracker"
)

// Walking route from the pier to the Farol do Morro, abridged.
const osrmFixture = `{
	"code": "Ok",
	"routes": [{
		"geometry": {"type": "LineString", "coordinates": [[-38.9142, -13.3776], [-38.9138, -13.3772], [-38.9133, -13.3769]]},
		"distance": 412.5,
		"duration": 310.2,
		"legs": [{
			"steps": [
				{"distance": 210.0, "name": "Caminho do Farol", "maneuver": {"type": "depart", "modifier": "", "location": [-38.9142, -13.3776]}},
				{"distance": 202.5, "name": "", "maneuver": {"type": "turn", "modifier": "left", "location": [-38.9138, -13.3772]}},
				{"distance": 0, "name": "", "maneuver": {"type": "arrive", "modifier": "", "location": [-38.9133, -13.3769]}}
			]
		}]
	}]
}`

func newTestClient(t *testing.T, svrURL string) *Client {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "directions_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	rc := request.New(store.NewSQLiteStore(d), tracker.New(), request.ClientConfig{})
	return NewClient(rc, &config.DirectionsConfig{BaseURL: svrURL, Profile: "foot"})
}

func TestFetchRoute(t *testing.T) {
	var gotPath string
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(osrmFixture)); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	c := newTestClient(t, svr.URL)
	route, err := c.FetchRoute(context.Background(), RouteParams{
		FromLat: -13.3776, FromLon: -38.9142,
		ToLat: -13.3769, ToLon: -38.9133,
		Language: "pt-BR",
	})
	require.NoError(t, err)

	assert.Contains(t, gotPath, "/route/v1/foot/")
	assert.Len(t, route.Geometry, 3)
	assert.InDelta(t, 412.5, route.DistanceM, 0.001)
	require.Len(t, route.Instructions, 3)
	assert.Equal(t, "Siga em frente em Caminho do Farol", route.Instructions[0].Text)
	assert.Equal(t, "Vire à esquerda", route.Instructions[1].Text)
	assert.Equal(t, "Você chegou ao seu destino", route.Instructions[2].Text)
	assert.InDelta(t, -13.3772, route.Instructions[1].Lat, 1e-9)
}

func TestFetchRoute_InvalidParams(t *testing.T) {
	c := newTestClient(t, "http://localhost:1")
	_, err := c.FetchRoute(context.Background(), RouteParams{FromLat: 123})
	require.Error(t, err)
}

func TestFetchRoute_NoRoute(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{"code": "NoRoute", "routes": []}`)); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	c := newTestClient(t, svr.URL)
	_, err := c.FetchRoute(context.Background(), RouteParams{
		FromLat: -13.3776, FromLon: -38.9142,
		ToLat: -13.3769, ToLon: -38.9133,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route found")
}

func TestManeuverText_English(t *testing.T) {
	tests := []struct {
		mType, modifier, street string
		want                    string
	}{
		{"turn", "right", "", "Turn right"},
		{"turn", "left", "Main St", "Turn left onto Main St"},
		{"arrive", "", "", "You have arrived at your destination"},
		{"continue", "uturn", "", "Make a U-turn"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maneuverText(tt.mType, tt.modifier, tt.street, "en-US"))
	}
}

func TestCacheKey_Rounding(t *testing.T) {
	a := cacheKey(RouteParams{FromLat: -13.37760001, FromLon: -38.91420002, ToLat: -13.3769, ToLon: -38.9133})
	b := cacheKey(RouteParams{FromLat: -13.37760004, FromLon: -38.91420001, ToLat: -13.3769, ToLon: -38.9133})
	assert.Equal(t, a, b)
}
