// Package directions fetches walking routes from an OSRM-compatible
// routing service and converts them to the internal route model.
package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/luizidebook/morro-digital-sub002/pkg/config"
	"github.com/luizidebook/morro-digital-sub002/pkg/geo"
	"github.com/luizidebook/morro-digital-sub002/pkg/model"
	"github.com/luizidebook/morro-digital-sub002/pkg/request"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RouteParams describes a single routing request.
type RouteParams struct {
	FromLat  float64 `validate:"gte=-90,lte=90"`
	FromLon  float64 `validate:"gte=-180,lte=180"`
	ToLat    float64 `validate:"gte=-90,lte=90"`
	ToLon    float64 `validate:"gte=-180,lte=180"`
	Language string  `validate:"omitempty,bcp47_language_tag"`
}

// Client fetches routes via the shared request client.
type Client struct {
	request *request.Client
	cfg     *config.DirectionsConfig
}

// NewClient creates a new directions client.
func NewClient(r *request.Client, cfg *config.DirectionsConfig) *Client {
	return &Client{request: r, cfg: cfg}
}

// FetchRoute requests a walking route between two points.
func (c *Client) FetchRoute(ctx context.Context, p RouteParams) (*model.Route, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid route params: %w", err)
	}

	reqID := uuid.NewString()

	// OSRM expects lon,lat pairs in the path.
	u, err := url.Parse(fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f",
		c.cfg.BaseURL, c.cfg.Profile, p.FromLon, p.FromLat, p.ToLon, p.ToLat))
	if err != nil {
		return nil, fmt.Errorf("invalid directions url: %w", err)
	}
	q := u.Query()
	q.Add("overview", "full")
	q.Add("geometries", "geojson")
	q.Add("steps", "true")
	u.RawQuery = q.Encode()

	slog.Debug("Fetching route", "request_id", reqID,
		"from_lat", p.FromLat, "from_lon", p.FromLon,
		"to_lat", p.ToLat, "to_lon", p.ToLon)

	body, err := c.request.Get(ctx, u.String(), cacheKey(p))
	if err != nil {
		return nil, fmt.Errorf("route request failed: %w", err)
	}

	route, err := parseResponse(body, p.Language)
	if err != nil {
		return nil, err
	}

	slog.Info("Route fetched", "request_id", reqID,
		"distance_m", route.DistanceM, "steps", len(route.Instructions))
	return route, nil
}

// Ping checks the routing service answers a trivial snap query.
func (c *Client) Ping(ctx context.Context) error {
	u := fmt.Sprintf("%s/nearest/v1/%s/-38.9142,-13.3776", c.cfg.BaseURL, c.cfg.Profile)
	_, err := c.request.Get(ctx, u, "")
	return err
}

// cacheKey rounds coordinates to ~1m so nearby requests share a cache entry.
func cacheKey(p RouteParams) string {
	return fmt.Sprintf("route:%.5f,%.5f:%.5f,%.5f", p.FromLat, p.FromLon, p.ToLat, p.ToLon)
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry json.RawMessage `json:"geometry"`
		Distance float64         `json:"distance"`
		Duration float64         `json:"duration"`
		Legs     []struct {
			Steps []struct {
				Distance float64 `json:"distance"`
				Name     string  `json:"name"`
				Maneuver struct {
					Type     string    `json:"type"`
					Modifier string    `json:"modifier"`
					Location []float64 `json:"location"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

func parseResponse(body []byte, lang string) (*model.Route, error) {
	var resp osrmResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode route json: %w", err)
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return nil, fmt.Errorf("no route found (code %q)", resp.Code)
	}

	r := resp.Routes[0]
	g, err := geojson.UnmarshalGeometry(r.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode route geometry: %w", err)
	}
	line, ok := g.Geometry().(orb.LineString)
	if !ok || len(line) < 2 {
		return nil, fmt.Errorf("route geometry is not a line")
	}

	route := &model.Route{
		Geometry:  line,
		DistanceM: r.Distance,
		Duration:  time.Duration(r.Duration * float64(time.Second)),
		FetchedAt: time.Now(),
	}

	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			inst := model.Instruction{
				Maneuver:  step.Maneuver.Type,
				Text:      maneuverText(step.Maneuver.Type, step.Maneuver.Modifier, step.Name, lang),
				DistanceM: step.Distance,
			}
			if len(step.Maneuver.Location) == 2 {
				inst.Lon = step.Maneuver.Location[0]
				inst.Lat = step.Maneuver.Location[1]
			}
			route.Instructions = append(route.Instructions, inst)
		}
	}

	return route, nil
}

// maneuverText renders a spoken instruction for a maneuver. Portuguese is
// the default; anything else falls back to English.
func maneuverText(mType, modifier, street, lang string) string {
	pt := lang == "" || lang == "pt-BR" || lang == "pt-PT"

	var base string
	switch mType {
	case "depart":
		if pt {
			base = "Siga em frente"
		} else {
			base = "Head out"
		}
	case "arrive":
		if pt {
			return "Você chegou ao seu destino"
		}
		return "You have arrived at your destination"
	case "turn", "end of road", "fork", "continue":
		base = turnText(modifier, pt)
	case "roundabout", "rotary":
		if pt {
			base = "Entre na rotatória"
		} else {
			base = "Enter the roundabout"
		}
	default:
		base = turnText(modifier, pt)
	}

	if street != "" {
		if pt {
			return fmt.Sprintf("%s em %s", base, street)
		}
		return fmt.Sprintf("%s onto %s", base, street)
	}
	return base
}

func turnText(modifier string, pt bool) string {
	switch modifier {
	case "left":
		if pt {
			return "Vire à esquerda"
		}
		return "Turn left"
	case "right":
		if pt {
			return "Vire à direita"
		}
		return "Turn right"
	case "slight left":
		if pt {
			return "Mantenha-se à esquerda"
		}
		return "Keep left"
	case "slight right":
		if pt {
			return "Mantenha-se à direita"
		}
		return "Keep right"
	case "sharp left":
		if pt {
			return "Vire acentuadamente à esquerda"
		}
		return "Turn sharp left"
	case "sharp right":
		if pt {
			return "Vire acentuadamente à direita"
		}
		return "Turn sharp right"
	case "uturn":
		if pt {
			return "Faça o retorno"
		}
		return "Make a U-turn"
	default:
		if pt {
			return "Continue em frente"
		}
		return "Continue straight"
	}
}

// NearestInstruction returns the index of the upcoming instruction for a
// position, or -1 when the route has none.
func NearestInstruction(route *model.Route, lat, lon float64) int {
	if route == nil || len(route.Instructions) == 0 {
		return -1
	}
	best, bestDist := -1, 0.0
	for i, inst := range route.Instructions {
		d := geo.Distance(geo.Point{Lat: lat, Lon: lon}, geo.Point{Lat: inst.Lat, Lon: inst.Lon})
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
