// Package config loads and persists the application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	DB         DBConfig         `yaml:"db"`
	Server     ServerConfig     `yaml:"server"`
	Request    RequestConfig    `yaml:"request"`
	Location   LocationConfig   `yaml:"location"`
	Predictor  PredictorConfig  `yaml:"predictor"`
	Route      RouteConfig      `yaml:"route"`
	Directions DirectionsConfig `yaml:"directions"`
	Prefs      PrefsConfig      `yaml:"preferences"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// RequestConfig holds outbound HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries" validate:"gte=0"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// StrategyParams describes one row of the polling strategy table.
type StrategyParams struct {
	Interval           Duration `yaml:"interval"`
	AcquisitionTimeout Duration `yaml:"acquisition_timeout"`
	HighAccuracy       bool     `yaml:"high_accuracy"`
}

// LocationConfig holds strategy manager settings. The quality boundaries
// and the signal-loss threshold were tuned empirically, which is why they
// are configuration rather than constants.
type LocationConfig struct {
	Provider string `yaml:"provider"` // "net" (UDP receiver) or "mock"

	HighAccuracy  StrategyParams `yaml:"high_accuracy"`
	Normal        StrategyParams `yaml:"normal"`
	BatterySaving StrategyParams `yaml:"battery_saving"`
	Background    StrategyParams `yaml:"background"`

	// Distance to the next maneuver under which high accuracy is forced.
	ManeuverProximity Distance `yaml:"maneuver_proximity"`

	// Rolling-average accuracy boundaries for signal quality classes.
	GoodAccuracy     Distance `yaml:"good_accuracy"`
	FairAccuracy     Distance `yaml:"fair_accuracy"`
	PoorAccuracy     Distance `yaml:"poor_accuracy"`
	SignalLossAfter  Duration `yaml:"signal_loss_after"`
	HealthInterval   Duration `yaml:"health_interval"`
	AnalysisInterval Duration `yaml:"analysis_interval"`

	MaxFixAge Duration `yaml:"max_fix_age"`

	Mock MockConfig `yaml:"mock"`
	Net  NetConfig  `yaml:"net"`
}

// NetConfig holds settings for the UDP fix receiver.
type NetConfig struct {
	Listen string `yaml:"listen"`
}

// MockConfig holds settings for the scripted location provider.
type MockConfig struct {
	StartLat   float64  `yaml:"start_lat" validate:"gte=-90,lte=90"`
	StartLon   float64  `yaml:"start_lon" validate:"gte=-180,lte=180"`
	SpeedMps   float64  `yaml:"speed_mps"`
	BearingDeg float64  `yaml:"bearing_deg"`
	AccuracyM  float64  `yaml:"accuracy_m"`
	Interval   Duration `yaml:"interval"`
}

// PredictorConfig holds movement predictor settings.
type PredictorConfig struct {
	TurnTrendThreshold float64  `yaml:"turn_trend_threshold"` // cumulative degrees
	MovingSpeedMin     float64  `yaml:"moving_speed_min"`     // m/s
	AccuracyWindow     Duration `yaml:"accuracy_window"`      // max prediction age for scoring
	AccuracyScale      Distance `yaml:"accuracy_scale"`       // distance at which score reaches 0
}

// RouteConfig holds deviation monitor and recalculation settings.
type RouteConfig struct {
	DeviationThreshold Distance `yaml:"deviation_threshold"`
	HysteresisMargin   Distance `yaml:"hysteresis_margin"`
	ArrivalRadius      Distance `yaml:"arrival_radius"`
	RecalcBackoff      Duration `yaml:"recalc_backoff"`
}

// DirectionsConfig holds the directions provider settings.
type DirectionsConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	Profile string `yaml:"profile"` // "foot", "bike", ...
}

// PrefsConfig holds the persisted user preference defaults.
type PrefsConfig struct {
	Language      string `yaml:"language"`
	VoiceGuidance bool   `yaml:"voice_guidance"`
	Haptics       bool   `yaml:"haptics"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{Path: "./logs/server.log", Level: "INFO"},
			Events: LogSettings{Path: "./logs/events.log", Level: "INFO"},
		},
		DB: DBConfig{
			Path: "./data/navigator.db",
		},
		Server: ServerConfig{
			Address: "localhost:1923",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(15 * time.Second),
			},
		},
		Location: LocationConfig{
			Provider: "net",
			HighAccuracy: StrategyParams{
				Interval:           Duration(1 * time.Second),
				AcquisitionTimeout: Duration(3 * time.Second),
				HighAccuracy:       true,
			},
			Normal: StrategyParams{
				Interval:           Duration(5 * time.Second),
				AcquisitionTimeout: Duration(8 * time.Second),
				HighAccuracy:       true,
			},
			BatterySaving: StrategyParams{
				Interval:           Duration(10 * time.Second),
				AcquisitionTimeout: Duration(15 * time.Second),
				HighAccuracy:       false,
			},
			Background: StrategyParams{
				Interval:           Duration(30 * time.Second),
				AcquisitionTimeout: Duration(30 * time.Second),
				HighAccuracy:       false,
			},
			ManeuverProximity: Distance(100),
			GoodAccuracy:      Distance(10),
			FairAccuracy:      Distance(25),
			PoorAccuracy:      Distance(50),
			SignalLossAfter:   Duration(15 * time.Second),
			HealthInterval:    Duration(5 * time.Second),
			AnalysisInterval:  Duration(10 * time.Second),
			MaxFixAge:         Duration(5 * time.Second),
			Mock: MockConfig{
				StartLat:   -13.3776,
				StartLon:   -38.9142,
				SpeedMps:   1.4,
				BearingDeg: 45,
				AccuracyM:  8,
				Interval:   Duration(1 * time.Second),
			},
			Net: NetConfig{
				// 10110 is the customary NMEA-over-IP port.
				Listen: "0.0.0.0:10110",
			},
		},
		Predictor: PredictorConfig{
			TurnTrendThreshold: 30,
			MovingSpeedMin:     0.5,
			AccuracyWindow:     Duration(2 * time.Second),
			AccuracyScale:      Distance(50),
		},
		Route: RouteConfig{
			DeviationThreshold: Distance(30),
			HysteresisMargin:   Distance(15),
			ArrivalRadius:      Distance(20),
			RecalcBackoff:      Duration(300 * time.Millisecond),
		},
		Directions: DirectionsConfig{
			BaseURL: "https://router.project-osrm.org",
			Profile: "foot",
		},
		Prefs: PrefsConfig{
			Language:      "pt-BR",
			VoiceGuidance: true,
			Haptics:       true,
		},
	}
}

// Load loads the configuration from the given path. If the file does not
// exist, it is created with defaults. Existing files are merged over the
// defaults but never rewritten, to preserve user formatting and comments.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks structural constraints plus the rules the tags can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if !isValidLocale(c.Prefs.Language) {
		return fmt.Errorf("invalid language format %q: must be 'xx-YY' (e.g. 'pt-BR')", c.Prefs.Language)
	}
	if c.Route.HysteresisMargin >= c.Route.DeviationThreshold {
		return fmt.Errorf("hysteresis_margin (%v) must be below deviation_threshold (%v)",
			float64(c.Route.HysteresisMargin), float64(c.Route.DeviationThreshold))
	}
	return nil
}

func isValidLocale(s string) bool {
	matched, _ := regexp.MatchString(`^[a-z]{2}-[A-Z]{2}$`, s)
	return matched
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Morro Digital Navigator Configuration
# -------------------------------------
# Supported Units:
#   Duration: ns, us, ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Params returns the strategy table row for the named strategy.
func (c *LocationConfig) Params(strategy string) StrategyParams {
	switch strategy {
	case "high-accuracy":
		return c.HighAccuracy
	case "normal":
		return c.Normal
	case "background":
		return c.Background
	default:
		return c.BatterySaving
	}
}
