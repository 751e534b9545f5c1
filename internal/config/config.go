// Package config loads service configuration from defaults, an optional YAML
// file and NAVI_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/navigation"
	"github.com/browsernavi/navi/internal/position"
	"github.com/browsernavi/navi/internal/provider/resilience"
	"github.com/browsernavi/navi/internal/routing"
	"github.com/browsernavi/navi/internal/settings"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are joined
// with a double underscore: NAVI_ROUTING__PRIMARY__BASE_URL.
const EnvPrefix = "NAVI_"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Routing    RoutingConfig    `koanf:"routing"`
	Geocoding  GeocodingConfig  `koanf:"geocoding"`
	Navigation NavigationConfig `koanf:"navigation"`
	Guidance   GuidanceConfig   `koanf:"guidance"`
	Settings   SettingsConfig   `koanf:"settings"`
	Simulator  SimulatorConfig  `koanf:"simulator"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequireTLS      bool          `koanf:"require_tls"`

	// AuthSigningKey enables bearer-token auth on the navigation endpoints when set.
	AuthSigningKey string `koanf:"auth_signing_key"`
	AuthIssuer     string `koanf:"auth_issuer"`

	// RateLimitPerMinute applies per client IP to every endpoint.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
	// PositionRateLimitPerSecond applies per client to position ingest.
	PositionRateLimitPerSecond int `koanf:"position_rate_limit_per_second"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled        bool          `koanf:"enabled"`
	OTLPEndpoint   string        `koanf:"otlp_endpoint"`
	Environment    string        `koanf:"environment"`
	SampleRatio    float64       `koanf:"sample_ratio"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

// BackendConfig addresses one routing backend.
type BackendConfig struct {
	BaseURL string        `koanf:"base_url"`
	Path    string        `koanf:"path"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// BreakerConfig tunes the per-backend circuit breaker.
type BreakerConfig struct {
	OpenTimeout time.Duration `koanf:"open_timeout"`
	MaxRequests uint32        `koanf:"max_requests"`
}

// RoutingConfig holds route acquisition settings.
type RoutingConfig struct {
	Primary        BackendConfig `koanf:"primary"`
	Secondary      BackendConfig `koanf:"secondary"`
	Retries        uint64        `koanf:"retries"`
	BaseBackoff    time.Duration `koanf:"base_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`
	Breaker        BreakerConfig `koanf:"breaker"`
}

// GeocodingConfig holds geocoder settings. An empty base URL disables text
// destinations.
type GeocodingConfig struct {
	BaseURL     string        `koanf:"base_url"`
	Retries     uint64        `koanf:"retries"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
	Timeout     time.Duration `koanf:"timeout"`
}

// PointConfig is a longitude/latitude pair.
type PointConfig struct {
	Lng float64 `koanf:"lng"`
	Lat float64 `koanf:"lat"`
}

// NavigationConfig holds progress and rerouting settings.
type NavigationConfig struct {
	ArrivalThresholdMeters float64       `koanf:"arrival_threshold_meters"`
	OffRouteMeters         float64       `koanf:"off_route_meters"`
	Hysteresis             int           `koanf:"hysteresis"`
	RerouteCooldown        time.Duration `koanf:"reroute_cooldown"`
	ETARefreshInterval     time.Duration `koanf:"eta_refresh_interval"`
	HistorySize            int           `koanf:"history_size"`
	DefaultOrigin          PointConfig   `koanf:"default_origin"`
}

// GuidanceConfig holds announcement settings.
type GuidanceConfig struct {
	PreviewMinMeters  float64       `koanf:"preview_min_meters"`
	PreviewMaxMeters  float64       `koanf:"preview_max_meters"`
	ExecuteMeters     float64       `koanf:"execute_meters"`
	MinSpeechInterval time.Duration `koanf:"min_speech_interval"`
}

// SettingsConfig holds the initial user preferences.
type SettingsConfig struct {
	Profile    string  `koanf:"profile"`
	AvoidTolls bool    `koanf:"avoid_tolls"`
	TTSSpeed   float64 `koanf:"tts_speed"`
	TTSVolume  float64 `koanf:"tts_volume"`
}

// SimulatorConfig drives cmd/navisim.
type SimulatorConfig struct {
	// TrackFile is a GPX file to replay. When empty the simulator drives
	// along the fetched route.
	TrackFile     string        `koanf:"track_file"`
	Interval      time.Duration `koanf:"interval"`
	SpacingMeters float64       `koanf:"spacing_meters"`
	Destination   PointConfig   `koanf:"destination"`
}

// defaults mirror the constants of the packages they configure.
var defaults = map[string]any{
	"server.port":                           8080,
	"server.read_timeout":                   "15s",
	"server.write_timeout":                  "30s",
	"server.idle_timeout":                   "60s",
	"server.shutdown_timeout":               "30s",
	"server.require_tls":                    false,
	"server.rate_limit_per_minute":          600,
	"server.position_rate_limit_per_second": 10,

	"log.level":  "info",
	"log.pretty": false,

	"telemetry.enabled":         false,
	"telemetry.otlp_endpoint":   "localhost:4317",
	"telemetry.environment":     "development",
	"telemetry.sample_ratio":    1.0,
	"telemetry.metric_interval": "15s",

	"routing.primary.base_url":     "https://api.openrouteservice.org",
	"routing.primary.path":         "/route",
	"routing.primary.timeout":      "10s",
	"routing.secondary.base_url":   "https://router.project-osrm.org",
	"routing.secondary.path":       "/route",
	"routing.secondary.timeout":    "10s",
	"routing.retries":              2,
	"routing.base_backoff":         "500ms",
	"routing.max_backoff":          "5s",
	"routing.attempt_timeout":      "10s",
	"routing.breaker.open_timeout": "30s",
	"routing.breaker.max_requests": 1,

	"geocoding.retries":      1,
	"geocoding.base_backoff": "300ms",
	"geocoding.timeout":      "8s",

	"navigation.arrival_threshold_meters": 30.0,
	"navigation.off_route_meters":         90.0,
	"navigation.hysteresis":               3,
	"navigation.reroute_cooldown":         "15s",
	"navigation.eta_refresh_interval":     "1s",
	"navigation.history_size":             50,
	"navigation.default_origin.lng":       139.767,
	"navigation.default_origin.lat":       35.681,

	"guidance.preview_min_meters":  260.0,
	"guidance.preview_max_meters":  340.0,
	"guidance.execute_meters":      40.0,
	"guidance.min_speech_interval": "3500ms",

	"settings.profile":     "driving-car",
	"settings.avoid_tolls": false,
	"settings.tts_speed":   1.0,
	"settings.tts_volume":  1.0,

	"simulator.interval":       "1s",
	"simulator.spacing_meters": 15.0,
}

// Load reads configuration. path names an optional YAML file; an empty path
// skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps NAVI_ROUTING__PRIMARY__BASE_URL to routing.primary.base_url.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Routing.Primary.BaseURL == "" {
		errs = append(errs, errors.New("routing.primary.base_url is required"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %v must be within [0, 1]", c.Telemetry.SampleRatio))
	}
	if !c.Navigation.DefaultOrigin.Coordinate().Valid() {
		errs = append(errs, errors.New("navigation.default_origin is not a valid coordinate"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ZerologLevel returns the configured log level, info when unparseable.
func (c LogConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Coordinate converts the point.
func (p PointConfig) Coordinate() geometry.Coordinate {
	return geometry.Coordinate{Lon: p.Lng, Lat: p.Lat}
}

// RetryPolicy returns the per-backend retry policy.
func (c RoutingConfig) RetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxRetries: c.Retries,
		BaseDelay:  c.BaseBackoff,
		MaxDelay:   c.MaxBackoff,
	}
}

// CircuitBreaker returns the breaker settings for the named backend.
func (c RoutingConfig) CircuitBreaker(name string) *resilience.CircuitBreakerConfig {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	if c.Breaker.OpenTimeout > 0 {
		cb.Timeout = c.Breaker.OpenTimeout
	}
	if c.Breaker.MaxRequests > 0 {
		cb.MaxRequests = c.Breaker.MaxRequests
	}
	return &cb
}

// RetryPolicy returns the geocoding retry policy.
func (c GeocodingConfig) RetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxRetries: c.Retries,
		BaseDelay:  c.BaseBackoff,
	}
}

// OffRoute returns the off-route detector settings.
func (c NavigationConfig) OffRoute() navigation.OffRouteConfig {
	return navigation.OffRouteConfig{
		ThresholdMeters: c.OffRouteMeters,
		Hysteresis:      c.Hysteresis,
		Cooldown:        c.RerouteCooldown,
	}
}

// Announcer returns the guidance announcer settings.
func (c GuidanceConfig) Announcer() navigation.AnnouncerConfig {
	return navigation.AnnouncerConfig{
		PreviewMinMeters: c.PreviewMinMeters,
		PreviewMaxMeters: c.PreviewMaxMeters,
		ExecuteMeters:    c.ExecuteMeters,
		MinInterval:      c.MinSpeechInterval,
	}
}

// Initial returns the configured preferences, clamped.
func (c SettingsConfig) Initial() settings.Settings {
	s := settings.Defaults()
	if c.Profile != "" {
		s.Profile = routing.Profile(c.Profile)
	}
	s.AvoidTolls = c.AvoidTolls
	s.SpeechRate = c.TTSSpeed
	s.SpeechVolume = c.TTSVolume
	return s.Clamped()
}

// Replay returns the replay settings for a recorded track.
func (c SimulatorConfig) Replay(track []position.Sample, logger zerolog.Logger) position.ReplayConfig {
	return position.ReplayConfig{
		Track:    track,
		Interval: c.Interval,
		Logger:   logger,
	}
}
