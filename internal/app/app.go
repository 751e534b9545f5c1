// Package app assembles navigation components from configuration. It is
// shared by the daemon and the simulator.
package app

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/browsernavi/navi/internal/config"
	"github.com/browsernavi/navi/internal/geocode"
	"github.com/browsernavi/navi/internal/navigation"
	"github.com/browsernavi/navi/internal/position"
	"github.com/browsernavi/navi/internal/provider/resilience"
	"github.com/browsernavi/navi/internal/routing"
	"github.com/browsernavi/navi/internal/routing/openrouteservice"
	"github.com/browsernavi/navi/internal/routing/osrm"
	"github.com/browsernavi/navi/internal/settings"
)

// NewLogger creates the root logger. Pretty output is meant for terminals.
func NewLogger(cfg config.LogConfig, out io.Writer, service, version string) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).
		Level(cfg.ZerologLevel()).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// RoutingDeps are the collaborators of the route acquisition service.
type RoutingDeps struct {
	Registry *resilience.Registry
	Logger   zerolog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter

	// OnFallback is called when a request moves to the secondary backend.
	OnFallback func(from, to string)
}

// NewRoutingService builds the primary (OpenRouteService) and, when a base
// URL is configured, secondary (OSRM) backends behind a routing.Service.
func NewRoutingService(cfg config.RoutingConfig, deps RoutingDeps) *routing.Service {
	primary := openrouteservice.NewClient(openrouteservice.ClientConfig{
		APIKey:         cfg.Primary.APIKey,
		BaseURL:        cfg.Primary.BaseURL,
		Path:           cfg.Primary.Path,
		Timeout:        cfg.Primary.Timeout,
		CircuitBreaker: cfg.CircuitBreaker(openrouteservice.ProviderName),
		Registry:       deps.Registry,
		Logger:         deps.Logger.With().Str("backend", openrouteservice.ProviderName).Logger(),
	})

	svcCfg := routing.ServiceConfig{
		Primary:        primary,
		Retry:          cfg.RetryPolicy(),
		AttemptTimeout: cfg.AttemptTimeout,
		OnFallback:     deps.OnFallback,
		Logger:         deps.Logger,
		Tracer:         deps.Tracer,
		Meter:          deps.Meter,
	}
	if cfg.Secondary.BaseURL != "" {
		svcCfg.Secondary = osrm.NewClient(osrm.ClientConfig{
			BaseURL:        cfg.Secondary.BaseURL,
			Path:           cfg.Secondary.Path,
			Timeout:        cfg.Secondary.Timeout,
			CircuitBreaker: cfg.CircuitBreaker(osrm.ProviderName),
			Registry:       deps.Registry,
			Logger:         deps.Logger.With().Str("backend", osrm.ProviderName).Logger(),
		})
	}

	return routing.NewService(svcCfg)
}

// NewGeocoder returns a geocoding client, or nil when no base URL is configured.
func NewGeocoder(cfg config.GeocodingConfig, registry *resilience.Registry, logger zerolog.Logger) *geocode.Client {
	if cfg.BaseURL == "" {
		return nil
	}
	return geocode.NewClient(geocode.ClientConfig{
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		Retry:    cfg.RetryPolicy(),
		Registry: registry,
		Logger:   logger.With().Str("backend", geocode.ProviderName).Logger(),
	})
}

// NewSettingsStore returns an in-memory store seeded with the configured
// preferences.
func NewSettingsStore(cfg config.SettingsConfig) *settings.MemoryStore {
	store := settings.NewMemoryStore(nil)
	settings.Save(store, cfg.Initial())
	return store
}

// EngineDeps are the runtime collaborators of the navigation engine.
type EngineDeps struct {
	Fetcher    navigation.RouteFetcher
	Positions  position.Source
	Speaker    navigation.Speaker
	Settings   settings.Store
	OnSnapshot func(navigation.Snapshot)
	OnNotice   func(navigation.Notice)
	Logger     zerolog.Logger
	Meter      metric.Meter
}

// NewEngine creates a navigation engine tuned by cfg.
func NewEngine(cfg *config.Config, deps EngineDeps) *navigation.Engine {
	return navigation.New(navigation.Config{
		Fetcher:                deps.Fetcher,
		Positions:              deps.Positions,
		Speaker:                deps.Speaker,
		Settings:               deps.Settings,
		OnSnapshot:             deps.OnSnapshot,
		OnNotice:               deps.OnNotice,
		ArrivalThresholdMeters: cfg.Navigation.ArrivalThresholdMeters,
		OffRoute:               cfg.Navigation.OffRoute(),
		Guidance:               cfg.Guidance.Announcer(),
		ETARefreshInterval:     cfg.Navigation.ETARefreshInterval,
		HistorySize:            cfg.Navigation.HistorySize,
		Logger:                 deps.Logger,
		Meter:                  deps.Meter,
	})
}
