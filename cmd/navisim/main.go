// Package main provides a simulator that drives the navigation engine with a
// recorded or synthesized track and logs the guidance it produces.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/browsernavi/navi/internal/app"
	"github.com/browsernavi/navi/internal/config"
	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/navigation"
	"github.com/browsernavi/navi/internal/position"
	"github.com/browsernavi/navi/internal/routing"
	"github.com/browsernavi/navi/internal/settings"
	"github.com/browsernavi/navi/internal/speech"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	const serviceName = "navisim"

	cfg, err := config.Load(os.Getenv("NAVI_CONFIG"))
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := app.NewLogger(cfg.Log, os.Stdout, serviceName, Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := app.NewSettingsStore(cfg.Settings)

	var engine *navigation.Engine
	routes := app.NewRoutingService(cfg.Routing, app.RoutingDeps{
		Logger: log.With().Str("component", "routing").Logger(),
		OnFallback: func(from, to string) {
			if engine != nil {
				engine.ReportProviderSwitch(from, to)
			}
		},
	})

	origin := cfg.Navigation.DefaultOrigin.Coordinate()
	destination := cfg.Simulator.Destination.Coordinate()

	track, err := loadTrack(ctx, cfg, routes, store, origin, destination)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare track")
	}
	if len(track) == 0 {
		log.Fatal().Err(position.ErrEmptyTrack).Msg("failed to prepare track")
	}
	origin = track[0].Coordinate
	if cfg.Simulator.Destination == (config.PointConfig{}) {
		destination = track[len(track)-1].Coordinate
	}

	log.Info().
		Int("samples", len(track)).
		Dur("interval", cfg.Simulator.Interval).
		Float64("origin_lng", origin.Lon).
		Float64("origin_lat", origin.Lat).
		Float64("destination_lng", destination.Lon).
		Float64("destination_lat", destination.Lat).
		Msg("starting simulation")

	replay := position.NewReplay(cfg.Simulator.Replay(track, log))
	arrived := make(chan struct{})

	engine = app.NewEngine(cfg, app.EngineDeps{
		Fetcher:   routes,
		Positions: replay,
		Speaker:   speech.NewLogSpeaker(log.With().Str("component", "speech").Logger()),
		Settings:  store,
		OnSnapshot: func(s navigation.Snapshot) {
			logSnapshot(log, s)
			if s.Status == navigation.StatusArrived {
				select {
				case <-arrived:
				default:
					close(arrived)
				}
			}
		},
		OnNotice: func(n navigation.Notice) {
			log.Warn().Str("kind", string(n.Kind)).Msg(n.Message)
		},
		Logger: log.With().Str("component", "navigation").Logger(),
	})

	if _, err := engine.Start(ctx, origin, destination); err != nil {
		log.Fatal().Err(err).Msg("failed to start navigation")
	}

	select {
	case <-arrived:
		log.Info().Msg("arrived at destination")
	case <-replay.Done():
		log.Warn().Msg("track ended before arrival")
	case <-ctx.Done():
		log.Info().Msg("simulation interrupted")
	}

	engine.Stop()
	engine.Wait()
}

// loadTrack reads the configured GPX file or, without one, synthesizes a track
// along a freshly fetched route.
func loadTrack(ctx context.Context, cfg *config.Config, routes *routing.Service, store settings.Store, origin, destination geometry.Coordinate) ([]position.Sample, error) {
	if cfg.Simulator.TrackFile != "" {
		return position.LoadGPXFile(cfg.Simulator.TrackFile)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	route, err := routes.FetchRoute(fetchCtx, routing.Request{
		Origin:      origin,
		Destination: destination,
		Options:     settings.Load(store).Options(),
	})
	if err != nil {
		return nil, err
	}
	return position.AlongRoute(route.Coordinates, cfg.Simulator.SpacingMeters), nil
}

func logSnapshot(log zerolog.Logger, s navigation.Snapshot) {
	event := log.Info().
		Str("status", string(s.Status)).
		Str("backend", s.Backend).
		Str("next", s.NextInstruction)
	if s.RemainingMeters != nil {
		event = event.Float64("remaining_m", *s.RemainingMeters)
	}
	if s.DistanceToStepMeters != nil {
		event = event.Float64("to_step_m", *s.DistanceToStepMeters)
	}
	if s.OffRouteMeters != nil {
		event = event.Float64("off_route_m", *s.OffRouteMeters)
	}
	if s.ETA != nil {
		event = event.Time("eta", *s.ETA)
	}
	if s.Error != "" {
		event = event.Str("error", s.Error)
	}
	event.Msg("snapshot")
}
