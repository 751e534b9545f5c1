// Package main provides the entrypoint for the navigation daemon.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/browsernavi/navi/internal/api"
	"github.com/browsernavi/navi/internal/api/handler"
	"github.com/browsernavi/navi/internal/api/middleware"
	"github.com/browsernavi/navi/internal/app"
	"github.com/browsernavi/navi/internal/auth"
	"github.com/browsernavi/navi/internal/config"
	"github.com/browsernavi/navi/internal/navigation"
	"github.com/browsernavi/navi/internal/position"
	"github.com/browsernavi/navi/internal/provider/resilience"
	"github.com/browsernavi/navi/internal/speech"
	"github.com/browsernavi/navi/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "navid"

	cfg, err := config.Load(os.Getenv("NAVI_CONFIG"))
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := app.NewLogger(cfg.Log, os.Stdout, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting navigation daemon")

	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
		Logger:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	registry := resilience.NewRegistry()
	events := handler.NewEvents(handler.DefaultNoticeHistory)
	feed := position.NewFeed()
	store := app.NewSettingsStore(cfg.Settings)
	speaker := speech.Multi{
		speech.NewLogSpeaker(log.With().Str("component", "speech").Logger()),
		speech.NewRecorder(cfg.Navigation.HistorySize),
	}

	var engine *navigation.Engine
	routes := app.NewRoutingService(cfg.Routing, app.RoutingDeps{
		Registry: registry,
		Logger:   log.With().Str("component", "routing").Logger(),
		Tracer:   tp.Tracer,
		Meter:    tp.Meter,
		OnFallback: func(from, to string) {
			engine.ReportProviderSwitch(from, to)
		},
	})

	engine = app.NewEngine(cfg, app.EngineDeps{
		Fetcher:    routes,
		Positions:  feed,
		Speaker:    speaker,
		Settings:   store,
		OnSnapshot: events.PublishSnapshot,
		OnNotice:   events.PublishNotice,
		Logger:     log.With().Str("component", "navigation").Logger(),
		Meter:      tp.Meter,
	})

	navCfg := handler.NavigationConfig{
		Engine:        engine,
		Positions:     feed,
		Events:        events,
		DefaultOrigin: cfg.Navigation.DefaultOrigin.Coordinate(),
		Logger:        log,
	}
	if geocoder := app.NewGeocoder(cfg.Geocoding, registry, log); geocoder != nil {
		navCfg.Geocoder = geocoder
		log.Info().Str("base_url", cfg.Geocoding.BaseURL).Msg("geocoder configured")
	} else {
		log.Warn().Msg("geocoding not configured - text destinations are disabled")
	}

	routerCfg := api.RouterConfig{
		Logger:            log,
		ServiceName:       serviceName,
		Metrics:           metrics,
		RequireTLS:        cfg.Server.RequireTLS,
		RateLimit:         middleware.PerMinute(cfg.Server.RateLimitPerMinute),
		PositionRateLimit: middleware.PerSecond(cfg.Server.PositionRateLimitPerSecond),
		Ops: handler.NewOpsHandler(handler.OpsConfig{
			Version:   Version,
			BuildTime: BuildTime,
			Registry:  registry,
			Order:     routes.BackendNames(),
			Engine:    engine,
		}),
		Navigation: handler.NewNavigationHandler(navCfg),
		Settings:   handler.NewSettingsHandler(store),
	}
	if cfg.Server.AuthSigningKey != "" {
		tokens, tokenErr := auth.NewTokenService(auth.TokenConfig{
			SigningKey: cfg.Server.AuthSigningKey,
			Issuer:     cfg.Server.AuthIssuer,
		})
		if tokenErr != nil {
			log.Fatal().Err(tokenErr).Msg("failed to initialize token service")
		}
		routerCfg.Auth = tokens
		log.Info().Msg("bearer token auth enabled")
	} else {
		log.Warn().Msg("auth signing key not set - navigation endpoints are unauthenticated")
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Strs("backends", routes.BackendNames()).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	engine.Stop()
	engine.Wait()

	log.Info().Msg("server stopped")
}
