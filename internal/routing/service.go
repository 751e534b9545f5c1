package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/browsernavi/navi/internal/provider/resilience"
)

const instrumentationName = "github.com/browsernavi/navi/internal/routing"

// ServiceConfig holds configuration for the route acquisition service.
type ServiceConfig struct {
	// Primary is the first backend tried for every request (required).
	Primary Backend

	// Secondary is tried once the primary's retries are exhausted (optional).
	Secondary Backend

	// Retry bounds the attempts made against each backend.
	// Zero value uses resilience.DefaultRetryPolicy (2 retries, 500ms doubling).
	Retry resilience.RetryPolicy

	// AttemptTimeout bounds a single backend attempt (default: 15 seconds).
	// A timeout counts as a transport failure.
	AttemptTimeout time.Duration

	// OnFallback is called once per request when switching from one backend to the next.
	OnFallback func(from, to string)

	// Logger for service operations.
	Logger zerolog.Logger

	// Tracer and Meter default to the global OpenTelemetry providers.
	Tracer trace.Tracer
	Meter  metric.Meter
}

// Service fetches routes with per-backend retry and fallback from primary to secondary.
// It never serves cached or stale routes.
type Service struct {
	backends       []Backend
	retry          resilience.RetryPolicy
	attemptTimeout time.Duration
	onFallback     func(from, to string)
	logger         zerolog.Logger
	tracer         trace.Tracer
	attempts       metric.Int64Counter
}

// NewService creates a new route acquisition service.
func NewService(cfg ServiceConfig) *Service {
	retry := cfg.Retry
	if retry == (resilience.RetryPolicy{}) {
		retry = resilience.DefaultRetryPolicy()
	}

	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout == 0 {
		attemptTimeout = 15 * time.Second
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	attempts, err := meter.Int64Counter(
		"routing.backend.attempts",
		metric.WithDescription("Route fetch attempts per backend and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create routing attempts counter")
	}

	backends := []Backend{cfg.Primary}
	if cfg.Secondary != nil {
		backends = append(backends, cfg.Secondary)
	}

	return &Service{
		backends:       backends,
		retry:          retry,
		attemptTimeout: attemptTimeout,
		onFallback:     cfg.OnFallback,
		logger:         cfg.Logger,
		tracer:         tracer,
		attempts:       attempts,
	}
}

// BackendNames returns the configured backends in fallback order.
func (s *Service) BackendNames() []string {
	names := make([]string, len(s.backends))
	for i, b := range s.backends {
		names[i] = b.Name()
	}
	return names
}

// FetchRoute returns a normalized route from origin to destination.
// Each backend is attempted under the retry policy; a response that cannot be
// normalized counts as a failed attempt. When every backend is exhausted the
// returned error wraps ErrAllBackendsFailed and each backend's last error.
func (s *Service) FetchRoute(ctx context.Context, req Request) (*Route, error) {
	if !req.Origin.Valid() {
		return nil, &Error{
			Provider: "routing",
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if !req.Destination.Valid() {
		return nil, &Error{
			Provider: "routing",
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if req.Profile == "" {
		req.Profile = ProfileDriving
	}

	ctx, span := s.tracer.Start(ctx, "routing.FetchRoute",
		trace.WithAttributes(
			attribute.String("routing.profile", string(req.Profile)),
			attribute.Bool("routing.avoid_tolls", req.AvoidTolls),
		),
	)
	defer span.End()

	var failures []error
	for i, backend := range s.backends {
		if i > 0 {
			prev := s.backends[i-1].Name()
			s.logger.Warn().
				Str("from", prev).
				Str("to", backend.Name()).
				Msg("switching routing provider")
			if s.onFallback != nil {
				s.onFallback(prev, backend.Name())
			}
		}

		route, err := s.fetchFrom(ctx, backend, req)
		if err == nil {
			span.SetAttributes(attribute.String("routing.backend", backend.Name()))
			return route, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			return nil, ctxErr
		}

		s.logger.Error().Err(err).
			Str("backend", backend.Name()).
			Uint64("attempts", s.retry.Attempts()).
			Msg("routing backend exhausted")
		failures = append(failures, fmt.Errorf("%s: %w", backend.Name(), err))
	}

	err := fmt.Errorf("%w: %w", ErrAllBackendsFailed, errors.Join(failures...))
	span.RecordError(err)
	span.SetStatus(codes.Error, "all routing backends failed")
	return nil, err
}

func (s *Service) fetchFrom(ctx context.Context, backend Backend, req Request) (*Route, error) {
	var precisions []float64
	if h, ok := backend.(PrecisionHinter); ok {
		precisions = h.GeometryPrecisions()
	}

	attempt := 0
	return resilience.Retry(ctx, s.retry, func(ctx context.Context) (*Route, error) {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()

		attemptCtx, span := s.tracer.Start(attemptCtx, "routing.attempt",
			trace.WithAttributes(
				attribute.String("routing.backend", backend.Name()),
				attribute.Int("routing.attempt", attempt),
			),
		)
		defer span.End()

		body, err := backend.Fetch(attemptCtx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			s.recordAttempt(ctx, backend.Name(), "transport_error")
			if ctx.Err() != nil {
				return nil, resilience.Permanent(ctx.Err())
			}
			return nil, err
		}

		route, err := Normalize(body, req.Profile, precisions...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insufficient route")
			s.recordAttempt(ctx, backend.Name(), "insufficient")
			return nil, &Error{
				Provider: backend.Name(),
				Code:     "INSUFFICIENT_ROUTE",
				Message:  "response did not contain a usable route",
				Err:      err,
			}
		}

		route.Backend = backend.Name()
		s.recordAttempt(ctx, backend.Name(), "success")

		s.logger.Debug().
			Str("backend", backend.Name()).
			Int("attempt", attempt).
			Int("coordinates", len(route.Coordinates)).
			Int("steps", len(route.Steps)).
			Float64("distance_m", route.TotalDistanceMeters).
			Float64("duration_s", route.TotalDurationSeconds).
			Msg("route acquired")

		return route, nil
	}, func(err error, next time.Duration) {
		s.logger.Warn().Err(err).
			Str("backend", backend.Name()).
			Int("attempt", attempt).
			Bool("transient", IsTransient(err)).
			Dur("retry_in", next).
			Msg("route fetch failed, retrying")
	})
}

func (s *Service) recordAttempt(ctx context.Context, backend, outcome string) {
	if s.attempts == nil {
		return
	}
	s.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
	))
}
