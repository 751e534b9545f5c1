package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/provider/resilience"
)

// mockBackend is a mock routing backend for testing.
type mockBackend struct {
	name      string
	body      []byte
	err       error
	callCount atomic.Int32

	mu       sync.Mutex
	requests []Request

	// block makes Fetch wait for its context to end.
	block bool
}

func (m *mockBackend) Fetch(ctx context.Context, req Request) ([]byte, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.body, nil
}

func (m *mockBackend) Name() string {
	return m.name
}

// hintedBackend reports the polyline precision of its geometries.
type hintedBackend struct {
	mockBackend
	precisions []float64
}

func (h *hintedBackend) GeometryPrecisions() []float64 {
	return h.precisions
}

var (
	testOrigin      = geometry.Coordinate{Lon: 139.767, Lat: 35.681}
	testDestination = geometry.Coordinate{Lon: 139.70, Lat: 35.66}

	errBackendDown = &Error{Provider: "mock", Code: "SERVER_503", Message: "down", Err: ErrProviderUnavailable}
)

func routeBody(distance, duration float64) []byte {
	return []byte(fmt.Sprintf(`{"routes":[{"summary":{"distance":%g,"duration":%g},"geometry":{"type":"LineString","coordinates":[[139.767,35.681],[139.74,35.67],[139.70,35.66]]}}]}`, distance, duration))
}

func testPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
}

func newTestService(primary, secondary Backend, onFallback func(from, to string)) *Service {
	return NewService(ServiceConfig{
		Primary:        primary,
		Secondary:      secondary,
		Retry:          testPolicy(),
		AttemptTimeout: time.Second,
		OnFallback:     onFallback,
		Logger:         zerolog.Nop(),
	})
}

func TestService_FetchRoute_Primary(t *testing.T) {
	primary := &mockBackend{name: "primary", body: routeBody(5000, 600)}
	secondary := &mockBackend{name: "secondary", body: routeBody(1, 1)}

	fallbacks := 0
	service := newTestService(primary, secondary, func(string, string) { fallbacks++ })

	route, err := service.FetchRoute(context.Background(), Request{
		Origin:      testOrigin,
		Destination: testDestination,
		Options:     Options{AvoidTolls: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if route.Backend != "primary" {
		t.Errorf("expected primary backend, got %s", route.Backend)
	}
	if route.TotalDistanceMeters != 5000 || route.TotalDurationSeconds != 600 {
		t.Errorf("unexpected totals %v / %v", route.TotalDistanceMeters, route.TotalDurationSeconds)
	}
	if len(route.Coordinates) != 3 {
		t.Errorf("expected 3 coordinates, got %d", len(route.Coordinates))
	}
	if primary.callCount.Load() != 1 {
		t.Errorf("expected 1 primary call, got %d", primary.callCount.Load())
	}
	if secondary.callCount.Load() != 0 {
		t.Errorf("expected no secondary calls, got %d", secondary.callCount.Load())
	}
	if fallbacks != 0 {
		t.Errorf("expected no fallback notice, got %d", fallbacks)
	}

	req := primary.requests[0]
	if req.Profile != ProfileDriving {
		t.Errorf("expected empty profile to default to driving, got %q", req.Profile)
	}
	if !req.AvoidTolls {
		t.Error("expected avoid tolls to be forwarded")
	}
}

func TestService_FetchRoute_FallbackAfterRetries(t *testing.T) {
	primary := &mockBackend{name: "primary", err: errBackendDown}
	secondary := &mockBackend{name: "secondary", body: routeBody(4800, 580)}

	var notices []string
	service := newTestService(primary, secondary, func(from, to string) {
		notices = append(notices, from+"->"+to)
	})

	route, err := service.FetchRoute(context.Background(), Request{Origin: testOrigin, Destination: testDestination})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if route.Backend != "secondary" {
		t.Errorf("expected secondary backend, got %s", route.Backend)
	}
	if route.TotalDistanceMeters != 4800 {
		t.Errorf("expected secondary's route, got distance %v", route.TotalDistanceMeters)
	}
	if got := primary.callCount.Load(); got != 3 {
		t.Errorf("expected 3 primary attempts (1 + 2 retries), got %d", got)
	}
	if got := secondary.callCount.Load(); got != 1 {
		t.Errorf("expected 1 secondary attempt, got %d", got)
	}
	if len(notices) != 1 || notices[0] != "primary->secondary" {
		t.Errorf("expected one fallback notice, got %v", notices)
	}
}

func TestService_FetchRoute_InsufficientRouteFallsBack(t *testing.T) {
	primary := &mockBackend{name: "primary", body: []byte(`{"routes":[{"distance":100,"geometry":{"type":"LineString","coordinates":[[139.767,35.681]]}}]}`)}
	secondary := &mockBackend{name: "secondary", body: routeBody(4800, 580)}

	fallbacks := 0
	service := newTestService(primary, secondary, func(string, string) { fallbacks++ })

	route, err := service.FetchRoute(context.Background(), Request{Origin: testOrigin, Destination: testDestination})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if route.Backend != "secondary" {
		t.Errorf("expected secondary backend, got %s", route.Backend)
	}
	if got := primary.callCount.Load(); got != 3 {
		t.Errorf("insufficient routes should be retried like transport failures, got %d attempts", got)
	}
	if fallbacks != 1 {
		t.Errorf("expected 1 fallback notice, got %d", fallbacks)
	}
}

func TestService_FetchRoute_AllBackendsFail(t *testing.T) {
	primary := &mockBackend{name: "primary", err: errBackendDown}
	secondary := &mockBackend{name: "secondary", body: []byte(`{"routes":[]}`)}

	service := newTestService(primary, secondary, nil)

	route, err := service.FetchRoute(context.Background(), Request{Origin: testOrigin, Destination: testDestination})
	if route != nil {
		t.Errorf("expected no route, got %+v", route)
	}
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("expected ErrAllBackendsFailed, got %v", err)
	}
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected primary cause to be joined, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientRoute) {
		t.Errorf("expected secondary cause to be joined, got %v", err)
	}
	if primary.callCount.Load() != 3 || secondary.callCount.Load() != 3 {
		t.Errorf("expected 3 attempts per backend, got %d and %d",
			primary.callCount.Load(), secondary.callCount.Load())
	}
}

func TestService_FetchRoute_AttemptTimeoutIsTransportFailure(t *testing.T) {
	primary := &mockBackend{name: "primary", block: true}
	secondary := &mockBackend{name: "secondary", body: routeBody(4800, 580)}

	service := NewService(ServiceConfig{
		Primary:        primary,
		Secondary:      secondary,
		Retry:          resilience.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
		AttemptTimeout: 10 * time.Millisecond,
		Logger:         zerolog.Nop(),
	})

	route, err := service.FetchRoute(context.Background(), Request{Origin: testOrigin, Destination: testDestination})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Backend != "secondary" {
		t.Errorf("expected fallback after timeouts, got %s", route.Backend)
	}
	if got := primary.callCount.Load(); got != 2 {
		t.Errorf("expected 2 timed-out primary attempts, got %d", got)
	}
}

func TestService_FetchRoute_ContextCanceled(t *testing.T) {
	primary := &mockBackend{name: "primary", block: true}
	secondary := &mockBackend{name: "secondary", body: routeBody(4800, 580)}

	service := newTestService(primary, secondary, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := service.FetchRoute(ctx, Request{Origin: testOrigin, Destination: testDestination})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrAllBackendsFailed) {
		t.Error("cancellation should not be reported as backend exhaustion")
	}
	if secondary.callCount.Load() != 0 {
		t.Errorf("expected no secondary calls after cancel, got %d", secondary.callCount.Load())
	}
}

func TestService_FetchRoute_InvalidCoordinates(t *testing.T) {
	primary := &mockBackend{name: "primary", body: routeBody(5000, 600)}
	service := newTestService(primary, nil, nil)

	tests := []struct {
		name        string
		origin      geometry.Coordinate
		destination geometry.Coordinate
		wantCode    string
	}{
		{"latitude out of range", geometry.Coordinate{Lon: 0, Lat: 91}, testDestination, "INVALID_ORIGIN"},
		{"longitude out of range", testOrigin, geometry.Coordinate{Lon: 181, Lat: 0}, "INVALID_DESTINATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.FetchRoute(context.Background(), Request{Origin: tt.origin, Destination: tt.destination})

			var routingErr *Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected routing.Error, got %T", err)
			}
			if routingErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, routingErr.Code)
			}
			if !errors.Is(err, ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates, got %v", err)
			}
		})
	}

	if primary.callCount.Load() != 0 {
		t.Errorf("expected no backend calls, got %d", primary.callCount.Load())
	}
}

func TestService_FetchRoute_UsesPrecisionHint(t *testing.T) {
	coords := []geometry.Coordinate{
		{Lon: 139.767, Lat: 35.681},
		{Lon: 139.74, Lat: 35.67},
		{Lon: 139.70, Lat: 35.66},
	}
	encoded := geometry.EncodePolyline(coords, 1e6)

	primary := &hintedBackend{
		mockBackend: mockBackend{
			name: "primary",
			body: []byte(fmt.Sprintf(`{"routes":[{"distance":7000,"geometry":%q}]}`, encoded)),
		},
		precisions: []float64{1e6},
	}
	service := newTestService(primary, nil, nil)

	route, err := service.FetchRoute(context.Background(), Request{Origin: testOrigin, Destination: testDestination})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(route.Coordinates) != 3 {
		t.Fatalf("expected 3 coordinates, got %d", len(route.Coordinates))
	}
	if d := geometry.Haversine(route.Coordinates[2], coords[2]); d > 1 {
		t.Errorf("expected polyline6 decode, last point is %.1f m off", d)
	}
}

func TestService_BackendNames(t *testing.T) {
	service := newTestService(&mockBackend{name: "ors"}, &mockBackend{name: "osrm"}, nil)

	names := service.BackendNames()
	if len(names) != 2 || names[0] != "ors" || names[1] != "osrm" {
		t.Errorf("expected [ors osrm], got %v", names)
	}

	single := newTestService(&mockBackend{name: "ors"}, nil, nil)
	if len(single.BackendNames()) != 1 {
		t.Errorf("expected a single backend, got %v", single.BackendNames())
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unavailable", err: errBackendDown, want: true},
		{name: "rate limited", err: &Error{Provider: "mock", Err: ErrRateLimitExceeded}, want: true},
		{name: "wrapped", err: fmt.Errorf("primary: %w", errBackendDown), want: true},
		{name: "no route", err: &Error{Provider: "mock", Code: "NO_ROUTE", Err: ErrNoRouteFound}, want: false},
		{name: "insufficient", err: &Error{Provider: "mock", Code: "INSUFFICIENT_ROUTE", Err: ErrInsufficientRoute}, want: false},
		{name: "timeout", err: context.DeadlineExceeded, want: true},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestService_FetchRoute_LogsTransience(t *testing.T) {
	noRoute := &Error{Provider: "mock", Code: "NO_ROUTE", Message: "no route", Err: ErrNoRouteFound}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "transient", err: errBackendDown, want: true},
		{name: "permanent", err: noRoute, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			primary := &mockBackend{name: "primary", err: tt.err}
			service := NewService(ServiceConfig{
				Primary: primary,
				Retry:   resilience.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
				Logger:  zerolog.New(&buf),
			})

			_, err := service.FetchRoute(context.Background(), Request{Origin: testOrigin, Destination: testDestination})
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := primary.callCount.Load(); got != 2 {
				t.Errorf("every failure is retried, got %d attempts", got)
			}

			found := false
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var entry map[string]any
				if json.Unmarshal([]byte(line), &entry) != nil || entry["message"] != "route fetch failed, retrying" {
					continue
				}
				found = true
				if entry["transient"] != tt.want {
					t.Errorf("expected transient=%v, got %v", tt.want, entry["transient"])
				}
			}
			if !found {
				t.Error("expected a retry log entry")
			}
		})
	}
}
