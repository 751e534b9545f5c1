package navigation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/routing"
)

// metersPerDegree is the length of one degree of longitude on the equator.
const metersPerDegree = geometry.EarthRadiusMeters * math.Pi / 180

// at returns the equator point x meters east of the origin, y meters north.
func at(x, y float64) geometry.Coordinate {
	return geometry.Coordinate{Lon: x / metersPerDegree, Lat: y / metersPerDegree}
}

// equatorRoute builds a route running east from the origin with a vertex
// every spacing meters.
func equatorRoute(vertices int, spacing float64, steps ...routing.Step) *routing.Route {
	coords := make([]geometry.Coordinate, vertices)
	for i := range coords {
		coords[i] = at(float64(i)*spacing, 0)
	}
	total := float64(vertices-1) * spacing
	return &routing.Route{
		Coordinates:          coords,
		Steps:                steps,
		TotalDistanceMeters:  total,
		TotalDurationSeconds: total / 10,
		Backend:              "test",
	}
}

// threeStepRoute is 1000 m long with a right turn at 500 m.
func threeStepRoute() *routing.Route {
	return equatorRoute(11, 100,
		routing.Step{Maneuver: routing.ManeuverDepart, Instruction: "Head east", DistanceMeters: 500, Anchor: at(0, 0), VertexIndex: 0},
		routing.Step{Maneuver: routing.ManeuverTurnRight, Instruction: "Turn right onto Main Street", DistanceMeters: 500, Anchor: at(500, 0), VertexIndex: 5},
		routing.Step{Maneuver: routing.ManeuverArrive, Instruction: "Arrive at your destination", Anchor: at(1000, 0), VertexIndex: 10},
	)
}

func TestTrackerPolylineRemaining(t *testing.T) {
	tracker := NewTracker(equatorRoute(11, 100))

	tests := []struct {
		name      string
		position  geometry.Coordinate
		nearest   int
		remaining float64
		along     float64
	}{
		{name: "start", position: at(0, 0), nearest: 0, remaining: 1000, along: 0},
		{name: "on vertex", position: at(300, 0), nearest: 3, remaining: 700, along: 300},
		{name: "between vertices", position: at(340, 0), nearest: 3, remaining: 740, along: 340},
		{name: "end", position: at(1000, 0), nearest: 10, remaining: 0, along: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tracker.Update(tt.position)
			assert.Equal(t, tt.nearest, p.NearestIndex)
			assert.InDelta(t, tt.remaining, p.RemainingMeters, 0.5)
			assert.InDelta(t, tt.along, p.AlongMeters, 0.5)
			assert.InDelta(t, 0, p.OffRouteMeters, 0.01)
			assert.Equal(t, -1, p.StepIndex)
		})
	}
}

func TestTrackerStepRemaining(t *testing.T) {
	tracker := NewTracker(threeStepRoute())

	tests := []struct {
		name      string
		position  geometry.Coordinate
		step      int
		toStep    float64
		remaining float64
	}{
		{name: "before turn", position: at(200, 0), step: 1, toStep: 300, remaining: 800},
		{name: "just past turn", position: at(505, 0), step: 1, toStep: 5, remaining: 505},
		{name: "after turn", position: at(600, 0), step: 2, toStep: 400, remaining: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tracker.Update(tt.position)
			assert.Equal(t, tt.step, p.StepIndex)
			assert.InDelta(t, tt.toStep, p.DistanceToStepMeters, 0.5)
			assert.InDelta(t, tt.remaining, p.RemainingMeters, 0.5)
		})
	}
}

func TestTrackerStepsWithoutDistancesUsePolyline(t *testing.T) {
	route := equatorRoute(11, 100,
		routing.Step{Instruction: "Head east", Anchor: at(0, 0), VertexIndex: 0},
		routing.Step{Instruction: "Arrive", Anchor: at(1000, 0), VertexIndex: 10},
	)
	p := NewTracker(route).Update(at(260, 0))

	assert.Equal(t, 1, p.StepIndex)
	assert.InDelta(t, 740, p.RemainingMeters, 0.5)
}

func TestTrackerOffRouteDistanceUsesSegments(t *testing.T) {
	// Sparse polyline: the nearest vertex is 500 m away but the segment is 50 m.
	route := equatorRoute(3, 1000)
	p := NewTracker(route).Update(at(500, 50))

	assert.InDelta(t, 50, p.OffRouteMeters, 0.5)
	assert.InDelta(t, 500, p.AlongMeters, 0.5)
}

func TestTrackerEmptyRoute(t *testing.T) {
	p := NewTracker(&routing.Route{}).Update(at(0, 0))

	assert.Equal(t, -1, p.NearestIndex)
	assert.True(t, math.IsInf(p.OffRouteMeters, 1))
}

func TestEstimateArrival(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	route := &routing.Route{TotalDistanceMeters: 10000, TotalDurationSeconds: 1000}

	tests := []struct {
		name      string
		route     *routing.Route
		remaining float64
		want      time.Duration
		wantNil   bool
	}{
		{name: "halfway", route: route, remaining: 5000, want: 500 * time.Second},
		{name: "start", route: route, remaining: 10000, want: 1000 * time.Second},
		{name: "clamped above total", route: route, remaining: 20000, want: 1000 * time.Second},
		{name: "clamped below zero", route: route, remaining: -5, want: 0},
		{name: "no duration", route: &routing.Route{TotalDistanceMeters: 10000}, remaining: 5000, wantNil: true},
		{name: "no distance", route: &routing.Route{TotalDurationSeconds: 1000}, remaining: 5000, wantNil: true},
		{name: "nil route", remaining: 5000, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eta := EstimateArrival(now, tt.route, tt.remaining)
			if tt.wantNil {
				assert.Nil(t, eta)
				return
			}
			require.NotNil(t, eta)
			assert.Equal(t, now.Add(tt.want), *eta)
		})
	}
}
