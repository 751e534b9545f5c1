package navigation

import (
	"math"
	"time"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/routing"
)

// stepPassedMeters is how far beyond a maneuver's vertex the position must
// be before the next maneuver becomes the upcoming one.
const stepPassedMeters = 10

// Progress is where a position lies relative to a route.
type Progress struct {
	// NearestIndex is the route vertex closest to the position.
	NearestIndex int
	// AlongMeters is the polyline distance from the route start to the
	// position's projection onto the route.
	AlongMeters float64
	// RemainingMeters is the distance left to the destination.
	RemainingMeters float64
	// OffRouteMeters is the distance from the position to the nearest segment.
	OffRouteMeters float64
	// StepIndex is the upcoming maneuver, -1 when none is left.
	StepIndex int
	// DistanceToStepMeters is the straight-line distance to the upcoming
	// maneuver's anchor, 0 when there is none.
	DistanceToStepMeters float64
}

// Tracker measures progress along one route. It precomputes per-vertex
// prefix and suffix lengths so each update is a single linear scan.
// A Tracker is bound to its route; a new route gets a new Tracker.
type Tracker struct {
	route      *routing.Route
	cumulative []float64
	suffix     []float64
	// stepRemaining[i] is the declared distance from step i's anchor to the end.
	stepRemaining []float64
	useSteps      bool
}

// NewTracker creates a tracker for route.
func NewTracker(route *routing.Route) *Tracker {
	coords := route.Coordinates

	cumulative := make([]float64, len(coords))
	for i := 1; i < len(coords); i++ {
		cumulative[i] = cumulative[i-1] + geometry.Haversine(coords[i-1], coords[i])
	}

	stepRemaining := make([]float64, len(route.Steps)+1)
	for i := len(route.Steps) - 1; i >= 0; i-- {
		stepRemaining[i] = stepRemaining[i+1] + route.Steps[i].DistanceMeters
	}

	return &Tracker{
		route:         route,
		cumulative:    cumulative,
		suffix:        geometry.SuffixLengths(coords),
		stepRemaining: stepRemaining[:len(route.Steps)],
		useSteps:      len(route.Steps) > 0 && stepRemaining[0] > 0,
	}
}

// Route returns the tracked route.
func (t *Tracker) Route() *routing.Route {
	return t.route
}

// Update computes progress for position.
//
// With declared step distances, remaining distance is the distance to the
// upcoming maneuver plus the declared distances of every step from it on.
// Otherwise it is the distance to the nearest vertex plus the polyline
// length from that vertex to the end.
func (t *Tracker) Update(position geometry.Coordinate) Progress {
	coords := t.route.Coordinates

	p := Progress{
		NearestIndex: geometry.NearestPointIndex(coords, position),
		StepIndex:    -1,
	}
	if p.NearestIndex < 0 {
		p.OffRouteMeters = math.Inf(1)
		return p
	}

	if proj, ok := geometry.ProjectOntoPolyline(coords, position); ok {
		p.OffRouteMeters = proj.DistanceMeters
		p.AlongMeters = t.cumulative[proj.Segment]
		if proj.Segment+1 < len(coords) {
			p.AlongMeters += proj.Fraction * (t.cumulative[proj.Segment+1] - t.cumulative[proj.Segment])
		}
	}

	p.StepIndex = t.upcomingStep(p.AlongMeters)
	if p.StepIndex >= 0 {
		p.DistanceToStepMeters = geometry.Haversine(position, t.route.Steps[p.StepIndex].Anchor)
	}

	if t.useSteps && p.StepIndex >= 0 {
		p.RemainingMeters = p.DistanceToStepMeters + t.stepRemaining[p.StepIndex]
	} else {
		p.RemainingMeters = geometry.Haversine(position, coords[p.NearestIndex]) + t.suffix[p.NearestIndex]
	}
	return p
}

// upcomingStep returns the first step whose vertex has not been passed.
func (t *Tracker) upcomingStep(along float64) int {
	for i, step := range t.route.Steps {
		if t.stepAlong(step) > along-stepPassedMeters {
			return i
		}
	}
	return -1
}

func (t *Tracker) stepAlong(step routing.Step) float64 {
	idx := step.VertexIndex
	if idx < 0 || idx >= len(t.cumulative) {
		idx = geometry.NearestPointIndex(t.route.Coordinates, step.Anchor)
		if idx < 0 {
			return 0
		}
	}
	return t.cumulative[idx]
}

// EstimateArrival returns now plus the share of the route's total duration
// that remainingMeters represents. It returns nil unless both totals are
// known and positive.
func EstimateArrival(now time.Time, route *routing.Route, remainingMeters float64) *time.Time {
	if route == nil || route.TotalDistanceMeters <= 0 || route.TotalDurationSeconds <= 0 {
		return nil
	}

	fraction := math.Max(0, math.Min(1, remainingMeters/route.TotalDistanceMeters))
	eta := now.Add(time.Duration(route.TotalDurationSeconds * fraction * float64(time.Second)))
	return &eta
}
