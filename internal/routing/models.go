// Package routing acquires routes from remote routing backends and normalizes
// their heterogeneous responses into a single Route representation.
package routing

import (
	"context"
	"errors"

	"github.com/browsernavi/navi/internal/geometry"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the backend is down, timed out, or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInsufficientRoute indicates a response could not yield at least two coordinates
	// or a resolvable total distance.
	ErrInsufficientRoute = errors.New("insufficient route data")
	// ErrAllBackendsFailed indicates every configured backend was exhausted.
	ErrAllBackendsFailed = errors.New("all routing backends failed")
)

// Backend fetches a raw route document from a remote routing service.
// The document is handed to Normalize; backends do not interpret it.
type Backend interface {
	// Fetch retrieves the raw response body for a route request.
	Fetch(ctx context.Context, req Request) ([]byte, error)
	// Name returns the backend identifier for logging and metrics.
	Name() string
}

// PrecisionHinter is implemented by backends that know which polyline
// precision their encoded geometries use. Normalize probes them in order.
type PrecisionHinter interface {
	GeometryPrecisions() []float64
}

// Profile is a travel mode.
type Profile string

const (
	// ProfileDriving routes for cars.
	ProfileDriving Profile = "driving-car"
	// ProfileCycling routes for bicycles.
	ProfileCycling Profile = "cycling-regular"
	// ProfileWalking routes for pedestrians.
	ProfileWalking Profile = "foot-walking"
)

// ParseProfile maps a settings value onto a Profile. Unknown values select driving.
func ParseProfile(s string) Profile {
	switch Profile(s) {
	case ProfileCycling, ProfileWalking:
		return Profile(s)
	}
	switch s {
	case "cycling", "bike", "bicycle":
		return ProfileCycling
	case "walking", "foot", "walk":
		return ProfileWalking
	}
	return ProfileDriving
}

// Options are per-request routing preferences read from settings.
type Options struct {
	Profile    Profile
	AvoidTolls bool
}

// Request is a single origin to destination routing request.
type Request struct {
	Origin      geometry.Coordinate
	Destination geometry.Coordinate
	Options
}

// Route is the canonical route representation produced by Normalize.
type Route struct {
	// Coordinates is the ordered route polyline.
	Coordinates []geometry.Coordinate
	// Steps is the ordered list of maneuvers; empty when the backend sent none.
	Steps []Step
	// TotalDistanceMeters is the resolved total distance.
	TotalDistanceMeters float64
	// TotalDurationSeconds is the total travel time, 0 when unknown.
	TotalDurationSeconds float64
	// Backend names the backend that produced this route.
	Backend string
}

// HasDuration reports whether the route carries a usable total duration.
func (r *Route) HasDuration() bool {
	return r.TotalDurationSeconds > 0
}

// Maneuver is the kind of turn a step asks for.
type Maneuver string

// Maneuver kinds.
const (
	ManeuverDepart      Maneuver = "depart"
	ManeuverTurnLeft    Maneuver = "turn-left"
	ManeuverTurnRight   Maneuver = "turn-right"
	ManeuverStraight    Maneuver = "straight"
	ManeuverUTurn       Maneuver = "uturn"
	ManeuverRoundabout  Maneuver = "roundabout"
	ManeuverMerge       Maneuver = "merge"
	ManeuverForkLeft    Maneuver = "fork-left"
	ManeuverForkRight   Maneuver = "fork-right"
	ManeuverRampLeft    Maneuver = "ramp-left"
	ManeuverRampRight   Maneuver = "ramp-right"
	ManeuverSlightLeft  Maneuver = "slight-left"
	ManeuverSlightRight Maneuver = "slight-right"
	ManeuverSharpLeft   Maneuver = "sharp-left"
	ManeuverSharpRight  Maneuver = "sharp-right"
	ManeuverContinue    Maneuver = "continue"
	ManeuverArrive      Maneuver = "arrive"
)

// Step is one instruction-bearing segment of a route.
type Step struct {
	Maneuver    Maneuver
	Instruction string
	// Name is the street or way name, when known.
	Name string
	// DistanceMeters is the distance from this step's start to the next maneuver.
	DistanceMeters  float64
	DurationSeconds float64
	// Anchor marks the maneuver location.
	Anchor geometry.Coordinate
	// VertexIndex is the index into Route.Coordinates nearest to Anchor.
	VertexIndex int
}

// Error provides detailed error information from a routing backend.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// IsTransient reports whether err is expected to clear on its own. Backend
// errors defer to IsRetryable; anything else, such as a timeout, is transient.
func IsTransient(err error) bool {
	var routingErr *Error
	if errors.As(err, &routingErr) {
		return routingErr.IsRetryable()
	}
	return err != nil
}
