package models

import (
	"strings"

	"github.com/paulmach/orb/geojson"
)

// StartNavigationRequest is the body of POST /v1/navigation:start.
// Exactly one of Destination and DestinationQuery is required.
type StartNavigationRequest struct {
	// Origin defaults to the last known position, then the configured default.
	Origin           *Point `json:"origin,omitempty"`
	Destination      *Point `json:"destination,omitempty"`
	DestinationQuery string `json:"destinationQuery,omitempty"`
}

// Validate validates the start request.
func (r *StartNavigationRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Origin != nil {
		errs = append(errs, r.Origin.Validate("origin")...)
	}
	query := strings.TrimSpace(r.DestinationQuery)
	switch {
	case r.Destination == nil && query == "":
		errs = append(errs, FieldError{Field: "destination", Message: "destination or destinationQuery is required", Code: "REQUIRED"})
	case r.Destination != nil && query != "":
		errs = append(errs, FieldError{Field: "destinationQuery", Message: "cannot be combined with destination", Code: "CONFLICT"})
	case r.Destination != nil:
		errs = append(errs, r.Destination.Validate("destination")...)
	}
	return errs
}

// PositionError reports a failed fix, using geolocation error codes
// (1 permission denied, 2 unavailable, 3 timeout).
type PositionError struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// PositionRequest is the body of POST /v1/navigation/positions. It carries
// either a fix or an error.
type PositionRequest struct {
	Lng       *float64       `json:"lng,omitempty"`
	Lat       *float64       `json:"lat,omitempty"`
	Heading   *float64       `json:"heading,omitempty"`
	Timestamp *Timestamp     `json:"timestamp,omitempty"`
	Error     *PositionError `json:"error,omitempty"`
}

// Validate validates the position request.
func (r *PositionRequest) Validate() []FieldError {
	if r.Error != nil {
		if r.Lng != nil || r.Lat != nil {
			return []FieldError{{Field: "error", Message: "cannot be combined with a position", Code: "CONFLICT"}}
		}
		return nil
	}

	var errs []FieldError
	if r.Lng == nil {
		errs = append(errs, FieldError{Field: "lng", Message: "lng is required", Code: "REQUIRED"})
	}
	if r.Lat == nil {
		errs = append(errs, FieldError{Field: "lat", Message: "lat is required", Code: "REQUIRED"})
	}
	if len(errs) > 0 {
		return errs
	}
	return Point{Lng: *r.Lng, Lat: *r.Lat}.Validate("position")
}

// Snapshot is the navigation progress view.
type Snapshot struct {
	Status               string     `json:"status"`
	SessionID            string     `json:"sessionId,omitempty"`
	RemainingMeters      *float64   `json:"remainingMeters"`
	ETA                  *Timestamp `json:"eta"`
	ETAEpochMillis       *int64     `json:"etaEpochMs"`
	HeadingDegrees       *float64   `json:"headingDegrees,omitempty"`
	Position             *Point     `json:"position,omitempty"`
	StepIndex            int        `json:"stepIndex"`
	NextInstruction      string     `json:"nextInstruction,omitempty"`
	DistanceToStepMeters *float64   `json:"distanceToStepMeters,omitempty"`
	OffRouteMeters       *float64   `json:"offRouteMeters,omitempty"`
	Backend              string     `json:"backend,omitempty"`
	Generation           uint64     `json:"generation"`
	Error                string     `json:"error,omitempty"`
	UpdatedAt            *Timestamp `json:"updatedAt,omitempty"`
}

// Step is one maneuver of the active route.
type Step struct {
	Index           int     `json:"index"`
	Maneuver        string  `json:"maneuver"`
	Instruction     string  `json:"instruction"`
	Name            string  `json:"name,omitempty"`
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
	Location        Point   `json:"location"`
	VertexIndex     int     `json:"vertexIndex"`
}

// Route is the active route. Geometry is a GeoJSON LineString feature.
type Route struct {
	Backend              string           `json:"backend"`
	TotalDistanceMeters  float64          `json:"totalDistanceMeters"`
	TotalDurationSeconds float64          `json:"totalDurationSeconds"`
	Geometry             *geojson.Feature `json:"geometry"`
	Steps                []Step           `json:"steps"`
	Destination          *Point           `json:"destination,omitempty"`
}

// StartNavigationResponse is returned by a successful start.
type StartNavigationResponse struct {
	Snapshot Snapshot `json:"snapshot"`
	Route    Route    `json:"route"`
	// Origin is the origin actually used, after defaulting.
	Origin Point `json:"origin"`
}

// Announcement is one entry of the spoken history.
type Announcement struct {
	Kind      string    `json:"kind"`
	StepIndex int       `json:"stepIndex"`
	Text      string    `json:"text"`
	At        Timestamp `json:"at"`
}

// AnnouncementsResponse lists spoken output, oldest first.
type AnnouncementsResponse struct {
	Items []Announcement `json:"items"`
}

// Notice is a passive user-visible message.
type Notice struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      Timestamp `json:"at"`
}

// NoticesResponse lists recent notices, oldest first.
type NoticesResponse struct {
	Items []Notice `json:"items"`
}

// Place is a geocoding candidate.
type Place struct {
	Name           string   `json:"name,omitempty"`
	Location       Point    `json:"location"`
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
}

// PlacesResponse lists geocoding candidates, nearest first when biased.
type PlacesResponse struct {
	Items []Place `json:"items"`
}
