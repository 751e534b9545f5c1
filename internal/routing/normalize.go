package routing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/browsernavi/navi/internal/geometry"
)

// Fallback travel speeds used when a backend reports no duration.
var profileSpeedsKmh = map[Profile]float64{
	ProfileDriving: 40,
	ProfileCycling: 18,
	ProfileWalking: 5,
}

// EstimateDuration returns the travel time in seconds for distanceMeters at the
// profile's fallback speed. Unknown profiles use the driving speed.
func EstimateDuration(distanceMeters float64, profile Profile) float64 {
	kmh, ok := profileSpeedsKmh[profile]
	if !ok {
		kmh = profileSpeedsKmh[ProfileDriving]
	}
	if distanceMeters <= 0 {
		return 0
	}
	return distanceMeters / (kmh / 3.6)
}

// flexFloat decodes numbers that backends sometimes send as strings or null.
// Values that fail to parse are left unset instead of failing the document.
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.value, f.set = v, true
	return nil
}

// positive returns the value when it is set and greater than zero.
func (f flexFloat) positive() (float64, bool) {
	if !f.set || f.value <= 0 {
		return 0, false
	}
	return f.value, true
}

type rawSummary struct {
	Distance flexFloat `json:"distance"`
	Duration flexFloat `json:"duration"`
}

// UnmarshalJSON ignores summaries that are not objects. Some backends send a
// road-name string under the same key.
func (s *rawSummary) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	type plain rawSummary
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return nil
	}
	*s = rawSummary(p)
	return nil
}

type rawRoute struct {
	Summary   *rawSummary     `json:"summary"`
	Distance  flexFloat       `json:"distance"`
	Duration  flexFloat       `json:"duration"`
	Segments  []rawLeg        `json:"segments"`
	Legs      []rawLeg        `json:"legs"`
	Geometry  json.RawMessage `json:"geometry"`
	GeoJSON   json.RawMessage `json:"geojson"`
	WayPoints []int           `json:"way_points"`
}

// legs returns segments (primary shape) or legs (secondary shape).
func (r *rawRoute) legs() []rawLeg {
	if len(r.Segments) > 0 {
		return r.Segments
	}
	return r.Legs
}

type rawLeg struct {
	Distance flexFloat `json:"distance"`
	Duration flexFloat `json:"duration"`
	Steps    []rawStep `json:"steps"`
}

type rawStep struct {
	Distance    flexFloat       `json:"distance"`
	Duration    flexFloat       `json:"duration"`
	Type        flexFloat       `json:"type"`
	Instruction string          `json:"instruction"`
	Name        string          `json:"name"`
	WayPoints   []int           `json:"way_points"`
	Center      json.RawMessage `json:"center"`
	Maneuver    *rawManeuver    `json:"maneuver"`
}

type rawManeuver struct {
	Type        string          `json:"type"`
	Modifier    string          `json:"modifier"`
	Instruction string          `json:"instruction"`
	Location    json.RawMessage `json:"location"`
}

// totals accumulates distance and duration as strategies resolve them.
type totals struct {
	distance    float64
	duration    float64
	hasDistance bool
	hasDuration bool
}

func (t *totals) complete() bool {
	return t.hasDistance && t.hasDuration
}

func (t *totals) offer(distance, duration float64, hasDistance, hasDuration bool) {
	if !t.hasDistance && hasDistance {
		t.distance, t.hasDistance = distance, true
	}
	if !t.hasDuration && hasDuration {
		t.duration, t.hasDuration = duration, true
	}
}

// totalsStrategy is one way of reading the route totals. Each fills only
// what is still unknown.
type totalsStrategy func(r *rawRoute, coords []geometry.Coordinate, profile Profile, t *totals)

// totalsStrategies is applied in priority order until both totals are known.
var totalsStrategies = []totalsStrategy{
	summaryTotals,
	firstLegTotals,
	legSumTotals,
	stepSumTotals,
	geometryTotals,
	estimatedDuration,
}

func summaryTotals(r *rawRoute, _ []geometry.Coordinate, _ Profile, t *totals) {
	if r.Summary != nil {
		dist, okDist := r.Summary.Distance.positive()
		dur, okDur := r.Summary.Duration.positive()
		t.offer(dist, dur, okDist, okDur)
	}
	dist, okDist := r.Distance.positive()
	dur, okDur := r.Duration.positive()
	t.offer(dist, dur, okDist, okDur)
}

func firstLegTotals(r *rawRoute, _ []geometry.Coordinate, _ Profile, t *totals) {
	legs := r.legs()
	if len(legs) == 0 {
		return
	}
	dist, okDist := legs[0].Distance.positive()
	dur, okDur := legs[0].Duration.positive()
	t.offer(dist, dur, okDist, okDur)
}

func legSumTotals(r *rawRoute, _ []geometry.Coordinate, _ Profile, t *totals) {
	var dist, dur float64
	var okDist, okDur bool
	for _, leg := range r.legs() {
		if v, ok := leg.Distance.positive(); ok {
			dist += v
			okDist = true
		}
		if v, ok := leg.Duration.positive(); ok {
			dur += v
			okDur = true
		}
	}
	t.offer(dist, dur, okDist, okDur)
}

func stepSumTotals(r *rawRoute, _ []geometry.Coordinate, _ Profile, t *totals) {
	var dist, dur float64
	var okDist, okDur bool
	for _, leg := range r.legs() {
		for _, step := range leg.Steps {
			if v, ok := step.Distance.positive(); ok {
				dist += v
				okDist = true
			}
			if v, ok := step.Duration.positive(); ok {
				dur += v
				okDur = true
			}
		}
	}
	t.offer(dist, dur, okDist, okDur)
}

func geometryTotals(_ *rawRoute, coords []geometry.Coordinate, _ Profile, t *totals) {
	length := geometry.LineLengthMeters(coords)
	t.offer(length, 0, length > 0, false)
}

func estimatedDuration(_ *rawRoute, _ []geometry.Coordinate, profile Profile, t *totals) {
	if !t.hasDistance {
		return
	}
	dur := EstimateDuration(t.distance, profile)
	t.offer(0, dur, false, dur > 0)
}

// Normalize converts a raw backend response into a Route. It understands the
// primary shape (routes[].summary/segments/steps), the secondary shape
// (routes[].legs/steps) and bare GeoJSON Feature, FeatureCollection or
// geometry documents. Precisions lists the polyline precision factors to try
// for encoded geometries; geometry.DefaultPrecisions is used when empty.
//
// A response that yields fewer than two coordinates or no resolvable total
// distance returns ErrInsufficientRoute.
func Normalize(body []byte, profile Profile, precisions ...float64) (*Route, error) {
	var probe struct {
		Routes     json.RawMessage   `json:"routes"`
		Type       string            `json:"type"`
		Properties json.RawMessage   `json:"properties"`
		Features   []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrInsufficientRoute, err)
	}

	var (
		r0     rawRoute
		coords []geometry.Coordinate
	)

	if routes := bytes.TrimSpace(probe.Routes); len(routes) > 0 && !bytes.Equal(routes, []byte("null")) {
		var list []rawRoute
		if err := json.Unmarshal(routes, &list); err != nil && !isTypeMismatch(err) {
			return nil, fmt.Errorf("%w: decoding routes: %v", ErrInsufficientRoute, err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: empty routes array", ErrInsufficientRoute)
		}
		r0 = list[0]
		coords = routeGeometry(&r0, precisions)
	} else {
		r0, coords = bareGeoJSON(body, probe.Type, probe.Properties, probe.Features, precisions)
	}

	return buildRoute(&r0, coords, profile)
}

// isTypeMismatch reports a field whose JSON type differs from the expected
// one. The rest of the document is still decoded in that case.
func isTypeMismatch(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}

func routeGeometry(r *rawRoute, precisions []float64) []geometry.Coordinate {
	if coords := geometry.ExtractGeometry(r.Geometry, precisions...); len(coords) > 1 {
		return coords
	}
	if coords := geometry.ExtractGeometry(r.GeoJSON, precisions...); len(coords) > 1 {
		return coords
	}
	return nil
}

// bareGeoJSON handles payloads without a routes array. Feature properties,
// when present, are read with the same route shape as routes[0].
func bareGeoJSON(body []byte, kind string, props json.RawMessage, features []json.RawMessage, precisions []float64) (rawRoute, []geometry.Coordinate) {
	var r rawRoute

	switch kind {
	case "FeatureCollection":
		for _, f := range features {
			var feature struct {
				Properties json.RawMessage `json:"properties"`
			}
			if err := json.Unmarshal(f, &feature); err != nil {
				continue
			}
			if coords := geometry.ExtractGeometry(f, precisions...); len(coords) > 1 {
				r = decodeProperties(feature.Properties)
				return r, coords
			}
		}
		return r, nil
	case "Feature":
		r = decodeProperties(props)
	}

	return r, geometry.ExtractGeometry(body, precisions...)
}

func decodeProperties(props json.RawMessage) rawRoute {
	var r rawRoute
	if len(props) == 0 {
		return r
	}
	// Mistyped fields stay empty; any other failure drops the properties so
	// totals come from the geometry.
	if err := json.Unmarshal(props, &r); err != nil && !isTypeMismatch(err) {
		return rawRoute{}
	}
	return r
}

func buildRoute(r *rawRoute, coords []geometry.Coordinate, profile Profile) (*Route, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("%w: %d coordinates", ErrInsufficientRoute, len(coords))
	}

	var t totals
	for _, strategy := range totalsStrategies {
		if t.complete() {
			break
		}
		strategy(r, coords, profile, &t)
	}
	if !t.hasDistance {
		return nil, fmt.Errorf("%w: total distance unresolved", ErrInsufficientRoute)
	}

	return &Route{
		Coordinates:          coords,
		Steps:                buildSteps(r, coords),
		TotalDistanceMeters:  t.distance,
		TotalDurationSeconds: t.duration,
	}, nil
}

// buildSteps reads the steps of the first segment or leg. Steps without a
// resolvable anchor are skipped.
func buildSteps(r *rawRoute, coords []geometry.Coordinate) []Step {
	legs := r.legs()
	if len(legs) == 0 || len(legs[0].Steps) == 0 {
		return nil
	}

	steps := make([]Step, 0, len(legs[0].Steps))
	for i := range legs[0].Steps {
		raw := &legs[0].Steps[i]

		anchor, vertex, ok := stepAnchor(raw, coords)
		if !ok {
			continue
		}

		maneuver := stepManeuver(raw)
		instruction := strings.TrimSpace(raw.Instruction)
		if instruction == "" && raw.Maneuver != nil {
			instruction = strings.TrimSpace(raw.Maneuver.Instruction)
		}
		if instruction == "" {
			instruction = SynthesizeInstruction(maneuver, raw.Name)
		}

		dist, _ := raw.Distance.positive()
		dur, _ := raw.Duration.positive()

		steps = append(steps, Step{
			Maneuver:        maneuver,
			Instruction:     instruction,
			Name:            strings.TrimSpace(raw.Name),
			DistanceMeters:  dist,
			DurationSeconds: dur,
			Anchor:          anchor,
			VertexIndex:     vertex,
		})
	}
	return steps
}

// stepAnchor resolves the maneuver location: a precomputed center, then the
// coordinate at the first waypoint index, then the maneuver location.
func stepAnchor(s *rawStep, coords []geometry.Coordinate) (geometry.Coordinate, int, bool) {
	if c, ok := parsePoint(s.Center); ok {
		return c, waypointOrNearest(s, coords, c), true
	}
	if len(s.WayPoints) > 0 {
		if idx := s.WayPoints[0]; idx >= 0 && idx < len(coords) {
			return coords[idx], idx, true
		}
	}
	if s.Maneuver != nil {
		if c, ok := parsePoint(s.Maneuver.Location); ok {
			return c, geometry.NearestPointIndex(coords, c), true
		}
	}
	return geometry.Coordinate{}, -1, false
}

func waypointOrNearest(s *rawStep, coords []geometry.Coordinate, anchor geometry.Coordinate) int {
	if len(s.WayPoints) > 0 {
		if idx := s.WayPoints[0]; idx >= 0 && idx < len(coords) {
			return idx
		}
	}
	return geometry.NearestPointIndex(coords, anchor)
}

func stepManeuver(s *rawStep) Maneuver {
	if s.Type.set {
		return ManeuverFromORSType(int(s.Type.value))
	}
	if s.Maneuver != nil && s.Maneuver.Type != "" {
		return ManeuverFromOSRM(s.Maneuver.Type, s.Maneuver.Modifier)
	}
	return ManeuverContinue
}

// parsePoint accepts [lng, lat] or {"lng"|"lon", "lat"}.
func parsePoint(raw json.RawMessage) (geometry.Coordinate, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return geometry.Coordinate{}, false
	}

	var pair []float64
	if err := json.Unmarshal(raw, &pair); err == nil {
		if len(pair) < 2 {
			return geometry.Coordinate{}, false
		}
		c := geometry.Coordinate{Lon: pair[0], Lat: pair[1]}
		return c, c.Valid()
	}

	var obj struct {
		Lng *float64 `json:"lng"`
		Lon *float64 `json:"lon"`
		Lat *float64 `json:"lat"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Lat == nil {
		return geometry.Coordinate{}, false
	}
	lon := obj.Lng
	if lon == nil {
		lon = obj.Lon
	}
	if lon == nil {
		return geometry.Coordinate{}, false
	}
	c := geometry.Coordinate{Lon: *lon, Lat: *obj.Lat}
	return c, c.Valid()
}
