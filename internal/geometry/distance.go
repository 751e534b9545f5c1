// Package geometry provides the coordinate math used by route tracking:
// great-circle distances, nearest-vertex lookup, point-to-polyline distance
// and decoding of route geometry in its several wire shapes.
package geometry

import (
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by every distance in this package.
const EarthRadiusMeters = 6371000.0

// Coordinate is a WGS84 position in degrees, longitude first.
type Coordinate struct {
	Lon float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := lat2 - lat1
	dlon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// LineLengthMeters sums the great-circle distance between consecutive points.
// It is 0 for fewer than two points.
func LineLengthMeters(coords []Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += Haversine(coords[i-1], coords[i])
	}
	return total
}

// SuffixLengths returns, for every index i, the distance along coords from
// coords[i] to the last point. The result has the same length as coords.
func SuffixLengths(coords []Coordinate) []float64 {
	out := make([]float64, len(coords))
	for i := len(coords) - 2; i >= 0; i-- {
		out[i] = out[i+1] + Haversine(coords[i], coords[i+1])
	}
	return out
}

// NearestPointIndex returns the index of the coordinate closest to point.
// Ties resolve to the first occurrence. It returns -1 for an empty sequence.
func NearestPointIndex(coords []Coordinate, point Coordinate) int {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range coords {
		if d := Haversine(c, point); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// DistanceToPolyline returns the shortest distance in meters from point to
// any segment of coords. Segments are measured in a local equirectangular
// projection centred on point, which is accurate at route scale.
// It returns +Inf for an empty sequence.
func DistanceToPolyline(coords []Coordinate, point Coordinate) float64 {
	proj, ok := ProjectOntoPolyline(coords, point)
	if !ok {
		return math.Inf(1)
	}
	return proj.DistanceMeters
}

// Projection locates the point of a polyline closest to a position.
type Projection struct {
	// Segment is the index of the first vertex of the closest segment.
	Segment int
	// Fraction is how far along the segment the closest point lies, in [0, 1].
	Fraction float64
	// DistanceMeters is the distance from the position to that point.
	DistanceMeters float64
}

// ProjectOntoPolyline finds the closest point of coords to point. Ties keep
// the earliest segment. A single coordinate projects onto itself; an empty
// sequence reports false.
func ProjectOntoPolyline(coords []Coordinate, point Coordinate) (Projection, bool) {
	switch len(coords) {
	case 0:
		return Projection{}, false
	case 1:
		return Projection{DistanceMeters: Haversine(coords[0], point)}, true
	}

	best := Projection{DistanceMeters: math.Inf(1)}
	for i := 0; i < len(coords)-1; i++ {
		t, d := segmentProjection(point, coords[i], coords[i+1])
		if d < best.DistanceMeters {
			best = Projection{Segment: i, Fraction: t, DistanceMeters: d}
		}
	}
	return best, true
}

// DistanceToSegment returns the distance in meters from p to the segment ab.
func DistanceToSegment(p, a, b Coordinate) float64 {
	_, d := segmentProjection(p, a, b)
	return d
}

// segmentProjection returns the clamped parameter of p's projection onto ab
// and the distance to it.
func segmentProjection(p, a, b Coordinate) (t, dist float64) {
	ax, ay := project(p, a)
	bx, by := project(p, b)

	dx := bx - ax
	dy := by - ay
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return 0, math.Hypot(ax, ay)
	}

	// p is the origin of the plane.
	t = -(ax*dx + ay*dy) / lengthSq
	t = math.Max(0, math.Min(1, t))

	return t, math.Hypot(ax+t*dx, ay+t*dy)
}

// project maps c onto a plane tangent at origin, in meters.
func project(origin, c Coordinate) (x, y float64) {
	dlon := c.Lon - origin.Lon
	if dlon > 180 {
		dlon -= 360
	} else if dlon < -180 {
		dlon += 360
	}
	x = toRadians(dlon) * math.Cos(toRadians(origin.Lat)) * EarthRadiusMeters
	y = toRadians(c.Lat-origin.Lat) * EarthRadiusMeters
	return x, y
}

// Bearing returns the initial great-circle bearing from a to b in degrees,
// normalized to [0, 360).
func Bearing(a, b Coordinate) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlon := toRadians(b.Lon - a.Lon)

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)

	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}
