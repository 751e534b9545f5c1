// Package polyline provides encoding and decoding utilities for Google's polyline algorithm.
// The polyline algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
//
// Routing backends emit polylines at two precisions: 1e5 (Google, ORS, OSRM default)
// and 1e6 (Valhalla, OSRM polyline6). Both are supported through Precision.
package polyline

import (
	"math"

	gopolyline "github.com/twpayne/go-polyline"
)

// Supported precision factors.
const (
	Precision5 = 1e5
	Precision6 = 1e6
)

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

func codec(precision float64) gopolyline.Codec {
	if precision <= 0 {
		precision = Precision5
	}
	return gopolyline.Codec{Dim: 2, Scale: precision}
}

// Decode decodes a polyline-encoded string into a slice of coordinates using the
// given precision factor. Malformed input (invalid bytes, truncated varints, trailing
// garbage) yields nil rather than an error so callers can probe another precision.
func Decode(encoded string, precision float64) []Coordinate {
	if encoded == "" {
		return nil
	}

	raw, rest, err := codec(precision).DecodeCoords([]byte(encoded))
	if err != nil || len(rest) != 0 {
		return nil
	}

	coords := make([]Coordinate, 0, len(raw))
	for _, c := range raw {
		if len(c) != 2 {
			return nil
		}
		coords = append(coords, Coordinate{Lat: c[0], Lon: c[1]})
	}
	return coords
}

// Encode encodes a slice of coordinates into a polyline-encoded string at the given
// precision factor.
func Encode(coords []Coordinate, precision float64) string {
	if len(coords) == 0 {
		return ""
	}

	raw := make([][]float64, 0, len(coords))
	for _, c := range coords {
		raw = append(raw, []float64{c.Lat, c.Lon})
	}
	return string(codec(precision).EncodeCoords(nil, raw))
}

// Valid reports whether every coordinate lies within WGS84 bounds.
// Decoding a string at the wrong (too small) precision usually produces
// out-of-range latitudes, which this check rejects.
func Valid(coords []Coordinate) bool {
	for _, c := range coords {
		if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
			return false
		}
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return false
		}
	}
	return true
}
