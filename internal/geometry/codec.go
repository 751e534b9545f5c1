package geometry

import (
	"bytes"
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/browsernavi/navi/pkg/polyline"
)

// DefaultPrecisions is the decode order used when a caller does not supply one.
var DefaultPrecisions = []float64{polyline.Precision6, polyline.Precision5}

// DecodePolyline decodes an encoded polyline at the given precision factor.
// Malformed input or coordinates outside WGS84 bounds yield an empty sequence.
func DecodePolyline(text string, precision float64) []Coordinate {
	decoded := polyline.Decode(text, precision)
	if len(decoded) == 0 || !polyline.Valid(decoded) {
		return nil
	}

	coords := make([]Coordinate, len(decoded))
	for i, c := range decoded {
		coords[i] = Coordinate{Lon: c.Lon, Lat: c.Lat}
	}
	return coords
}

// EncodePolyline encodes coords at the given precision factor.
func EncodePolyline(coords []Coordinate, precision float64) string {
	points := make([]polyline.Coordinate, len(coords))
	for i, c := range coords {
		points[i] = polyline.Coordinate{Lat: c.Lat, Lon: c.Lon}
	}
	return polyline.Encode(points, precision)
}

// ExtractGeometry returns the coordinate sequence held in raw, whatever its shape:
//   - a JSON string is decoded as an encoded polyline, trying each precision in
//     order and keeping the first result with more than one point;
//   - a GeoJSON LineString or MultiLineString (flattened), or a Feature or
//     FeatureCollection carrying one;
//   - an object with a bare "coordinates" array;
//   - a bare array of [lng, lat] pairs.
//
// It returns nil when nothing matches.
func ExtractGeometry(raw json.RawMessage, precisions ...float64) []Coordinate {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
		return decodeProbing(text, precisions)
	case '{':
		return extractObject(raw, precisions)
	case '[':
		return parsePairs(raw)
	default:
		return nil
	}
}

func decodeProbing(text string, precisions []float64) []Coordinate {
	if len(precisions) == 0 {
		precisions = DefaultPrecisions
	}
	for _, p := range precisions {
		if coords := DecodePolyline(text, p); len(coords) > 1 {
			return coords
		}
	}
	return nil
}

func extractObject(raw json.RawMessage, precisions []float64) []Coordinate {
	var probe struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
		Geometry    json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}

	switch probe.Type {
	case "LineString", "MultiLineString":
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil
		}
		return fromOrb(g.Geometry())
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			// Features whose geometry is an encoded string are not GeoJSON proper.
			return ExtractGeometry(probe.Geometry, precisions...)
		}
		return fromOrb(f.Geometry)
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil
		}
		for _, f := range fc.Features {
			if coords := fromOrb(f.Geometry); len(coords) > 0 {
				return coords
			}
		}
		return nil
	}

	if len(probe.Coordinates) > 0 {
		if coords := parsePairs(probe.Coordinates); len(coords) > 0 {
			return coords
		}
		return parseNestedPairs(probe.Coordinates)
	}
	return nil
}

func fromOrb(g orb.Geometry) []Coordinate {
	switch v := g.(type) {
	case orb.LineString:
		return fromLineString(v)
	case orb.MultiLineString:
		var out []Coordinate
		for _, ls := range v {
			out = append(out, fromLineString(ls)...)
		}
		return out
	default:
		return nil
	}
}

func fromLineString(ls orb.LineString) []Coordinate {
	out := make([]Coordinate, 0, len(ls))
	for _, p := range ls {
		out = append(out, Coordinate{Lon: p.Lon(), Lat: p.Lat()})
	}
	return out
}

func parsePairs(raw json.RawMessage) []Coordinate {
	var pairs [][]float64
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil
	}
	out := make([]Coordinate, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			return nil
		}
		out = append(out, Coordinate{Lon: p[0], Lat: p[1]})
	}
	return out
}

func parseNestedPairs(raw json.RawMessage) []Coordinate {
	var lines [][][]float64
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil
	}
	var out []Coordinate
	for _, line := range lines {
		for _, p := range line {
			if len(p) < 2 {
				return nil
			}
			out = append(out, Coordinate{Lon: p[0], Lat: p[1]})
		}
	}
	return out
}

// ToLineString converts coords into an orb line string.
func ToLineString(coords []Coordinate) orb.LineString {
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c.Lon, c.Lat}
	}
	return ls
}
