package geocode

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/browsernavi/navi/internal/geometry"
)

// Candidate is one geocoding result.
type Candidate struct {
	Name       string              `json:"name"`
	Coordinate geometry.Coordinate `json:"coordinate"`

	// DistanceMeters is set when the search was biased toward a point.
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
}

// listKeys are the envelope fields that may hold the result list, in
// lookup order.
var listKeys = []string{"results", "data", "features", "items", "places", "nominatim"}

var nameKeys = []string{"display_name", "name", "label", "place_name", "title"}

// FirstCoordinate returns the coordinate of the first result in body.
func FirstCoordinate(body []byte) (geometry.Coordinate, bool) {
	items := resultList(body)
	if len(items) == 0 {
		return geometry.Coordinate{}, false
	}
	c, ok := itemCoordinate(items[0])
	if !ok || !c.Valid() {
		return geometry.Coordinate{}, false
	}
	return c, true
}

// Candidates returns every result in body that carries a valid coordinate.
func Candidates(body []byte) []Candidate {
	items := resultList(body)
	out := make([]Candidate, 0, len(items))
	for _, raw := range items {
		c, ok := itemCoordinate(raw)
		if !ok || !c.Valid() {
			continue
		}
		out = append(out, Candidate{Name: itemName(raw), Coordinate: c})
	}
	return out
}

func resultList(body []byte) []json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	var list []json.RawMessage
	if body[0] == '[' {
		if json.Unmarshal(body, &list) != nil {
			return nil
		}
		return list
	}

	var envelope map[string]json.RawMessage
	if json.Unmarshal(body, &envelope) != nil {
		return nil
	}
	for _, key := range listKeys {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if json.Unmarshal(raw, &list) == nil {
			return list
		}
	}
	return nil
}

type item struct {
	Lon       *flexFloat  `json:"lon"`
	Lng       *flexFloat  `json:"lng"`
	Longitude *flexFloat  `json:"longitude"`
	Lat       *flexFloat  `json:"lat"`
	Latitude  *flexFloat  `json:"latitude"`
	Center    []flexFloat `json:"center"`
	Geometry  *struct {
		Coordinates []flexFloat `json:"coordinates"`
	} `json:"geometry"`
}

func itemCoordinate(raw json.RawMessage) (geometry.Coordinate, bool) {
	var it item
	if json.Unmarshal(raw, &it) != nil {
		return geometry.Coordinate{}, false
	}

	// GeoJSON features carry only geometry.coordinates.
	if it.Geometry != nil && len(it.Geometry.Coordinates) >= 2 {
		return geometry.Coordinate{
			Lon: float64(it.Geometry.Coordinates[0]),
			Lat: float64(it.Geometry.Coordinates[1]),
		}, true
	}

	lon, okLon := first(it.Lon, it.Lng, it.Longitude, centerAt(it.Center, 0))
	lat, okLat := first(it.Lat, it.Latitude, centerAt(it.Center, 1))
	if !okLon || !okLat {
		return geometry.Coordinate{}, false
	}
	return geometry.Coordinate{Lon: lon, Lat: lat}, true
}

func itemName(raw json.RawMessage) string {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return ""
	}
	if name := pickString(fields); name != "" {
		return name
	}
	var props map[string]json.RawMessage
	if p, ok := fields["properties"]; ok && json.Unmarshal(p, &props) == nil {
		return pickString(props)
	}
	return ""
}

func pickString(fields map[string]json.RawMessage) string {
	for _, key := range nameKeys {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func centerAt(center []flexFloat, i int) *flexFloat {
	if i < len(center) {
		return &center[i]
	}
	return nil
}

func first(values ...*flexFloat) (float64, bool) {
	for _, v := range values {
		if v != nil {
			return float64(*v), true
		}
	}
	return 0, false
}

// flexFloat accepts JSON numbers and numeric strings; Nominatim sends
// coordinates as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
