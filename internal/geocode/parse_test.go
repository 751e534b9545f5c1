package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstCoordinateShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		lon  float64
		lat  float64
	}{
		{name: "bare array", body: `[{"lon":139.7,"lat":35.6}]`, lon: 139.7, lat: 35.6},
		{name: "results", body: `{"results":[{"lng":139.7,"lat":35.6}]}`, lon: 139.7, lat: 35.6},
		{name: "data", body: `{"data":[{"longitude":139.7,"latitude":35.6}]}`, lon: 139.7, lat: 35.6},
		{name: "features", body: `{"features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[139.7,35.6]}}]}`, lon: 139.7, lat: 35.6},
		{name: "items with center", body: `{"items":[{"center":[139.7,35.6]}]}`, lon: 139.7, lat: 35.6},
		{name: "places", body: `{"places":[{"lon":139.7,"lat":35.6}]}`, lon: 139.7, lat: 35.6},
		{name: "nominatim strings", body: `{"nominatim":[{"lon":"139.7","lat":"35.6"}]}`, lon: 139.7, lat: 35.6},
		{name: "lon wins over center", body: `[{"lon":1,"lat":2,"center":[3,4]}]`, lon: 1, lat: 2},
		{name: "first result only", body: `[{"lon":1,"lat":2},{"lon":3,"lat":4}]`, lon: 1, lat: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := FirstCoordinate([]byte(tt.body))
			require.True(t, ok)
			assert.InDelta(t, tt.lon, c.Lon, 1e-9)
			assert.InDelta(t, tt.lat, c.Lat, 1e-9)
		})
	}
}

func TestFirstCoordinateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ``},
		{name: "empty array", body: `[]`},
		{name: "unknown envelope", body: `{"hits":[{"lon":1,"lat":2}]}`},
		{name: "missing latitude", body: `[{"lon":1}]`},
		{name: "out of range", body: `[{"lon":200,"lat":2}]`},
		{name: "non numeric", body: `[{"lon":"east","lat":2}]`},
		{name: "not json", body: `<html></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := FirstCoordinate([]byte(tt.body))
			assert.False(t, ok)
		})
	}
}

func TestCandidatesSkipsUnusableAndReadsNames(t *testing.T) {
	body := `{"features":[
		{"geometry":{"coordinates":[139.767,35.681]},"properties":{"name":"Tokyo Station"}},
		{"geometry":{"coordinates":[]}},
		{"geometry":{"coordinates":[139.7,35.66]},"properties":{"label":"Shibuya"}}
	]}`

	got := Candidates([]byte(body))

	require.Len(t, got, 2)
	assert.Equal(t, "Tokyo Station", got[0].Name)
	assert.Equal(t, "Shibuya", got[1].Name)
	assert.Nil(t, got[0].DistanceMeters)
}
