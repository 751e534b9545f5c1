package position

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/browsernavi/navi/internal/geometry"
)

// ErrNoTrackPoints indicates a GPX document without usable points.
var ErrNoTrackPoints = errors.New("gpx document has no track, route or waypoint points")

// LoadGPX reads a GPX document and returns its points as samples. Track
// points are preferred, then route points, then waypoints.
func LoadGPX(r io.Reader) ([]Sample, error) {
	doc, err := gpx.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing gpx: %w", err)
	}

	var points []gpx.GPXPoint
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			points = append(points, segment.Points...)
		}
	}
	if len(points) == 0 {
		for _, route := range doc.Routes {
			points = append(points, route.Points...)
		}
	}
	if len(points) == 0 {
		points = doc.Waypoints
	}

	samples := make([]Sample, 0, len(points))
	for _, p := range points {
		c := geometry.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
		if !c.Valid() {
			continue
		}
		samples = append(samples, Sample{Coordinate: c, Timestamp: p.Timestamp})
	}
	if len(samples) == 0 {
		return nil, ErrNoTrackPoints
	}
	return samples, nil
}

// LoadGPXFile reads a GPX file from disk.
func LoadGPXFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening gpx: %w", err)
	}
	defer f.Close()

	return LoadGPX(f)
}

// AlongRoute returns samples spaced spacingMeters apart along coords,
// always including the final coordinate. It is used to drive a route without
// a recorded track.
func AlongRoute(coords []geometry.Coordinate, spacingMeters float64) []Sample {
	if len(coords) == 0 {
		return nil
	}
	if spacingMeters <= 0 {
		spacingMeters = 25
	}

	samples := []Sample{{Coordinate: coords[0]}}
	// next is the distance from the current segment start to the next sample.
	next := spacingMeters
	for i := 0; i < len(coords)-1; i++ {
		a, b := coords[i], coords[i+1]
		segment := geometry.Haversine(a, b)

		for ; next < segment; next += spacingMeters {
			f := next / segment
			samples = append(samples, Sample{Coordinate: geometry.Coordinate{
				Lon: a.Lon + (b.Lon-a.Lon)*f,
				Lat: a.Lat + (b.Lat-a.Lat)*f,
			}})
		}
		next -= segment
	}

	last := coords[len(coords)-1]
	if samples[len(samples)-1].Coordinate != last {
		samples = append(samples, Sample{Coordinate: last})
	}
	return samples
}
