package handler

import (
	"github.com/paulmach/orb/geojson"

	"github.com/browsernavi/navi/internal/api/models"
	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/navigation"
	"github.com/browsernavi/navi/internal/routing"
)

func toPoint(c geometry.Coordinate) models.Point {
	return models.Point{Lng: c.Lon, Lat: c.Lat}
}

func toCoordinate(p models.Point) geometry.Coordinate {
	return geometry.Coordinate{Lon: p.Lng, Lat: p.Lat}
}

func toSnapshot(s navigation.Snapshot) models.Snapshot {
	out := models.Snapshot{
		Status:               string(s.Status),
		SessionID:            s.SessionID,
		RemainingMeters:      s.RemainingMeters,
		ETAEpochMillis:       s.ETAMillis(),
		HeadingDegrees:       s.HeadingDegrees,
		StepIndex:            s.StepIndex,
		NextInstruction:      s.NextInstruction,
		DistanceToStepMeters: s.DistanceToStepMeters,
		OffRouteMeters:       s.OffRouteMeters,
		Backend:              s.Backend,
		Generation:           s.Generation,
		Error:                s.Error,
		UpdatedAt:            models.NewTimestamp(s.UpdatedAt),
	}
	if s.ETA != nil {
		out.ETA = models.NewTimestamp(*s.ETA)
	}
	if s.Position != nil {
		p := toPoint(*s.Position)
		out.Position = &p
	}
	return out
}

// toRoute renders r with its geometry as a GeoJSON LineString feature.
func toRoute(r *routing.Route, destination *geometry.Coordinate) models.Route {
	feature := geojson.NewFeature(geometry.ToLineString(r.Coordinates))
	feature.Properties["backend"] = r.Backend
	feature.Properties["distanceMeters"] = r.TotalDistanceMeters
	feature.Properties["durationSeconds"] = r.TotalDurationSeconds

	steps := make([]models.Step, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = models.Step{
			Index:           i,
			Maneuver:        string(s.Maneuver),
			Instruction:     s.Instruction,
			Name:            s.Name,
			DistanceMeters:  s.DistanceMeters,
			DurationSeconds: s.DurationSeconds,
			Location:        toPoint(s.Anchor),
			VertexIndex:     s.VertexIndex,
		}
	}

	out := models.Route{
		Backend:              r.Backend,
		TotalDistanceMeters:  r.TotalDistanceMeters,
		TotalDurationSeconds: r.TotalDurationSeconds,
		Geometry:             feature,
		Steps:                steps,
	}
	if destination != nil {
		p := toPoint(*destination)
		out.Destination = &p
	}
	return out
}

func toAnnouncements(items []navigation.Announcement) []models.Announcement {
	out := make([]models.Announcement, len(items))
	for i, a := range items {
		out[i] = models.Announcement{
			Kind:      string(a.Kind),
			StepIndex: a.StepIndex,
			Text:      a.Text,
			At:        models.Timestamp(a.At),
		}
	}
	return out
}

func toNotice(n navigation.Notice) models.Notice {
	return models.Notice{
		Kind:    string(n.Kind),
		Message: n.Message,
		At:      models.Timestamp(n.At),
	}
}
