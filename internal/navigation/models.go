// Package navigation implements turn-by-turn guidance: it tracks progress
// along the active route, detects departures from it, reroutes, and decides
// which instructions to speak and when.
package navigation

import (
	"context"
	"errors"
	"time"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/routing"
)

// Sentinel errors for navigation operations.
var (
	// ErrNotNavigating indicates an operation that needs an active route.
	ErrNotNavigating = errors.New("navigation is not active")
	// ErrSuperseded indicates a start whose result was discarded because
	// Stop or another Start ran while its route was being fetched.
	ErrSuperseded = errors.New("navigation start superseded")
	// ErrNoDestination indicates a start without a usable destination.
	ErrNoDestination = errors.New("no destination given")
)

// Status is the engine state reported in every snapshot.
type Status string

// Engine states.
const (
	StatusIdle       Status = "idle"
	StatusNavigating Status = "navigating"
	StatusRerouting  Status = "rerouting"
	StatusError      Status = "error"
	StatusArrived    Status = "arrived"
)

// Active reports whether guidance is running in this state.
func (s Status) Active() bool {
	return s == StatusNavigating || s == StatusRerouting
}

// RouteFetcher acquires routes. *routing.Service implements it.
type RouteFetcher interface {
	FetchRoute(ctx context.Context, req routing.Request) (*routing.Route, error)
}

// Speaker renders instruction text audibly.
type Speaker interface {
	Speak(text string)
}

// VoiceSetter is implemented by speakers that accept a speech rate and volume.
type VoiceSetter interface {
	SetVoice(rate, volume float64)
}

// Snapshot is the derived progress state published after every change.
type Snapshot struct {
	Status Status
	// RemainingMeters is nil while no route is active.
	RemainingMeters *float64
	// ETA is nil when the route lacks a total distance or duration.
	ETA *time.Time
	// HeadingDegrees is the reported or derived heading of the last sample.
	HeadingDegrees *float64
	// Position is the last accepted sample position.
	Position *geometry.Coordinate

	// StepIndex is the upcoming maneuver, -1 when there is none.
	StepIndex int
	// NextInstruction is the instruction of the upcoming maneuver.
	NextInstruction string
	// DistanceToStepMeters is nil when there is no upcoming maneuver.
	DistanceToStepMeters *float64
	// OffRouteMeters is the distance from the last sample to the route.
	OffRouteMeters *float64

	Backend string
	// SessionID identifies one Start; reroutes keep it.
	SessionID  string
	Generation uint64
	Error      string
	UpdatedAt  time.Time
}

// ETAMillis returns the ETA as Unix epoch milliseconds.
func (s Snapshot) ETAMillis() *int64 {
	if s.ETA == nil {
		return nil
	}
	ms := s.ETA.UnixMilli()
	return &ms
}

// NoticeKind classifies a user-visible notice.
type NoticeKind string

// Notice kinds.
const (
	NoticeProviderSwitch NoticeKind = "provider_switch"
	NoticeRerouted       NoticeKind = "rerouted"
	NoticeRerouteFailed  NoticeKind = "reroute_failed"
	NoticeRouteFailed    NoticeKind = "route_failed"
	NoticePositionError  NoticeKind = "position_error"
)

// Notice is a passive, user-visible message about a degraded or changed state.
type Notice struct {
	Kind    NoticeKind
	Message string
	At      time.Time
}

// AnnouncementKind classifies spoken output.
type AnnouncementKind string

// Announcement kinds.
const (
	AnnouncementPreview AnnouncementKind = "preview"
	AnnouncementExecute AnnouncementKind = "execute"
	AnnouncementStatus  AnnouncementKind = "status"
)

// Announcement is one piece of text handed to the speaker.
type Announcement struct {
	Kind AnnouncementKind
	// StepIndex is -1 for status phrases.
	StepIndex int
	Text      string
	At        time.Time
}

// Phrases are the status texts spoken on state changes. Empty phrases are not spoken.
type Phrases struct {
	Started     string
	Rerouted    string
	RouteFailed string
	Ended       string
	Arrived     string
}

// DefaultPhrases returns English status phrases.
func DefaultPhrases() Phrases {
	return Phrases{
		Started:     "Starting navigation",
		Rerouted:    "Route recalculated",
		RouteFailed: "Could not find a route",
		Ended:       "Navigation ended",
		Arrived:     "You have arrived at your destination",
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}
