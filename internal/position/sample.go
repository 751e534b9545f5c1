// Package position provides position sources for the navigation engine: a
// push-based feed for samples arriving over the API and a replay source for
// recorded tracks.
package position

import (
	"errors"
	"time"

	"github.com/browsernavi/navi/internal/geometry"
)

// Sentinel errors reported by position sources.
var (
	// ErrPermissionDenied indicates the device refused location access.
	ErrPermissionDenied = errors.New("position permission denied")
	// ErrTimeout indicates no fix was acquired within the source's timeout.
	ErrTimeout = errors.New("position acquisition timed out")
	// ErrUnavailable indicates the source could not produce a fix.
	ErrUnavailable = errors.New("position unavailable")
	// ErrInvalidSample indicates a sample with out-of-range coordinates.
	ErrInvalidSample = errors.New("invalid position sample")
)

// Sample is a single position fix.
type Sample struct {
	Coordinate geometry.Coordinate
	// HeadingDegrees is nil when the source did not report a heading.
	HeadingDegrees *float64
	Timestamp      time.Time
}

// Source delivers position samples to a subscriber until the returned stop
// function is called. Stop is idempotent, never blocks on in-flight
// deliveries, and may be called from inside onSample. Sources must not
// deliver synchronously from Watch.
type Source interface {
	Watch(onSample func(Sample), onError func(error)) (stop func(), err error)
}

// ErrorFromCode maps a geolocation error code (1 denied, 2 unavailable,
// 3 timeout) onto a sentinel error.
func ErrorFromCode(code int) error {
	switch code {
	case 1:
		return ErrPermissionDenied
	case 3:
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}
