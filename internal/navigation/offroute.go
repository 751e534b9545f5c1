package navigation

import "time"

// Off-route defaults.
const (
	DefaultOffRouteMeters     = 90
	DefaultOffRouteHysteresis = 3
	DefaultRerouteCooldown    = 15 * time.Second
)

// OffRouteConfig tunes departure detection.
type OffRouteConfig struct {
	// ThresholdMeters is the distance from the route beyond which a sample
	// counts as off route (default: 90).
	ThresholdMeters float64
	// Hysteresis is the number of consecutive off-route samples needed to
	// trigger a reroute (default: 3).
	Hysteresis int
	// Cooldown is the minimum time between reroute triggers (default: 15s).
	Cooldown time.Duration
}

func (c OffRouteConfig) withDefaults() OffRouteConfig {
	if c.ThresholdMeters <= 0 {
		c.ThresholdMeters = DefaultOffRouteMeters
	}
	if c.Hysteresis <= 0 {
		c.Hysteresis = DefaultOffRouteHysteresis
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultRerouteCooldown
	}
	return c
}

// OffRouteState is the detector's counters.
type OffRouteState struct {
	ConsecutiveOffCount int
	// LastReroute is zero until the first trigger.
	LastReroute time.Time
}

// OffRouteDetector applies hysteresis and a cooldown to per-sample route
// distances. It is not safe for concurrent use.
type OffRouteDetector struct {
	cfg   OffRouteConfig
	state OffRouteState
}

// NewOffRouteDetector creates a detector.
func NewOffRouteDetector(cfg OffRouteConfig) *OffRouteDetector {
	return &OffRouteDetector{cfg: cfg.withDefaults()}
}

// Observe records one sample's distance from the route and reports whether a
// reroute should start now. The cooldown is stamped when a trigger fires, so a
// failing reroute still blocks the next one for the full interval.
func (d *OffRouteDetector) Observe(distanceMeters float64, now time.Time) bool {
	if distanceMeters <= d.cfg.ThresholdMeters {
		d.state.ConsecutiveOffCount = 0
		return false
	}

	d.state.ConsecutiveOffCount++
	if d.state.ConsecutiveOffCount < d.cfg.Hysteresis {
		return false
	}
	if !d.state.LastReroute.IsZero() && now.Sub(d.state.LastReroute) < d.cfg.Cooldown {
		return false
	}

	d.state.LastReroute = now
	return true
}

// Track records one sample's distance from the route without ever
// triggering. It keeps the consecutive count current while a reroute is in
// flight.
func (d *OffRouteDetector) Track(distanceMeters float64) {
	if distanceMeters <= d.cfg.ThresholdMeters {
		d.state.ConsecutiveOffCount = 0
		return
	}
	d.state.ConsecutiveOffCount++
}

// RerouteSucceeded clears the consecutive count after a new route is installed.
func (d *OffRouteDetector) RerouteSucceeded() {
	d.state.ConsecutiveOffCount = 0
}

// Reset clears all state for a fresh navigation.
func (d *OffRouteDetector) Reset() {
	d.state = OffRouteState{}
}

// State returns a copy of the counters.
func (d *OffRouteDetector) State() OffRouteState {
	return d.state
}

// Config returns the effective configuration.
func (d *OffRouteDetector) Config() OffRouteConfig {
	return d.cfg
}
