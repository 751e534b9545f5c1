package navigation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/position"
	"github.com/browsernavi/navi/internal/routing"
	"github.com/browsernavi/navi/internal/settings"
)

const instrumentationName = "github.com/browsernavi/navi/internal/navigation"

// Engine defaults.
const (
	DefaultArrivalMeters        = 30
	DefaultHeadingMinMoveMeters = 3
	DefaultHistorySize          = 50
)

// Config holds configuration for the navigation engine.
type Config struct {
	// Fetcher acquires routes for starts and reroutes (required).
	Fetcher RouteFetcher

	// Positions is subscribed on every successful start (required).
	Positions position.Source

	// Speaker receives announcement text. Nil disables speech.
	Speaker Speaker

	// Settings is re-read at every start and reroute. Nil uses settings.Defaults.
	Settings settings.Store

	// OnSnapshot and OnNotice are called in order for every published change.
	// They run outside the engine lock but must not call Start or Stop.
	OnSnapshot func(Snapshot)
	OnNotice   func(Notice)

	// ArrivalThresholdMeters is the remaining distance at which navigation
	// ends (default: 30).
	ArrivalThresholdMeters float64

	OffRoute OffRouteConfig
	Guidance AnnouncerConfig

	// ETARefreshInterval re-publishes the last snapshot with a fresh ETA
	// between samples. Zero disables the timer.
	ETARefreshInterval time.Duration

	// HeadingMinMoveMeters is the movement needed to derive a heading from
	// consecutive samples (default: 3).
	HeadingMinMoveMeters float64

	// Phrases are the spoken status texts. Zero value uses DefaultPhrases.
	Phrases Phrases

	// HistorySize bounds the announcement history (default: 50).
	HistorySize int

	// Now is the clock (default: time.Now).
	Now func() time.Time

	// Logger for engine operations.
	Logger zerolog.Logger

	// Meter defaults to the global OpenTelemetry provider.
	Meter metric.Meter
}

// Engine runs one navigation at a time. It is safe for concurrent use.
//
// Every Stop and Start advances a generation counter. Route fetches and
// position callbacks carry the generation they were issued under and are
// discarded when it no longer matches.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
	// emitMu orders published effects. It is acquired before mu is released.
	emitMu sync.Mutex
	wg     sync.WaitGroup

	status      Status
	generation  uint64
	sessionID   string
	session     context.Context
	cancel      context.CancelFunc
	stopWatch   func()
	route       *routing.Route
	tracker     *Tracker
	destination geometry.Coordinate

	detector  *OffRouteDetector
	announcer *Announcer

	snapshot   Snapshot
	lastSample position.Sample
	hasSample  bool
	heading    *float64
	history    []Announcement

	reroutes      metric.Int64Counter
	announcements metric.Int64Counter
}

// effects are collected under the lock and run after it is released.
type effects struct {
	stop      func()
	voice     *settings.Settings
	speech    []string
	snapshots []Snapshot
	notices   []Notice
}

// New creates an engine in the idle state.
func New(cfg Config) *Engine {
	if cfg.ArrivalThresholdMeters <= 0 {
		cfg.ArrivalThresholdMeters = DefaultArrivalMeters
	}
	if cfg.HeadingMinMoveMeters <= 0 {
		cfg.HeadingMinMoveMeters = DefaultHeadingMinMoveMeters
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Phrases == (Phrases{}) {
		cfg.Phrases = DefaultPhrases()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	reroutes, err := meter.Int64Counter(
		"navigation.reroutes",
		metric.WithDescription("Reroutes by outcome"),
		metric.WithUnit("{reroute}"),
	)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create reroute counter")
	}
	announcements, err := meter.Int64Counter(
		"navigation.announcements",
		metric.WithDescription("Spoken announcements by kind"),
		metric.WithUnit("{announcement}"),
	)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create announcement counter")
	}

	e := &Engine{
		cfg:           cfg,
		logger:        cfg.Logger,
		now:           cfg.Now,
		status:        StatusIdle,
		detector:      NewOffRouteDetector(cfg.OffRoute),
		announcer:     NewAnnouncer(cfg.Guidance),
		reroutes:      reroutes,
		announcements: announcements,
	}
	e.snapshot = e.statusSnapshotLocked(e.now())
	return e
}

// Start acquires a route from origin to destination and begins guidance.
// Any navigation already running is torn down first. On success an initial
// snapshot with the route totals is published and the position source is
// subscribed. On failure the engine enters the error state and the fetch
// error is returned. ErrSuperseded is returned when Stop or another Start
// ran while the route was being fetched.
func (e *Engine) Start(ctx context.Context, origin, destination geometry.Coordinate) (*routing.Route, error) {
	if !destination.Valid() {
		return nil, ErrNoDestination
	}

	e.mu.Lock()
	fx := &effects{}
	e.teardownLocked(fx)
	gen := e.generation
	session, cancel := context.WithCancel(context.Background())
	e.session, e.cancel = session, cancel
	e.sessionID = uuid.NewString()
	e.snapshot = e.statusSnapshotLocked(e.now())
	prefs := settings.Load(e.cfg.Settings)
	logger := e.logger.With().
		Str("session_id", e.sessionID).
		Uint64("route_generation", gen).
		Logger()
	e.flush(fx)

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()
	defer context.AfterFunc(session, cancelFetch)()

	logger.Info().
		Float64("origin_lng", origin.Lon).
		Float64("origin_lat", origin.Lat).
		Float64("destination_lng", destination.Lon).
		Float64("destination_lat", destination.Lat).
		Str("profile", string(prefs.Profile)).
		Msg("starting navigation")

	route, err := e.cfg.Fetcher.FetchRoute(fetchCtx, routing.Request{
		Origin:      origin,
		Destination: destination,
		Options:     prefs.Options(),
	})

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		logger.Debug().Msg("discarding superseded route")
		return nil, ErrSuperseded
	}

	fx = &effects{}
	now := e.now()
	if err != nil {
		logger.Error().Err(err).Msg("route acquisition failed")
		e.cancel()
		e.status = StatusError
		snap := e.statusSnapshotLocked(now)
		snap.Error = err.Error()
		e.publishLocked(fx, snap)
		e.sayLocked(fx, e.cfg.Phrases.RouteFailed, now)
		fx.notices = append(fx.notices, Notice{Kind: NoticeRouteFailed, Message: err.Error(), At: now})
		e.flush(fx)
		return nil, fmt.Errorf("start navigation: %w", err)
	}

	e.destination = destination
	e.installRouteLocked(route)
	e.detector.Reset()
	e.status = StatusNavigating
	fx.voice = &prefs
	e.sayLocked(fx, e.cfg.Phrases.Started, now)
	e.publishLocked(fx, e.routeSnapshotLocked(now))
	e.flush(fx)

	logger.Info().
		Str("backend", route.Backend).
		Float64("distance_m", route.TotalDistanceMeters).
		Float64("duration_s", route.TotalDurationSeconds).
		Int("steps", len(route.Steps)).
		Msg("navigation started")

	stop, err := e.cfg.Positions.Watch(
		func(s position.Sample) { e.handleSample(gen, s) },
		func(err error) { e.handlePositionError(gen, err) },
	)

	e.mu.Lock()
	if err != nil {
		fx = &effects{}
		if gen == e.generation {
			fx.notices = append(fx.notices, Notice{Kind: NoticePositionError, Message: err.Error(), At: e.now()})
		}
		e.flush(fx)
		logger.Error().Err(err).Msg("failed to subscribe to position source")
		return route, nil
	}
	if gen != e.generation || !e.status.Active() {
		active := gen == e.generation
		e.mu.Unlock()
		stop()
		if !active {
			return nil, ErrSuperseded
		}
		return route, nil
	}
	e.stopWatch = stop
	if e.cfg.ETARefreshInterval > 0 {
		e.wg.Add(1)
		go e.runETARefresh(session, gen)
	}
	e.mu.Unlock()

	return route, nil
}

// Stop releases the position source, discards the route and any in-flight
// fetch, and publishes an idle snapshot. It is safe to call in any state.
func (e *Engine) Stop() {
	e.mu.Lock()
	fx := &effects{}
	wasActive := e.status.Active()
	e.teardownLocked(fx)
	now := e.now()
	if wasActive {
		e.sayLocked(fx, e.cfg.Phrases.Ended, now)
		e.logger.Info().Msg("navigation stopped")
	}
	e.publishLocked(fx, e.statusSnapshotLocked(now))
	e.flush(fx)
}

// Wait blocks until background reroutes and timers have exited. It is meant
// for shutdown after Stop.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Snapshot returns the last published snapshot.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// Route returns the active route, nil when none is active.
func (e *Engine) Route() *routing.Route {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.route
}

// Destination returns the destination of the active route.
func (e *Engine) Destination() (geometry.Coordinate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destination, e.route != nil
}

// OffRouteState returns the detector counters.
func (e *Engine) OffRouteState() OffRouteState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.State()
}

// Announcements returns recent spoken output, oldest first.
func (e *Engine) Announcements() []Announcement {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Announcement, len(e.history))
	copy(out, e.history)
	return out
}

// ReportProviderSwitch publishes a notice that route acquisition moved to
// another backend. It is meant to be wired to routing.ServiceConfig.OnFallback.
func (e *Engine) ReportProviderSwitch(from, to string) {
	e.mu.Lock()
	fx := &effects{}
	fx.notices = append(fx.notices, Notice{
		Kind:    NoticeProviderSwitch,
		Message: fmt.Sprintf("Switching routing provider from %s to %s", from, to),
		At:      e.now(),
	})
	e.flush(fx)
}

func (e *Engine) handleSample(gen uint64, s position.Sample) {
	e.mu.Lock()
	if gen != e.generation || !e.status.Active() || e.tracker == nil {
		e.mu.Unlock()
		return
	}

	fx := &effects{}
	now := e.now()
	e.heading = e.headingLocked(s)
	e.lastSample, e.hasSample = s, true

	progress := e.tracker.Update(s.Coordinate)

	if progress.RemainingMeters <= e.cfg.ArrivalThresholdMeters {
		e.status = StatusArrived
		e.logger.Info().
			Str("session_id", e.sessionID).
			Float64("remaining_m", progress.RemainingMeters).
			Msg("destination reached")
		fx.stop = e.stopWatch
		e.stopWatch = nil
		e.cancel()
		e.sayLocked(fx, e.cfg.Phrases.Arrived, now)
		e.publishLocked(fx, e.progressSnapshotLocked(progress, s.Coordinate, now))
		e.flush(fx)
		return
	}

	switch e.status {
	case StatusNavigating:
		if e.detector.Observe(progress.OffRouteMeters, now) {
			e.startRerouteLocked(gen, s.Coordinate, progress.OffRouteMeters)
		}
	case StatusRerouting:
		e.detector.Track(progress.OffRouteMeters)
	}

	if e.status == StatusNavigating {
		if a, ok := e.announcer.Evaluate(e.route.Steps, progress.StepIndex, s.Coordinate, now); ok {
			e.announceLocked(fx, a)
		}
	}

	e.publishLocked(fx, e.progressSnapshotLocked(progress, s.Coordinate, now))
	e.flush(fx)
}

func (e *Engine) handlePositionError(gen uint64, err error) {
	e.mu.Lock()
	if gen != e.generation || !e.status.Active() {
		e.mu.Unlock()
		return
	}
	e.logger.Debug().Err(err).Msg("position unavailable")
	fx := &effects{}
	fx.notices = append(fx.notices, Notice{Kind: NoticePositionError, Message: err.Error(), At: e.now()})
	e.flush(fx)
}

// startRerouteLocked fetches a new route from origin on a background
// goroutine. Only one reroute runs at a time: the status stays rerouting
// until it finishes.
func (e *Engine) startRerouteLocked(gen uint64, origin geometry.Coordinate, offRouteMeters float64) {
	e.status = StatusRerouting
	prefs := settings.Load(e.cfg.Settings)
	req := routing.Request{
		Origin:      origin,
		Destination: e.destination,
		Options:     prefs.Options(),
	}

	e.logger.Warn().
		Str("session_id", e.sessionID).
		Float64("off_route_m", offRouteMeters).
		Int("consecutive_off", e.detector.State().ConsecutiveOffCount).
		Msg("off route, rerouting")

	ctx := e.session
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		route, err := e.cfg.Fetcher.FetchRoute(ctx, req)
		e.finishReroute(gen, prefs, route, err)
	}()
}

func (e *Engine) finishReroute(gen uint64, prefs settings.Settings, route *routing.Route, err error) {
	e.mu.Lock()
	if gen != e.generation || e.status != StatusRerouting {
		e.mu.Unlock()
		return
	}

	fx := &effects{}
	now := e.now()
	if err != nil {
		e.logger.Warn().Err(err).
			Str("session_id", e.sessionID).
			Msg("reroute failed, keeping previous route")
		e.recordReroute("failed")
		e.status = StatusNavigating
		snap := e.snapshot
		snap.Status = e.status
		snap.UpdatedAt = now
		e.publishLocked(fx, snap)
		fx.notices = append(fx.notices, Notice{Kind: NoticeRerouteFailed, Message: err.Error(), At: now})
		e.flush(fx)
		return
	}

	e.recordReroute("succeeded")
	e.installRouteLocked(route)
	e.detector.RerouteSucceeded()
	e.status = StatusNavigating
	fx.voice = &prefs

	e.logger.Info().
		Str("session_id", e.sessionID).
		Str("backend", route.Backend).
		Float64("distance_m", route.TotalDistanceMeters).
		Msg("route recalculated")

	e.sayLocked(fx, e.cfg.Phrases.Rerouted, now)
	fx.notices = append(fx.notices, Notice{Kind: NoticeRerouted, Message: e.cfg.Phrases.Rerouted, At: now})
	if e.hasSample {
		progress := e.tracker.Update(e.lastSample.Coordinate)
		e.publishLocked(fx, e.progressSnapshotLocked(progress, e.lastSample.Coordinate, now))
	} else {
		e.publishLocked(fx, e.routeSnapshotLocked(now))
	}
	e.flush(fx)
}

func (e *Engine) runETARefresh(ctx context.Context, gen uint64) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ETARefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshETA(gen)
		}
	}
}

// refreshETA republishes the last snapshot with an ETA for the current time.
func (e *Engine) refreshETA(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || !e.status.Active() || e.route == nil || e.snapshot.RemainingMeters == nil {
		e.mu.Unlock()
		return
	}
	fx := &effects{}
	now := e.now()
	snap := e.snapshot
	snap.ETA = EstimateArrival(now, e.route, *snap.RemainingMeters)
	snap.UpdatedAt = now
	e.publishLocked(fx, snap)
	e.flush(fx)
}

// teardownLocked ends the current session and advances the generation.
func (e *Engine) teardownLocked(fx *effects) {
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.session, e.cancel = nil, nil
	}
	fx.stop = e.stopWatch
	e.stopWatch = nil
	e.status = StatusIdle
	e.route = nil
	e.tracker = nil
	e.destination = geometry.Coordinate{}
	e.hasSample = false
	e.lastSample = position.Sample{}
	e.heading = nil
	e.detector.Reset()
	e.announcer.Reset()
}

func (e *Engine) installRouteLocked(route *routing.Route) {
	e.route = route
	e.tracker = NewTracker(route)
	e.announcer.Reset()
}

// headingLocked returns the sample's heading, or a bearing derived from the
// previous sample once the position has moved far enough.
func (e *Engine) headingLocked(s position.Sample) *float64 {
	if s.HeadingDegrees != nil && !math.IsNaN(*s.HeadingDegrees) {
		return float64Ptr(math.Mod(math.Mod(*s.HeadingDegrees, 360)+360, 360))
	}
	if e.hasSample && geometry.Haversine(e.lastSample.Coordinate, s.Coordinate) >= e.cfg.HeadingMinMoveMeters {
		return float64Ptr(geometry.Bearing(e.lastSample.Coordinate, s.Coordinate))
	}
	return e.heading
}

func (e *Engine) statusSnapshotLocked(now time.Time) Snapshot {
	return Snapshot{
		Status:     e.status,
		StepIndex:  -1,
		SessionID:  e.sessionID,
		Generation: e.generation,
		UpdatedAt:  now,
	}
}

// routeSnapshotLocked describes a freshly installed route before any sample
// has been measured against it.
func (e *Engine) routeSnapshotLocked(now time.Time) Snapshot {
	r := e.route
	snap := e.statusSnapshotLocked(now)
	snap.RemainingMeters = float64Ptr(r.TotalDistanceMeters)
	snap.ETA = EstimateArrival(now, r, r.TotalDistanceMeters)
	snap.Backend = r.Backend
	if len(r.Steps) > 0 {
		snap.StepIndex = 0
		snap.NextInstruction = r.Steps[0].Instruction
	}
	return snap
}

func (e *Engine) progressSnapshotLocked(p Progress, pos geometry.Coordinate, now time.Time) Snapshot {
	snap := e.statusSnapshotLocked(now)
	snap.RemainingMeters = float64Ptr(p.RemainingMeters)
	snap.ETA = EstimateArrival(now, e.route, p.RemainingMeters)
	snap.HeadingDegrees = e.heading
	snap.Position = &pos
	snap.StepIndex = p.StepIndex
	snap.OffRouteMeters = float64Ptr(p.OffRouteMeters)
	snap.Backend = e.route.Backend
	if p.StepIndex >= 0 {
		snap.NextInstruction = e.route.Steps[p.StepIndex].Instruction
		snap.DistanceToStepMeters = float64Ptr(p.DistanceToStepMeters)
	}
	return snap
}

func (e *Engine) publishLocked(fx *effects, snap Snapshot) {
	e.snapshot = snap
	fx.snapshots = append(fx.snapshots, snap)
}

// sayLocked queues a status phrase. Status phrases bypass the announcer
// and do not count toward its minimum interval.
func (e *Engine) sayLocked(fx *effects, text string, now time.Time) {
	if text == "" {
		return
	}
	e.announceLocked(fx, Announcement{Kind: AnnouncementStatus, StepIndex: -1, Text: text, At: now})
}

func (e *Engine) announceLocked(fx *effects, a Announcement) {
	e.history = append(e.history, a)
	if over := len(e.history) - e.cfg.HistorySize; over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
	if e.announcements != nil {
		e.announcements.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("kind", string(a.Kind)),
		))
	}
	e.logger.Debug().
		Str("kind", string(a.Kind)).
		Int("step", a.StepIndex).
		Str("text", a.Text).
		Msg("announcement")
	fx.speech = append(fx.speech, a.Text)
}

func (e *Engine) recordReroute(outcome string) {
	if e.reroutes == nil {
		return
	}
	e.reroutes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// flush releases mu and runs fx in publication order.
func (e *Engine) flush(fx *effects) {
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	if fx.stop != nil {
		fx.stop()
	}
	if e.cfg.Speaker != nil {
		if fx.voice != nil {
			if vs, ok := e.cfg.Speaker.(VoiceSetter); ok {
				vs.SetVoice(fx.voice.SpeechRate, fx.voice.SpeechVolume)
			}
		}
		for _, text := range fx.speech {
			e.cfg.Speaker.Speak(text)
		}
	}
	if e.cfg.OnSnapshot != nil {
		for _, snap := range fx.snapshots {
			e.cfg.OnSnapshot(snap)
		}
	}
	if e.cfg.OnNotice != nil {
		for _, n := range fx.notices {
			e.cfg.OnNotice(n)
		}
	}
}
