package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/browsernavi/navi/internal/api/models"
	"github.com/browsernavi/navi/internal/api/response"
	"github.com/browsernavi/navi/internal/geocode"
	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/navigation"
	"github.com/browsernavi/navi/internal/position"
	"github.com/browsernavi/navi/internal/routing"
)

const (
	maxBodyBytes      = 64 << 10
	streamKeepAlive   = 15 * time.Second
	maxPlaceCandidate = 50
)

// Navigator is the navigation engine surface the API drives.
// *navigation.Engine implements it.
type Navigator interface {
	Start(ctx context.Context, origin, destination geometry.Coordinate) (*routing.Route, error)
	Stop()
	Snapshot() navigation.Snapshot
	Route() *routing.Route
	Destination() (geometry.Coordinate, bool)
	Announcements() []navigation.Announcement
}

// PositionSink accepts position samples from clients. *position.Feed
// implements it.
type PositionSink interface {
	Push(s position.Sample) error
	PushError(err error)
	LastFix() (position.Sample, bool)
}

// Geocoder resolves free-text destinations. *geocode.Client implements it.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (geometry.Coordinate, error)
	Search(ctx context.Context, q geocode.SearchQuery) ([]geocode.Candidate, error)
}

// NavigationConfig holds the dependencies of the navigation handler.
type NavigationConfig struct {
	// Engine runs guidance (required).
	Engine Navigator

	// Positions receives posted samples (required).
	Positions PositionSink

	// Geocoder resolves destinationQuery and place searches. Nil disables both.
	Geocoder Geocoder

	// Events backs the notice list and the event stream (optional).
	Events *Events

	// DefaultOrigin is used when a start gives no origin and no fix is known.
	DefaultOrigin geometry.Coordinate

	Logger zerolog.Logger
}

// NavigationHandler handles navigation endpoints.
type NavigationHandler struct {
	engine        Navigator
	positions     PositionSink
	geocoder      Geocoder
	events        *Events
	defaultOrigin geometry.Coordinate
	logger        zerolog.Logger
}

// NewNavigationHandler creates a new NavigationHandler.
func NewNavigationHandler(cfg NavigationConfig) *NavigationHandler {
	events := cfg.Events
	if events == nil {
		events = NewEvents(0)
	}
	return &NavigationHandler{
		engine:        cfg.Engine,
		positions:     cfg.Positions,
		geocoder:      cfg.Geocoder,
		events:        events,
		defaultOrigin: cfg.DefaultOrigin,
		logger:        cfg.Logger,
	}
}

// Start handles POST /v1/navigation:start.
func (h *NavigationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var input models.StartNavigationRequest
	if !decode(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid navigation request", errs)
		return
	}

	destination, ok := h.resolveDestination(w, r, input)
	if !ok {
		return
	}
	origin := h.resolveOrigin(input.Origin)

	route, err := h.engine.Start(r.Context(), origin, destination)
	switch {
	case err == nil:
	case errors.Is(err, navigation.ErrSuperseded):
		response.Conflict(w, r, "navigation was stopped or restarted while the route was computed")
		return
	case errors.Is(err, navigation.ErrNoDestination):
		response.BadRequest(w, r, "destination is not a valid coordinate", nil)
		return
	case errors.Is(err, context.Canceled):
		// The client went away; nothing useful can be written.
		return
	default:
		h.logger.Warn().Err(err).Msg("navigation start failed")
		response.BadGateway(w, r, routeFailureDetail(err))
		return
	}

	response.JSON(w, r, http.StatusOK, models.StartNavigationResponse{
		Snapshot: toSnapshot(h.engine.Snapshot()),
		Route:    toRoute(route, &destination),
		Origin:   toPoint(origin),
	})
}

func (h *NavigationHandler) resolveDestination(w http.ResponseWriter, r *http.Request, input models.StartNavigationRequest) (geometry.Coordinate, bool) {
	if input.Destination != nil {
		return toCoordinate(*input.Destination), true
	}

	if h.geocoder == nil {
		response.ServiceUnavailable(w, r, "geocoding is not configured; give destination coordinates")
		return geometry.Coordinate{}, false
	}

	dest, err := h.geocoder.Geocode(r.Context(), input.DestinationQuery)
	switch {
	case err == nil:
		return dest, true
	case errors.Is(err, geocode.ErrNotFound):
		response.NotFound(w, r, fmt.Sprintf("no place found for %q", strings.TrimSpace(input.DestinationQuery)))
	case errors.Is(err, geocode.ErrEmptyQuery):
		response.BadRequest(w, r, "destinationQuery is empty", nil)
	default:
		h.logger.Warn().Err(err).Msg("geocoding failed")
		response.BadGateway(w, r, "geocoding is unavailable")
	}
	return geometry.Coordinate{}, false
}

// resolveOrigin picks the request origin, then the last known fix, then the
// configured default.
func (h *NavigationHandler) resolveOrigin(p *models.Point) geometry.Coordinate {
	if p != nil {
		return toCoordinate(*p)
	}
	if fix, ok := h.positions.LastFix(); ok {
		return fix.Coordinate
	}
	return h.defaultOrigin
}

func routeFailureDetail(err error) string {
	switch {
	case errors.Is(err, routing.ErrNoRouteFound):
		return "no route found between origin and destination"
	case errors.Is(err, routing.ErrInvalidCoordinates):
		return "routing backends rejected the coordinates"
	default:
		return "routing backends are unavailable"
	}
}

// Stop handles POST /v1/navigation:stop.
func (h *NavigationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	response.JSON(w, r, http.StatusOK, toSnapshot(h.engine.Snapshot()))
}

// PostPosition handles POST /v1/navigation/positions. The sample is applied
// synchronously, so the returned snapshot reflects it.
func (h *NavigationHandler) PostPosition(w http.ResponseWriter, r *http.Request) {
	var input models.PositionRequest
	if !decode(w, r, &input) {
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid position", errs)
		return
	}

	if input.Error != nil {
		err := position.ErrorFromCode(input.Error.Code)
		if input.Error.Message != "" {
			err = fmt.Errorf("%w: %s", err, input.Error.Message)
		}
		h.positions.PushError(err)
		response.Accepted(w, r, toSnapshot(h.engine.Snapshot()))
		return
	}

	sample := position.Sample{
		Coordinate:     geometry.Coordinate{Lon: *input.Lng, Lat: *input.Lat},
		HeadingDegrees: input.Heading,
	}
	if input.Timestamp != nil {
		sample.Timestamp = input.Timestamp.Time()
	}
	if err := h.positions.Push(sample); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	response.Accepted(w, r, toSnapshot(h.engine.Snapshot()))
}

// GetSnapshot handles GET /v1/navigation/snapshot.
func (h *NavigationHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toSnapshot(h.engine.Snapshot()))
}

// GetRoute handles GET /v1/navigation/route.
func (h *NavigationHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	route := h.engine.Route()
	if route == nil {
		response.NotFound(w, r, "no active route")
		return
	}

	var dest *geometry.Coordinate
	if d, ok := h.engine.Destination(); ok {
		dest = &d
	}
	response.JSON(w, r, http.StatusOK, toRoute(route, dest))
}

// ListAnnouncements handles GET /v1/navigation/announcements.
func (h *NavigationHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.AnnouncementsResponse{
		Items: toAnnouncements(h.engine.Announcements()),
	})
}

// ListNotices handles GET /v1/navigation/notices.
func (h *NavigationHandler) ListNotices(w http.ResponseWriter, r *http.Request) {
	notices := h.events.Notices()
	items := make([]models.Notice, len(notices))
	for i, n := range notices {
		items[i] = toNotice(n)
	}
	response.JSON(w, r, http.StatusOK, models.NoticesResponse{Items: items})
}

// StreamEvents handles GET /v1/navigation/events as a server-sent event
// stream of snapshots and notices, starting with the current snapshot.
func (h *NavigationHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, r, "streaming is not supported")
		return
	}

	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, Event{Name: "snapshot", Data: toSnapshot(h.engine.Snapshot())}); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug().Err(err).Msg("event stream closed")
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}

// SearchPlaces handles GET /v1/places?q=...&near=lng,lat&limit=&lang=.
func (h *NavigationHandler) SearchPlaces(w http.ResponseWriter, r *http.Request) {
	if h.geocoder == nil {
		response.ServiceUnavailable(w, r, "geocoding is not configured")
		return
	}

	query := r.URL.Query()
	sq := geocode.SearchQuery{
		Text:     strings.TrimSpace(query.Get("q")),
		Language: query.Get("lang"),
	}
	var errs []models.FieldError
	if sq.Text == "" {
		errs = append(errs, models.FieldError{Field: "q", Message: "q is required", Code: "REQUIRED"})
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxPlaceCandidate {
			errs = append(errs, models.FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxPlaceCandidate), Code: "OUT_OF_RANGE"})
		}
		sq.Limit = limit
	}
	if v := query.Get("near"); v != "" {
		near, fieldErrs := parseNear(v)
		errs = append(errs, fieldErrs...)
		sq.Near = near
	} else if fix, ok := h.positions.LastFix(); ok {
		sq.Near = &fix.Coordinate
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid place search", errs)
		return
	}

	candidates, err := h.geocoder.Search(r.Context(), sq)
	if err != nil && !errors.Is(err, geocode.ErrNotFound) {
		h.logger.Warn().Err(err).Msg("place search failed")
		response.BadGateway(w, r, "geocoding is unavailable")
		return
	}

	items := make([]models.Place, len(candidates))
	for i, c := range candidates {
		items[i] = models.Place{
			Name:           c.Name,
			Location:       toPoint(c.Coordinate),
			DistanceMeters: c.DistanceMeters,
		}
	}
	response.JSON(w, r, http.StatusOK, models.PlacesResponse{Items: items})
}

func parseNear(v string) (*geometry.Coordinate, []models.FieldError) {
	invalid := []models.FieldError{{Field: "near", Message: "must be lng,lat", Code: "INVALID_VALUE"}}

	lngText, latText, ok := strings.Cut(v, ",")
	if !ok {
		return nil, invalid
	}
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(lngText), 64)
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latText), 64)
	if errLng != nil || errLat != nil {
		return nil, invalid
	}
	if errs := (models.Point{Lng: lng, Lat: lat}).Validate("near"); len(errs) > 0 {
		return nil, errs
	}
	return &geometry.Coordinate{Lon: lng, Lat: lat}, nil
}

// decode reads a JSON body into v, writing a 400 problem on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}
