// Package geocode resolves free-text destinations to coordinates through a
// geocoding proxy that may answer in several JSON shapes.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/provider/resilience"
)

const (
	// ProviderName identifies the geocoder in the backend registry.
	ProviderName = "geocoder"

	// DefaultPath is appended to the base URL for lookups.
	DefaultPath = "/geocode"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 8 * time.Second

	// DefaultSearchLimit is the candidate count asked for by Search.
	DefaultSearchLimit = 15

	maxResponseBytes = 2 << 20
)

var (
	// ErrNotFound is returned when the geocoder has no usable result.
	ErrNotFound = errors.New("no geocoding result")

	// ErrEmptyQuery is returned for blank query text.
	ErrEmptyQuery = errors.New("empty geocoding query")

	// ErrUnavailable is returned when the geocoder cannot be reached or fails.
	ErrUnavailable = errors.New("geocoder unavailable")
)

// DefaultRetryPolicy is one retry after 300ms.
func DefaultRetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxRetries: 1,
		BaseDelay:  300 * time.Millisecond,
	}
}

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the geocoding client.
type ClientConfig struct {
	// BaseURL is the geocoding proxy base URL (required).
	BaseURL string

	// Path is the lookup endpoint path (optional, defaults to DefaultPath).
	Path string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 8s).
	Timeout time.Duration

	// Retry bounds the attempts per lookup (optional, defaults to DefaultRetryPolicy).
	Retry resilience.RetryPolicy

	// Registry is the backend registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client queries the geocoding proxy.
type Client struct {
	url        string
	httpClient HTTPDoer
	retry      resilience.RetryPolicy
	logger     zerolog.Logger
}

// NewClient creates a new geocoding client.
func NewClient(cfg ClientConfig) *Client {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	retry := cfg.Retry
	if retry == (resilience.RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		url:        strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		httpClient: httpClient,
		retry:      retry,
		logger:     cfg.Logger,
	}
}

// Geocode returns the coordinate of the first result for text.
func (c *Client) Geocode(ctx context.Context, text string) (geometry.Coordinate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return geometry.Coordinate{}, ErrEmptyQuery
	}

	q := url.Values{}
	q.Set("text", text)

	body, err := c.get(ctx, q)
	if err != nil {
		return geometry.Coordinate{}, err
	}

	coord, ok := FirstCoordinate(body)
	if !ok {
		return geometry.Coordinate{}, fmt.Errorf("%w for %q", ErrNotFound, text)
	}

	c.logger.Debug().
		Str("query", text).
		Float64("lon", coord.Lon).
		Float64("lat", coord.Lat).
		Msg("geocoded destination")

	return coord, nil
}

// SearchQuery describes a candidate search.
type SearchQuery struct {
	Text string

	// Limit caps the candidates asked for (optional, defaults to DefaultSearchLimit).
	Limit int

	// Near biases results toward a point and sorts them by distance when set.
	Near *geometry.Coordinate

	// Language is passed through as the lang parameter (optional).
	Language string
}

// Search returns every usable candidate for the query.
func (c *Client) Search(ctx context.Context, sq SearchQuery) ([]Candidate, error) {
	text := strings.TrimSpace(sq.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	limit := sq.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	q := url.Values{}
	q.Set("text", text)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("addr", "1")
	if sq.Language != "" {
		q.Set("lang", sq.Language)
	}
	if sq.Near != nil && sq.Near.Valid() {
		q.Set("ll", strconv.FormatFloat(sq.Near.Lon, 'f', -1, 64)+","+strconv.FormatFloat(sq.Near.Lat, 'f', -1, 64))
		q.Set("bias", "1")
	}

	body, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := Candidates(body)
	if sq.Near != nil && sq.Near.Valid() {
		for i := range candidates {
			d := geometry.Haversine(*sq.Near, candidates[i].Coordinate)
			candidates[i].DistanceMeters = &d
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return *candidates[i].DistanceMeters < *candidates[j].DistanceMeters
		})
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return candidates, nil
}

func (c *Client) get(ctx context.Context, q url.Values) ([]byte, error) {
	attempt := 0
	return resilience.Retry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		attempt++
		return c.do(ctx, q)
	}, func(err error, next time.Duration) {
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", next).
			Msg("geocoding attempt failed, retrying")
	})
}

func (c *Client) do(ctx context.Context, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, resilience.Permanent(err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.Permanent(ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, resilience.Permanent(fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
	}
}
