// Package osrm provides the secondary routing backend, an OSRM-shaped
// route endpoint queried with start and goal parameters over GET.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/provider/resilience"
	"github.com/browsernavi/navi/internal/routing"
	"github.com/browsernavi/navi/pkg/polyline"
)

const (
	// ProviderName identifies this routing backend.
	ProviderName = "osrm"

	// DefaultBaseURL is the public OSRM demo server.
	DefaultBaseURL = "https://router.project-osrm.org"

	// DefaultPath is appended to the base URL for route requests.
	DefaultPath = "/route"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 8 << 20
)

// OSRM response codes that mean the request was understood but unroutable.
var noRouteCodes = map[string]bool{
	"NoRoute":   true,
	"NoSegment": true,
	"NoMatch":   true,
}

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OSRM client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// Path is the route endpoint path (optional, defaults to DefaultPath).
	Path string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// CircuitBreaker overrides the breaker used by the default HTTP client (optional).
	CircuitBreaker *resilience.CircuitBreakerConfig

	// Registry is the backend registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OSRM routing backend.
type Client struct {
	url        string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OSRM client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		if cfg.CircuitBreaker != nil {
			clientCfg.CircuitBreaker = cfg.CircuitBreaker
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		url:        strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GeometryPrecisions returns the polyline precisions OSRM emits, most likely first.
// OSRM answers with polyline6 when asked and polyline5 by default.
func (c *Client) GeometryPrecisions() []float64 {
	return []float64{polyline.Precision6, polyline.Precision5}
}

// Fetch requests a route and returns the raw response body.
func (c *Client) Fetch(ctx context.Context, req routing.Request) ([]byte, error) {
	q := url.Values{}
	q.Set("start", formatPoint(req.Origin))
	q.Set("goal", formatPoint(req.Destination))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("start", q.Get("start")).
		Str("goal", q.Get("goal")).
		Msg("requesting route from OSRM")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "READ_FAILED",
			Message:  "failed to read routing response",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}

	var status osrmStatus
	_ = json.Unmarshal(body, &status) // shape is checked by the normalizer

	if resp.StatusCode != http.StatusOK {
		return nil, mapStatus(resp.StatusCode, status)
	}
	if noRouteCodes[status.Code] {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  status.message(),
			Err:      routing.ErrNoRouteFound,
		}
	}

	return body, nil
}

// osrmStatus is the envelope OSRM puts on every response.
type osrmStatus struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s osrmStatus) message() string {
	if s.Message != "" {
		return s.Message
	}
	if s.Code != "" {
		return s.Code
	}
	return "no route found between the given points"
}

func mapStatus(statusCode int, status osrmStatus) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case noRouteCodes[status.Code]:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  status.message(),
			Err:      routing.ErrNoRouteFound,
		}
	case statusCode == http.StatusBadRequest:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  status.message(),
			Err:      routing.ErrInvalidCoordinates,
		}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("routing provider returned status %d", statusCode),
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

// formatPoint renders a coordinate as "lng,lat".
func formatPoint(c geometry.Coordinate) string {
	return strconv.FormatFloat(c.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}
