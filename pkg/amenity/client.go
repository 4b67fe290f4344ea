// Package amenity queries the OpenStreetMap Overpass API for healthcare
// facilities and probes an area for hospital coverage gaps.
package amenity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/citypulse-labs/citypulse/internal/resilience"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// maxResponseBytes bounds a single Overpass response.
const maxResponseBytes = 32 << 20

// ErrInvalidBBox is returned for bounding boxes that are not a valid extent.
var ErrInvalidBBox = eris.New("amenity: invalid bounding box")

// BBox is a WGS84 extent.
type BBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Validate checks coordinate ranges and ordering.
func (b BBox) Validate() error {
	switch {
	case b.South < -90 || b.North > 90 || b.West < -180 || b.East > 180:
		return eris.Wrapf(ErrInvalidBBox, "out of range: %+v", b)
	case b.South >= b.North || b.West >= b.East:
		return eris.Wrapf(ErrInvalidBBox, "empty extent: %+v", b)
	}
	return nil
}

// Center returns the midpoint of the box.
func (b BBox) Center() (lat, lon float64) {
	return (b.North + b.South) / 2, (b.West + b.East) / 2
}

// Hospital is an OSM node tagged amenity=hospital.
type Hospital struct {
	ID   int64   `json:"id"`
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint points the client at another Overpass interpreter.
func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = u }
}

// WithUserAgent sets the User-Agent sent upstream.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithRetry sets the retry policy for transient upstream failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithCircuitBreaker guards upstream calls with a circuit breaker.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.breaker = resilience.NewCircuitBreaker(cfg) }
}

// WithProbeConcurrency sets how many coverage probes run at once.
func WithProbeConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.probeConcurrency = n
		}
	}
}

// Client is an Overpass API client.
type Client struct {
	httpClient       *http.Client
	endpoint         string
	userAgent        string
	limiter          *rate.Limiter
	retry            resilience.RetryConfig
	breaker          *resilience.CircuitBreaker
	probeConcurrency int
}

// NewClient creates an Overpass client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:       &http.Client{Timeout: 60 * time.Second},
		endpoint:         DefaultEndpoint,
		userAgent:        "citypulse/1.0",
		limiter:          rate.NewLimiter(2, 2),
		retry:            resilience.DefaultRetryConfig(),
		probeConcurrency: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:       "overpass",
			ShouldTrip: resilience.IsTransient,
		})
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("overpass", "interpreter")
	}
	return c
}

// Hospitals returns the hospital nodes inside bbox. Nodes without usable
// coordinates are skipped.
func (c *Client) Hospitals(ctx context.Context, bbox BBox) ([]Hospital, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`[out:json];node["amenity"="hospital"](%s,%s,%s,%s);out;`,
		formatCoord(bbox.South), formatCoord(bbox.West), formatCoord(bbox.North), formatCoord(bbox.East))

	elements, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	return toHospitals(elements), nil
}

// hospitalsAround returns the hospital nodes within radiusMeters of a point.
func (c *Client) hospitalsAround(ctx context.Context, lat, lon, radiusMeters float64) ([]Hospital, error) {
	q := fmt.Sprintf(`[out:json];node["amenity"="hospital"](around:%s,%s,%s);out;`,
		formatCoord(radiusMeters), formatCoord(lat), formatCoord(lon))

	elements, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	return toHospitals(elements), nil
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

func (c *Client) query(ctx context.Context, q string) ([]overpassElement, error) {
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]overpassElement, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]overpassElement, error) {
			return c.do(ctx, q)
		})
	})
}

func (c *Client) do(ctx context.Context, q string) ([]overpassElement, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "amenity: overpass rate limit")
	}

	reqURL := c.endpoint + "?" + url.Values{"data": {q}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "amenity: overpass build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "amenity: overpass request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("amenity: overpass", resp.StatusCode, c.endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, eris.Wrap(err, "amenity: overpass read body")
	}

	var out overpassResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "amenity: overpass parse response")
	}

	zap.L().Debug("amenity: overpass query",
		zap.String("query", q),
		zap.Int("elements", len(out.Elements)),
	)
	return out.Elements, nil
}

func toHospitals(elements []overpassElement) []Hospital {
	out := make([]Hospital, 0, len(elements))
	for _, el := range elements {
		if el.Type != "" && el.Type != "node" {
			continue
		}
		if el.Lat == 0 || el.Lon == 0 {
			continue
		}
		out = append(out, Hospital{
			ID:   el.ID,
			Name: strings.TrimSpace(el.Tags["name"]),
			Lat:  el.Lat,
			Lon:  el.Lon,
		})
	}
	return out
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
