// Package geocode resolves free-text place queries to coordinates using the
// OpenStreetMap Nominatim search API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/citypulse-labs/citypulse/internal/resilience"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// ErrNoMatch is returned when a query is empty or matches nothing.
var ErrNoMatch = eris.New("geocode: no match")

// Client searches for places by free text.
type Client interface {
	// Search returns the best match for query or ErrNoMatch.
	Search(ctx context.Context, query string) (*Place, error)
}

// Place is a geocoded location.
type Place struct {
	Lat         float64      `json:"lat"`
	Lon         float64      `json:"lon"`
	DisplayName string       `json:"displayName"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
}

// BoundingBox is a WGS84 extent.
type BoundingBox struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithUserAgent sets the User-Agent sent upstream. Nominatim's usage policy
// requires an identifying agent.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithCache enables result caching. Cache errors are logged, never returned.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// WithRetry sets the retry policy for transient upstream failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

// WithCircuitBreaker guards upstream calls with a circuit breaker.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(g *geocoder) {
		g.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	cache      Cache
	cacheTTL   time.Duration
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a Nominatim Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  "citypulse/1.0",
		limiter:    rate.NewLimiter(1, 1), // Nominatim policy: 1 req/s
		cacheTTL:   24 * time.Hour,
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:       "nominatim",
			ShouldTrip: resilience.IsTransient,
		})
	}
	if g.retry.OnRetry == nil {
		g.retry.OnRetry = resilience.RetryLogger("nominatim", "search")
	}
	return g
}
