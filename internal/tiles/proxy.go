package tiles

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/resilience"
)

// Proxy errors.
var (
	ErrUnknownLayer     = eris.New("tiles: unknown layer")
	ErrZoomOutOfRange   = eris.New("tiles: zoom outside layer range")
	ErrInvalidTileCoord = eris.New("tiles: invalid tile coordinate")
)

// maxTileBytes bounds a single upstream tile body.
const maxTileBytes = 8 << 20

// ProxyOptions configures a Proxy.
type ProxyOptions struct {
	Timeout   time.Duration
	UserAgent string
	Retry     resilience.RetryConfig
	Circuit   resilience.CircuitBreakerConfig
}

// Proxy fetches raster tiles for catalog layers from their upstream servers,
// caching the results.
type Proxy struct {
	catalog *Catalog
	client  *http.Client
	cache   *Cache
	opts    ProxyOptions
	breaker *resilience.CircuitBreaker
}

// NewProxy creates a tile proxy. cache may be nil to disable caching.
func NewProxy(catalog *Catalog, cache *Cache, opts ProxyOptions) *Proxy {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "citypulse/1.0"
	}
	if opts.Circuit.Name == "" {
		opts.Circuit.Name = "tiles"
	}
	if opts.Circuit.ShouldTrip == nil {
		opts.Circuit.ShouldTrip = resilience.IsTransient
	}
	return &Proxy{
		catalog: catalog,
		client:  &http.Client{Timeout: opts.Timeout},
		cache:   cache,
		opts:    opts,
		breaker: resilience.NewCircuitBreaker(opts.Circuit),
	}
}

// Catalog returns the proxied layer catalog.
func (p *Proxy) Catalog() *Catalog {
	return p.catalog
}

// Fetch returns a tile and its content type from the cache or upstream.
func (p *Proxy) Fetch(ctx context.Context, layerID, date string, z, x, y int) ([]byte, string, error) {
	data, ct, _, err := p.fetch(ctx, layerID, date, z, x, y)
	return data, ct, err
}

func (p *Proxy) fetch(ctx context.Context, layerID, date string, z, x, y int) ([]byte, string, bool, error) {
	layer, ok := p.catalog.Layer(layerID)
	if !ok {
		return nil, "", false, ErrUnknownLayer
	}
	if z < 0 || z > layer.MaxZoom {
		return nil, "", false, ErrZoomOutOfRange
	}
	if n := 1 << z; x < 0 || y < 0 || x >= n || y >= n {
		return nil, "", false, ErrInvalidTileCoord
	}
	date = layer.ResolveDate(date)
	if date != "" {
		if err := ValidateDate(date); err != nil {
			return nil, "", false, err
		}
	}

	key := tileKey(layer.ID, date, z, x, y)
	if p.cache != nil {
		if cached := p.cache.Get(key); cached != nil {
			return cached, layer.ContentType(), true, nil
		}
	}

	url := layer.TileURL(date, z, x, y)
	retry := p.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("tiles", layer.ID)
	}
	data, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
			return p.download(ctx, url)
		})
	})
	if err != nil {
		return nil, "", false, err
	}

	if p.cache != nil {
		p.cache.Put(key, data)
	}
	zap.L().Debug("tiles: fetched upstream tile", zap.String("url", url), zap.Int("bytes", len(data)))
	return data, layer.ContentType(), false, nil
}

func (p *Proxy) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "tiles: create request")
	}
	req.Header.Set("User-Agent", p.opts.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "tiles: fetch tile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("tiles", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, eris.Wrap(err, "tiles: read tile body")
	}
	return data, nil
}

// ServeHTTP serves /{layer}/{z}/{x}/{y} with an optional file extension on y
// and an optional ?date=YYYY-MM-DD. Mount it behind http.StripPrefix.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	z, errZ := strconv.Atoi(parts[1])
	x, errX := strconv.Atoi(parts[2])
	yStr := parts[3]
	if i := strings.IndexByte(yStr, '.'); i >= 0 {
		yStr = yStr[:i]
	}
	y, errY := strconv.Atoi(yStr)
	if errZ != nil || errX != nil || errY != nil {
		http.Error(w, "invalid tile coordinate", http.StatusBadRequest)
		return
	}

	layerID := parts[0]
	data, ct, hit, err := p.fetch(r.Context(), layerID, r.URL.Query().Get("date"), z, x, y)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownLayer):
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	case errors.Is(err, ErrZoomOutOfRange):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, ErrInvalidTileCoord):
		http.Error(w, "invalid tile coordinate", http.StatusBadRequest)
		return
	case errors.Is(err, ErrInvalidDate):
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	case r.Context().Err() != nil:
		return
	default:
		zap.L().Error("tiles: upstream fetch failed",
			zap.String("layer", layerID),
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
			zap.Error(err),
		)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	_, _ = w.Write(data)
}

// StatsHandler returns cache statistics as JSON.
func (p *Proxy) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	var stats CacheStats
	if p.cache != nil {
		stats = p.cache.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func tileKey(layer, date string, z, x, y int) string {
	var b strings.Builder
	b.WriteString(layer)
	b.WriteByte('/')
	if date != "" {
		b.WriteString(date)
		b.WriteByte('/')
	}
	b.WriteString(strconv.Itoa(z))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(x))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(y))
	return b.String()
}
