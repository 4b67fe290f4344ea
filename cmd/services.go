package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/adjacency"
	"github.com/citypulse-labs/citypulse/internal/boundary"
	"github.com/citypulse-labs/citypulse/internal/config"
	"github.com/citypulse-labs/citypulse/internal/priority"
	"github.com/citypulse-labs/citypulse/internal/resilience"
	"github.com/citypulse-labs/citypulse/internal/tiles"
	"github.com/citypulse-labs/citypulse/pkg/amenity"
	"github.com/citypulse-labs/citypulse/pkg/geocode"
)

func retryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
}

func circuitConfig(name string) resilience.CircuitBreakerConfig {
	cb := resilience.FromCircuitConfig(name, cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs)
	cb.ShouldTrip = resilience.IsTransient
	return cb
}

func defaultThresholds() priority.Thresholds {
	return priority.Thresholds{
		VegetationPercentileCutoff: cfg.Priorities.VegetationThreshold,
		ParkAccessPercentCutoff:    cfg.Priorities.AccessThreshold,
	}
}

func anchor() priority.Location {
	return priority.Location{Lat: cfg.Priorities.AnchorLat, Lon: cfg.Priorities.AnchorLon}
}

// loadRecords reads the configured area dataset, or the built-in sample.
func loadRecords(path string) ([]priority.AreaRecord, error) {
	if path == "" {
		path = cfg.Priorities.Dataset
	}
	records, err := priority.LoadDataset(path)
	if err != nil {
		return nil, eris.Wrap(err, "load area dataset")
	}
	return records, nil
}

func newBoundaryLoader() *boundary.Loader {
	return boundary.NewLoader(boundary.LoaderOptions{
		Timeout:   config.Seconds(cfg.Boundaries.TimeoutSecs),
		UserAgent: cfg.Boundaries.UserAgent,
		Retry:     retryConfig(),
		TempDir:   cfg.Boundaries.TempDir,
	})
}

// loadBoundaries loads a boundary collection once, for one-shot commands.
func loadBoundaries(ctx context.Context, source string) (adjacency.Collection, error) {
	if source == "" {
		source = cfg.Boundaries.Source
	}
	start := time.Now()
	c, err := newBoundaryLoader().Load(ctx, source)
	if err != nil {
		return nil, err
	}
	zap.L().Info("boundaries loaded",
		zap.String("source", source),
		zap.Int("features", len(c)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return c, nil
}

// newGeocoder builds the Nominatim client and its result cache. The returned
// func releases the cache connection.
func newGeocoder() (geocode.Client, func(), error) {
	var (
		cache   geocode.Cache
		closeFn = func() {}
	)
	switch cfg.Cache.Driver {
	case "redis":
		rc := geocode.OpenRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		cache = geocode.NewRedisCache(rc, cfg.Cache.RedisPrefix)
		closeFn = func() { closeRedis(rc) }
	case "memory", "":
		cache = geocode.NewMemoryCache(cfg.Cache.MaxEntries)
	default:
		return nil, nil, eris.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}

	client := geocode.NewClient(
		geocode.WithBaseURL(cfg.Nominatim.BaseURL),
		geocode.WithUserAgent(cfg.Nominatim.UserAgent),
		geocode.WithRateLimit(cfg.Nominatim.RateLimit),
		geocode.WithCache(cache, time.Duration(cfg.Cache.TTLHours)*time.Hour),
		geocode.WithRetry(retryConfig()),
		geocode.WithCircuitBreaker(circuitConfig("nominatim")),
		geocode.WithHTTPClient(newHTTPClient(config.Seconds(cfg.Nominatim.TimeoutSecs))),
	)
	return client, closeFn, nil
}

func closeRedis(rc *redis.Client) {
	if err := rc.Close(); err != nil {
		zap.L().Warn("close redis", zap.Error(err))
	}
}

func newAmenityClient() *amenity.Client {
	return amenity.NewClient(
		amenity.WithEndpoint(cfg.Overpass.Endpoint),
		amenity.WithUserAgent(cfg.Overpass.UserAgent),
		amenity.WithRateLimit(cfg.Overpass.RateLimit),
		amenity.WithRetry(retryConfig()),
		amenity.WithCircuitBreaker(circuitConfig("overpass")),
		amenity.WithProbeConcurrency(cfg.Overpass.ProbeConcurrency),
		amenity.WithHTTPClient(newHTTPClient(config.Seconds(cfg.Overpass.TimeoutSecs))),
	)
}

func newTileProxy() *tiles.Proxy {
	return tiles.NewProxy(
		tiles.DefaultCatalog(cfg.Tiles.GIBSBaseURL, cfg.Tiles.OSMBaseURL),
		tiles.NewCache(cfg.Tiles.CacheMaxEntries, config.Minutes(cfg.Tiles.CacheTTLMins)),
		tiles.ProxyOptions{
			Timeout:   config.Seconds(cfg.Tiles.TimeoutSecs),
			UserAgent: cfg.Tiles.UserAgent,
			Retry:     retryConfig(),
			Circuit:   circuitConfig("tiles"),
		},
	)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
