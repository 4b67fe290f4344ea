package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Boundaries BoundariesConfig `yaml:"boundaries" mapstructure:"boundaries"`
	Priorities PrioritiesConfig `yaml:"priorities" mapstructure:"priorities"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Tiles      TilesConfig      `yaml:"tiles" mapstructure:"tiles"`
	Nominatim  NominatimConfig  `yaml:"nominatim" mapstructure:"nominatim"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ReadTimeoutSecs     int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs    int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BoundariesConfig configures where country boundaries are loaded from.
// Source may be a URL or a local path to a GeoJSON file, a shapefile, or a
// zip archive containing either.
type BoundariesConfig struct {
	Source            string `yaml:"source" mapstructure:"source"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent         string `yaml:"user_agent" mapstructure:"user_agent"`
	TempDir           string `yaml:"temp_dir" mapstructure:"temp_dir"`
	ReloadIntervalMin int    `yaml:"reload_interval_mins" mapstructure:"reload_interval_mins"`
}

// PrioritiesConfig configures the area dataset and default thresholds.
// An empty Dataset selects the built-in sample.
type PrioritiesConfig struct {
	Dataset             string  `yaml:"dataset" mapstructure:"dataset"`
	VegetationThreshold float64 `yaml:"vegetation_threshold" mapstructure:"vegetation_threshold"`
	AccessThreshold     float64 `yaml:"access_threshold" mapstructure:"access_threshold"`
	AnchorLat           float64 `yaml:"anchor_lat" mapstructure:"anchor_lat"`
	AnchorLon           float64 `yaml:"anchor_lon" mapstructure:"anchor_lon"`
}

// SessionConfig configures the in-memory session store.
type SessionConfig struct {
	TTLMins           int `yaml:"ttl_mins" mapstructure:"ttl_mins"`
	SweepIntervalSecs int `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
}

// TilesConfig configures the tile proxy.
type TilesConfig struct {
	GIBSBaseURL     string `yaml:"gibs_base_url" mapstructure:"gibs_base_url"`
	OSMBaseURL      string `yaml:"osm_base_url" mapstructure:"osm_base_url"`
	CacheMaxEntries int    `yaml:"cache_max_entries" mapstructure:"cache_max_entries"`
	CacheTTLMins    int    `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
}

// NominatimConfig configures location search.
type NominatimConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OverpassConfig configures hospital lookups.
type OverpassConfig struct {
	Endpoint         string  `yaml:"endpoint" mapstructure:"endpoint"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ProbeConcurrency int     `yaml:"probe_concurrency" mapstructure:"probe_concurrency"`
}

// CacheConfig configures the geocode result cache.
type CacheConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	MaxEntries    int    `yaml:"max_entries" mapstructure:"max_entries"`
	TTLHours      int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" mapstructure:"redis_prefix"`
}

// RetryConfig configures retries of upstream HTTP calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the circuit breakers guarding upstream services.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Seconds converts a config value in seconds to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Minutes converts a config value in minutes to a duration.
func Minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CITYPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 60)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("boundaries.source", "https://raw.githubusercontent.com/datasets/geo-countries/master/data/countries.geojson")
	v.SetDefault("boundaries.timeout_secs", 120)
	v.SetDefault("boundaries.user_agent", "citypulse/1.0")
	v.SetDefault("boundaries.temp_dir", "")
	v.SetDefault("boundaries.reload_interval_mins", 0)
	v.SetDefault("priorities.dataset", "")
	v.SetDefault("priorities.vegetation_threshold", 30)
	v.SetDefault("priorities.access_threshold", 60)
	v.SetDefault("priorities.anchor_lat", 32.52)
	v.SetDefault("priorities.anchor_lon", -117.05)
	v.SetDefault("session.ttl_mins", 30)
	v.SetDefault("session.sweep_interval_secs", 60)
	v.SetDefault("tiles.gibs_base_url", "https://gibs.earthdata.nasa.gov/wmts/epsg3857/best")
	v.SetDefault("tiles.osm_base_url", "https://tile.openstreetmap.org")
	v.SetDefault("tiles.cache_max_entries", 2048)
	v.SetDefault("tiles.cache_ttl_mins", 60)
	v.SetDefault("tiles.timeout_secs", 20)
	v.SetDefault("tiles.user_agent", "citypulse/1.0")
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "citypulse/1.0")
	v.SetDefault("nominatim.rate_limit", 1.0)
	v.SetDefault("nominatim.timeout_secs", 15)
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.user_agent", "citypulse/1.0")
	v.SetDefault("overpass.rate_limit", 2.0)
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("overpass.probe_concurrency", 2)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "geocode:")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Mode "serve"
// additionally checks the server section; "cli" checks the shared settings
// only.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.ShutdownTimeoutSecs < 0 {
			errs = append(errs, "server.shutdown_timeout_secs must be >= 0")
		}
		if c.Session.TTLMins <= 0 {
			errs = append(errs, "session.ttl_mins must be > 0")
		}
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if !inPercentRange(c.Priorities.VegetationThreshold) {
		errs = append(errs, "priorities.vegetation_threshold must be between 0 and 100")
	}
	if !inPercentRange(c.Priorities.AccessThreshold) {
		errs = append(errs, "priorities.access_threshold must be between 0 and 100")
	}
	if c.Priorities.AnchorLat < -90 || c.Priorities.AnchorLat > 90 {
		errs = append(errs, "priorities.anchor_lat must be between -90 and 90")
	}
	if c.Priorities.AnchorLon < -180 || c.Priorities.AnchorLon > 180 {
		errs = append(errs, "priorities.anchor_lon must be between -180 and 180")
	}
	if c.Nominatim.RateLimit <= 0 {
		errs = append(errs, "nominatim.rate_limit must be > 0")
	}
	if c.Overpass.RateLimit <= 0 {
		errs = append(errs, "overpass.rate_limit must be > 0")
	}
	if c.Overpass.ProbeConcurrency < 1 || c.Overpass.ProbeConcurrency > 5 {
		errs = append(errs, "overpass.probe_concurrency must be between 1 and 5")
	}
	if c.Tiles.CacheMaxEntries < 1 {
		errs = append(errs, "tiles.cache_max_entries must be >= 1")
	}
	switch c.Cache.Driver {
	case "memory", "":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required when cache.driver is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q must be memory or redis", c.Cache.Driver))
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		errs = append(errs, "retry.max_attempts must be between 1 and 10")
	}
	if c.Retry.InitialBackoffMs < 0 || c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		errs = append(errs, "retry.max_backoff_ms must be >= retry.initial_backoff_ms >= 0")
	}
	if c.Circuit.FailureThreshold < 1 {
		errs = append(errs, "circuit.failure_threshold must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func inPercentRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
