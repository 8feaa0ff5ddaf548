package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	WeatherAPIKey     string
	WeatherDataURL    string
	WeatherGeoURL     string
	WeatherTileURL    string
	WeatherAPITimeout time.Duration

	RequestTimeout  time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
	CacheBackend    string // "in_memory", "memcached" or "valkey"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	ValkeyAddrs  string
	ValkeyPrefix string

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	SearchMinLength int
	SearchMaxLength int
	SearchLimit     int

	LocationMinDistance  float64
	InitialAuthorization string
	InitialLocation      *models.Coordinate
	NominatimURL         string
	NominatimUserAgent   string
	NominatimRPS         float64
	NominatimTimeout     time.Duration

	WarmingLocations []models.Coordinate
	WarmingInterval  time.Duration
}

type coordinateConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		DataURL string `yaml:"data_url"`
		GeoURL  string `yaml:"geo_url"`
		TileURL string `yaml:"tile_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend    string `yaml:"backend"`
		TTL        string `yaml:"ttl"`
		MaxEntries int    `yaml:"max_entries"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Valkey struct {
			Addrs  string `yaml:"addrs"`
			Prefix string `yaml:"prefix"`
		} `yaml:"valkey"`
		Warming struct {
			Locations []coordinateConfig `yaml:"locations"`
			Interval  string             `yaml:"interval"`
		} `yaml:"warming"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Search struct {
		MinLength int `yaml:"min_length"`
		MaxLength int `yaml:"max_length"`
		Limit     int `yaml:"limit"`
	} `yaml:"search"`

	Location struct {
		MinDistanceMeters    float64           `yaml:"min_distance_meters"`
		InitialAuthorization string            `yaml:"initial_authorization"`
		Initial              *coordinateConfig `yaml:"initial"`
		Nominatim            struct {
			URL            string  `yaml:"url"`
			UserAgent      string  `yaml:"user_agent"`
			RequestsPerSec float64 `yaml:"requests_per_sec"`
			Timeout        string  `yaml:"timeout"`
		} `yaml:"nominatim"`
	} `yaml:"location"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// API key comes from WEATHER_API_KEY env or secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}

	cfg.WeatherDataURL = stringOr(fc.WeatherAPI.DataURL, "https://api.openweathermap.org/data/2.5")
	cfg.WeatherGeoURL = stringOr(fc.WeatherAPI.GeoURL, "https://api.openweathermap.org/geo/1.0")
	cfg.WeatherTileURL = stringOr(fc.WeatherAPI.TileURL, "https://tile.openweathermap.org/map")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 15*time.Minute)
	cfg.CacheMaxEntries = fc.Cache.MaxEntries
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 50
	}
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}

	cfg.MemcachedAddrs = stringOr(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.ValkeyAddrs = stringOr(strings.TrimSpace(os.Getenv("VALKEY_ADDR")), strings.TrimSpace(fc.Cache.Valkey.Addrs))
	if cfg.ValkeyAddrs == "" {
		cfg.ValkeyAddrs = "localhost:6379"
	}
	cfg.ValkeyPrefix = stringOr(fc.Cache.Valkey.Prefix, "weather:")

	for _, c := range fc.Cache.Warming.Locations {
		cfg.WarmingLocations = append(cfg.WarmingLocations, models.Coordinate{Lat: c.Lat, Lon: c.Lon})
	}
	cfg.WarmingInterval = parseDurationOrZero(fc.Cache.Warming.Interval, 0)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.SearchMinLength = fc.Search.MinLength
	if cfg.SearchMinLength <= 0 {
		cfg.SearchMinLength = 1
	}
	cfg.SearchMaxLength = fc.Search.MaxLength
	if cfg.SearchMaxLength <= 0 {
		cfg.SearchMaxLength = 100
	}
	cfg.SearchLimit = fc.Search.Limit
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}

	cfg.LocationMinDistance = fc.Location.MinDistanceMeters
	if cfg.LocationMinDistance <= 0 {
		cfg.LocationMinDistance = 500
	}
	cfg.InitialAuthorization = stringOr(strings.TrimSpace(strings.ToLower(fc.Location.InitialAuthorization)), "not_determined")
	if fc.Location.Initial != nil {
		cfg.InitialLocation = &models.Coordinate{Lat: fc.Location.Initial.Lat, Lon: fc.Location.Initial.Lon}
	}
	cfg.NominatimURL = fc.Location.Nominatim.URL
	cfg.NominatimUserAgent = stringOr(fc.Location.Nominatim.UserAgent, "weather-dashboard/1.0")
	cfg.NominatimRPS = fc.Location.Nominatim.RequestsPerSec
	if cfg.NominatimRPS <= 0 {
		cfg.NominatimRPS = 1
	}
	cfg.NominatimTimeout = parseDuration(fc.Location.Nominatim.Timeout, 5*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey prefers WEATHER_API_KEY, then config/secrets.yaml.
func loadAPIKey(cwd string) (string, error) {
	if key := os.Getenv("WEATHER_API_KEY"); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var key string
	if err == nil {
		var sec secretsFile
		if err := yaml.Unmarshal(secretsData, &sec); err != nil {
			return "", fmt.Errorf("parse secrets file: %w", err)
		}
		key = sec.WeatherAPIKey
	}
	if key == "" {
		return "", fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	return key, nil
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Auto-adjusts RequestTimeout so a handler outlives the upstream call.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "valkey":
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or valkey, got %q", cfg.CacheBackend)
	}
	switch cfg.InitialAuthorization {
	case "not_determined", "restricted", "denied", "granted":
	default:
		return fmt.Errorf("location.initial_authorization invalid: %q", cfg.InitialAuthorization)
	}
	if cfg.SearchMinLength > cfg.SearchMaxLength {
		return fmt.Errorf("search.min_length %d exceeds search.max_length %d", cfg.SearchMinLength, cfg.SearchMaxLength)
	}
	for _, c := range cfg.WarmingLocations {
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return fmt.Errorf("cache.warming.locations: coordinate %v out of range", c)
		}
	}
	return nil
}
