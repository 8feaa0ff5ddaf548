//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/location"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	DataURL       string
	CacheBackend  string // "in_memory", "memcached" or "valkey"
	MemcachedAddr string
	ValkeyAddr    string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		DataURL:       os.Getenv("WEATHER_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: envOr("MEMCACHED_ADDRS", "localhost:11211"),
		ValkeyAddr:    envOr("VALKEY_ADDR", "localhost:6379"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SetupIntegrationCache returns the configured backend, falling back to the
// in-memory cache when the remote backend is unreachable.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) (cache.Cache, func()) {
	t.Helper()
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, cache.DefaultTTL)
		if err == nil && mc.Ping() == nil {
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc, func() { _ = mc.Close() }
		}
		t.Logf("Memcached not available, using in-memory cache")
	case "valkey":
		vc, err := cache.NewValkeyClient(cfg.ValkeyAddr)
		if err == nil {
			c := cache.NewValkeyCache(vc, "weather-it:", cache.DefaultTTL)
			if c.Ping() == nil {
				t.Logf("Using Valkey cache at %s", cfg.ValkeyAddr)
				return c, func() { _ = c.Close() }
			}
			_ = c.Close()
		}
		t.Logf("Valkey not available, using in-memory cache")
	}
	c, err := cache.NewInMemoryCache(cache.DefaultMaxEntries, cache.DefaultTTL)
	if err != nil {
		t.Fatalf("NewInMemoryCache() error = %v", err)
	}
	return c, func() {}
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, client.Endpoints{DataURL: cfg.DataURL}, 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationOrchestrator wires a real client, cache, provider and
// orchestrator. The returned source feeds the provider.
func SetupIntegrationOrchestrator(t *testing.T, cfg IntegrationTestConfig) (*service.Orchestrator, *location.ManualSource, func()) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	weatherClient := SetupIntegrationClient(t, cfg)
	store, closeCache := SetupIntegrationCache(t, cfg)

	source := location.NewManualSource(location.AuthorizationGranted)
	provider := location.NewProvider(source, weatherClient, nil, store, location.Options{}, logger)
	orch := service.NewOrchestrator(weatherClient, store, provider, service.Options{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go provider.Run(ctx)
	go orch.Run(ctx)
	return orch, source, func() {
		cancel()
		orch.Close()
		ClearCache(context.Background(), store)
		closeCache()
		_ = logger.Sync()
	}
}

// ClearCache removes every entry so tests do not see each other's data.
func ClearCache(ctx context.Context, c cache.Cache) {
	_ = c.Clear(ctx)
}
