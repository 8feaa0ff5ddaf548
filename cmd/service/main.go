package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	httphandler "github.com/kjstillabower/weather-dashboard/internal/http"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/location"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, client.Endpoints{
		DataURL: cfg.WeatherDataURL,
		GeoURL:  cfg.WeatherGeoURL,
		TileURL: cfg.WeatherTileURL,
	}, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	store, err := newCache(cfg, logger)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}

	auth, err := location.ParseAuthorization(cfg.InitialAuthorization)
	if err != nil {
		logger.Fatal("location authorization", zap.Error(err))
	}
	source := location.NewManualSource(auth)
	var reverse location.ReverseGeocoder
	if cfg.NominatimURL != "" {
		reverse = location.NewNominatimGeocoder(location.NominatimConfig{
			BaseURL:        cfg.NominatimURL,
			UserAgent:      cfg.NominatimUserAgent,
			RequestsPerSec: cfg.NominatimRPS,
			Timeout:        cfg.NominatimTimeout,
		})
	}
	provider := location.NewProvider(source, weatherClient, reverse, store.Cache, location.Options{
		MinDistanceMeters: cfg.LocationMinDistance,
		SearchLimit:       cfg.SearchLimit,
	}, logger.Named("location"))
	orchestrator := service.NewOrchestrator(weatherClient, store.Cache, provider, service.Options{}, logger.Named("orchestrator"))

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go provider.Run(runCtx)
	go orchestrator.Run(runCtx)

	if cfg.InitialLocation != nil {
		orchestrator.RunQuery(*cfg.InitialLocation)
	}

	healthConfig := &httphandler.HealthConfig{
		RateLimitRPS:         cfg.RateLimitRPS,
		OverloadWindow:       60 * time.Second,
		OverloadThresholdPct: 80,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		CachePing:            store.Ping,
	}
	if !cfg.TestingMode {
		healthConfig.APIKeyCheck = weatherClient.ValidateAPIKey
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(orchestrator, source, healthConfig, httphandler.SearchConfig{
		MinLength: cfg.SearchMinLength,
		MaxLength: cfg.SearchMaxLength,
	}, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		TestingMode:    cfg.TestingMode,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	warmCache(runCtx, cfg, cache.NewWarmer(orchestrator, logger.Named("warming")), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.Set(lifecycle.PhaseShuttingDown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if n := httphandler.InFlightCount(); n > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", n))
		if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
	}

	stopRun()
	orchestrator.Close()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Error("cache close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// warmCache runs one bounded warming pass, marks the process ready, and
// starts periodic warming when configured.
func warmCache(ctx context.Context, cfg *config.Config, warmer *cache.Warmer, logger *zap.Logger) {
	defer lifecycle.MarkReady()
	if len(cfg.WarmingLocations) == 0 {
		return
	}
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := warmer.Warm(warmCtx, cfg.WarmingLocations); err != nil {
		logger.Warn("cache warming failed", zap.Error(err))
	}
	cancel()
	if cfg.WarmingInterval > 0 {
		go func() {
			if err := warmer.WarmPeriodic(ctx, cfg.WarmingLocations, cfg.WarmingInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
	}
}

// cacheBackend is the selected store plus its optional health and close hooks.
type cacheBackend struct {
	cache.Cache
	ping  func() error
	close func() error
}

// Ping is nil-safe so it can be handed to the health handler unconditionally.
func (b cacheBackend) Ping() error {
	if b.ping == nil {
		return nil
	}
	return b.ping()
}

func (b cacheBackend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func newCache(cfg *config.Config, logger *zap.Logger) (cacheBackend, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheTTL)
		if err != nil {
			return cacheBackend{}, fmt.Errorf("memcached cache: %w", err)
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return cacheBackend{Cache: mc, ping: mc.Ping, close: mc.Close}, nil
	case "valkey":
		vc, err := cache.NewValkeyClient(cfg.ValkeyAddrs)
		if err != nil {
			return cacheBackend{}, fmt.Errorf("valkey cache: %w", err)
		}
		store := cache.NewValkeyCache(vc, cfg.ValkeyPrefix, cfg.CacheTTL)
		logger.Info("cache backend: valkey", zap.String("addrs", cfg.ValkeyAddrs))
		return cacheBackend{Cache: store, ping: store.Ping, close: store.Close}, nil
	default:
		mem, err := cache.NewInMemoryCache(cfg.CacheMaxEntries, cfg.CacheTTL)
		if err != nil {
			return cacheBackend{}, fmt.Errorf("in-memory cache: %w", err)
		}
		logger.Info("cache backend: in_memory", zap.Int("max_entries", cfg.CacheMaxEntries), zap.Duration("ttl", cfg.CacheTTL))
		return cacheBackend{Cache: mem}, nil
	}
}
