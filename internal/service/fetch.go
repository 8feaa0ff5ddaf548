package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/loading"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/weathererr"
)

// slots holds the four per-resource loading states.
type slots struct {
	current    loading.State[models.CurrentWeather]
	forecast   loading.State[models.ForecastResponse]
	airQuality loading.State[models.AirQualityResponse]
	alerts     loading.State[models.AlertsResponse]
}

// resource binds a cache key kind, a client call, and the slot it publishes to.
type resource[T loading.Payload[T]] struct {
	kind  cache.Resource
	fetch func(c client.WeatherClient, ctx context.Context, lat, lon float64) (T, error)
	slot  func(s *slots) *loading.State[T]
}

var (
	currentWeatherResource = resource[models.CurrentWeather]{
		kind:  cache.ResourceCurrent,
		fetch: client.WeatherClient.CurrentWeather,
		slot:  func(s *slots) *loading.State[models.CurrentWeather] { return &s.current },
	}
	forecastResource = resource[models.ForecastResponse]{
		kind:  cache.ResourceForecast,
		fetch: client.WeatherClient.Forecast,
		slot:  func(s *slots) *loading.State[models.ForecastResponse] { return &s.forecast },
	}
	airQualityResource = resource[models.AirQualityResponse]{
		kind:  cache.ResourceAirQuality,
		fetch: client.WeatherClient.AirQuality,
		slot:  func(s *slots) *loading.State[models.AirQualityResponse] { return &s.airQuality },
	}
	alertsResource = resource[models.AlertsResponse]{
		kind:  cache.ResourceAlerts,
		fetch: client.WeatherClient.Alerts,
		slot:  func(s *slots) *loading.State[models.AlertsResponse] { return &s.alerts },
	}
)

// runResource is one of the four sibling routines of a query. Cancellation is
// a silent return; every other error becomes a Failure on the routine's slot.
func runResource[T loading.Payload[T]](ctx context.Context, o *Orchestrator, q *Query, r resource[T], logger *zap.Logger) {
	key := cache.Key(r.kind, q.Coordinate)
	if v, ok := lookup[T](ctx, o, key, r.kind, logger); ok {
		publish(o, q, r, loading.Succeeded(v))
		return
	}

	publish(o, q, r, loading.InProgressAt[T](0.3))
	if ctx.Err() != nil {
		return
	}
	publish(o, q, r, loading.InProgressAt[T](0.7))

	v, err := fetchAndStore(ctx, o, key, r, q.Coordinate, logger)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		publish(o, q, r, loading.Failed[T](err))
		return
	}
	publish(o, q, r, loading.Succeeded(v))
}

// publish writes state into r's slot if q is still the current generation.
func publish[T loading.Payload[T]](o *Orchestrator, q *Query, r resource[T], state loading.State[T]) {
	o.update(func() bool {
		if o.generation != q.Generation {
			return false
		}
		*r.slot(&o.slots) = state
		observability.SlotPublishesTotal.WithLabelValues(string(r.kind), state.Kind().String()).Inc()
		return true
	})
}

// lookup returns the cached payload for key. Read and decode failures count as misses.
func lookup[T any](ctx context.Context, o *Orchestrator, key string, kind cache.Resource, logger *zap.Logger) (T, bool) {
	var v T
	raw, ok, err := o.cache.Get(ctx, key, o.now())
	if err != nil {
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	if err != nil || !ok {
		observability.CacheMissesTotal.WithLabelValues(string(kind)).Inc()
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warn("cached payload undecodable", zap.String("key", key), zap.Error(err))
		observability.CacheMissesTotal.WithLabelValues(string(kind)).Inc()
		return v, false
	}
	observability.CacheHitsTotal.WithLabelValues(string(kind)).Inc()
	logger.Debug("cache hit", zap.String("key", key))
	return v, true
}

// fetchAndStore calls the remote API and caches a successful result. Cache
// write failures are logged and do not fail the fetch. Nothing is stored
// once ctx is cancelled.
func fetchAndStore[T loading.Payload[T]](ctx context.Context, o *Orchestrator, key string, r resource[T], coord models.Coordinate, logger *zap.Logger) (T, error) {
	v, err := r.fetch(o.client, ctx, coord.Lat, coord.Lon)
	if ctx.Err() != nil {
		return v, ctx.Err()
	}
	if err != nil {
		traffic.RecordError(string(r.kind))
		observability.FetchFailuresTotal.WithLabelValues(string(r.kind), string(weathererr.Categorize(err))).Inc()
		logger.Warn("fetch failed", zap.String("resource", string(r.kind)), zap.Error(err))
		return v, err
	}
	traffic.RecordSuccess(string(r.kind))

	raw, err := json.Marshal(v)
	if err == nil {
		err = o.cache.Put(ctx, key, raw, o.now())
	}
	if err != nil {
		logger.Warn("cache put failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// prefetch fills the cache for r at coord without touching any slot.
func prefetch[T loading.Payload[T]](ctx context.Context, o *Orchestrator, r resource[T], coord models.Coordinate, logger *zap.Logger) error {
	key := cache.Key(r.kind, coord)
	if _, ok := lookup[T](ctx, o, key, r.kind, logger); ok {
		return nil
	}
	_, err := fetchAndStore(ctx, o, key, r, coord, logger)
	return err
}
