// Package service runs location queries: it fans out the four resource
// fetches through the cache, publishes their loading states, and derives the
// map tile URL once they settle.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/loading"
	"github.com/kjstillabower/weather-dashboard/internal/location"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/weathererr"
)

const (
	LoadingLocationName     = "Loading location..."
	UnavailableLocationName = "Location Unavailable"
)

// LocationProvider is the subset of *location.Provider the orchestrator uses.
type LocationProvider interface {
	Events() <-chan location.Event
	PlaceName(ctx context.Context, coord models.Coordinate) string
	RequestLocation()
	Search(ctx context.Context, query string) location.SearchState
	SearchState() location.SearchState
}

// Query is the handle of one RunQuery call.
type Query struct {
	ID         string
	Generation uint64
	Coordinate models.Coordinate

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when all four routines have returned and the map URL (if
// still current) has been derived.
func (q *Query) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the query finishes or ctx is done.
func (q *Query) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot is the observable state of the orchestrator.
type Snapshot struct {
	Version        uint64                                   `json:"version"`
	Generation     uint64                                   `json:"generation"`
	CurrentWeather loading.State[models.CurrentWeather]     `json:"currentWeather"`
	Forecast       loading.State[models.ForecastResponse]   `json:"forecast"`
	AirQuality     loading.State[models.AirQualityResponse] `json:"airQuality"`
	Alerts         loading.State[models.AlertsResponse]     `json:"alerts"`
	MapLayer       models.MapLayer                          `json:"mapLayer"`
	MapURL         string                                   `json:"mapUrl,omitempty"`
	LocationName   string                                   `json:"locationName"`
	Coordinate     *models.Coordinate                       `json:"coordinate,omitempty"`
	Search         location.SearchState                     `json:"search"`
}

type Options struct {
	Now func() time.Time
}

// Orchestrator owns the four resource slots. Commands may be called from any
// goroutine.
type Orchestrator struct {
	client   client.WeatherClient
	cache    cache.Cache
	provider LocationProvider
	logger   *zap.Logger
	now      func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	// notifyMu serializes update+notify so observers see changes in order.
	notifyMu sync.Mutex

	mu           sync.Mutex
	slots        slots
	layer        models.MapLayer
	mapURL       string
	locationName string
	coordinate   *models.Coordinate
	generation   uint64
	inflight     *Query
	version      uint64
	closed       bool
	observers    map[int]func(Snapshot)
	nextObserver int
}

func NewOrchestrator(c client.WeatherClient, store cache.Cache, provider LocationProvider, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		client:       c,
		cache:        store,
		provider:     provider,
		logger:       logger,
		now:          opts.Now,
		baseCtx:      ctx,
		baseCancel:   cancel,
		layer:        models.LayerPrecipitation,
		locationName: LoadingLocationName,
		observers:    make(map[int]func(Snapshot)),
	}
}

// update applies fn under the state lock and, if fn reports a change,
// notifies observers with the resulting snapshot.
func (o *Orchestrator) update(fn func() bool) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	if !fn() {
		o.mu.Unlock()
		return
	}
	o.version++
	snap := o.snapshotLocked()
	observers := make([]func(Snapshot), 0, len(o.observers))
	for _, fn := range o.observers {
		observers = append(observers, fn)
	}
	o.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// Observe registers fn to be called after every state change, in order. fn
// must not call orchestrator commands. The returned func unregisters it.
func (o *Orchestrator) Observe(fn func(Snapshot)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextObserver
	o.nextObserver++
	o.observers[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.observers, id)
	}
}

// Snapshot returns the current observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:        o.version,
		Generation:     o.generation,
		CurrentWeather: o.slots.current,
		Forecast:       o.slots.forecast,
		AirQuality:     o.slots.airQuality,
		Alerts:         o.slots.alerts,
		MapLayer:       o.layer,
		MapURL:         o.mapURL,
		LocationName:   o.locationName,
	}
	if o.coordinate != nil {
		c := *o.coordinate
		s.Coordinate = &c
	}
	if o.provider != nil {
		s.Search = o.provider.SearchState()
	}
	return s
}

// RunQuery supersedes any in-flight query and fetches all four resources for
// coord. It never fails; per-resource errors land in the slots.
func (o *Orchestrator) RunQuery(coord models.Coordinate) *Query {
	return o.runQuery(coord, nil)
}

func (o *Orchestrator) runQuery(coord models.Coordinate, name *string) *Query {
	q := &Query{
		ID:         uuid.NewString(),
		Coordinate: coord,
		done:       make(chan struct{}),
	}
	var ctx context.Context
	started := false

	o.update(func() bool {
		if o.closed {
			return false
		}
		o.cancelInflightLocked()
		o.generation++
		q.Generation = o.generation
		ctx, q.cancel = context.WithCancel(o.baseCtx)
		o.inflight = q
		o.coordinate = &coord
		if name != nil {
			o.locationName = *name
		}
		o.slots = slots{
			current:    loading.InProgress[models.CurrentWeather](),
			forecast:   loading.InProgress[models.ForecastResponse](),
			airQuality: loading.InProgress[models.AirQualityResponse](),
			alerts:     loading.InProgress[models.AlertsResponse](),
		}
		o.wg.Add(1)
		started = true
		return true
	})

	if !started {
		q.cancel = func() {}
		close(q.done)
		return q
	}

	observability.QueriesTotal.Inc()
	go o.execute(ctx, q)
	return q
}

// cancelInflightLocked cancels the running query, if any. Caller holds mu.
func (o *Orchestrator) cancelInflightLocked() {
	if o.inflight == nil {
		return
	}
	select {
	case <-o.inflight.done:
	default:
		observability.QueriesSupersededTotal.Inc()
	}
	o.inflight.cancel()
	o.inflight = nil
}

func (o *Orchestrator) execute(ctx context.Context, q *Query) {
	defer o.wg.Done()
	defer close(q.done)
	defer q.cancel()

	logger := o.logger.With(
		zap.String("query_id", q.ID),
		zap.Uint64("generation", q.Generation),
		zap.Float64("lat", q.Coordinate.Lat),
		zap.Float64("lon", q.Coordinate.Lon),
	)
	start := time.Now()
	logger.Debug("query started")

	var g errgroup.Group
	g.Go(func() error { runResource(ctx, o, q, currentWeatherResource, logger); return nil })
	g.Go(func() error { runResource(ctx, o, q, forecastResource, logger); return nil })
	g.Go(func() error { runResource(ctx, o, q, airQualityResource, logger); return nil })
	g.Go(func() error { runResource(ctx, o, q, alertsResource, logger); return nil })
	_ = g.Wait()

	if ctx.Err() != nil {
		logger.Debug("query superseded", zap.Duration("duration", time.Since(start)))
		return
	}

	o.update(func() bool {
		if o.generation != q.Generation {
			return false
		}
		o.mapURL = o.tileURLLocked(q.Coordinate, logger)
		if o.inflight == q {
			o.inflight = nil
		}
		return true
	})
	logger.Info("query complete", zap.Duration("duration", time.Since(start)))
}

func (o *Orchestrator) tileURLLocked(coord models.Coordinate, logger *zap.Logger) string {
	x, y := TileCoordinates(coord, MapZoom)
	u, err := o.client.TileURL(o.layer, MapZoom, x, y)
	if err != nil {
		logger.Warn("map tile URL failed", zap.String("layer", string(o.layer)), zap.Error(err))
		return ""
	}
	return u
}

// ChangeMapLayer selects layer and recomputes the map URL for the known
// coordinate. Nothing is refetched.
func (o *Orchestrator) ChangeMapLayer(layer models.MapLayer) {
	o.update(func() bool {
		o.layer = layer
		if o.coordinate != nil {
			o.mapURL = o.tileURLLocked(*o.coordinate, o.logger)
		}
		return true
	})
}

// Refresh re-runs the last coordinate. Without one it asks the provider for a
// location and returns nil.
func (o *Orchestrator) Refresh() *Query {
	o.mu.Lock()
	coord := o.coordinate
	o.mu.Unlock()
	if coord == nil {
		if o.provider != nil {
			o.provider.RequestLocation()
		}
		return nil
	}
	return o.RunQuery(*coord)
}

// SelectSearchResult shows result's name and queries its coordinate.
func (o *Orchestrator) SelectSearchResult(result models.GeocodingResult) *Query {
	name := result.Name
	return o.runQuery(result.Coordinate(), &name)
}

// Search delegates to the provider and notifies observers of the new search state.
func (o *Orchestrator) Search(ctx context.Context, query string) location.SearchState {
	state := o.provider.Search(ctx, query)
	o.update(func() bool { return true })
	return state
}

// Run consumes provider events until ctx is done or the event stream closes.
func (o *Orchestrator) Run(ctx context.Context) {
	events := o.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case location.CoordinateChanged:
				o.handleCoordinate(ev.Coordinate)
			case location.Failed:
				o.handleLocationFailure(ev)
			}
		}
	}
}

// handleCoordinate starts a query and resolves the place name in the
// background. The name is applied only while that query is current.
func (o *Orchestrator) handleCoordinate(coord models.Coordinate) {
	q := o.RunQuery(coord)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		name := o.provider.PlaceName(o.baseCtx, coord)
		o.update(func() bool {
			if o.generation != q.Generation {
				return false
			}
			o.locationName = name
			return true
		})
	}()
}

// handleLocationFailure cancels the in-flight query and forces every slot to
// LocationServicesDisabled, whatever state it was in.
func (o *Orchestrator) handleLocationFailure(ev location.Failed) {
	o.logger.Warn("location unavailable", zap.String("message", ev.Message), zap.Error(ev.Err))
	err := weathererr.ErrLocationServicesDisabled
	o.update(func() bool {
		o.cancelInflightLocked()
		o.generation++
		o.locationName = UnavailableLocationName
		o.slots = slots{
			current:    loading.Failed[models.CurrentWeather](err),
			forecast:   loading.Failed[models.ForecastResponse](err),
			airQuality: loading.Failed[models.AirQualityResponse](err),
			alerts:     loading.Failed[models.AlertsResponse](err),
		}
		return true
	})
}

// Prefetch fills the cache with all four resources for coord without
// publishing anything. Returns the joined fetch errors.
func (o *Orchestrator) Prefetch(ctx context.Context, coord models.Coordinate) error {
	logger := o.logger.With(zap.Float64("lat", coord.Lat), zap.Float64("lon", coord.Lon))
	errs := make([]error, 4)
	var g errgroup.Group
	g.Go(func() error { errs[0] = prefetch(ctx, o, currentWeatherResource, coord, logger); return nil })
	g.Go(func() error { errs[1] = prefetch(ctx, o, forecastResource, coord, logger); return nil })
	g.Go(func() error { errs[2] = prefetch(ctx, o, airQualityResource, coord, logger); return nil })
	g.Go(func() error { errs[3] = prefetch(ctx, o, alertsResource, coord, logger); return nil })
	_ = g.Wait()
	return errors.Join(errs...)
}

// FetchTile returns tile bytes through the cache.
func (o *Orchestrator) FetchTile(ctx context.Context, layer models.MapLayer, zoom, x, y int) ([]byte, error) {
	key := cache.TileKey(layer, zoom, x, y)
	if raw, ok, err := o.cache.Get(ctx, key, o.now()); err == nil && ok {
		observability.CacheHitsTotal.WithLabelValues("tile").Inc()
		return raw, nil
	}
	observability.CacheMissesTotal.WithLabelValues("tile").Inc()
	raw, err := o.client.FetchTile(ctx, layer, zoom, x, y)
	if err != nil {
		return nil, err
	}
	if err := o.cache.Put(ctx, key, raw, o.now()); err != nil {
		o.logger.Warn("cache put failed", zap.String("key", key), zap.Error(err))
	}
	return raw, nil
}

// Close cancels in-flight work and waits for it. Later queries are no-ops.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.baseCancel()
	o.wg.Wait()
}
