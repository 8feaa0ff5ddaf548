package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/weathererr"
)

const (
	DefaultMinDistanceMeters = 500
	DefaultSearchLimit       = 5

	UnknownLocation = "Unknown Location"

	searchFailedMessage = "Unable to search for locations"
)

// Event is published on Provider.Events: either CoordinateChanged or Failed.
type Event interface {
	isEvent()
}

// CoordinateChanged carries a coordinate that passed the displacement filter.
type CoordinateChanged struct {
	Coordinate models.Coordinate
}

// Failed carries a location failure and its user-facing message.
type Failed struct {
	Err     error
	Message string
}

func (CoordinateChanged) isEvent() {}
func (Failed) isEvent()            {}

// Geocoder runs forward city searches; client.WeatherClient satisfies it.
type Geocoder interface {
	Geocode(ctx context.Context, query string, limit int) (models.GeocodingResults, error)
}

// SearchState is the observable outcome of the latest search.
type SearchState struct {
	Results   models.GeocodingResults `json:"results"`
	Message   string                  `json:"message,omitempty"`
	Searching bool                    `json:"isSearching"`
}

type Options struct {
	MinDistanceMeters float64
	SearchLimit       int
	Now               func() time.Time
}

// Provider consumes a Source and publishes location events. Run must be
// active for events to flow.
type Provider struct {
	source   Source
	geocoder Geocoder
	reverse  ReverseGeocoder
	cache    cache.Cache
	logger   *zap.Logger

	minDistance float64
	searchLimit int
	now         func() time.Time

	events chan Event

	mu        sync.Mutex
	last      *models.Coordinate
	search    SearchState
	searchSeq uint64
}

// NewProvider wires a provider. reverse and c may be nil: place names then
// fall back to UnknownLocation and searches are not cached.
func NewProvider(source Source, geocoder Geocoder, reverse ReverseGeocoder, c cache.Cache, opts Options, logger *zap.Logger) *Provider {
	if opts.MinDistanceMeters <= 0 {
		opts.MinDistanceMeters = DefaultMinDistanceMeters
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		source:      source,
		geocoder:    geocoder,
		reverse:     reverse,
		cache:       c,
		logger:      logger,
		minDistance: opts.MinDistanceMeters,
		searchLimit: opts.SearchLimit,
		now:         opts.Now,
		events:      make(chan Event, 16),
	}
}

// Events is closed when Run returns.
func (p *Provider) Events() <-chan Event {
	return p.events
}

// Run applies the current authorization, then processes source updates until
// ctx is done.
func (p *Provider) Run(ctx context.Context) {
	defer close(p.events)

	p.handleAuthorization(ctx, p.source.Authorization())
	for {
		select {
		case <-ctx.Done():
			p.source.StopUpdates()
			return
		case coord := <-p.source.Fixes():
			p.handleFix(ctx, coord)
		case auth := <-p.source.Authorizations():
			p.handleAuthorization(ctx, auth)
		case err := <-p.source.Errors():
			p.handleError(ctx, err)
		}
	}
}

func (p *Provider) handleFix(ctx context.Context, coord models.Coordinate) {
	p.mu.Lock()
	if p.last != nil {
		if d := Distance(*p.last, coord); d <= p.minDistance {
			p.mu.Unlock()
			observability.LocationEventsTotal.WithLabelValues("filtered").Inc()
			p.logger.Debug("location fix filtered", zap.Float64("distance_m", d))
			return
		}
	}
	p.last = &coord
	p.mu.Unlock()

	observability.LocationEventsTotal.WithLabelValues("coordinate").Inc()
	p.publish(ctx, CoordinateChanged{Coordinate: coord})
}

func (p *Provider) handleAuthorization(ctx context.Context, auth Authorization) {
	p.logger.Info("location authorization", zap.Stringer("status", auth))
	switch auth {
	case AuthorizationGranted:
		p.source.StartUpdates()
	case AuthorizationDenied, AuthorizationRestricted:
		p.fail(ctx, weathererr.ErrLocationServicesDisabled, weathererr.ErrLocationServicesDisabled.Error())
	case AuthorizationNotDetermined:
		p.source.RequestPermission()
	}
}

func (p *Provider) handleError(ctx context.Context, err error) {
	var message string
	switch {
	case errors.Is(err, weathererr.ErrLocationPermissionDenied):
		message = weathererr.ErrLocationPermissionDenied.Error()
	case errors.Is(err, weathererr.ErrNoLocationFound):
		message = "Unable to determine your location. Please try again later."
	default:
		message = "Location error: " + err.Error()
	}
	p.fail(ctx, err, message)
}

func (p *Provider) fail(ctx context.Context, err error, message string) {
	observability.LocationEventsTotal.WithLabelValues("failed").Inc()
	p.logger.Warn("location failure", zap.Error(err))
	p.publish(ctx, Failed{Err: err, Message: message})
}

func (p *Provider) publish(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

// Authorization returns the source's current permission state.
func (p *Provider) Authorization() Authorization {
	return p.source.Authorization()
}

// Location returns the last published coordinate.
func (p *Provider) Location() (models.Coordinate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return models.Coordinate{}, false
	}
	return *p.last, true
}

func (p *Provider) RequestPermission() {
	p.source.RequestPermission()
}

// RequestLocation starts continuous updates.
func (p *Provider) RequestLocation() {
	p.source.StartUpdates()
}

// PlaceName resolves a display name with precedence locality, sub-locality,
// administrative area. Any failure yields UnknownLocation.
func (p *Provider) PlaceName(ctx context.Context, coord models.Coordinate) string {
	if p.reverse == nil {
		return UnknownLocation
	}
	placemarks, err := p.reverse.ReverseGeocode(ctx, coord)
	if err != nil {
		p.logger.Warn("reverse geocode failed", zap.Stringer("coordinate", coord), zap.Error(err))
		return UnknownLocation
	}
	if len(placemarks) == 0 {
		return UnknownLocation
	}
	pm := placemarks[0]
	switch {
	case pm.Locality != "":
		return pm.Locality
	case pm.SubLocality != "":
		return pm.SubLocality
	case pm.AdministrativeArea != "":
		return pm.AdministrativeArea
	}
	return UnknownLocation
}

// Search runs a city search and returns the resulting state. An empty query
// clears results without a message. Errors are never surfaced by kind, only
// as a generic message. Only the most recent call updates the state.
func (p *Provider) Search(ctx context.Context, query string) SearchState {
	p.mu.Lock()
	p.searchSeq++
	seq := p.searchSeq
	if query == "" {
		p.search = SearchState{}
		p.mu.Unlock()
		return SearchState{}
	}
	p.search.Message = ""
	p.search.Searching = true
	p.mu.Unlock()

	results, err := p.geocode(ctx, query)

	state := SearchState{Results: results}
	switch {
	case err != nil:
		p.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		observability.SearchesTotal.WithLabelValues("error").Inc()
		state = SearchState{Message: searchFailedMessage}
	case len(results) == 0:
		observability.SearchesTotal.WithLabelValues("empty").Inc()
		state.Message = fmt.Sprintf("No locations found for '%s'", query)
	default:
		observability.SearchesTotal.WithLabelValues("results").Inc()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if seq == p.searchSeq {
		p.search = state
	}
	return state
}

// SearchState returns a copy of the latest search state.
func (p *Provider) SearchState() SearchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.search
	s.Results = append(models.GeocodingResults(nil), s.Results...)
	return s
}

func (p *Provider) geocode(ctx context.Context, query string) (models.GeocodingResults, error) {
	key := cache.GeocodingKey(query)
	if p.cache != nil {
		raw, ok, err := p.cache.Get(ctx, key, p.now())
		if err != nil {
			p.logger.Warn("search cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var results models.GeocodingResults
			if err := json.Unmarshal(raw, &results); err == nil {
				return results, nil
			}
		}
	}

	results, err := p.geocoder.Geocode(ctx, query, p.searchLimit)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		raw, err := json.Marshal(results)
		if err == nil {
			err = p.cache.Put(ctx, key, raw, p.now())
		}
		if err != nil {
			p.logger.Warn("search cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return results, nil
}
