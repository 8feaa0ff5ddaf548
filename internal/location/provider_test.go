package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/weathererr"
)

type mockGeocoder struct {
	mu      sync.Mutex
	calls   int
	results models.GeocodingResults
	err     error
}

func (m *mockGeocoder) Geocode(ctx context.Context, query string, limit int) (models.GeocodingResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if limit != DefaultSearchLimit {
		return nil, errors.New("unexpected limit")
	}
	return m.results, m.err
}

func (m *mockGeocoder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockReverse struct {
	placemarks []Placemark
	err        error
}

func (m *mockReverse) ReverseGeocode(ctx context.Context, coord models.Coordinate) ([]Placemark, error) {
	return m.placemarks, m.err
}

func startProvider(t *testing.T, src *ManualSource) *Provider {
	t.Helper()
	p := NewProvider(src, &mockGeocoder{}, nil, nil, Options{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func nextEvent(t *testing.T, p *Provider) Event {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for location event")
		return nil
	}
}

func waitUpdating(t *testing.T, src *ManualSource) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !src.Updating() {
		if time.Now().After(deadline) {
			t.Fatal("source updates never started")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestProvider_DisplacementFilter verifies that the first fix always publishes,
// nearby fixes are dropped, and fixes beyond 500 m publish.
func TestProvider_DisplacementFilter(t *testing.T) {
	src := NewManualSource(AuthorizationGranted)
	p := startProvider(t, src)
	waitUpdating(t, src)

	first := models.Coordinate{Lat: 51.5074, Lon: -0.1278}
	near := models.Coordinate{Lat: 51.5084, Lon: -0.1278} // ~111 m
	far := models.Coordinate{Lat: 51.5174, Lon: -0.1278}  // ~1.1 km

	for _, c := range []models.Coordinate{first, near, far} {
		if err := src.PushFix(c); err != nil {
			t.Fatalf("PushFix() error = %v", err)
		}
	}

	ev := nextEvent(t, p)
	if cc, ok := ev.(CoordinateChanged); !ok || cc.Coordinate != first {
		t.Fatalf("first event = %#v, want CoordinateChanged(first)", ev)
	}
	ev = nextEvent(t, p)
	if cc, ok := ev.(CoordinateChanged); !ok || cc.Coordinate != far {
		t.Fatalf("second event = %#v, want CoordinateChanged(far)", ev)
	}
	if got, _ := p.Location(); got != far {
		t.Errorf("Location() = %v, want %v", got, far)
	}
}

// TestProvider_Authorization verifies the side effects of each permission state.
func TestProvider_Authorization(t *testing.T) {
	t.Run("not determined requests permission", func(t *testing.T) {
		src := NewManualSource(AuthorizationNotDetermined)
		startProvider(t, src)
		deadline := time.Now().Add(2 * time.Second)
		for src.PermissionRequests() == 0 {
			if time.Now().After(deadline) {
				t.Fatal("permission never requested")
			}
			time.Sleep(time.Millisecond)
		}
		if src.Updating() {
			t.Error("updates started without permission")
		}
	})

	t.Run("granted starts updates", func(t *testing.T) {
		src := NewManualSource(AuthorizationNotDetermined)
		startProvider(t, src)
		src.SetAuthorization(AuthorizationGranted)
		waitUpdating(t, src)
	})

	for _, auth := range []Authorization{AuthorizationDenied, AuthorizationRestricted} {
		t.Run(auth.String()+" fails with services disabled", func(t *testing.T) {
			src := NewManualSource(AuthorizationGranted)
			p := startProvider(t, src)
			src.SetAuthorization(auth)
			ev := nextEvent(t, p)
			failed, ok := ev.(Failed)
			if !ok {
				t.Fatalf("event = %#v, want Failed", ev)
			}
			if !errors.Is(failed.Err, weathererr.ErrLocationServicesDisabled) {
				t.Errorf("Err = %v, want LocationServicesDisabled", failed.Err)
			}
			if failed.Message != "Location services are disabled. Please enable them in Settings." {
				t.Errorf("Message = %q", failed.Message)
			}
		})
	}
}

// TestProvider_SourceErrors verifies the user-facing message per source error.
func TestProvider_SourceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"denied", weathererr.ErrLocationPermissionDenied, "Location permission denied. Please update in Settings."},
		{"unknown location", weathererr.ErrNoLocationFound, "Unable to determine your location. Please try again later."},
		{"other", errors.New("gps offline"), "Location error: gps offline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewManualSource(AuthorizationGranted)
			p := startProvider(t, src)
			src.Fail(tt.err)
			ev := nextEvent(t, p)
			failed, ok := ev.(Failed)
			if !ok {
				t.Fatalf("event = %#v, want Failed", ev)
			}
			if failed.Message != tt.want {
				t.Errorf("Message = %q, want %q", failed.Message, tt.want)
			}
		})
	}
}

// TestManualSource_PushFix_NotUpdating verifies that fixes are refused until
// updates start.
func TestManualSource_PushFix_NotUpdating(t *testing.T) {
	src := NewManualSource(AuthorizationDenied)
	if err := src.PushFix(models.Coordinate{}); !errors.Is(err, ErrNotUpdating) {
		t.Errorf("PushFix() error = %v, want ErrNotUpdating", err)
	}
}

// TestProvider_PlaceName verifies the placemark precedence and fallbacks.
func TestProvider_PlaceName(t *testing.T) {
	tests := []struct {
		name    string
		reverse ReverseGeocoder
		want    string
	}{
		{"locality", &mockReverse{placemarks: []Placemark{{Locality: "London", SubLocality: "Soho", AdministrativeArea: "England"}}}, "London"},
		{"sub-locality", &mockReverse{placemarks: []Placemark{{SubLocality: "Soho", AdministrativeArea: "England"}}}, "Soho"},
		{"administrative area", &mockReverse{placemarks: []Placemark{{AdministrativeArea: "England"}}}, "England"},
		{"empty placemark", &mockReverse{placemarks: []Placemark{{}}}, UnknownLocation},
		{"no placemarks", &mockReverse{}, UnknownLocation},
		{"error", &mockReverse{err: errors.New("timeout")}, UnknownLocation},
		{"no geocoder", nil, UnknownLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(NewManualSource(AuthorizationGranted), &mockGeocoder{}, tt.reverse, nil, Options{}, nil)
			if got := p.PlaceName(context.Background(), models.Coordinate{Lat: 51.5, Lon: -0.12}); got != tt.want {
				t.Errorf("PlaceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestProvider_Search_NoResults verifies the exact message for an empty result list.
func TestProvider_Search_NoResults(t *testing.T) {
	p := NewProvider(NewManualSource(AuthorizationGranted), &mockGeocoder{results: models.GeocodingResults{}}, nil, nil, Options{}, nil)

	got := p.Search(context.Background(), "Paris")
	if got.Message != "No locations found for 'Paris'" {
		t.Errorf("Message = %q", got.Message)
	}
	if len(got.Results) != 0 || got.Searching {
		t.Errorf("state = %+v, want empty results, not searching", got)
	}
	if s := p.SearchState(); s.Message != got.Message {
		t.Errorf("SearchState().Message = %q", s.Message)
	}
}

// TestProvider_Search_ErrorSwallowed verifies that any geocoding error becomes
// the generic message with cleared results.
func TestProvider_Search_ErrorSwallowed(t *testing.T) {
	g := &mockGeocoder{results: models.GeocodingResults{{Name: "Paris"}}}
	p := NewProvider(NewManualSource(AuthorizationGranted), g, nil, nil, Options{}, nil)
	if got := p.Search(context.Background(), "Paris"); len(got.Results) != 1 {
		t.Fatalf("Results = %v, want 1", got.Results)
	}

	g.err = weathererr.Network(errors.New("connection refused"))
	got := p.Search(context.Background(), "Lyon")
	if got.Message != "Unable to search for locations" {
		t.Errorf("Message = %q", got.Message)
	}
	if len(got.Results) != 0 {
		t.Errorf("Results = %v, want cleared", got.Results)
	}
}

// TestProvider_Search_EmptyQuery verifies that an empty query clears state
// without calling the geocoder.
func TestProvider_Search_EmptyQuery(t *testing.T) {
	g := &mockGeocoder{results: models.GeocodingResults{}}
	p := NewProvider(NewManualSource(AuthorizationGranted), g, nil, nil, Options{}, nil)
	p.Search(context.Background(), "Atlantis")

	got := p.Search(context.Background(), "")
	if got.Message != "" || len(got.Results) != 0 || got.Searching {
		t.Errorf("Search(\"\") = %+v, want zero state", got)
	}
	if g.callCount() != 1 {
		t.Errorf("geocoder calls = %d, want 1", g.callCount())
	}
}

// TestProvider_Search_Cached verifies that repeated searches within the TTL
// are served from the cache.
func TestProvider_Search_Cached(t *testing.T) {
	c, err := cache.NewInMemoryCache(0, 0)
	if err != nil {
		t.Fatalf("NewInMemoryCache() error = %v", err)
	}
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	g := &mockGeocoder{results: models.GeocodingResults{{Name: "Paris", Lat: 48.8566, Lon: 2.3522, Country: "FR"}}}
	p := NewProvider(NewManualSource(AuthorizationGranted), g, nil, c, Options{Now: func() time.Time { return now }}, nil)

	first := p.Search(context.Background(), "Paris")
	second := p.Search(context.Background(), "Paris")
	if g.callCount() != 1 {
		t.Errorf("geocoder calls = %d, want 1", g.callCount())
	}
	if !first.Results.Equal(second.Results) {
		t.Errorf("cached results %v != %v", second.Results, first.Results)
	}

	now = now.Add(16 * time.Minute)
	p.Search(context.Background(), "Paris")
	if g.callCount() != 2 {
		t.Errorf("geocoder calls after TTL = %d, want 2", g.callCount())
	}
}
