//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	testhelpers "github.com/kjstillabower/weather-dashboard/internal/testhelpers"
)

func setupIntegrationRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testhelpers.GetIntegrationConfig(t)
	orch, source, cleanup := testhelpers.SetupIntegrationOrchestrator(t, cfg)
	t.Cleanup(cleanup)
	lifecycle.Set(lifecycle.PhaseReady)
	t.Cleanup(func() { lifecycle.Set(lifecycle.PhaseStarting) })

	h := NewHandler(orch, source, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50}, SearchConfig{}, zap.NewNop())
	return NewRouter(h, RouterConfig{RequestTimeout: 30 * time.Second}, zap.NewNop())
}

func TestIntegration_QueryLondon(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/query?wait=true", strings.NewReader(`{"lat":51.5074,"lon":-0.1278}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /query status = %d, body %s", w.Code, w.Body.String())
	}
	var snap snapshotView
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for name, st := range map[string]stateView{
		"current":    snap.CurrentWeather,
		"forecast":   snap.Forecast,
		"airQuality": snap.AirQuality,
		"alerts":     snap.Alerts,
	} {
		if st.Status != "success" {
			t.Errorf("%s = %+v, want success", name, st)
		}
	}
	if !strings.Contains(snap.MapURL, "/precipitation_new/2/1/1.png") {
		t.Errorf("MapURL = %q, want zoom-2 tile 1/1", snap.MapURL)
	}
}

func TestIntegration_SearchAndSelect(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/search?q=Paris", nil))
	var state struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(state.Results) == 0 {
		t.Fatal("search for Paris returned no results")
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/search/select?wait=true", strings.NewReader(string(state.Results[0]))))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /search/select status = %d, body %s", w.Code, w.Body.String())
	}
	var snap snapshotView
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.LocationName != "Paris" {
		t.Errorf("LocationName = %q, want Paris", snap.LocationName)
	}
}

func TestIntegration_Health(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, body %s", w.Code, w.Body.String())
	}
}
