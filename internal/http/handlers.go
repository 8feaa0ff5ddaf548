package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/location"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
	"github.com/kjstillabower/weather-dashboard/internal/weathererr"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	RateLimitRPS         int
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// CachePing, when set, checks reachability of a remote cache backend.
	CachePing func() error
	// APIKeyCheck, when set, validates the weather API key upstream.
	APIKeyCheck func(ctx context.Context) error
}

// SearchConfig bounds search input.
type SearchConfig struct {
	MinLength int
	MaxLength int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orchestrator *service.Orchestrator
	source       *location.ManualSource
	healthConfig *HealthConfig
	search       SearchConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. source may be nil when device location
// is fed by something other than the HTTP adapter.
func NewHandler(
	orchestrator *service.Orchestrator,
	source *location.ManualSource,
	healthConfig *HealthConfig,
	search SearchConfig,
	logger *zap.Logger,
) *Handler {
	if search.MinLength <= 0 {
		search.MinLength = 1
	}
	if search.MaxLength <= 0 {
		search.MaxLength = 100
	}
	return &Handler{
		orchestrator: orchestrator,
		source:       source,
		healthConfig: healthConfig,
		search:       search,
		logger:       logger,
	}
}

type coordinateRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (c coordinateRequest) coordinate() (models.Coordinate, error) {
	if c.Lat == nil || c.Lon == nil {
		return models.Coordinate{}, errors.New("lat and lon are required")
	}
	if err := validation.ValidateCoordinate(*c.Lat, *c.Lon); err != nil {
		return models.Coordinate{}, err
	}
	return models.Coordinate{Lat: *c.Lat, Lon: *c.Lon}, nil
}

type queryResponse struct {
	QueryID    string            `json:"queryId"`
	Generation uint64            `json:"generation"`
	Coordinate models.Coordinate `json:"coordinate"`
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Snapshot())
}

// PostQuery handles POST /query with body {"lat":..,"lon":..}.
func (h *Handler) PostQuery(w http.ResponseWriter, r *http.Request) {
	var body coordinateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	coord, err := body.coordinate()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
		return
	}
	h.respondQuery(w, r, h.orchestrator.RunQuery(coord))
}

// PostRefresh handles POST /refresh. Without a known coordinate it asks the
// location provider for one and returns 202 with no query.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	q := h.orchestrator.Refresh()
	if q == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "location_requested"})
		return
	}
	h.respondQuery(w, r, q)
}

// respondQuery returns 202 with the query handle, or with ?wait=true blocks
// until the query settles and returns the snapshot.
func (h *Handler) respondQuery(w http.ResponseWriter, r *http.Request, q *service.Query) {
	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, queryResponse{QueryID: q.ID, Generation: q.Generation, Coordinate: q.Coordinate})
		return
	}
	if err := q.Wait(r.Context()); err != nil {
		writeError(w, r, http.StatusGatewayTimeout, "QUERY_TIMEOUT", "query did not finish in time")
		return
	}
	writeJSON(w, http.StatusOK, h.orchestrator.Snapshot())
}

// PutLayer handles PUT /layer/{layer}.
func (h *Handler) PutLayer(w http.ResponseWriter, r *http.Request) {
	layer, err := models.ParseMapLayer(mux.Vars(r)["layer"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LAYER", err.Error())
		return
	}
	h.orchestrator.ChangeMapLayer(layer)
	writeJSON(w, http.StatusOK, h.orchestrator.Snapshot())
}

// GetSearch handles GET /search?q=. An empty q clears the search state.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	if strings.TrimSpace(raw) == "" {
		writeJSON(w, http.StatusOK, h.orchestrator.Search(r.Context(), ""))
		return
	}
	query, err := validation.ValidateSearchQuery(raw, h.search.MinLength, h.search.MaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.orchestrator.Search(r.Context(), query))
}

// PostSearchSelect handles POST /search/select with a geocoding result body.
func (h *Handler) PostSearchSelect(w http.ResponseWriter, r *http.Request) {
	var result models.GeocodingResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be a geocoding result")
		return
	}
	if strings.TrimSpace(result.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_RESULT", "name is required")
		return
	}
	if err := validation.ValidateCoordinate(result.Lat, result.Lon); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
		return
	}
	h.respondQuery(w, r, h.orchestrator.SelectSearchResult(result))
}

// PostLocationFix handles POST /location/fix: a device fix from the client.
func (h *Handler) PostLocationFix(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, r, http.StatusNotFound, "NO_MANUAL_SOURCE", "location fixes are not accepted")
		return
	}
	var body coordinateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	coord, err := body.coordinate()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
		return
	}
	if err := h.source.PushFix(coord); err != nil {
		if errors.Is(err, location.ErrNotUpdating) {
			writeError(w, r, http.StatusConflict, "NOT_UPDATING", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// PostLocationAuthorization handles POST /location/authorization {"status":"granted"}.
func (h *Handler) PostLocationAuthorization(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, r, http.StatusNotFound, "NO_MANUAL_SOURCE", "authorization changes are not accepted")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	auth, err := location.ParseAuthorization(body.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_AUTHORIZATION", err.Error())
		return
	}
	h.source.SetAuthorization(auth)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": auth.String()})
}

// PostLocationError handles POST /location/error {"reason":"permission_denied"|"no_location"}.
func (h *Handler) PostLocationError(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, r, http.StatusNotFound, "NO_MANUAL_SOURCE", "location errors are not accepted")
		return
	}
	var body struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	var err error
	switch body.Reason {
	case "permission_denied":
		err = weathererr.ErrLocationPermissionDenied
	case "no_location":
		err = weathererr.ErrNoLocationFound
	case "":
		writeError(w, r, http.StatusBadRequest, "INVALID_REASON", "reason is required")
		return
	default:
		msg := body.Message
		if msg == "" {
			msg = body.Reason
		}
		err = errors.New(msg)
	}
	h.source.Fail(err)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetTile handles GET /tiles/{layer}/{zoom}/{x}/{y}.png.
func (h *Handler) GetTile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	layer, err := models.ParseMapLayer(vars["layer"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LAYER", err.Error())
		return
	}
	zoom, errZ := strconv.Atoi(vars["zoom"])
	x, errX := strconv.Atoi(vars["x"])
	y, errY := strconv.Atoi(vars["y"])
	if errZ != nil || errX != nil || errY != nil || zoom < 0 || zoom > 20 {
		writeError(w, r, http.StatusBadRequest, "INVALID_TILE", "zoom, x and y must be integers")
		return
	}
	if n := 1 << zoom; x < 0 || y < 0 || x >= n || y >= n {
		writeError(w, r, http.StatusBadRequest, "INVALID_TILE", "tile outside grid")
		return
	}

	data, err := h.orchestrator.FetchTile(r.Context(), layer, zoom, x, y)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=900")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	for resource, unhealthy := range h.resourceChecks() {
		if unhealthy {
			checks[resource] = "unhealthy"
		} else {
			checks[resource] = "healthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-dashboard",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down, starting, API key
// invalid, overloaded, degraded, healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	switch lifecycle.Current() {
	case lifecycle.PhaseShuttingDown:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	case lifecycle.PhaseStarting:
		return healthResult{"starting", http.StatusServiceUnavailable, "warming"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.APIKeyCheck != nil {
		if err := h.healthConfig.APIKeyCheck(ctx); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
		}
	}
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 && h.healthConfig.OverloadThresholdPct > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.DenialCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	for _, unhealthy := range h.resourceChecks() {
		if unhealthy {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// resourceChecks reports, per upstream resource, whether its error rate in
// the degraded window is at or above the threshold.
func (h *Handler) resourceChecks() map[string]bool {
	out := make(map[string]bool)
	if h.healthConfig == nil || h.healthConfig.DegradedWindow <= 0 || h.healthConfig.DegradedErrorPct <= 0 {
		return out
	}
	rates := traffic.ResourceErrorRates(h.healthConfig.DegradedWindow)
	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rate := rates[name]
		out[name] = rate.Total > 0 && rate.Percent() >= float64(h.healthConfig.DegradedErrorPct)
	}
	return out
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v, ok := r.Context().Value("correlation_id").(string); ok {
		corrID = v
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps an upstream failure to 503 with the error kind's
// user-facing message, or 504 when the request deadline passed.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Upstream request timed out")
		return
	}
	message := "Unable to fetch map tile"
	var werr *weathererr.Error
	if errors.As(err, &werr) {
		message = werr.Error()
	}
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", message)
}
