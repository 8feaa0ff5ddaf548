package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

func (h *Handler) trafficWindow() time.Duration {
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		return h.healthConfig.DegradedWindow
	}
	return 60 * time.Second
}

// GetTestStatus handles GET /test. Returns the traffic windows behind /health.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := h.trafficWindow()
	errors, total := traffic.ErrorRate(window)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"phase":                     lifecycle.Current().String(),
		"total_fetches_in_window":   total,
		"errors_in_window":          errors,
		"denied_requests_in_window": traffic.DenialCount(window),
		"resources":                 traffic.ResourceErrorRates(window),
		"window_length":             window.String(),
	})
}

// PostTestAction handles POST /test/{action} for error, reset, ready and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "error":
		var body struct {
			Resource string `json:"resource"`
			Count    int    `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
			body.Count = 1
		}
		if body.Resource == "" {
			body.Resource = "current"
		}
		traffic.RecordErrorN(body.Resource, body.Count)
		result := h.computeHealthStatus(r.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  action,
			"message": "Recorded " + strconv.Itoa(body.Count) + " errors for " + body.Resource,
			"state":   result.status,
		})
	case "reset":
		traffic.Reset()
		lifecycle.Set(lifecycle.PhaseReady)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "action": action, "message": "All simulated state cleared"})
	case "ready":
		lifecycle.MarkReady()
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "action": action, "message": "Phase " + lifecycle.Current().String()})
	case "shutdown":
		lifecycle.Set(lifecycle.PhaseShuttingDown)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "action": action, "message": "Shutting-down flag set"})
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}
