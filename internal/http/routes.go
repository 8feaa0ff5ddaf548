package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// RouterConfig controls middleware applied to the command and data routes.
type RouterConfig struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
	TestingMode    bool
}

// NewRouter wires every endpoint. /health and /metrics bypass rate limiting
// and timeouts.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	api.HandleFunc("/query", h.PostQuery).Methods(http.MethodPost)
	api.HandleFunc("/refresh", h.PostRefresh).Methods(http.MethodPost)
	api.HandleFunc("/layer/{layer}", h.PutLayer).Methods(http.MethodPut)
	api.HandleFunc("/search", h.GetSearch).Methods(http.MethodGet)
	api.HandleFunc("/search/select", h.PostSearchSelect).Methods(http.MethodPost)
	api.HandleFunc("/location/fix", h.PostLocationFix).Methods(http.MethodPost)
	api.HandleFunc("/location/authorization", h.PostLocationAuthorization).Methods(http.MethodPost)
	api.HandleFunc("/location/error", h.PostLocationError).Methods(http.MethodPost)
	api.HandleFunc("/tiles/{layer}/{zoom:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}.png", h.GetTile).Methods(http.MethodGet)

	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods(http.MethodGet)
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods(http.MethodPost)
	}
	return router
}
