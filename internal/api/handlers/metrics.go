package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/min-zu/license-server-sub000/internal/metrics"
	"github.com/rs/zerolog"
)

// MetricsHandler exposes the Prometheus scrape endpoint.
type MetricsHandler struct {
	metrics *metrics.PrometheusMetrics
	store   metrics.GaugeStore
	handler http.Handler
	logger  zerolog.Logger
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(m *metrics.PrometheusMetrics, store metrics.GaugeStore, logger zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{
		metrics: m,
		store:   store,
		handler: m.Handler(),
		logger:  logger.With().Str("component", "metrics_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the metrics route.
func (h *MetricsHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/metrics", h.Scrape)
}

// Scrape refreshes the DB-backed gauges and serves the exposition page.
// GET /metrics
func (h *MetricsHandler) Scrape(c *gin.Context) {
	h.metrics.RefreshGauges(c.Request.Context(), h.store, h.logger)
	h.handler.ServeHTTP(c.Writer, c.Request)
}
