// Package metrics provides Prometheus metrics for the license server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Check-in outcome labels.
const (
	OutcomeIssued           = "issued"
	OutcomeConflict         = "conflict"
	OutcomeUnknownDevice    = "unknown_device"
	OutcomeGeneratorFailure = "generator_failure"
	OutcomeError            = "error"
)

// GaugeStore defines the interface for the DB-backed license gauges.
type GaugeStore interface {
	CountLicensesByFamily(ctx context.Context) (map[models.DeviceFamily]int64, error)
	CountIssuedLicenses(ctx context.Context) (int64, error)
}

// PrometheusMetrics holds the server's metric instruments.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	CheckinCounter   *prometheus.CounterVec
	CheckinDuration  *prometheus.HistogramVec
	LicensesByFamily *prometheus.GaugeVec
	LicensesIssued   prometheus.Gauge
}

// NewPrometheusMetrics registers the server metrics on the given registry.
func NewPrometheusMetrics(reg *prometheus.Registry) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		registry: reg,
		CheckinCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_checkins_total",
			Help: "Total number of device check-ins by outcome",
		}, []string{"outcome"}),
		CheckinDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "license_checkin_duration_seconds",
			Help:    "Histogram of check-in handling duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		}, []string{"outcome"}),
		LicensesByFamily: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "license_records_total",
			Help: "Number of registered license records by device family",
		}, []string{"family"}),
		LicensesIssued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "license_records_issued",
			Help: "Number of license records holding an issued key",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.CheckinCounter, m.CheckinDuration, m.LicensesByFamily, m.LicensesIssued,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordCheckin increments the check-in counter and observes the duration.
func (m *PrometheusMetrics) RecordCheckin(outcome string, duration time.Duration) {
	m.CheckinCounter.WithLabelValues(outcome).Inc()
	m.CheckinDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RefreshGauges updates the DB-backed gauges from current store counts.
func (m *PrometheusMetrics) RefreshGauges(ctx context.Context, store GaugeStore, logger zerolog.Logger) {
	counts, err := store.CountLicensesByFamily(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to refresh license family gauges")
	} else {
		m.LicensesByFamily.Reset()
		for family, n := range counts {
			m.LicensesByFamily.WithLabelValues(string(family)).Set(float64(n))
		}
	}

	issued, err := store.CountIssuedLicenses(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to refresh issued license gauge")
	} else {
		m.LicensesIssued.Set(float64(issued))
	}
}

// Handler returns the Prometheus exposition handler for the registry.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
