package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
)

type fakeGaugeStore struct {
	byFamily  map[models.DeviceFamily]int64
	issued    int64
	familyErr error
	issuedErr error
}

func (s *fakeGaugeStore) CountLicensesByFamily(_ context.Context) (map[models.DeviceFamily]int64, error) {
	return s.byFamily, s.familyErr
}

func (s *fakeGaugeStore) CountIssuedLicenses(_ context.Context) (int64, error) {
	return s.issued, s.issuedErr
}

func getCounterValue(t *testing.T, vec *prometheus.CounterVec, label string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(label).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestPrometheus_CheckinCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	t.Run("increments issued counter", func(t *testing.T) {
		m.RecordCheckin(OutcomeIssued, 20*time.Millisecond)
		m.RecordCheckin(OutcomeIssued, 30*time.Millisecond)

		if val := getCounterValue(t, m.CheckinCounter, OutcomeIssued); val != 2 {
			t.Errorf("expected 2, got %f", val)
		}
	})

	t.Run("tracks outcomes separately", func(t *testing.T) {
		m.RecordCheckin(OutcomeConflict, time.Millisecond)

		if val := getCounterValue(t, m.CheckinCounter, OutcomeConflict); val != 1 {
			t.Errorf("expected 1, got %f", val)
		}
		if val := getCounterValue(t, m.CheckinCounter, OutcomeIssued); val != 2 {
			t.Errorf("issued counter disturbed: %f", val)
		}
	})
}

func TestPrometheus_RefreshGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMetrics(reg)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	ctx := context.Background()

	t.Run("sets gauges from store counts", func(t *testing.T) {
		store := &fakeGaugeStore{
			byFamily: map[models.DeviceFamily]int64{
				models.FamilyITU: 7,
				models.FamilyITM: 3,
			},
			issued: 5,
		}
		m.RefreshGauges(ctx, store, zerolog.Nop())

		var dm dto.Metric
		if err := m.LicensesByFamily.WithLabelValues("ITU").Write(&dm); err != nil {
			t.Fatal(err)
		}
		if dm.GetGauge().GetValue() != 7 {
			t.Errorf("ITU gauge = %f, want 7", dm.GetGauge().GetValue())
		}
		if val := getGaugeValue(t, m.LicensesIssued); val != 5 {
			t.Errorf("issued gauge = %f, want 5", val)
		}
	})

	t.Run("store errors leave gauges untouched", func(t *testing.T) {
		store := &fakeGaugeStore{
			familyErr: errors.New("db down"),
			issuedErr: errors.New("db down"),
		}
		m.RefreshGauges(ctx, store, zerolog.Nop())

		if val := getGaugeValue(t, m.LicensesIssued); val != 5 {
			t.Errorf("issued gauge = %f, want 5 after failed refresh", val)
		}
	})
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetrics(reg); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := NewPrometheusMetrics(reg); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}
