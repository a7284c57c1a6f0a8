package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSweepStore struct {
	deactivated   int64
	pruned        int64
	deactivateErr error
	cleanupErr    error

	deactivateCalls int
	cleanupCalls    int
	gotRetention    int
}

func (s *fakeSweepStore) DeactivateExpiredLicenses(_ context.Context, _ time.Time) (int64, error) {
	s.deactivateCalls++
	return s.deactivated, s.deactivateErr
}

func (s *fakeSweepStore) CleanupReauthAttempts(_ context.Context, retentionDays int) (int64, error) {
	s.cleanupCalls++
	s.gotRetention = retentionDays
	return s.pruned, s.cleanupErr
}

func TestSweeper_RunNow(t *testing.T) {
	t.Run("runs both jobs", func(t *testing.T) {
		store := &fakeSweepStore{deactivated: 2, pruned: 5}
		s := NewSweeper(store, "@hourly", 90, zerolog.Nop())

		s.RunNow()

		if store.deactivateCalls != 1 {
			t.Errorf("deactivate calls = %d, want 1", store.deactivateCalls)
		}
		if store.cleanupCalls != 1 {
			t.Errorf("cleanup calls = %d, want 1", store.cleanupCalls)
		}
		if store.gotRetention != 90 {
			t.Errorf("retention = %d, want 90", store.gotRetention)
		}
	})

	t.Run("zero retention keeps audit rows", func(t *testing.T) {
		store := &fakeSweepStore{}
		s := NewSweeper(store, "@hourly", 0, zerolog.Nop())

		s.RunNow()

		if store.deactivateCalls != 1 {
			t.Errorf("deactivate calls = %d, want 1", store.deactivateCalls)
		}
		if store.cleanupCalls != 0 {
			t.Errorf("cleanup calls = %d, want 0", store.cleanupCalls)
		}
	})

	t.Run("deactivation failure does not skip cleanup", func(t *testing.T) {
		store := &fakeSweepStore{deactivateErr: errors.New("db down")}
		s := NewSweeper(store, "@hourly", 30, zerolog.Nop())

		s.RunNow()

		if store.cleanupCalls != 1 {
			t.Errorf("cleanup calls = %d, want 1", store.cleanupCalls)
		}
	})
}

func TestSweeper_StartStop(t *testing.T) {
	store := &fakeSweepStore{}
	s := NewSweeper(store, "@hourly", 30, zerolog.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("expected error on double start")
	}

	<-s.Stop().Done()

	// Stopping an idle sweeper is a no-op.
	<-s.Stop().Done()
}

func TestSweeper_BadSchedule(t *testing.T) {
	s := NewSweeper(&fakeSweepStore{}, "not a schedule", 30, zerolog.Nop())
	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}
