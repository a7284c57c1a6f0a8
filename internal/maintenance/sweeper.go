// Package maintenance runs the periodic license housekeeping jobs.
package maintenance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SweepStore defines the interface for sweep data access.
type SweepStore interface {
	DeactivateExpiredLicenses(ctx context.Context, at time.Time) (int64, error)
	CleanupReauthAttempts(ctx context.Context, retentionDays int) (int64, error)
}

// Sweeper periodically deactivates lapsed licenses and prunes old
// reauthorization audit rows.
type Sweeper struct {
	store         SweepStore
	schedule      string
	retentionDays int
	cron          *cron.Cron
	logger        zerolog.Logger
	mu            sync.Mutex
	running       bool
}

// NewSweeper creates a new maintenance sweeper.
// schedule is a cron expression (e.g. "@hourly", "0 3 * * *").
func NewSweeper(store SweepStore, schedule string, retentionDays int, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:         store,
		schedule:      schedule,
		retentionDays: retentionDays,
		cron:          cron.New(),
		logger:        logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("sweeper already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.schedule).
		Int("retention_days", s.retentionDays).
		Msg("maintenance sweeper started")

	return nil
}

// Stop stops the sweeper gracefully.
func (s *Sweeper) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping maintenance sweeper")
	return s.cron.Stop()
}

// runSweep executes one housekeeping pass.
func (s *Sweeper) runSweep() {
	ctx := context.Background()

	deactivated, err := s.store.DeactivateExpiredLicenses(ctx, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("expired license sweep failed")
	} else if deactivated > 0 {
		s.logger.Info().
			Int64("deactivated", deactivated).
			Msg("expired licenses deactivated")
	}

	// Zero retention means audit rows are kept forever.
	if s.retentionDays <= 0 {
		return
	}

	pruned, err := s.store.CleanupReauthAttempts(ctx, s.retentionDays)
	if err != nil {
		s.logger.Error().Err(err).Msg("reauth attempt cleanup failed")
	} else if pruned > 0 {
		s.logger.Info().
			Int64("deleted_rows", pruned).
			Int("retention_days", s.retentionDays).
			Msg("old reauth attempts pruned")
	}
}

// RunNow triggers an immediate sweep (useful for testing).
func (s *Sweeper) RunNow() {
	s.runSweep()
}
