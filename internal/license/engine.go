package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/min-zu/license-server-sub000/internal/db"
	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/rs/zerolog"
)

// ErrUnknownDevice is returned when a check-in references a hardware code
// with no license record. The device must be pre-registered through the
// administrative registration flow.
var ErrUnknownDevice = errors.New("device not registered")

// ErrIssuanceConflict is returned when a check-in arrives for a record
// that already holds an issued key. Recoverable only by administrative
// reauthorization.
var ErrIssuanceConflict = errors.New("license already issued for hardware code")

// demoWindowMonths is the trial validity granted on first contact when no
// administrator-set window exists.
const demoWindowMonths = 1

// Store is the persistence surface the engine needs.
// GetLicenseByHardwareCode returns db.ErrNotFound for unregistered
// devices. IssueLicenseKey must be an atomic conditional update on the
// unissued sentinel: it reports false when a concurrent issuance
// already won.
type Store interface {
	GetLicenseByHardwareCode(ctx context.Context, hardwareCode string) (*models.LicenseRecord, error)
	TouchLicenseCheckIn(ctx context.Context, hardwareCode, initCode, ip string, at time.Time) error
	IssueLicenseKey(ctx context.Context, hardwareCode string, key *string, windowStart, windowEnd *time.Time, at time.Time) (bool, error)
	CreateReauthAttempt(ctx context.Context, attempt *models.ReauthAttempt) error
}

// CheckInRequest carries one device check-in after HTTP-level extraction.
// InitCode is the key material the device presents (its hardware
// parameter).
type CheckInRequest struct {
	HardwareCode string
	InitCode     string
	IP           string
}

// CheckInResult reports a successful issuance. LicenseKey is nil when the
// device family has no generator.
type CheckInResult struct {
	LicenseKey *string `json:"license_key"`
}

// Engine runs the issuance decision state machine for device check-ins.
type Engine struct {
	store     Store
	generator KeyGenerator
	logger    zerolog.Logger
}

// NewEngine creates an issuance Engine.
func NewEngine(store Store, generator KeyGenerator, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		generator: generator,
		logger:    logger.With().Str("component", "issuance_engine").Logger(),
	}
}

// CheckIn processes one device check-in.
//
// The record's init_code, ip, and license_date are refreshed before the
// issuance decision and stay committed even when issuance is later denied
// or fails; this is deliberate "last seen" tracking, kept as a separate
// statement from the issuance write on purpose.
//
// State machine: an unissued record transitions to issued via an atomic
// conditional update on the sentinel auth_code. A record that already
// holds a key (or loses the conditional update to a concurrent check-in)
// yields exactly one ReauthAttempt audit row and ErrIssuanceConflict.
func (e *Engine) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	initCode := req.InitCode
	if initCode == "" {
		initCode = models.InitCodePlaceholder
	}

	rec, err := e.store.GetLicenseByHardwareCode(ctx, req.HardwareCode)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, req.HardwareCode)
		}
		return nil, fmt.Errorf("look up license record: %w", err)
	}

	now := time.Now()
	if err := e.store.TouchLicenseCheckIn(ctx, rec.HardwareCode, initCode, req.IP, now); err != nil {
		return nil, fmt.Errorf("refresh check-in state: %w", err)
	}

	if !rec.Unissued() {
		return nil, e.recordConflict(ctx, rec, initCode, req.IP, "check-in while key already issued")
	}

	// Refresh the in-memory copy so the generator sees the presented key
	// material and last-seen fields just written.
	rec.InitCode = initCode
	rec.IP = req.IP

	key, err := e.generator.IssueKey(ctx, rec)
	if err != nil {
		e.logger.Error().Err(err).
			Str("hardware_code", rec.HardwareCode).
			Str("family", string(rec.Family)).
			Msg("license generation failed")
		return nil, err
	}

	windowStart, windowEnd := e.demoWindow(rec, now)

	issued, err := e.store.IssueLicenseKey(ctx, rec.HardwareCode, key, windowStart, windowEnd, now)
	if err != nil {
		return nil, fmt.Errorf("persist issued key: %w", err)
	}
	if !issued {
		// A concurrent check-in won the conditional update.
		return nil, e.recordConflict(ctx, rec, initCode, req.IP, "lost issuance race to concurrent check-in")
	}

	e.logger.Info().
		Str("hardware_code", rec.HardwareCode).
		Str("family", string(rec.Family)).
		Bool("key_generated", key != nil).
		Msg("license issued")

	return &CheckInResult{LicenseKey: key}, nil
}

// demoWindow returns the trial validity window stamped on ITU first
// contacts that have no administrator-set window. All other issuances
// keep the stored window untouched.
func (e *Engine) demoWindow(rec *models.LicenseRecord, now time.Time) (*time.Time, *time.Time) {
	if rec.Family != models.FamilyITU || rec.HasWindow() {
		return nil, nil
	}
	start := now
	end := now.AddDate(0, demoWindowMonths, 0)
	return &start, &end
}

// recordConflict appends the audit row and returns ErrIssuanceConflict.
// An audit write failure is logged but does not mask the conflict.
func (e *Engine) recordConflict(ctx context.Context, rec *models.LicenseRecord, initCode, ip, comment string) error {
	attempt := models.NewReauthAttempt(rec, initCode, ip, comment)
	if err := e.store.CreateReauthAttempt(ctx, attempt); err != nil {
		e.logger.Error().Err(err).
			Str("hardware_code", rec.HardwareCode).
			Msg("failed to record reauthorization attempt")
	} else {
		e.logger.Warn().
			Str("hardware_code", rec.HardwareCode).
			Str("ip", ip).
			Msg("conflicting check-in recorded")
	}
	return ErrIssuanceConflict
}
