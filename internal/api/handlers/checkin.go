// Package handlers implements the HTTP endpoints of the license server.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/min-zu/license-server-sub000/internal/license"
	"github.com/min-zu/license-server-sub000/internal/metrics"
	"github.com/rs/zerolog"
)

// IssuanceEngine defines the interface for the device check-in flow.
type IssuanceEngine interface {
	CheckIn(ctx context.Context, req license.CheckInRequest) (*license.CheckInResult, error)
}

// CheckinRecorder records check-in outcomes for monitoring.
type CheckinRecorder interface {
	RecordCheckin(outcome string, duration time.Duration)
}

// CheckinHandler handles the public device check-in endpoint.
type CheckinHandler struct {
	engine   IssuanceEngine
	recorder CheckinRecorder
	logger   zerolog.Logger
}

// NewCheckinHandler creates a new CheckinHandler.
func NewCheckinHandler(engine IssuanceEngine, recorder CheckinRecorder, logger zerolog.Logger) *CheckinHandler {
	return &CheckinHandler{
		engine:   engine,
		recorder: recorder,
		logger:   logger.With().Str("component", "checkin_handler").Logger(),
	}
}

// clientIP returns the originating device address. Appliances reach the
// server through the vendor relay, which sets X-Forwarded-For.
func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.ClientIP()
}

// CheckIn processes a device check-in and returns the issued key.
// GET /checkin?serial=<hardware_code>&hardware=<init_code>&uuid=<device_instance>
//
// The uuid parameter is an opaque device instance id; it is logged but
// takes no part in the issuance decision.
func (h *CheckinHandler) CheckIn(c *gin.Context) {
	start := time.Now()

	hardwareCode := c.Query("serial")
	if hardwareCode == "" {
		h.record(metrics.OutcomeError, start)
		c.JSON(http.StatusBadRequest, gin.H{"error": "serial is required"})
		return
	}

	if devUUID := c.Query("uuid"); devUUID != "" {
		h.logger.Debug().
			Str("serial", hardwareCode).
			Str("device_uuid", devUUID).
			Msg("device check-in")
	}

	req := license.CheckInRequest{
		HardwareCode: hardwareCode,
		InitCode:     c.Query("hardware"),
		IP:           clientIP(c),
	}

	result, err := h.engine.CheckIn(c.Request.Context(), req)
	switch {
	case err == nil:
		h.record(metrics.OutcomeIssued, start)
		c.JSON(http.StatusOK, result)
	case errors.Is(err, license.ErrUnknownDevice):
		h.record(metrics.OutcomeUnknownDevice, start)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown device"})
	case errors.Is(err, license.ErrIssuanceConflict):
		h.record(metrics.OutcomeConflict, start)
		c.JSON(http.StatusBadRequest, gin.H{"error": "license already issued"})
	case errors.Is(err, license.ErrGeneratorFailed):
		h.record(metrics.OutcomeGeneratorFailure, start)
		h.logger.Error().Err(err).Msg("key generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "key generation failed"})
	default:
		h.record(metrics.OutcomeError, start)
		h.logger.Error().Err(err).Msg("check-in failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *CheckinHandler) record(outcome string, start time.Time) {
	if h.recorder != nil {
		h.recorder.RecordCheckin(outcome, time.Since(start))
	}
}
