package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/min-zu/license-server-sub000/internal/db"
	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/rs/zerolog"
)

// LicenseStore defines the interface for license persistence operations.
type LicenseStore interface {
	CreateLicense(ctx context.Context, rec *models.LicenseRecord) error
	GetLicenseByID(ctx context.Context, id uuid.UUID) (*models.LicenseRecord, error)
	GetLicenseByHardwareCode(ctx context.Context, hardwareCode string) (*models.LicenseRecord, error)
	ListLicenses(ctx context.Context, limit, offset int) ([]*models.LicenseRecord, error)
	UpdateLicense(ctx context.Context, rec *models.LicenseRecord) error
	DeleteLicense(ctx context.Context, id uuid.UUID) error
	ResetLicenseAuth(ctx context.Context, id uuid.UUID) error
	GetReauthAttemptsByHardwareCode(ctx context.Context, hardwareCode string, limit, offset int) ([]*models.ReauthAttempt, error)
}

// LicensesHandler handles the administrative license endpoints.
type LicensesHandler struct {
	store  LicenseStore
	logger zerolog.Logger
}

// NewLicensesHandler creates a new LicensesHandler.
func NewLicensesHandler(store LicenseStore, logger zerolog.Logger) *LicensesHandler {
	return &LicensesHandler{
		store:  store,
		logger: logger.With().Str("component", "licenses_handler").Logger(),
	}
}

// RegisterRoutes registers license routes on the given router group.
func (h *LicensesHandler) RegisterRoutes(r *gin.RouterGroup) {
	licenses := r.Group("/licenses")
	{
		licenses.GET("", h.List)
		licenses.POST("", h.Create)
		licenses.GET("/:id", h.Get)
		licenses.PUT("/:id", h.Update)
		licenses.DELETE("/:id", h.Delete)
		licenses.POST("/:id/reauthorize", h.Reauthorize)
		licenses.GET("/:id/reauth-attempts", h.ReauthAttempts)
	}
}

// FeatureFlagsRequest mirrors the feature booleans of a license record.
type FeatureFlagsRequest struct {
	Firewall  bool `json:"firewall"`
	VPN       bool `json:"vpn"`
	DPI       bool `json:"dpi"`
	Antivirus bool `json:"antivirus"`
	AntiSpam  bool `json:"antispam"`
	SSL       bool `json:"ssl"`
	Tracker   bool `json:"tracker"`
}

// CreateLicenseRequest is the request body for registering a license record.
type CreateLicenseRequest struct {
	HardwareCode string              `json:"hardware_code" binding:"required,min=1,max=255"`
	Family       string              `json:"family"`
	Features     FeatureFlagsRequest `json:"features"`
	LimitStart   *time.Time          `json:"limit_time_start"`
	LimitEnd     *time.Time          `json:"limit_time_end"`
	CPUName      string              `json:"cpu_name"`
	CFID         string              `json:"cfid"`
}

// UpdateLicenseRequest is the request body for updating a license record.
type UpdateLicenseRequest struct {
	Family     *string              `json:"family,omitempty"`
	Features   *FeatureFlagsRequest `json:"features,omitempty"`
	LimitStart *time.Time           `json:"limit_time_start,omitempty"`
	LimitEnd   *time.Time           `json:"limit_time_end,omitempty"`
	CPUName    *string              `json:"cpu_name,omitempty"`
	CFID       *string              `json:"cfid,omitempty"`
}

func (r FeatureFlagsRequest) toModel() models.FeatureFlags {
	return models.FeatureFlags{
		Firewall:  r.Firewall,
		VPN:       r.VPN,
		DPI:       r.DPI,
		Antivirus: r.Antivirus,
		AntiSpam:  r.AntiSpam,
		SSL:       r.SSL,
		Tracker:   r.Tracker,
	}
}

// parsePagination reads limit/offset query parameters with defaults.
func parsePagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// List returns registered license records.
// GET /api/v1/licenses
func (h *LicensesHandler) List(c *gin.Context) {
	limit, offset := parsePagination(c)

	recs, err := h.store.ListLicenses(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list licenses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list licenses"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"licenses": recs})
}

// Create registers a new license record in the unissued state.
// POST /api/v1/licenses
func (h *LicensesHandler) Create(c *gin.Context) {
	var req CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	family := models.DeviceFamily(req.Family)
	if req.Family == "" {
		family = models.FamilyFromSerial(req.HardwareCode)
	}
	if !models.IsValidFamily(family) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown device family"})
		return
	}

	if _, err := h.store.GetLicenseByHardwareCode(c.Request.Context(), req.HardwareCode); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "hardware code already registered"})
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		h.logger.Error().Err(err).Msg("failed to check for existing license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create license"})
		return
	}

	rec := models.NewLicenseRecord(req.HardwareCode, family)
	rec.Features = req.Features.toModel()
	rec.LimitStart = req.LimitStart
	rec.LimitEnd = req.LimitEnd
	rec.CPUName = req.CPUName
	rec.CFID = req.CFID

	if err := h.store.CreateLicense(c.Request.Context(), rec); err != nil {
		h.logger.Error().Err(err).Str("hardware_code", req.HardwareCode).Msg("failed to create license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create license"})
		return
	}

	h.logger.Info().
		Str("license_id", rec.ID.String()).
		Str("family", string(rec.Family)).
		Msg("license record registered")

	c.JSON(http.StatusCreated, rec)
}

// Get returns a specific license record by ID.
// GET /api/v1/licenses/:id
func (h *LicensesHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid license ID"})
		return
	}

	rec, err := h.store.GetLicenseByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to get license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get license"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// Update modifies the administrator-editable fields of a license record.
// PUT /api/v1/licenses/:id
func (h *LicensesHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid license ID"})
		return
	}

	var req UpdateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.store.GetLicenseByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to get license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update license"})
		return
	}

	if req.Family != nil {
		family := models.DeviceFamily(*req.Family)
		if !models.IsValidFamily(family) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown device family"})
			return
		}
		rec.Family = family
	}
	if req.Features != nil {
		rec.Features = req.Features.toModel()
	}
	if req.LimitStart != nil {
		rec.LimitStart = req.LimitStart
	}
	if req.LimitEnd != nil {
		rec.LimitEnd = req.LimitEnd
	}
	if req.CPUName != nil {
		rec.CPUName = *req.CPUName
	}
	if req.CFID != nil {
		rec.CFID = *req.CFID
	}

	if err := h.store.UpdateLicense(c.Request.Context(), rec); err != nil {
		h.logger.Error().Err(err).Str("license_id", id.String()).Msg("failed to update license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update license"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// Delete removes a license record.
// DELETE /api/v1/licenses/:id
func (h *LicensesHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid license ID"})
		return
	}

	if err := h.store.DeleteLicense(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
			return
		}
		h.logger.Error().Err(err).Str("license_id", id.String()).Msg("failed to delete license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete license"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "license deleted"})
}

// Reauthorize clears the issued key so the device can obtain a new one on
// its next check-in. This is the only path back to the unissued state.
// POST /api/v1/licenses/:id/reauthorize
func (h *LicensesHandler) Reauthorize(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid license ID"})
		return
	}

	if err := h.store.ResetLicenseAuth(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
			return
		}
		h.logger.Error().Err(err).Str("license_id", id.String()).Msg("failed to reauthorize license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reauthorize license"})
		return
	}

	h.logger.Info().Str("license_id", id.String()).Msg("license cleared for reissue")
	c.JSON(http.StatusOK, gin.H{"message": "license cleared for reissue"})
}

// ReauthAttempts returns the reauthorization audit trail for a license.
// GET /api/v1/licenses/:id/reauth-attempts
func (h *LicensesHandler) ReauthAttempts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid license ID"})
		return
	}

	rec, err := h.store.GetLicenseByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to get license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reauth attempts"})
		return
	}

	limit, offset := parsePagination(c)
	attempts, err := h.store.GetReauthAttemptsByHardwareCode(c.Request.Context(), rec.HardwareCode, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list reauth attempts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reauth attempts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}
