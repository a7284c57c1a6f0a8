package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/min-zu/license-server-sub000/internal/auth"
	"github.com/min-zu/license-server-sub000/internal/db"
	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/rs/zerolog"
)

// AdminKeyWriteStore defines the interface for admin key management.
type AdminKeyWriteStore interface {
	CreateAdminAPIKey(ctx context.Context, key *models.AdminAPIKey) error
	RevokeAdminAPIKey(ctx context.Context, id uuid.UUID) error
}

// AdminKeysHandler handles admin API key management endpoints.
type AdminKeysHandler struct {
	store  AdminKeyWriteStore
	logger zerolog.Logger
}

// NewAdminKeysHandler creates a new AdminKeysHandler.
func NewAdminKeysHandler(store AdminKeyWriteStore, logger zerolog.Logger) *AdminKeysHandler {
	return &AdminKeysHandler{
		store:  store,
		logger: logger.With().Str("component", "admin_keys_handler").Logger(),
	}
}

// RegisterRoutes registers admin key routes on the given router group.
func (h *AdminKeysHandler) RegisterRoutes(r *gin.RouterGroup) {
	keys := r.Group("/admin-keys")
	{
		keys.POST("", h.Create)
		keys.DELETE("/:id", h.Revoke)
	}
}

// CreateAdminKeyRequest is the request body for creating an admin API key.
type CreateAdminKeyRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// Create generates a new admin API key. The plaintext key is returned
// once and never stored.
// POST /api/v1/admin-keys
func (h *AdminKeysHandler) Create(c *gin.Context) {
	var req CreateAdminKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	key, hash, err := auth.GenerateAPIKey()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate API key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create API key"})
		return
	}

	record := models.NewAdminAPIKey(req.Name, hash)
	if err := h.store.CreateAdminAPIKey(c.Request.Context(), record); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to store API key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create API key"})
		return
	}

	h.logger.Info().Str("key_id", record.ID.String()).Str("name", req.Name).Msg("admin API key created")

	c.JSON(http.StatusCreated, gin.H{
		"id":   record.ID,
		"name": record.Name,
		"key":  key,
	})
}

// Revoke disables an admin API key.
// DELETE /api/v1/admin-keys/:id
func (h *AdminKeysHandler) Revoke(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key ID"})
		return
	}

	if err := h.store.RevokeAdminAPIKey(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		h.logger.Error().Err(err).Str("key_id", id.String()).Msg("failed to revoke API key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke API key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}
