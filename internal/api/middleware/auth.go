// Package middleware provides HTTP middleware for the license API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/min-zu/license-server-sub000/internal/auth"
	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

// AdminKeyContextKey is the context key for the authenticated admin key.
const AdminKeyContextKey ContextKey = "admin_key"

// AdminKeyMiddleware returns a Gin middleware that requires a valid admin
// API key presented as a Bearer token.
func AdminKeyMiddleware(validator *auth.APIKeyValidator, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "admin_key_middleware").Logger()

	return func(c *gin.Context) {
		token := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		key, err := validator.ValidateAPIKey(c.Request.Context(), token)
		if err != nil {
			log.Error().Err(err).Msg("admin key validation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if key == nil {
			log.Debug().Str("path", c.Request.URL.Path).Msg("rejected admin request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(string(AdminKeyContextKey), key)
		c.Next()
	}
}

// GetAdminKey retrieves the authenticated admin key from the Gin context.
// Returns nil if the request was not authenticated.
func GetAdminKey(c *gin.Context) *models.AdminAPIKey {
	val, exists := c.Get(string(AdminKeyContextKey))
	if !exists {
		return nil
	}
	key, ok := val.(*models.AdminAPIKey)
	if !ok {
		return nil
	}
	return key
}
