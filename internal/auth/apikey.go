// Package auth implements admin API key generation and validation.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/rs/zerolog"
)

const (
	// APIKeyPrefix is the prefix for all admin API keys.
	APIKeyPrefix = "lms_"
	// APIKeyLength is the expected length of the hex portion of the API key.
	APIKeyLength = 64 // 32 bytes = 64 hex chars
)

// AdminKeyStore defines the interface for admin key lookup operations.
type AdminKeyStore interface {
	GetAdminAPIKeyByHash(ctx context.Context, hash string) (*models.AdminAPIKey, error)
	TouchAdminAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error
}

// APIKeyValidator validates admin API keys against stored hashes.
type APIKeyValidator struct {
	store  AdminKeyStore
	logger zerolog.Logger
}

// NewAPIKeyValidator creates a new API key validator.
func NewAPIKeyValidator(store AdminKeyStore, logger zerolog.Logger) *APIKeyValidator {
	return &APIKeyValidator{
		store:  store,
		logger: logger.With().Str("component", "apikey_validator").Logger(),
	}
}

// ValidateAPIKey validates an API key and returns the associated record.
// Returns nil if the key is invalid, revoked, or not found.
func (v *APIKeyValidator) ValidateAPIKey(ctx context.Context, apiKey string) (*models.AdminAPIKey, error) {
	if !IsValidAPIKeyFormat(apiKey) {
		v.logger.Debug().Msg("invalid API key format")
		return nil, nil
	}

	keyHash := HashAPIKey(apiKey)

	key, err := v.store.GetAdminAPIKeyByHash(ctx, keyHash)
	if err != nil {
		v.logger.Debug().Err(err).Msg("no admin key for presented credential")
		return nil, nil
	}

	if err := v.store.TouchAdminAPIKey(ctx, key.ID, time.Now()); err != nil {
		v.logger.Warn().Err(err).Str("key_name", key.Name).Msg("failed to record key usage")
	}

	v.logger.Debug().Str("key_name", key.Name).Msg("API key validated")
	return key, nil
}

// GenerateAPIKey returns a new random admin API key and its storage hash.
func GenerateAPIKey() (key, hash string, err error) {
	raw := make([]byte, APIKeyLength/2)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate API key: %w", err)
	}
	key = APIKeyPrefix + hex.EncodeToString(raw)
	return key, HashAPIKey(key), nil
}

// AdminKeyCreator defines the interface for persisting new admin keys.
type AdminKeyCreator interface {
	CreateAdminAPIKey(ctx context.Context, key *models.AdminAPIKey) error
}

// BootstrapAPIKey mints an admin key and writes its hash straight to the
// store, bypassing the authenticated HTTP API. This is how the first key
// of a fresh install is created; later keys go through the admin API.
// The plaintext key is returned exactly once.
func BootstrapAPIKey(ctx context.Context, store AdminKeyCreator, name string) (string, *models.AdminAPIKey, error) {
	key, hash, err := GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	rec := models.NewAdminAPIKey(name, hash)
	if err := store.CreateAdminAPIKey(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("store admin API key: %w", err)
	}
	return key, rec, nil
}

// IsValidAPIKeyFormat checks if the API key has the correct format.
func IsValidAPIKeyFormat(apiKey string) bool {
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		return false
	}
	hexPart := strings.TrimPrefix(apiKey, APIKeyPrefix)
	if len(hexPart) != APIKeyLength {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage/comparison.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// CompareAPIKeyHash compares an API key with a stored hash using constant-time comparison.
func CompareAPIKeyHash(apiKey, storedHash string) bool {
	computedHash := HashAPIKey(apiKey)
	return subtle.ConstantTimeCompare([]byte(computedHash), []byte(storedHash)) == 1
}

// ExtractBearerToken extracts the token from an Authorization header value.
// Returns empty string if the header is not a valid Bearer token.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
