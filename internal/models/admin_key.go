package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminAPIKey grants access to the administrative API. Only the SHA-256
// hash of the key is stored; the plaintext is shown once at creation.
type AdminAPIKey struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewAdminAPIKey creates a key record for the given hash.
func NewAdminAPIKey(name, keyHash string) *AdminAPIKey {
	return &AdminAPIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   keyHash,
		CreatedAt: time.Now(),
	}
}
