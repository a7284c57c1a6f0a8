package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/min-zu/license-server-sub000/internal/models"
)

// CreateAdminAPIKey stores a new admin API key record.
func (db *DB) CreateAdminAPIKey(ctx context.Context, key *models.AdminAPIKey) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO admin_api_keys (id, name, key_hash, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, key.ID, key.Name, key.KeyHash, key.Revoked, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("create admin API key: %w", err)
	}
	return nil
}

// GetAdminAPIKeyByHash looks up an active key by its SHA-256 hash.
func (db *DB) GetAdminAPIKeyByHash(ctx context.Context, hash string) (*models.AdminAPIKey, error) {
	var key models.AdminAPIKey
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, key_hash, last_used_at, revoked, created_at
		FROM admin_api_keys
		WHERE key_hash = $1 AND revoked = FALSE
	`, hash).Scan(&key.ID, &key.Name, &key.KeyHash, &key.LastUsedAt, &key.Revoked, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin API key: %w", err)
	}
	return &key, nil
}

// TouchAdminAPIKey records key usage. Best effort; callers may ignore errors.
func (db *DB) TouchAdminAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE admin_api_keys SET last_used_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("touch admin API key: %w", err)
	}
	return nil
}

// RevokeAdminAPIKey disables a key without deleting its record.
func (db *DB) RevokeAdminAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE admin_api_keys SET revoked = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("revoke admin API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
