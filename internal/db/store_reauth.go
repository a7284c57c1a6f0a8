package db

import (
	"context"
	"fmt"
	"time"

	"github.com/min-zu/license-server-sub000/internal/models"
)

// CreateReauthAttempt appends one reauthorization audit row. Rows are
// never updated by this subsystem.
func (db *DB) CreateReauthAttempt(ctx context.Context, attempt *models.ReauthAttempt) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO reauth_attempts (id, hardware_code, init_code, process, cpu_name, cfid, comment, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		attempt.ID, attempt.HardwareCode, attempt.InitCode, attempt.Process,
		attempt.CPUName, attempt.CFID, attempt.Comment, attempt.IP, attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create reauth attempt: %w", err)
	}
	return nil
}

// GetReauthAttemptsByHardwareCode returns the audit trail for a device,
// newest first.
func (db *DB) GetReauthAttemptsByHardwareCode(ctx context.Context, hardwareCode string, limit, offset int) ([]*models.ReauthAttempt, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, hardware_code, init_code, process, cpu_name, cfid, comment, ip, created_at
		FROM reauth_attempts
		WHERE hardware_code = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, hardwareCode, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get reauth attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.ReauthAttempt
	for rows.Next() {
		var a models.ReauthAttempt
		err := rows.Scan(
			&a.ID, &a.HardwareCode, &a.InitCode, &a.Process,
			&a.CPUName, &a.CFID, &a.Comment, &a.IP, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan reauth attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// CountReauthAttempts returns the total number of audit rows.
func (db *DB) CountReauthAttempts(ctx context.Context) (int64, error) {
	var n int64
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM reauth_attempts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reauth attempts: %w", err)
	}
	return n, nil
}

// CleanupReauthAttempts deletes audit rows older than the retention
// horizon. Returns the number of rows removed.
func (db *DB) CleanupReauthAttempts(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM reauth_attempts WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup reauth attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
