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

const licenseColumns = `
	id, hardware_code, family, init_code, auth_code,
	limit_time_start, limit_time_end,
	feature_firewall, feature_vpn, feature_dpi, feature_antivirus,
	feature_antispam, feature_ssl, feature_tracker,
	ip, process, cpu_name, cfid, license_date, created_at, updated_at`

// scanLicense scans one license row into a model.
func scanLicense(row pgx.Row) (*models.LicenseRecord, error) {
	var rec models.LicenseRecord
	var family string
	err := row.Scan(
		&rec.ID, &rec.HardwareCode, &family, &rec.InitCode, &rec.AuthCode,
		&rec.LimitStart, &rec.LimitEnd,
		&rec.Features.Firewall, &rec.Features.VPN, &rec.Features.DPI, &rec.Features.Antivirus,
		&rec.Features.AntiSpam, &rec.Features.SSL, &rec.Features.Tracker,
		&rec.IP, &rec.Process, &rec.CPUName, &rec.CFID, &rec.LicenseDate,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Family = models.DeviceFamily(family)
	return &rec, nil
}

// CreateLicense inserts a pre-registered license record.
func (db *DB) CreateLicense(ctx context.Context, rec *models.LicenseRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO license_records (`+licenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		rec.ID, rec.HardwareCode, string(rec.Family), rec.InitCode, rec.AuthCode,
		rec.LimitStart, rec.LimitEnd,
		rec.Features.Firewall, rec.Features.VPN, rec.Features.DPI, rec.Features.Antivirus,
		rec.Features.AntiSpam, rec.Features.SSL, rec.Features.Tracker,
		rec.IP, rec.Process, rec.CPUName, rec.CFID, rec.LicenseDate,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create license record: %w", err)
	}
	return nil
}

// GetLicenseByID returns a license record by row ID.
func (db *DB) GetLicenseByID(ctx context.Context, id uuid.UUID) (*models.LicenseRecord, error) {
	rec, err := scanLicense(db.Pool.QueryRow(ctx, `
		SELECT `+licenseColumns+` FROM license_records WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get license by ID: %w", err)
	}
	return rec, nil
}

// GetLicenseByHardwareCode returns the license record for a device serial.
func (db *DB) GetLicenseByHardwareCode(ctx context.Context, hardwareCode string) (*models.LicenseRecord, error) {
	rec, err := scanLicense(db.Pool.QueryRow(ctx, `
		SELECT `+licenseColumns+` FROM license_records WHERE hardware_code = $1
	`, hardwareCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get license by hardware code: %w", err)
	}
	return rec, nil
}

// ListLicenses returns license records ordered by creation time, newest first.
func (db *DB) ListLicenses(ctx context.Context, limit, offset int) ([]*models.LicenseRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+licenseColumns+` FROM license_records
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var recs []*models.LicenseRecord
	for rows.Next() {
		rec, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpdateLicense updates the administrator-editable fields: features,
// validity window, family tag, and hardware metadata.
func (db *DB) UpdateLicense(ctx context.Context, rec *models.LicenseRecord) error {
	rec.UpdatedAt = time.Now()
	tag, err := db.Pool.Exec(ctx, `
		UPDATE license_records
		SET family = $2, limit_time_start = $3, limit_time_end = $4,
		    feature_firewall = $5, feature_vpn = $6, feature_dpi = $7,
		    feature_antivirus = $8, feature_antispam = $9, feature_ssl = $10,
		    feature_tracker = $11, cpu_name = $12, cfid = $13, updated_at = $14
		WHERE id = $1
	`,
		rec.ID, string(rec.Family), rec.LimitStart, rec.LimitEnd,
		rec.Features.Firewall, rec.Features.VPN, rec.Features.DPI,
		rec.Features.Antivirus, rec.Features.AntiSpam, rec.Features.SSL,
		rec.Features.Tracker, rec.CPUName, rec.CFID, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update license record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLicense removes a license record.
func (db *DB) DeleteLicense(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM license_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete license record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLicenseCheckIn refreshes the last-seen fields for a device.
// Committed independently of the issuance decision that follows.
func (db *DB) TouchLicenseCheckIn(ctx context.Context, hardwareCode, initCode, ip string, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE license_records
		SET init_code = $2, ip = $3, license_date = $4, updated_at = $4
		WHERE hardware_code = $1
	`, hardwareCode, initCode, ip, at)
	if err != nil {
		return fmt.Errorf("refresh license check-in: %w", err)
	}
	return nil
}

// IssueLicenseKey performs the atomic conditional issuance write: the key
// (possibly NULL) is stored only while the record still holds the
// unissued sentinel. Returns false when a concurrent issuance already
// won, which callers treat as a conflict.
func (db *DB) IssueLicenseKey(ctx context.Context, hardwareCode string, key *string, windowStart, windowEnd *time.Time, at time.Time) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE license_records
		SET auth_code = $2, process = $3, license_date = $4,
		    limit_time_start = COALESCE($5, limit_time_start),
		    limit_time_end = COALESCE($6, limit_time_end),
		    updated_at = $4
		WHERE hardware_code = $1 AND auth_code = $7
	`, hardwareCode, key, models.ProcessActive, at, windowStart, windowEnd, models.AuthCodeSentinel)
	if err != nil {
		return false, fmt.Errorf("issue license key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetLicenseAuth is the administrative reauthorization: it clears the
// auth code back to the unissued sentinel and marks the record as
// awaiting reissue. The only Issued to Unissued transition.
func (db *DB) ResetLicenseAuth(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE license_records
		SET auth_code = $2, process = $3, updated_at = NOW()
		WHERE id = $1
	`, id, models.AuthCodeSentinel, models.ProcessAwaitingReissue)
	if err != nil {
		return fmt.Errorf("reset license auth: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateExpiredLicenses marks records whose validity window has
// lapsed as awaiting reissue. Returns the number of records changed.
func (db *DB) DeactivateExpiredLicenses(ctx context.Context, at time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE license_records
		SET process = $2, updated_at = $1
		WHERE limit_time_end IS NOT NULL AND limit_time_end < $1 AND process <> $2
	`, at, models.ProcessAwaitingReissue)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired licenses: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountLicensesByFamily returns license record counts per device family.
func (db *DB) CountLicensesByFamily(ctx context.Context) (map[models.DeviceFamily]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT family, COUNT(*) FROM license_records GROUP BY family
	`)
	if err != nil {
		return nil, fmt.Errorf("count licenses by family: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DeviceFamily]int64)
	for rows.Next() {
		var family string
		var n int64
		if err := rows.Scan(&family, &n); err != nil {
			return nil, fmt.Errorf("scan license count: %w", err)
		}
		counts[models.DeviceFamily(family)] = n
	}
	return counts, rows.Err()
}

// CountIssuedLicenses returns the number of records holding an issued key.
func (db *DB) CountIssuedLicenses(ctx context.Context) (int64, error) {
	var n int64
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM license_records
		WHERE auth_code IS NULL OR auth_code <> $1
	`, models.AuthCodeSentinel).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count issued licenses: %w", err)
	}
	return n, nil
}
