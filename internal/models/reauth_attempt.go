package models

import (
	"time"

	"github.com/google/uuid"
)

// ReauthAttempt is an append-only audit row recording a device check-in
// that arrived while the record already held an issued key. Rows are never
// updated or deleted by the issuance engine; the maintenance sweep prunes
// them past the retention horizon.
type ReauthAttempt struct {
	ID           uuid.UUID `json:"id"`
	HardwareCode string    `json:"hardware_code"`
	InitCode     string    `json:"init_code"`
	Process      int       `json:"process"`
	CPUName      string    `json:"cpu_name,omitempty"`
	CFID         string    `json:"cfid,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	IP           string    `json:"ip,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewReauthAttempt captures the conflicting check-in against the record's
// state at conflict time.
func NewReauthAttempt(rec *LicenseRecord, presentedInitCode, ip, comment string) *ReauthAttempt {
	return &ReauthAttempt{
		ID:           uuid.New(),
		HardwareCode: rec.HardwareCode,
		InitCode:     presentedInitCode,
		Process:      rec.Process,
		CPUName:      rec.CPUName,
		CFID:         rec.CFID,
		Comment:      comment,
		IP:           ip,
		CreatedAt:    time.Now(),
	}
}
