package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceFamily identifies the appliance hardware family a license record
// belongs to. The family selects the external key generator and its
// argument shape.
type DeviceFamily string

const (
	// FamilyITU is the ITU appliance family.
	FamilyITU DeviceFamily = "ITU"
	// FamilyITM is the ITM appliance family.
	FamilyITM DeviceFamily = "ITM"
	// FamilySMC is the SMC appliance family.
	FamilySMC DeviceFamily = "SMC"
	// FamilyXTM is the XTM appliance family.
	FamilyXTM DeviceFamily = "XTM"
)

// knownFamilies lists the families that can be registered.
var knownFamilies = map[DeviceFamily]bool{
	FamilyITU: true,
	FamilyITM: true,
	FamilySMC: true,
	FamilyXTM: true,
}

// IsValidFamily reports whether f is a registered device family tag.
func IsValidFamily(f DeviceFamily) bool {
	return knownFamilies[f]
}

// FamilyFromSerial derives a device family from a hardware code prefix.
// Returns an empty family if no known prefix matches.
func FamilyFromSerial(serial string) DeviceFamily {
	for f := range knownFamilies {
		if strings.HasPrefix(serial, string(f)) {
			return f
		}
	}
	return ""
}

// AuthCodeSentinel is the stored auth_code value meaning "no key issued
// for the current init_code epoch". A NULL auth_code is distinct: it marks
// a record that went through issuance on a family with no generator.
const AuthCodeSentinel = ""

// InitCodePlaceholder is stored when a device checks in without presenting
// key material.
const InitCodePlaceholder = "NOT_ASSIGNED"

// Process lifecycle markers for a license record.
const (
	// ProcessAwaitingReissue marks a record that was reset or expired and
	// is waiting for an administrator-approved reissue.
	ProcessAwaitingReissue = 0
	// ProcessActive marks a newly created or actively issued record.
	ProcessActive = 1
)

// FeatureFlags holds the optional capabilities a license enables.
type FeatureFlags struct {
	Firewall  bool `json:"firewall"`
	VPN       bool `json:"vpn"`
	DPI       bool `json:"dpi"`
	Antivirus bool `json:"antivirus"`
	AntiSpam  bool `json:"antispam"`
	SSL       bool `json:"ssl"`
	Tracker   bool `json:"tracker"`
}

// FlagFromString interprets a loosely typed feature flag value.
// Only the literal "1" (or "true") sets a flag; anything else, including
// absent or non-numeric values, leaves it unset.
func FlagFromString(s string) bool {
	switch strings.TrimSpace(s) {
	case "1", "true":
		return true
	default:
		return false
	}
}

// LicenseRecord is the per-device license row, keyed by the immutable
// hardware code.
type LicenseRecord struct {
	ID           uuid.UUID    `json:"id"`
	HardwareCode string       `json:"hardware_code"`
	Family       DeviceFamily `json:"family"`
	InitCode     string       `json:"init_code"`
	// AuthCode is the issued license key. The empty string is the
	// unissued sentinel; nil means issuance completed on a family with
	// no matching generator.
	AuthCode    *string      `json:"auth_code"`
	LimitStart  *time.Time   `json:"limit_time_start,omitempty"`
	LimitEnd    *time.Time   `json:"limit_time_end,omitempty"`
	Features    FeatureFlags `json:"features"`
	IP          string       `json:"ip,omitempty"`
	Process     int          `json:"process"`
	CPUName     string       `json:"cpu_name,omitempty"`
	CFID        string       `json:"cfid,omitempty"`
	LicenseDate *time.Time   `json:"license_date,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewLicenseRecord creates a pre-registered record in the unissued state.
func NewLicenseRecord(hardwareCode string, family DeviceFamily) *LicenseRecord {
	now := time.Now()
	sentinel := AuthCodeSentinel
	return &LicenseRecord{
		ID:           uuid.New(),
		HardwareCode: hardwareCode,
		Family:       family,
		InitCode:     InitCodePlaceholder,
		AuthCode:     &sentinel,
		Process:      ProcessActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Unissued reports whether the record holds the unissued sentinel, i.e.
// no key has been generated for the current init_code epoch. A nil
// AuthCode is NOT unissued: the record already went through issuance.
func (r *LicenseRecord) Unissued() bool {
	return r.AuthCode != nil && *r.AuthCode == AuthCodeSentinel
}

// HasWindow reports whether an administrator set a validity window.
func (r *LicenseRecord) HasWindow() bool {
	return r.LimitEnd != nil && !r.LimitEnd.IsZero()
}

// Expired reports whether the validity window has lapsed at the given time.
// Records with no window never expire.
func (r *LicenseRecord) Expired(at time.Time) bool {
	return r.HasWindow() && r.LimitEnd.Before(at)
}
