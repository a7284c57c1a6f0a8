// Package license implements the license issuance engine: feature
// encoding, expiry encoding, device-family dispatch to the external key
// generators, and the check-in decision state machine.
package license

import (
	"strings"

	"github.com/min-zu/license-server-sub000/internal/models"
)

// ITU feature bit weights. Each optional capability occupies a fixed
// power-of-two position in the mask passed to the ITU generator.
const (
	BitFirewall  = 1 << 0
	BitVPN       = 1 << 1
	BitDPI       = 1 << 2
	BitAntivirus = 1 << 3
	BitAntiSpam  = 1 << 4
	BitSSL       = 1 << 5
	BitTracker   = 1 << 6
)

// ITUFeatureMask computes the ITU-family feature bitmask from a record's
// feature flags. Total and deterministic: unset flags contribute 0.
//
// This encoding and ModuleLetters are NOT interchangeable; the two
// generator binaries expect different encodings.
func ITUFeatureMask(f models.FeatureFlags) int {
	mask := 0
	if f.Firewall {
		mask |= BitFirewall
	}
	if f.VPN {
		mask |= BitVPN
	}
	if f.DPI {
		mask |= BitDPI
	}
	if f.Antivirus {
		mask |= BitAntivirus
	}
	if f.AntiSpam {
		mask |= BitAntiSpam
	}
	if f.SSL {
		mask |= BitSSL
	}
	if f.Tracker {
		mask |= BitTracker
	}
	return mask
}

// ModuleLetters builds the non-ITU (ITM/SMC) module string: one fixed
// letter per enabled module, concatenated in a fixed order. The non-ITU
// generator takes this string instead of a bitmask and has no DPI or
// antivirus modules.
func ModuleLetters(f models.FeatureFlags) string {
	var sb strings.Builder
	if f.Firewall {
		sb.WriteByte('F')
	}
	if f.VPN {
		sb.WriteByte('V')
	}
	if f.SSL {
		sb.WriteByte('S')
	}
	if f.AntiSpam {
		sb.WriteByte('A')
	}
	if f.Tracker {
		sb.WriteByte('T')
	}
	return sb.String()
}
