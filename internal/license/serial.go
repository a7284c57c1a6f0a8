package license

import "strings"

// serialSegments is the number of hyphen-delimited segments the non-ITU
// generator accepts. Devices append dummy suffix segments that must be
// dropped before the serial is used.
const serialSegments = 3

// TruncateSerial reduces a hyphen-delimited serial to its first three
// segments. Serials with three or fewer segments pass through unchanged.
func TruncateSerial(serial string) string {
	parts := strings.Split(serial, "-")
	if len(parts) <= serialSegments {
		return serial
	}
	return strings.Join(parts[:serialSegments], "-")
}

// HasSegmentedSerial reports whether the serial matches the non-ITU
// generator's pattern of at least three hyphen-delimited segments.
func HasSegmentedSerial(serial string) bool {
	return strings.Count(serial, "-") >= 2
}
