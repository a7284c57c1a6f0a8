package license

import (
	"strconv"
	"time"
)

// HexExpiry encodes a calendar end date as the lowercase hexadecimal Unix
// timestamp of local midnight in loc. The generator decodes this token
// with the same convention; any timezone or rounding drift here
// invalidates every key it issues afterwards.
func HexExpiry(end time.Time, loc *time.Location) string {
	midnight := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	return strconv.FormatInt(midnight.Unix(), 16)
}

// DecodeHexExpiry is the inverse of HexExpiry, returning the epoch instant
// the token encodes.
func DecodeHexExpiry(token string) (time.Time, error) {
	secs, err := strconv.ParseInt(token, 16, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}

// CompactDate encodes a calendar end date as YYYYMMDD digits with no
// separators, the shape the non-ITU generator expects.
func CompactDate(end time.Time) string {
	return end.Format("20060102")
}
