package license

import (
	"testing"
	"time"
)

func TestHexExpiry(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	t.Run("encodes local midnight", func(t *testing.T) {
		end := time.Date(2027, 6, 15, 13, 45, 12, 0, time.UTC)
		token := HexExpiry(end, loc)

		decoded, err := DecodeHexExpiry(token)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		local := decoded.In(loc)
		if local.Hour() != 0 || local.Minute() != 0 || local.Second() != 0 {
			t.Errorf("decoded time %v is not local midnight", local)
		}
		if local.Year() != 2027 || local.Month() != time.June || local.Day() != 15 {
			t.Errorf("decoded date = %v, want 2027-06-15", local)
		}
	})

	t.Run("round trip recovers the date", func(t *testing.T) {
		dates := []time.Time{
			time.Date(2026, 1, 1, 0, 0, 0, 0, loc),
			time.Date(2026, 12, 31, 23, 59, 59, 0, loc),
			time.Date(2030, 2, 28, 6, 0, 0, 0, loc),
		}
		for _, d := range dates {
			decoded, err := DecodeHexExpiry(HexExpiry(d, loc))
			if err != nil {
				t.Fatalf("decode for %v: %v", d, err)
			}
			local := decoded.In(loc)
			if local.Year() != d.Year() || local.Month() != d.Month() || local.Day() != d.Day() {
				t.Errorf("round trip of %v gave %v", d, local)
			}
		}
	})

	t.Run("lowercase hex without prefix", func(t *testing.T) {
		end := time.Date(2027, 6, 15, 0, 0, 0, 0, loc)
		token := HexExpiry(end, loc)
		for _, c := range token {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				t.Fatalf("token %q contains non-lowercase-hex character %q", token, c)
			}
		}
	})
}

func TestCompactDate(t *testing.T) {
	d := time.Date(2027, 3, 9, 15, 30, 0, 0, time.UTC)
	if got := CompactDate(d); got != "20270309" {
		t.Errorf("CompactDate = %q, want 20270309", got)
	}
}
