package license

import "testing"

func TestTruncateSerial(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"3AB123-CD4567-EFGH8901-9", "3AB123-CD4567-EFGH8901"},
		{"3AB123-CD4567-EFGH8901", "3AB123-CD4567-EFGH8901"},
		{"3AB123-CD4567", "3AB123-CD4567"},
		{"NOHYPHENS", "NOHYPHENS"},
		{"A-B-C-D-E", "A-B-C"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := TruncateSerial(tc.in); got != tc.want {
			t.Errorf("TruncateSerial(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHasSegmentedSerial(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"3AB123-CD4567-EFGH8901", true},
		{"3AB123-CD4567-EFGH8901-9", true},
		{"3AB123-CD4567", false},
		{"ITU000000000000000000001", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := HasSegmentedSerial(tc.in); got != tc.want {
			t.Errorf("HasSegmentedSerial(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
