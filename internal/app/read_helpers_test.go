package app

import (
	"testing"
	"time"
)

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "table", want: outputFormatTable},
		{raw: "JSON", want: outputFormatJSON},
		{raw: " json ", want: outputFormatJSON},
		{raw: "", want: outputFormatTable},
		{raw: "yaml", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseOutputFormat(tc.raw, outputFormatTable)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseOutputFormat(%q): expected error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseOutputFormat(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("parseOutputFormat(%q): got %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestTruncateForTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value  string
		maxLen int
		want   string
	}{
		{value: "short", maxLen: 10, want: "short"},
		{value: "  padded  ", maxLen: 10, want: "padded"},
		{value: "exactly-ten", maxLen: 11, want: "exactly-ten"},
		{value: "a narrative title that runs long", maxLen: 12, want: "a narrati..."},
		{value: "abcdef", maxLen: 3, want: "abc"},
		{value: "unbounded output", maxLen: 0, want: "unbounded output"},
	}

	for _, tc := range cases {
		if got := truncateForTable(tc.value, tc.maxLen); got != tc.want {
			t.Fatalf("truncateForTable(%q, %d): got %q, want %q", tc.value, tc.maxLen, got, tc.want)
		}
	}
}

func TestFormatUTCTimestamp(t *testing.T) {
	t.Parallel()

	if got := formatUTCTimestamp(time.Time{}); got != "" {
		t.Fatalf("zero time: got %q, want empty", got)
	}

	loc := time.FixedZone("CET", 3600)
	value := time.Date(2026, 3, 20, 13, 30, 0, 0, loc)
	if got := formatUTCTimestamp(value); got != "2026-03-20T12:30:00Z" {
		t.Fatalf("timestamp: got %q, want UTC RFC3339", got)
	}
}
