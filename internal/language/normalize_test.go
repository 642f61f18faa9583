package language

import (
	"reflect"
	"testing"
)

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{raw: " EN-us ", want: "en"},
		{raw: "EN_us", want: "en"},
		{raw: "zh", want: "zh"},
		{raw: "zh-Hans", want: "zh"},
		{raw: " ", want: ""},
		{raw: "en_123", want: ""},
	}

	for _, tc := range cases {
		if got := NormalizeCode(tc.raw); got != tc.want {
			t.Fatalf("NormalizeCode(%q): got %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{raw: " EN_us ", want: "en-us"},
		{raw: "zh-Hans", want: "zh-hans"},
		{raw: "en--US", want: "en-us"},
		{raw: "en_123", want: ""},
		{raw: "", want: ""},
	}

	for _, tc := range cases {
		if got := NormalizeTag(tc.raw); got != tc.want {
			t.Fatalf("NormalizeTag(%q): got %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestSubtags(t *testing.T) {
	t.Parallel()

	if got := Subtags("pt_BR"); !reflect.DeepEqual(got, []string{"pt", "br"}) {
		t.Fatalf("Subtags(pt_BR): got %v", got)
	}
	if got := Subtags("en-US-1994"); got != nil {
		t.Fatalf("malformed subtag must invalidate the tag, got %v", got)
	}
}
