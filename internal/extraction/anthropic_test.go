package extraction

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateBodyKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	// "é" is two bytes; a 5-byte budget lands mid-rune and must back up.
	body := "ab" + strings.Repeat("é", 4)
	got := truncateBody(body, 5)
	if got != "abé" {
		t.Fatalf("truncateBody: got %q, want %q", got, "abé")
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated body is not valid UTF-8: %q", got)
	}
}

func TestTruncateBodyShortInputUnchanged(t *testing.T) {
	t.Parallel()

	body := "short body"
	if got := truncateBody(body, maxBodyChars); got != body {
		t.Fatalf("truncateBody: got %q, want input unchanged", got)
	}
}

func TestTruncateBodyExactBoundary(t *testing.T) {
	t.Parallel()

	body := "aé" // 3 bytes, rune boundary at 1 and 3
	if got := truncateBody(body, 3); got != body {
		t.Fatalf("truncateBody at exact length: got %q, want %q", got, body)
	}
	if got := truncateBody(body, 2); got != "a" {
		t.Fatalf("truncateBody mid-rune: got %q, want %q", got, "a")
	}
}
