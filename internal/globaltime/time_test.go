package globaltime

import (
	"testing"
	"time"
)

func TestMockTimePinsUTC(t *testing.T) {
	pinned := time.Date(2026, 3, 20, 13, 30, 0, 0, time.FixedZone("CET", 3600))
	SetMockTime(pinned)
	defer ResetTime()

	want := time.Date(2026, 3, 20, 12, 30, 0, 0, time.UTC)
	if got := UTC(); !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("UTC(): got %v, want %v", got, want)
	}
	if got := Now(); !got.Equal(pinned) {
		t.Fatalf("Now(): got %v, want pinned %v", got, pinned)
	}
}

func TestResetTimeRestoresWallClock(t *testing.T) {
	SetMockTime(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	ResetTime()

	if got := UTC(); time.Since(got) > time.Minute {
		t.Fatalf("expected wall clock after reset, got %v", got)
	}
}
