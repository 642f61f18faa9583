package narrative

import (
	"errors"
	"testing"
	"time"
)

func TestComputeFingerprintRejectsEmptyNucleus(t *testing.T) {
	t.Parallel()

	_, err := ComputeFingerprint("   ", map[string]float64{"SEC": 5}, []string{"sued"}, nil, time.Now())
	if !errors.Is(err, ErrEmptyNucleus) {
		t.Fatalf("expected ErrEmptyNucleus, got %v", err)
	}
}

func TestComputeFingerprintRejectsDenyListed(t *testing.T) {
	t.Parallel()

	deny := NewDenyList([]string{"Taboola", "Outbrain"})
	_, err := ComputeFingerprint("taboola", nil, nil, deny, time.Now())
	if !errors.Is(err, ErrDenyListed) {
		t.Fatalf("expected ErrDenyListed for case-insensitive match, got %v", err)
	}

	if _, err := ComputeFingerprint("SEC", nil, nil, deny, time.Now()); err != nil {
		t.Fatalf("unexpected error for non-listed nucleus: %v", err)
	}
}

func TestComputeFingerprintKeepsTopActorsAndActions(t *testing.T) {
	t.Parallel()

	salience := map[string]float64{
		"A": 5, "B": 4, "C": 3, "D": 2, "E": 1.5, "F": 1, "G": 0.5,
	}
	actions := []string{"sued", "sued", " settled ", "", "appealed", "fined"}

	fp, err := ComputeFingerprint("SEC", salience, actions, nil, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(fp.TopActors); got != 5 {
		t.Fatalf("expected 5 top actors, got %d", got)
	}
	if _, kept := fp.TopActors["F"]; kept {
		t.Fatalf("expected actor F below the top-5 cut, got %v", fp.TopActors)
	}

	want := []string{"sued", "settled", "appealed"}
	if len(fp.KeyActions) != len(want) {
		t.Fatalf("expected %d key actions, got %v", len(want), fp.KeyActions)
	}
	for i, action := range want {
		if fp.KeyActions[i] != action {
			t.Fatalf("key action %d: got %q, want %q", i, fp.KeyActions[i], action)
		}
	}
}

func TestTopActorsDeterministicTieBreak(t *testing.T) {
	t.Parallel()

	// Five names tied at score 2 contest four slots behind "first", so the
	// cut is decided by name order alone.
	salience := map[string]float64{"zeta": 2, "alpha": 2, "mid": 2, "omega": 2, "first": 3, "extra": 2}
	top := topActors(salience, 5)
	if len(top) != 5 {
		t.Fatalf("expected 5 actors, got %d", len(top))
	}
	if _, kept := top["zeta"]; kept {
		t.Fatalf("expected zeta dropped by name tie-break, got %v", top)
	}
	for _, name := range []string{"first", "alpha", "extra", "mid", "omega"} {
		if _, kept := top[name]; !kept {
			t.Fatalf("expected %s kept, got %v", name, top)
		}
	}
}

func TestDenyListEmptyAndNil(t *testing.T) {
	t.Parallel()

	var nilList *DenyList
	if nilList.Contains("anything") {
		t.Fatal("nil deny-list must match nothing")
	}
	if nilList.Len() != 0 {
		t.Fatalf("nil deny-list length: got %d, want 0", nilList.Len())
	}

	deny := NewDenyList([]string{"  ", ""})
	if deny.Len() != 0 {
		t.Fatalf("blank entries must be ignored, got %d entries", deny.Len())
	}
}
