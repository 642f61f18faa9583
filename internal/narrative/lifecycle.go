package narrative

import (
	"sort"
	"time"
)

const (
	// DefaultVelocityWindowDays is the fixed trailing window velocity is
	// computed over. Dividing by the narrative's total age instead was a
	// known defect: it inflates velocity for young narratives and
	// deflates it for old ones.
	DefaultVelocityWindowDays = 7

	momentumWindowDays     = 14
	momentumGrowingRatio   = 1.3
	momentumDecliningRatio = 0.7

	dormantAfterDays = 7
	coolingAfterDays = 3

	hotArticleCount   = 7
	hotVelocity       = 3.0
	risingVelocity    = 1.5
	echoPulseMax      = 3
	reactivationCount = 4
)

// LifecycleOutcome is the result of one lifecycle evaluation.
type LifecycleOutcome struct {
	State           State
	Velocity        float64
	Momentum        Momentum
	Reawakened      bool
	ResurrectionVel float64
}

// MentionVelocity counts articles published within the trailing window and
// divides by the window length in days, independent of narrative age.
func MentionVelocity(dates []time.Time, now time.Time, windowDays int) float64 {
	if windowDays <= 0 {
		windowDays = DefaultVelocityWindowDays
	}
	cutoff := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	count := 0
	for _, d := range dates {
		if d.After(cutoff) && !d.After(now) {
			count++
		}
	}
	return float64(count) / float64(windowDays)
}

// ComputeMomentum compares velocity over the earlier half of the recent
// activity span against the later half. Fewer than 3 recent articles is
// not enough signal to compare.
func ComputeMomentum(dates []time.Time, now time.Time) Momentum {
	cutoff := now.Add(-momentumWindowDays * 24 * time.Hour)
	recent := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if d.After(cutoff) && !d.After(now) {
			recent = append(recent, d)
		}
	}
	if len(recent) < 3 {
		return MomentumUnknown
	}

	sort.Slice(recent, func(i, j int) bool { return recent[i].Before(recent[j]) })
	span := recent[len(recent)-1].Sub(recent[0])
	if span <= 0 {
		return MomentumStable
	}
	midpoint := recent[0].Add(span / 2)

	earlier, later := 0, 0
	for _, d := range recent {
		if d.After(midpoint) {
			later++
		} else {
			earlier++
		}
	}

	// Both halves cover the same duration, so counts compare directly.
	switch {
	case earlier == 0:
		return MomentumGrowing
	case float64(later) >= momentumGrowingRatio*float64(earlier):
		return MomentumGrowing
	case float64(later) <= momentumDecliningRatio*float64(earlier):
		return MomentumDeclining
	default:
		return MomentumStable
	}
}

// EvaluateLifecycle recomputes a narrative's lifecycle on a touch. prev is
// the state before this evaluation, dates are all constituent article
// publish times, and lastUpdated reflects the latest article (or merge).
func EvaluateLifecycle(prev State, dates []time.Time, lastUpdated, now time.Time, velocityWindowDays int) LifecycleOutcome {
	velocity := MentionVelocity(dates, now, velocityWindowDays)
	momentum := ComputeMomentum(dates, now)

	outcome := LifecycleOutcome{Velocity: velocity, Momentum: momentum}
	outcome.State = nextState(prev, dates, lastUpdated, now, velocity, &outcome)
	return outcome
}

func nextState(prev State, dates []time.Time, lastUpdated, now time.Time, velocity float64, outcome *LifecycleOutcome) State {
	pulse24 := countSince(dates, now.Add(-24*time.Hour), now)
	pulse48 := countSince(dates, now.Add(-48*time.Hour), now)
	daysSince := now.Sub(lastUpdated).Hours() / 24

	// Reactivation always originates from dormant/echo: sustained new
	// activity wins over the quiet-gap rules, a light pulse stays echo.
	if prev == StateDormant || prev == StateEcho {
		if pulse48 >= reactivationCount {
			outcome.Reawakened = true
			outcome.ResurrectionVel = float64(pulse48) / 2
			return StateReactivated
		}
		if pulse24 >= 1 && pulse24 <= echoPulseMax {
			return StateEcho
		}
	}

	if daysSince >= dormantAfterDays {
		if pulse24 >= 1 && pulse24 <= echoPulseMax {
			return StateEcho
		}
		return StateDormant
	}
	if daysSince >= coolingAfterDays {
		return StateCooling
	}
	if len(dates) >= hotArticleCount || velocity >= hotVelocity {
		return StateHot
	}
	if velocity >= risingVelocity && len(dates) < hotArticleCount {
		return StateRising
	}
	return StateEmerging
}

func countSince(dates []time.Time, from, to time.Time) int {
	count := 0
	for _, d := range dates {
		if d.After(from) && !d.After(to) {
			count++
		}
	}
	return count
}
