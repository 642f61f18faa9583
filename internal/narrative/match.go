package narrative

import (
	"time"
)

const (
	// DefaultMatchThreshold is the base acceptance threshold for extending
	// a settled narrative.
	DefaultMatchThreshold = 0.6
	// RelaxedMatchThreshold applies to narratives updated within the
	// recency window: fresh fingerprints are noisy and should merge more
	// readily.
	RelaxedMatchThreshold = 0.5
	// RelaxedThresholdWindow bounds how recently a narrative must have
	// been updated to qualify for the relaxed threshold.
	RelaxedThresholdWindow = 48 * time.Hour

	// DefaultCandidateWindow is the sliding window the matcher queries
	// existing narratives over.
	DefaultCandidateWindow = 14 * 24 * time.Hour

	similarityNucleusWeight = 0.45
	similarityActorWeight   = 0.35
	similarityActionWeight  = 0.20
	// nucleusTieBonus breaks near-ties in favor of same-subject stories.
	nucleusTieBonus = 0.05
)

// Similarity scores two fingerprints on nucleus identity, top-actor overlap,
// and key-action overlap. Result is in [0, 1].
func Similarity(a, b Fingerprint) float64 {
	nucleusMatch := 0.0
	if a.NucleusEntity != "" && a.NucleusEntity == b.NucleusEntity {
		nucleusMatch = 1.0
	}

	actorScore := stringSetJaccard(actorNameSet(a.TopActors), actorNameSet(b.TopActors))
	actionScore := stringSetJaccard(stringSet(a.KeyActions), stringSet(b.KeyActions))

	score := similarityNucleusWeight*nucleusMatch +
		similarityActorWeight*actorScore +
		similarityActionWeight*actionScore
	if nucleusMatch == 1.0 {
		score += nucleusTieBonus
	}
	if score > 1 {
		return 1
	}
	return score
}

func actorNameSet(actors map[string]float64) map[string]struct{} {
	set := make(map[string]struct{}, len(actors))
	for name := range actors {
		set[name] = struct{}{}
	}
	return set
}

// ThresholdFor is the pure adaptive-threshold policy: narratives updated
// within the relaxed window accept at RelaxedMatchThreshold, older ones
// require the base threshold.
func ThresholdFor(sinceUpdate time.Duration, base float64) float64 {
	if base <= 0 {
		base = DefaultMatchThreshold
	}
	if sinceUpdate >= 0 && sinceUpdate <= RelaxedThresholdWindow {
		return RelaxedMatchThreshold
	}
	return base
}

// MatchCandidate pairs a narrative with its similarity against a cluster
// fingerprint.
type MatchCandidate struct {
	Narrative  *Narrative
	Similarity float64
}

// SelectMatch picks the narrative a cluster should extend, or nil when no
// candidate clears its adaptive threshold. Ties break by similarity, then
// article count, then most recent update, then earliest creation.
func SelectMatch(cluster Fingerprint, candidates []*Narrative, now time.Time, baseThreshold float64) *MatchCandidate {
	var best *MatchCandidate
	for _, candidate := range candidates {
		score := Similarity(cluster, candidate.Fingerprint)
		threshold := ThresholdFor(now.Sub(candidate.LastUpdated), baseThreshold)
		if score < threshold {
			continue
		}

		current := &MatchCandidate{Narrative: candidate, Similarity: score}
		if best == nil || betterCandidate(current, best) {
			best = current
		}
	}
	return best
}

func betterCandidate(a, b *MatchCandidate) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.Narrative.ArticleCount() != b.Narrative.ArticleCount() {
		return a.Narrative.ArticleCount() > b.Narrative.ArticleCount()
	}
	if !a.Narrative.LastUpdated.Equal(b.Narrative.LastUpdated) {
		return a.Narrative.LastUpdated.After(b.Narrative.LastUpdated)
	}
	return a.Narrative.CreatedAt.Before(b.Narrative.CreatedAt)
}
