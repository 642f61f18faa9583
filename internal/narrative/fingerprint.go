package narrative

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DenyList holds nucleus entities that must never form a narrative, such as
// advertising aggregators that leak through extraction. Matching is
// case-insensitive on the trimmed entity name.
type DenyList struct {
	entries map[string]struct{}
}

// NewDenyList builds a deny-list from configured entity names.
func NewDenyList(entities []string) *DenyList {
	entries := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		normalized := normalizeEntity(e)
		if normalized == "" {
			continue
		}
		entries[normalized] = struct{}{}
	}
	return &DenyList{entries: entries}
}

// Contains reports whether the entity is deny-listed.
func (d *DenyList) Contains(entity string) bool {
	if d == nil || len(d.entries) == 0 {
		return false
	}
	_, ok := d.entries[normalizeEntity(entity)]
	return ok
}

// Len returns the number of configured entries.
func (d *DenyList) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

func normalizeEntity(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ComputeFingerprint reduces a nucleus entity, an aggregated actor salience
// map, and an action list to a comparable signature: top 5 actors by
// salience, top 3 distinct actions, stamped at the given time. An empty
// nucleus or a deny-listed one is an error, never a silent default.
func ComputeFingerprint(nucleus string, salience map[string]float64, actions []string, deny *DenyList, at time.Time) (Fingerprint, error) {
	trimmed := strings.TrimSpace(nucleus)
	if trimmed == "" {
		return Fingerprint{}, ErrEmptyNucleus
	}
	if deny.Contains(trimmed) {
		return Fingerprint{}, fmt.Errorf("nucleus %q: %w", trimmed, ErrDenyListed)
	}

	return Fingerprint{
		NucleusEntity: trimmed,
		TopActors:     topActors(salience, maxTopActors),
		KeyActions:    keyActions(actions, maxKeyActions),
		ComputedAt:    at.UTC(),
	}, nil
}

// topActors keeps the n highest-salience actors. Ties break on name so the
// fingerprint is deterministic for identical inputs.
func topActors(salience map[string]float64, n int) map[string]float64 {
	type ranked struct {
		name  string
		score float64
	}
	all := make([]ranked, 0, len(salience))
	for name, score := range salience {
		all = append(all, ranked{name: name, score: score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].name < all[j].name
	})

	if len(all) > n {
		all = all[:n]
	}
	top := make(map[string]float64, len(all))
	for _, r := range all {
		top[r.name] = r.score
	}
	return top
}

func keyActions(actions []string, n int) []string {
	seen := make(map[string]struct{}, len(actions))
	key := make([]string, 0, n)
	for _, action := range actions {
		trimmed := strings.TrimSpace(action)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		key = append(key, trimmed)
		if len(key) == n {
			break
		}
	}
	return key
}
