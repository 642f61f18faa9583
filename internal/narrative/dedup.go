package narrative

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"horse.fit/narratives/internal/globaltime"
)

// DedupResult summarizes one batch reconciliation pass.
type DedupResult struct {
	Groups   int
	Compared int
	Merged   int
	Deferred int
	Failed   int
}

// DedupPass reconciles duplicate narratives across the whole store. It
// groups narratives by nucleus entity, scores pairs with the matcher's
// similarity and adaptive threshold, and folds each duplicate into its
// primary. A narrative takes part in at most one merge per pass; chains
// discovered mid-pass are deferred to the next run rather than resolved
// recursively, because the store may be eventually consistent.
func (s *Service) DedupPass(ctx context.Context) (DedupResult, error) {
	if s == nil || s.store == nil {
		return DedupResult{}, fmt.Errorf("narrative service is not initialized")
	}

	now := globaltime.UTC()
	groups, err := s.store.ListByNucleus(ctx)
	if err != nil {
		return DedupResult{}, fmt.Errorf("list narratives by nucleus: %w", err)
	}

	nuclei := make([]string, 0, len(groups))
	for nucleus, members := range groups {
		if len(members) >= 2 {
			nuclei = append(nuclei, nucleus)
		}
	}
	sort.Strings(nuclei)

	result := DedupResult{Groups: len(nuclei)}
	consumed := make(map[string]struct{})

	for _, nucleus := range nuclei {
		members := groups[nucleus]
		sort.Slice(members, func(i, j int) bool { return primaryBefore(members[i], members[j]) })

		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				primary, duplicate := members[i], members[j]
				if _, taken := consumed[primary.ID]; taken {
					// Primary already merged this pass: defer the chain.
					result.Deferred++
					continue
				}
				if _, taken := consumed[duplicate.ID]; taken {
					continue
				}

				result.Compared++
				score := Similarity(primary.Fingerprint, duplicate.Fingerprint)
				threshold := ThresholdFor(now.Sub(laterOf(primary.LastUpdated, duplicate.LastUpdated)), s.opts.BaseThreshold)
				if score < threshold {
					continue
				}

				if err := s.mergeDuplicate(ctx, primary, duplicate, now); err != nil {
					result.Failed++
					s.logger.Error().
						Err(err).
						Str("primary_id", primary.ID).
						Str("duplicate_id", duplicate.ID).
						Str("nucleus", nucleus).
						Msg("duplicate merge failed; both narratives left intact")
					continue
				}
				consumed[primary.ID] = struct{}{}
				consumed[duplicate.ID] = struct{}{}
				result.Merged++
			}
		}
	}

	return result, nil
}

// mergeDuplicate folds the duplicate narrative into the primary and deletes
// it, keeping merge provenance on the survivor. The pass may overlap a
// matcher cycle, so the duplicate is re-verified before the delete is
// finalized.
func (s *Service) mergeDuplicate(ctx context.Context, primary, duplicate *Narrative, now time.Time) error {
	current, err := s.store.GetNarrative(ctx, duplicate.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug().Str("duplicate_id", duplicate.ID).Msg("duplicate already gone; skipping merge")
			return nil
		}
		return fmt.Errorf("reverify duplicate %s: %w", duplicate.ID, err)
	}
	winner, err := s.store.GetNarrative(ctx, primary.ID)
	if err != nil {
		return fmt.Errorf("refetch primary %s: %w", primary.ID, err)
	}

	for _, ref := range current.Articles {
		if winner.HasArticle(ref.ID) {
			continue
		}
		winner.Articles = append(winner.Articles, ref)
	}
	winner.EntitySalience = mergeSalience(winner.EntitySalience, current.EntitySalience)

	fp, err := ComputeFingerprint(
		winner.Fingerprint.NucleusEntity,
		winner.EntitySalience,
		unionActions(winner.Fingerprint.KeyActions, current.Fingerprint.KeyActions),
		s.deny,
		now,
	)
	if err != nil {
		return fmt.Errorf("recompute merged fingerprint: %w", err)
	}
	winner.Fingerprint = fp

	first, last := dateBounds(winner.Articles)
	if !first.IsZero() && (winner.FirstSeen.IsZero() || first.Before(winner.FirstSeen)) {
		winner.FirstSeen = first
	}
	if last.After(winner.LastUpdated) {
		winner.LastUpdated = last
	}
	winner.NeedsSummaryUpdate = true
	winner.ReawakeningCount += current.ReawakeningCount
	winner.MergedFrom = append(winner.MergedFrom, MergeRecord{MergedFrom: current.ID, MergedAt: now})

	s.applyLifecycle(winner, now)

	if err := winner.Validate(); err != nil {
		return fmt.Errorf("merged narrative failed validation: %w", err)
	}
	if err := s.store.MergeInto(ctx, winner, current.ID, now); err != nil {
		return fmt.Errorf("persist merge of %s into %s: %w", current.ID, winner.ID, err)
	}
	if err := s.store.EnqueueSummaryRefresh(ctx, winner.ID, "narratives_merged"); err != nil {
		return fmt.Errorf("enqueue summary refresh for %s: %w", winner.ID, err)
	}

	s.logger.Info().
		Str("primary_id", winner.ID).
		Str("merged_from", current.ID).
		Int("article_count", winner.ArticleCount()).
		Msg("merged duplicate narrative")
	return nil
}

// primaryBefore orders candidates for primary selection: most articles,
// then most recently updated, then earliest created.
func primaryBefore(a, b *Narrative) bool {
	if a.ArticleCount() != b.ArticleCount() {
		return a.ArticleCount() > b.ArticleCount()
	}
	if !a.LastUpdated.Equal(b.LastUpdated) {
		return a.LastUpdated.After(b.LastUpdated)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
