package narrative

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/narratives/internal/globaltime"
)

// Options carries the engine tunables. Zero values fall back to the
// documented defaults.
type Options struct {
	BaseThreshold      float64
	CandidateWindow    time.Duration
	ClusterThreshold   float64
	VelocityWindowDays int
}

func (o Options) withDefaults() Options {
	if o.BaseThreshold <= 0 {
		o.BaseThreshold = DefaultMatchThreshold
	}
	if o.CandidateWindow <= 0 {
		o.CandidateWindow = DefaultCandidateWindow
	}
	if o.ClusterThreshold <= 0 {
		o.ClusterThreshold = DefaultClusterThreshold
	}
	if o.VelocityWindowDays <= 0 {
		o.VelocityWindowDays = DefaultVelocityWindowDays
	}
	return o
}

// Service runs the per-cycle matching pipeline and the batch reconciliation
// pass against a Store.
type Service struct {
	store  Store
	deny   *DenyList
	logger zerolog.Logger
	opts   Options
}

// NewService wires the engine. deny may be nil when no deny-list is
// configured.
func NewService(store Store, deny *DenyList, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		store:  store,
		deny:   deny,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// CycleResult summarizes one matcher cycle.
type CycleResult struct {
	Articles        int
	AlreadyAssigned int
	SkippedArticles int
	Clusters        int
	Merged          int
	Created         int
	Dropped         int
	Failed          int
}

// Cycle ingests one batch of extracted articles: clusters them, matches each
// cluster against the candidate narrative window, and merges or creates.
// A failing cluster is logged and skipped; the rest of the batch continues.
// Re-running the same batch is idempotent: articles already assigned to a
// narrative are excluded before clustering.
func (s *Service) Cycle(ctx context.Context, articles []Article) (CycleResult, error) {
	if s == nil || s.store == nil {
		return CycleResult{}, fmt.Errorf("narrative service is not initialized")
	}

	now := globaltime.UTC()
	result := CycleResult{Articles: len(articles)}

	fresh, err := s.excludeAssigned(ctx, articles, &result)
	if err != nil {
		return result, err
	}

	clusters := BuildClusters(fresh, s.opts.ClusterThreshold, s.logger)
	result.Clusters = len(clusters)
	result.SkippedArticles = countArticles(fresh) - countClustered(clusters)

	candidates, err := s.store.CandidatesUpdatedSince(ctx, now.Add(-s.opts.CandidateWindow))
	if err != nil {
		return result, fmt.Errorf("query candidate narratives: %w", err)
	}

	// A narrative is the merge target of at most one cluster per run;
	// consumed targets drop out of the candidate snapshot.
	consumed := make(map[string]struct{})

	for _, cluster := range clusters {
		if err := s.processCluster(ctx, cluster, candidates, consumed, now, &result); err != nil {
			result.Failed++
			s.logger.Error().
				Err(err).
				Str("nucleus", cluster.Nucleus).
				Int("articles", len(cluster.Articles)).
				Msg("cluster processing failed; continuing batch")
		}
	}

	return result, nil
}

func (s *Service) excludeAssigned(ctx context.Context, articles []Article, result *CycleResult) ([]Article, error) {
	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}
	assigned, err := s.store.AssignedArticleIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("query assigned articles: %w", err)
	}

	fresh := make([]Article, 0, len(articles))
	for _, a := range articles {
		if _, ok := assigned[a.ID]; ok {
			result.AlreadyAssigned++
			continue
		}
		fresh = append(fresh, a)
	}
	return fresh, nil
}

func (s *Service) processCluster(ctx context.Context, cluster Cluster, candidates []*Narrative, consumed map[string]struct{}, now time.Time, result *CycleResult) error {
	fp, err := ComputeFingerprint(cluster.Nucleus, cluster.Salience, cluster.Actions, s.deny, now)
	if err != nil {
		if errors.Is(err, ErrDenyListed) {
			result.Dropped++
			s.logger.Info().Str("nucleus", cluster.Nucleus).Msg("dropping deny-listed cluster")
			return nil
		}
		return fmt.Errorf("compute cluster fingerprint: %w", err)
	}

	available := make([]*Narrative, 0, len(candidates))
	for _, c := range candidates {
		if _, taken := consumed[c.ID]; taken {
			continue
		}
		available = append(available, c)
	}

	match := SelectMatch(fp, available, now, s.opts.BaseThreshold)
	if match == nil {
		created, err := s.createFromCluster(ctx, cluster, fp, now)
		if err != nil {
			return err
		}
		if created {
			result.Created++
		}
		return nil
	}

	// Re-fetch before applying: an earlier store write or a concurrent
	// dedup pass may have moved the target since the snapshot was taken.
	target, err := s.store.GetNarrative(ctx, match.Narrative.ID)
	if err != nil {
		return fmt.Errorf("refetch merge target %s: %w", match.Narrative.ID, err)
	}

	if err := s.mergeClusterInto(ctx, target, cluster, now); err != nil {
		return err
	}
	consumed[target.ID] = struct{}{}
	result.Merged++

	s.logger.Info().
		Str("narrative_id", target.ID).
		Str("nucleus", target.Fingerprint.NucleusEntity).
		Float64("similarity", match.Similarity).
		Int("article_count", target.ArticleCount()).
		Msg("merged cluster into narrative")
	return nil
}

// mergeClusterInto folds a cluster into an existing narrative: article set
// union, averaged shared salience, recomputed fingerprint, date-derived
// last_updated, stale-summary flag, and a lifecycle re-evaluation.
func (s *Service) mergeClusterInto(ctx context.Context, target *Narrative, cluster Cluster, now time.Time) error {
	for _, ref := range cluster.Refs() {
		if target.HasArticle(ref.ID) {
			continue
		}
		target.Articles = append(target.Articles, ref)
	}

	target.EntitySalience = mergeSalience(target.EntitySalience, cluster.Salience)

	fp, err := ComputeFingerprint(
		target.Fingerprint.NucleusEntity,
		target.EntitySalience,
		unionActions(target.Fingerprint.KeyActions, cluster.Actions),
		s.deny,
		now,
	)
	if err != nil {
		return fmt.Errorf("recompute fingerprint: %w", err)
	}
	target.Fingerprint = fp

	// last_updated comes from article data, never from the wall clock, so
	// first_seen <= last_updated holds by construction.
	first, last := dateBounds(target.Articles)
	if first.Before(target.FirstSeen) || target.FirstSeen.IsZero() {
		target.FirstSeen = first
	}
	target.LastUpdated = last
	target.NeedsSummaryUpdate = true

	s.applyLifecycle(target, now)

	if err := target.Validate(); err != nil {
		return fmt.Errorf("merged narrative failed validation: %w", err)
	}
	if err := s.store.UpdateNarrative(ctx, target); err != nil {
		return fmt.Errorf("update narrative %s: %w", target.ID, err)
	}
	if err := s.store.EnqueueSummaryRefresh(ctx, target.ID, "fingerprint_changed"); err != nil {
		return fmt.Errorf("enqueue summary refresh for %s: %w", target.ID, err)
	}
	return nil
}

func (s *Service) createFromCluster(ctx context.Context, cluster Cluster, fp Fingerprint, now time.Time) (bool, error) {
	refs := cluster.Refs()
	if len(refs) == 0 {
		return false, nil
	}
	first, last := dateBounds(refs)

	n := &Narrative{
		ID:             uuid.NewString(),
		Title:          titleFor(fp),
		Summary:        summaryFor(cluster),
		Fingerprint:    fp,
		Articles:       refs,
		EntitySalience: cluster.Salience,
		FirstSeen:      first,
		LastUpdated:    last,
		Momentum:       MomentumUnknown,
		CreatedAt:      now,
	}
	s.applyLifecycle(n, now)

	if err := n.Validate(); err != nil {
		return false, fmt.Errorf("new narrative failed validation: %w", err)
	}
	if err := s.store.CreateNarrative(ctx, n); err != nil {
		if errors.Is(err, ErrDuplicateNucleus) {
			// A concurrent cycle created the twin first; this cluster's
			// articles will match it on the next run.
			s.logger.Warn().Str("nucleus", fp.NucleusEntity).Msg("duplicate nucleus on create; deferring cluster")
			return false, nil
		}
		return false, fmt.Errorf("create narrative for nucleus %q: %w", fp.NucleusEntity, err)
	}

	s.logger.Info().
		Str("narrative_id", n.ID).
		Str("nucleus", fp.NucleusEntity).
		Int("article_count", n.ArticleCount()).
		Str("state", string(n.State)).
		Msg("created narrative")
	return true, nil
}

func (s *Service) applyLifecycle(n *Narrative, now time.Time) {
	prev := n.State
	if prev == "" {
		prev = StateEmerging
	}
	outcome := EvaluateLifecycle(prev, articleDates(n.Articles), n.LastUpdated, now, s.opts.VelocityWindowDays)

	n.MentionVelocity = outcome.Velocity
	n.Momentum = outcome.Momentum
	if outcome.Reawakened {
		n.ReawakeningCount++
		n.ResurrectionVel = outcome.ResurrectionVel
	}
	if outcome.State != n.State || len(n.History) == 0 {
		n.History = append(n.History, LifecycleEntry{
			State:        outcome.State,
			At:           now,
			ArticleCount: n.ArticleCount(),
			Velocity:     outcome.Velocity,
		})
	}
	n.State = outcome.State
}

// mergeSalience averages scores for entities present on both sides and
// carries single-side entities unchanged.
func mergeSalience(left, right map[string]float64) map[string]float64 {
	merged := make(map[string]float64, len(left)+len(right))
	for name, score := range left {
		merged[name] = score
	}
	for name, score := range right {
		if existing, shared := merged[name]; shared {
			merged[name] = (existing + score) / 2
		} else {
			merged[name] = score
		}
	}
	return merged
}

func unionActions(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	union := make([]string, 0, len(existing)+len(incoming))
	for _, action := range append(append([]string{}, existing...), incoming...) {
		if _, dup := seen[action]; dup {
			continue
		}
		seen[action] = struct{}{}
		union = append(union, action)
	}
	return union
}

func dateBounds(refs []ArticleRef) (first, last time.Time) {
	for _, ref := range refs {
		if first.IsZero() || ref.PublishedAt.Before(first) {
			first = ref.PublishedAt
		}
		if ref.PublishedAt.After(last) {
			last = ref.PublishedAt
		}
	}
	return first, last
}

func articleDates(refs []ArticleRef) []time.Time {
	dates := make([]time.Time, 0, len(refs))
	for _, ref := range refs {
		dates = append(dates, ref.PublishedAt)
	}
	return dates
}

func titleFor(fp Fingerprint) string {
	if len(fp.KeyActions) > 0 {
		return fp.NucleusEntity + ": " + fp.KeyActions[0]
	}
	return fp.NucleusEntity
}

func summaryFor(cluster Cluster) string {
	sorted := make([]Article, len(cluster.Articles))
	copy(sorted, cluster.Articles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PublishedAt.Before(sorted[j].PublishedAt) })
	for _, a := range sorted {
		if summary := strings.TrimSpace(a.Extraction.Summary); summary != "" {
			return summary
		}
	}
	return ""
}

func countArticles(articles []Article) int {
	return len(articles)
}

func countClustered(clusters []Cluster) int {
	total := 0
	for _, c := range clusters {
		total += len(c.Articles)
	}
	return total
}
