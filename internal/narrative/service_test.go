package narrative

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/narratives/internal/globaltime"
)

// fakeStore is an in-memory Store. It returns copies the way a database
// round-trip would, so service-side mutations only land via writes.
type fakeStore struct {
	narratives map[string]*Narrative
	assigned   map[string]string
	tasks      []string
	mergeLog   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		narratives: make(map[string]*Narrative),
		assigned:   make(map[string]string),
	}
}

func cloneNarrative(n *Narrative) *Narrative {
	clone := *n
	clone.Articles = append([]ArticleRef(nil), n.Articles...)
	clone.History = append([]LifecycleEntry(nil), n.History...)
	clone.MergedFrom = append([]MergeRecord(nil), n.MergedFrom...)
	clone.EntitySalience = make(map[string]float64, len(n.EntitySalience))
	for k, v := range n.EntitySalience {
		clone.EntitySalience[k] = v
	}
	actors := make(map[string]float64, len(n.Fingerprint.TopActors))
	for k, v := range n.Fingerprint.TopActors {
		actors[k] = v
	}
	clone.Fingerprint.TopActors = actors
	clone.Fingerprint.KeyActions = append([]string(nil), n.Fingerprint.KeyActions...)
	return &clone
}

func (f *fakeStore) seed(n *Narrative) {
	f.narratives[n.ID] = cloneNarrative(n)
	for _, ref := range n.Articles {
		f.assigned[ref.ID] = n.ID
	}
}

func (f *fakeStore) CandidatesUpdatedSince(_ context.Context, cutoff time.Time) ([]*Narrative, error) {
	var out []*Narrative
	for _, n := range f.narratives {
		if !n.LastUpdated.Before(cutoff) {
			out = append(out, cloneNarrative(n))
		}
	}
	return out, nil
}

func (f *fakeStore) GetNarrative(_ context.Context, id string) (*Narrative, error) {
	n, ok := f.narratives[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNarrative(n), nil
}

func (f *fakeStore) ListByNucleus(_ context.Context) (map[string][]*Narrative, error) {
	grouped := make(map[string][]*Narrative)
	for _, n := range f.narratives {
		key := n.Fingerprint.NucleusEntity
		grouped[key] = append(grouped[key], cloneNarrative(n))
	}
	return grouped, nil
}

func (f *fakeStore) CreateNarrative(_ context.Context, n *Narrative) error {
	for _, existing := range f.narratives {
		if existing.Fingerprint.NucleusEntity == n.Fingerprint.NucleusEntity {
			return ErrDuplicateNucleus
		}
	}
	f.seed(n)
	return nil
}

func (f *fakeStore) UpdateNarrative(_ context.Context, n *Narrative) error {
	if _, ok := f.narratives[n.ID]; !ok {
		return ErrNotFound
	}
	f.narratives[n.ID] = cloneNarrative(n)
	for _, ref := range n.Articles {
		f.assigned[ref.ID] = n.ID
	}
	return nil
}

func (f *fakeStore) MergeInto(_ context.Context, winner *Narrative, loserID string, _ time.Time) error {
	if _, ok := f.narratives[loserID]; !ok {
		return ErrNotFound
	}
	if _, ok := f.narratives[winner.ID]; !ok {
		return ErrNotFound
	}
	delete(f.narratives, loserID)
	f.narratives[winner.ID] = cloneNarrative(winner)
	for _, ref := range winner.Articles {
		f.assigned[ref.ID] = winner.ID
	}
	f.mergeLog = append(f.mergeLog, loserID+"->"+winner.ID)
	return nil
}

func (f *fakeStore) EnqueueSummaryRefresh(_ context.Context, narrativeID, reason string) error {
	f.tasks = append(f.tasks, narrativeID+":"+reason)
	return nil
}

func (f *fakeStore) AssignedArticleIDs(_ context.Context, articleIDs []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, id := range articleIDs {
		if _, ok := f.assigned[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func newTestService(store Store, deny *DenyList) *Service {
	return NewService(store, deny, zerolog.Nop(), Options{})
}

func singleNarrative(t *testing.T, store *fakeStore) *Narrative {
	t.Helper()
	if len(store.narratives) != 1 {
		t.Fatalf("expected exactly 1 narrative in store, got %d", len(store.narratives))
	}
	for _, n := range store.narratives {
		return n
	}
	return nil
}

func TestCycleCreatesNarrative(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store, nil)

	first := now.Add(-30 * time.Hour)
	last := now.Add(-2 * time.Hour)
	articles := []Article{
		testArticle("a1", "SEC", first, map[string]float64{"SEC": 5, "Coinbase": 4}, []string{"sued"}, nil),
		testArticle("a2", "SEC", last, map[string]float64{"SEC": 5, "Coinbase": 3}, []string{"sued", "charged"}, nil),
	}
	articles[0].Extraction.Summary = "The SEC sued Coinbase."

	result, err := svc.Cycle(context.Background(), articles)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Created != 1 || result.Merged != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	n := singleNarrative(t, store)
	if !n.FirstSeen.Equal(first) {
		t.Fatalf("first_seen: got %v, want %v", n.FirstSeen, first)
	}
	if !n.LastUpdated.Equal(last) {
		t.Fatalf("last_updated must come from article dates: got %v, want %v", n.LastUpdated, last)
	}
	if n.LastUpdated.Before(n.FirstSeen) {
		t.Fatal("first_seen must not exceed last_updated")
	}
	if n.Fingerprint.NucleusEntity != "SEC" {
		t.Fatalf("nucleus: got %q", n.Fingerprint.NucleusEntity)
	}
	if n.Summary != "The SEC sued Coinbase." {
		t.Fatalf("summary: got %q", n.Summary)
	}
	if !strings.HasPrefix(n.Title, "SEC: ") {
		t.Fatalf("title: got %q", n.Title)
	}
	if len(n.History) == 0 {
		t.Fatal("expected an initial lifecycle history entry")
	}
	if n.State != StateEmerging {
		t.Fatalf("state: got %v, want emerging", n.State)
	}
}

func TestCycleIdempotentRerun(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store, nil)

	articles := []Article{
		testArticle("a1", "SEC", now.Add(-3*time.Hour), map[string]float64{"SEC": 5}, []string{"sued"}, nil),
		testArticle("a2", "SEC", now.Add(-2*time.Hour), map[string]float64{"SEC": 5}, []string{"sued"}, nil),
	}

	if _, err := svc.Cycle(context.Background(), articles); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	before := singleNarrative(t, store)
	beforeCount := before.ArticleCount()

	result, err := svc.Cycle(context.Background(), articles)
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if result.AlreadyAssigned != 2 {
		t.Fatalf("already assigned: got %d, want 2", result.AlreadyAssigned)
	}
	if result.Created != 0 || result.Merged != 0 {
		t.Fatalf("rerun must be a no-op, got %+v", result)
	}

	after := singleNarrative(t, store)
	if after.ArticleCount() != beforeCount {
		t.Fatalf("article count changed on rerun: %d -> %d", beforeCount, after.ArticleCount())
	}
}

func TestCycleMergesIntoRecentNarrative(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store, nil)

	seedFirst := now.Add(-36 * time.Hour)
	seed := &Narrative{
		ID:             "existing",
		Title:          "SEC: sued",
		Fingerprint:    fp("SEC", map[string]float64{"Coinbase": 4}, []string{"sued", "charged", "fined"}),
		Articles:       []ArticleRef{{ID: "old-1", PublishedAt: seedFirst}},
		EntitySalience: map[string]float64{"Coinbase": 4},
		State:          StateEmerging,
		FirstSeen:      seedFirst,
		LastUpdated:    now.Add(-10 * time.Hour),
		Momentum:       MomentumUnknown,
		CreatedAt:      seedFirst,
	}
	store.seed(seed)

	// Similarity 0.54: same nucleus, disjoint actors, 1 of 5 actions
	// shared. Clears only the relaxed threshold.
	articles := []Article{
		testArticle("new-1", "SEC", now.Add(-2*time.Hour), map[string]float64{"Ripple": 4}, []string{"sued", "won", "appealed"}, nil),
	}

	result, err := svc.Cycle(context.Background(), articles)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Merged != 1 || result.Created != 0 {
		t.Fatalf("expected merge into recent narrative, got %+v", result)
	}

	n := singleNarrative(t, store)
	if n.ArticleCount() != 2 {
		t.Fatalf("article count after merge: got %d, want 2", n.ArticleCount())
	}
	if !n.FirstSeen.Equal(seedFirst) {
		t.Fatalf("first_seen moved: got %v, want %v", n.FirstSeen, seedFirst)
	}
	if !n.LastUpdated.Equal(now.Add(-2 * time.Hour)) {
		t.Fatalf("last_updated: got %v, want newest article date", n.LastUpdated)
	}
	if !n.NeedsSummaryUpdate {
		t.Fatal("merge must flag the summary as stale")
	}
	if len(store.tasks) != 1 || store.tasks[0] != "existing:fingerprint_changed" {
		t.Fatalf("summary task log: got %v", store.tasks)
	}
}

func TestCycleStaleNarrativeNotMerged(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store, nil)

	seedFirst := now.Add(-10 * 24 * time.Hour)
	store.seed(&Narrative{
		ID:             "stale",
		Title:          "SEC: sued",
		Fingerprint:    fp("SEC", map[string]float64{"Coinbase": 4}, []string{"sued", "charged", "fined"}),
		Articles:       []ArticleRef{{ID: "old-1", PublishedAt: seedFirst}},
		EntitySalience: map[string]float64{"Coinbase": 4},
		State:          StateCooling,
		FirstSeen:      seedFirst,
		LastUpdated:    now.Add(-5 * 24 * time.Hour),
		Momentum:       MomentumUnknown,
		CreatedAt:      seedFirst,
	})

	articles := []Article{
		testArticle("new-1", "SEC", now.Add(-2*time.Hour), map[string]float64{"Ripple": 4}, []string{"sued", "won", "appealed"}, nil),
	}

	result, err := svc.Cycle(context.Background(), articles)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	// 0.54 does not clear the settled 0.6 threshold, and the twin defense
	// blocks a second active SEC narrative, so the cluster is deferred.
	if result.Merged != 0 || result.Created != 0 || result.Failed != 0 {
		t.Fatalf("expected deferred cluster, got %+v", result)
	}

	n := singleNarrative(t, store)
	if n.ArticleCount() != 1 {
		t.Fatalf("stale narrative must be untouched, got %d articles", n.ArticleCount())
	}
}

func TestCycleDropsDenyListedCluster(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store, NewDenyList([]string{"Taboola"}))

	articles := []Article{
		testArticle("ad-1", "Taboola", now.Add(-time.Hour), map[string]float64{"Taboola": 5}, []string{"promoted"}, nil),
	}

	result, err := svc.Cycle(context.Background(), articles)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Dropped != 1 || result.Created != 0 {
		t.Fatalf("expected deny-listed drop, got %+v", result)
	}
	if len(store.narratives) != 0 {
		t.Fatalf("deny-listed cluster must not persist, got %d narratives", len(store.narratives))
	}
}

func TestCycleBackfillCreatesDormantNarrative(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(now)
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store, nil)

	// A backfilled batch published a month ago: the narrative's clock
	// fields come from article dates, so it is born dormant.
	old := now.Add(-30 * 24 * time.Hour)
	articles := []Article{
		testArticle("b1", "Evergrande", old, map[string]float64{"Evergrande": 5}, []string{"defaulted"}, nil),
		testArticle("b2", "Evergrande", old.Add(4*time.Hour), map[string]float64{"Evergrande": 5}, []string{"defaulted"}, nil),
	}

	if _, err := svc.Cycle(context.Background(), articles); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	n := singleNarrative(t, store)
	if !n.LastUpdated.Equal(old.Add(4 * time.Hour)) {
		t.Fatalf("last_updated: got %v, want backfilled article date", n.LastUpdated)
	}
	if n.State != StateDormant {
		t.Fatalf("state: got %v, want dormant for month-old activity", n.State)
	}
	if n.MentionVelocity != 0 {
		t.Fatalf("velocity: got %v, want 0", n.MentionVelocity)
	}
}
