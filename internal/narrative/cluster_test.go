package narrative

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testArticle(id, nucleus string, published time.Time, actors map[string]float64, actions, tensions []string) Article {
	return Article{
		ID:          id,
		Source:      "test",
		Title:       id,
		PublishedAt: published,
		Extraction: Extraction{
			NucleusEntity: nucleus,
			Actors:        actors,
			Actions:       actions,
			Tensions:      tensions,
		},
	}
}

func TestBuildClustersGroupsByNucleus(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	articles := []Article{
		testArticle("a1", "SEC", base, map[string]float64{"SEC": 5, "Coinbase": 4}, []string{"sued"}, []string{"regulation vs innovation"}),
		testArticle("a2", "SEC", base.Add(time.Hour), map[string]float64{"SEC": 5, "Coinbase": 3}, []string{"sued"}, []string{"regulation vs innovation"}),
		testArticle("a3", "OpenAI", base.Add(2*time.Hour), map[string]float64{"OpenAI": 5}, []string{"released"}, nil),
	}

	clusters := BuildClusters(articles, DefaultClusterThreshold, zerolog.Nop())
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if clusters[0].Nucleus != "SEC" || len(clusters[0].Articles) != 2 {
		t.Fatalf("unexpected first cluster: nucleus=%q articles=%d", clusters[0].Nucleus, len(clusters[0].Articles))
	}
	if clusters[1].Nucleus != "OpenAI" || len(clusters[1].Articles) != 1 {
		t.Fatalf("unexpected second cluster: nucleus=%q articles=%d", clusters[1].Nucleus, len(clusters[1].Articles))
	}
}

func TestBuildClustersSkipsEmptyNucleus(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	articles := []Article{
		testArticle("a1", "", base, map[string]float64{"Someone": 3}, []string{"did"}, nil),
		testArticle("a2", "SEC", base, map[string]float64{"SEC": 5}, []string{"sued"}, nil),
	}

	clusters := BuildClusters(articles, DefaultClusterThreshold, zerolog.Nop())
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	for _, c := range clusters {
		if c.Nucleus == "" {
			t.Fatal("cluster with empty nucleus must never be produced")
		}
	}
}

func TestBuildClustersSubdividesDisjointActorSets(t *testing.T) {
	t.Parallel()

	// Same nucleus, zero actor and tension overlap: two separate stories
	// about the same entity.
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	articles := []Article{
		testArticle("a1", "Apple", base, map[string]float64{"Apple": 5, "EU": 4}, []string{"fined"}, []string{"antitrust"}),
		testArticle("a2", "Apple", base.Add(time.Hour), map[string]float64{"Apple": 5, "EU": 4}, []string{"fined"}, []string{"antitrust"}),
		testArticle("a3", "Apple", base.Add(2*time.Hour), map[string]float64{"Foxconn": 4, "Zhengzhou": 2}, []string{"expanded"}, []string{"supply chain"}),
	}

	clusters := BuildClusters(articles, DefaultClusterThreshold, zerolog.Nop())
	if len(clusters) != 2 {
		t.Fatalf("expected subdivision into 2 clusters, got %d", len(clusters))
	}
	if len(clusters[0].Articles) != 2 || len(clusters[1].Articles) != 1 {
		t.Fatalf("unexpected split: %d and %d articles", len(clusters[0].Articles), len(clusters[1].Articles))
	}
}

func TestClusterAggregatesSalienceAveraged(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	articles := []Article{
		testArticle("a1", "SEC", base, map[string]float64{"SEC": 5, "Coinbase": 4}, []string{"sued"}, nil),
		testArticle("a2", "SEC", base.Add(time.Hour), map[string]float64{"SEC": 5, "Coinbase": 2}, []string{"sued", "fined"}, nil),
	}

	clusters := BuildClusters(articles, DefaultClusterThreshold, zerolog.Nop())
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}

	cluster := clusters[0]
	if got := cluster.Salience["Coinbase"]; got != 3 {
		t.Fatalf("Coinbase salience: got %v, want 3 (average of 4 and 2)", got)
	}
	if got := cluster.Salience["SEC"]; got != 5 {
		t.Fatalf("SEC salience: got %v, want 5", got)
	}
	if len(cluster.Actions) != 2 {
		t.Fatalf("expected deduplicated actions [sued fined], got %v", cluster.Actions)
	}
}

func TestClusterRefsSortedByPublishTime(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	cluster := Cluster{
		Articles: []Article{
			testArticle("late", "X", base.Add(4*time.Hour), nil, nil, nil),
			testArticle("early", "X", base, nil, nil, nil),
			testArticle("mid", "X", base.Add(2*time.Hour), nil, nil, nil),
		},
	}

	refs := cluster.Refs()
	want := []string{"early", "mid", "late"}
	for i, id := range want {
		if refs[i].ID != id {
			t.Fatalf("ref %d: got %q, want %q", i, refs[i].ID, id)
		}
	}
}

func TestWeightedActorJaccard(t *testing.T) {
	t.Parallel()

	left := map[string]float64{"A": 4, "B": 2}
	right := map[string]float64{"A": 2, "C": 2}

	// intersection: min(4,2)=2; union: max(4,2)+2+2 = 8.
	got := weightedActorJaccard(left, right)
	if got != 0.25 {
		t.Fatalf("weighted jaccard: got %v, want 0.25", got)
	}

	if got := weightedActorJaccard(nil, right); got != 0 {
		t.Fatalf("empty side must score 0, got %v", got)
	}
}
