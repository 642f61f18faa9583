package narrative

import (
	"sort"

	"github.com/rs/zerolog"
)

// DefaultClusterThreshold is the intra-batch grouping threshold used when
// subdividing a nucleus group by actor/tension overlap.
const DefaultClusterThreshold = 0.3

const (
	clusterActorWeight   = 0.7
	clusterTensionWeight = 0.3
)

// Cluster is a candidate narrative built from one extraction batch.
type Cluster struct {
	Nucleus  string
	Articles []Article
	Salience map[string]float64
	Actions  []string
	Tensions []string
}

// Refs returns the article refs of the cluster ordered by publish time.
func (c *Cluster) Refs() []ArticleRef {
	refs := make([]ArticleRef, 0, len(c.Articles))
	for _, a := range c.Articles {
		refs = append(refs, ArticleRef{ID: a.ID, PublishedAt: a.PublishedAt})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].PublishedAt.Before(refs[j].PublishedAt) })
	return refs
}

// BuildClusters groups a batch of extracted articles into candidate clusters.
// Articles are grouped by exact nucleus entity first, then each group is
// subdivided by salience-weighted actor/tension overlap against the grouping
// threshold. Articles whose extraction yielded no nucleus are skipped.
func BuildClusters(articles []Article, threshold float64, logger zerolog.Logger) []Cluster {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}

	byNucleus := make(map[string][]Article)
	order := make([]string, 0)
	for _, a := range articles {
		nucleus := a.Extraction.NucleusEntity
		if nucleus == "" {
			logger.Debug().Str("article_id", a.ID).Msg("skipping article without nucleus entity")
			continue
		}
		if _, seen := byNucleus[nucleus]; !seen {
			order = append(order, nucleus)
		}
		byNucleus[nucleus] = append(byNucleus[nucleus], a)
	}

	var clusters []Cluster
	for _, nucleus := range order {
		clusters = append(clusters, subdivideGroup(nucleus, byNucleus[nucleus], threshold)...)
	}
	return clusters
}

// subdivideGroup splits one nucleus group into clusters using a greedy
// best-fit pass: each article joins the highest-overlap subcluster above
// the threshold, or starts a new one.
func subdivideGroup(nucleus string, group []Article, threshold float64) []Cluster {
	var buckets [][]Article
	for _, a := range group {
		bestIdx := -1
		bestScore := 0.0
		for i, bucket := range buckets {
			score := batchOverlap(a, bucket)
			if score >= threshold && score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx >= 0 {
			buckets[bestIdx] = append(buckets[bestIdx], a)
			continue
		}
		buckets = append(buckets, []Article{a})
	}

	clusters := make([]Cluster, 0, len(buckets))
	for _, bucket := range buckets {
		clusters = append(clusters, aggregateCluster(nucleus, bucket))
	}
	return clusters
}

// batchOverlap scores an article against an existing bucket by combining
// salience-weighted actor overlap with tension overlap.
func batchOverlap(a Article, bucket []Article) float64 {
	actors := averageSalience(bucket)
	tensions := make(map[string]struct{})
	for _, member := range bucket {
		for _, t := range member.Extraction.Tensions {
			tensions[t] = struct{}{}
		}
	}

	actorScore := weightedActorJaccard(a.Extraction.Actors, actors)
	tensionScore := stringSetJaccard(stringSet(a.Extraction.Tensions), tensions)
	return clusterActorWeight*actorScore + clusterTensionWeight*tensionScore
}

// weightedActorJaccard is Jaccard over actor names where each name
// contributes its salience: min over the intersection, max over the union.
func weightedActorJaccard(left, right map[string]float64) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	var intersection, union float64
	for name, ls := range left {
		if rs, ok := right[name]; ok {
			intersection += minFloat(ls, rs)
			union += maxFloat(ls, rs)
		} else {
			union += ls
		}
	}
	for name, rs := range right {
		if _, ok := left[name]; !ok {
			union += rs
		}
	}
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func aggregateCluster(nucleus string, bucket []Article) Cluster {
	salience := averageSalience(bucket)

	actionSeen := make(map[string]struct{})
	var actions []string
	tensionSeen := make(map[string]struct{})
	var tensions []string
	nucleusVotes := make(map[string]int, 1)
	for _, a := range bucket {
		nucleusVotes[a.Extraction.NucleusEntity]++
		for _, action := range a.Extraction.Actions {
			if _, dup := actionSeen[action]; dup {
				continue
			}
			actionSeen[action] = struct{}{}
			actions = append(actions, action)
		}
		for _, tension := range a.Extraction.Tensions {
			if _, dup := tensionSeen[tension]; dup {
				continue
			}
			tensionSeen[tension] = struct{}{}
			tensions = append(tensions, tension)
		}
	}

	return Cluster{
		Nucleus:  majorityVote(nucleusVotes, nucleus),
		Articles: bucket,
		Salience: salience,
		Actions:  actions,
		Tensions: tensions,
	}
}

// averageSalience averages each actor's salience across the articles that
// mention it.
func averageSalience(articles []Article) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, a := range articles {
		for name, score := range a.Extraction.Actors {
			sums[name] += score
			counts[name]++
		}
	}

	averaged := make(map[string]float64, len(sums))
	for name, sum := range sums {
		averaged[name] = sum / float64(counts[name])
	}
	return averaged
}

func majorityVote(votes map[string]int, fallback string) string {
	winner := fallback
	best := 0
	for value, count := range votes {
		if count > best || (count == best && value < winner) {
			winner = value
			best = count
		}
	}
	return winner
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func stringSetJaccard(left, right map[string]struct{}) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	intersection := 0
	for v := range left {
		if _, ok := right[v]; ok {
			intersection++
		}
	}
	union := len(left) + len(right) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
