// Package clustering partitions a candidate article set into disjoint
// clusters using pairwise lexical/entity similarity and greedy growth.
package clustering

import (
	"sort"

	"newsloom/internal/core"
	"newsloom/internal/similarity"
)

// Method is the cluster_method tag recorded on stories produced from these
// clusters.
const Method = "greedy-lexical"

// Config holds the clustering policy thresholds.
type Config struct {
	// Threshold is the minimum composite similarity for two articles to be
	// merged into one cluster.
	Threshold float64
	// MinArticles is the minimum cluster size promoted to a story.
	// Singleton clusters survive only when this permits.
	MinArticles int
}

// DefaultConfig returns the default clustering policy.
func DefaultConfig() Config {
	return Config{
		Threshold:   0.35,
		MinArticles: 2,
	}
}

// Builder partitions articles into clusters.
type Builder struct {
	config Config
}

// NewBuilder creates a cluster builder with the given policy.
func NewBuilder(config Config) *Builder {
	return &Builder{config: config}
}

// Method reports the clustering policy tag recorded on resulting stories.
func (b *Builder) Method() string {
	return Method
}

// Build partitions articles into disjoint clusters. entitySets maps article
// id to its extracted entity set. The result is deterministic: identical
// input always yields identical cluster membership, with ties resolved by
// article id ordering. An empty article list yields an empty result.
func (b *Builder) Build(articles []core.Article, entitySets map[string]core.EntitySet) []core.Cluster {
	if len(articles) == 0 {
		return nil
	}

	// Topic buckets are a cheap pre-filter: articles with different topic
	// labels are never compared.
	buckets := bucketByTopic(articles)

	bucketTopics := make([]string, 0, len(buckets))
	for topic := range buckets {
		bucketTopics = append(bucketTopics, topic)
	}
	sort.Strings(bucketTopics)

	var clusters []core.Cluster
	for _, topic := range bucketTopics {
		clusters = append(clusters, b.buildBucket(topic, buckets[topic], entitySets)...)
	}
	return clusters
}

func bucketByTopic(articles []core.Article) map[string][]core.Article {
	buckets := make(map[string][]core.Article)
	for _, a := range articles {
		buckets[a.Topic] = append(buckets[a.Topic], a)
	}
	for topic := range buckets {
		bucket := buckets[topic]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].ID < bucket[j].ID })
		buckets[topic] = bucket
	}
	return buckets
}

// buildBucket greedily grows clusters inside one topic bucket: repeatedly
// seed from the highest-similarity unclustered pair above threshold, then
// absorb remaining articles whose average similarity to all current members
// stays above threshold.
func (b *Builder) buildBucket(topic string, articles []core.Article, entitySets map[string]core.EntitySet) []core.Cluster {
	// Exact duplicates (identical content fingerprints, e.g. the same
	// article ingested twice) must land in one cluster by hash equality,
	// before similarity is consulted.
	groups, order := groupByFingerprint(articles)

	n := len(order)
	sims := make([][]float64, n)
	pairScores := make(map[string]float64)
	for i := 0; i < n; i++ {
		sims[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b2 := groups[order[i]][0], groups[order[j]][0]
			s := similarity.Score(a, b2, entitySets[a.ID], entitySets[b2.ID])
			sims[i][j] = s
			sims[j][i] = s
			pairScores[similarity.PairKey(a.ID, b2.ID)] = s
		}
	}

	clustered := make([]bool, n)
	var clusters []core.Cluster

	for {
		// Highest-similarity unclustered pair above threshold; ties break
		// toward the lexically smallest index pair, which is id order.
		bestI, bestJ, bestScore := -1, -1, b.config.Threshold
		for i := 0; i < n; i++ {
			if clustered[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if clustered[j] {
					continue
				}
				if sims[i][j] > bestScore {
					bestI, bestJ, bestScore = i, j, sims[i][j]
				}
			}
		}
		if bestI < 0 {
			break
		}

		members := []int{bestI, bestJ}
		clustered[bestI] = true
		clustered[bestJ] = true

		// Absorb by centroid: average similarity to all current members.
		for {
			bestK, bestAvg := -1, b.config.Threshold
			for k := 0; k < n; k++ {
				if clustered[k] {
					continue
				}
				total := 0.0
				for _, m := range members {
					total += sims[k][m]
				}
				avg := total / float64(len(members))
				if avg > bestAvg {
					bestK, bestAvg = k, avg
				}
			}
			if bestK < 0 {
				break
			}
			members = append(members, bestK)
			clustered[bestK] = true
		}

		clusters = append(clusters, b.assemble(topic, members, order, groups, pairScores))
	}

	// Remaining singletons survive only when the policy permits
	// single-article stories.
	if b.config.MinArticles <= 1 {
		for i := 0; i < n; i++ {
			if !clustered[i] {
				clusters = append(clusters, b.assemble(topic, []int{i}, order, groups, pairScores))
			}
		}
	}

	// Drop clusters below the promotion size after duplicate expansion.
	kept := clusters[:0]
	for _, c := range clusters {
		if len(c.Articles) >= b.config.MinArticles {
			kept = append(kept, c)
		}
	}
	return kept
}

// groupByFingerprint collapses exact-duplicate articles into one
// representative per fingerprint, remembering the full group so duplicates
// rejoin their representative's cluster. order is deterministic.
func groupByFingerprint(articles []core.Article) (map[string][]core.Article, []string) {
	groups := make(map[string][]core.Article)
	var order []string
	for _, a := range articles {
		fp := a.Fingerprint()
		if _, seen := groups[fp]; !seen {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], a)
	}
	return groups, order
}

func (b *Builder) assemble(topic string, members []int, order []string, groups map[string][]core.Article, pairScores map[string]float64) core.Cluster {
	sort.Ints(members)
	var all []core.Article
	for _, m := range members {
		all = append(all, groups[order[m]]...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	scores := make(map[string]float64)
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			key := similarity.PairKey(all[i].ID, all[j].ID)
			if s, ok := pairScores[key]; ok {
				scores[key] = s
			}
		}
	}

	return core.Cluster{
		Articles:   all,
		Topic:      topic,
		PairScores: scores,
	}
}
