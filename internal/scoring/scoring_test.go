package scoring

import (
	"fmt"
	"testing"
	"time"

	"newsloom/internal/core"
)

func clusterOfSize(n int, published time.Time) core.Cluster {
	var articles []core.Article
	for i := 0; i < n; i++ {
		articles = append(articles, core.Article{
			ID:        fmt.Sprintf("a%d", i),
			Published: published,
		})
	}
	return core.Cluster{Articles: articles, Topic: "tech"}
}

func TestImportance_GrowsWithClusterSize(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	now := time.Now()

	prev := scorer.Importance(clusterOfSize(1, now))
	for n := 2; n <= 12; n++ {
		cur := scorer.Importance(clusterOfSize(n, now))
		if cur <= prev {
			t.Errorf("Importance should grow with cluster size: size %d scored %f, size %d scored %f", n-1, prev, n, cur)
		}
		prev = cur
	}
}

func TestImportance_ReputationRaisesScore(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	now := time.Now()

	lowRep := clusterOfSize(3, now)
	highRep := clusterOfSize(3, now)
	for i := range lowRep.Articles {
		lowRep.Articles[i].SourceReputation = 0.1
		highRep.Articles[i].SourceReputation = 0.9
	}

	if scorer.Importance(highRep) <= scorer.Importance(lowRep) {
		t.Error("Higher source reputation should raise importance")
	}
}

func TestImportance_EmptyCluster(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	if score := scorer.Importance(core.Cluster{}); score != 0 {
		t.Errorf("Empty cluster should score 0 importance, got %f", score)
	}
}

func TestFreshness_DecaysToZero(t *testing.T) {
	scorer := NewScorer(Config{FreshnessHorizon: 48 * time.Hour})
	now := time.Now()

	fresh := scorer.Freshness(clusterOfSize(2, now), now)
	if fresh != 1.0 {
		t.Errorf("Brand new cluster should score 1.0 freshness, got %f", fresh)
	}

	half := scorer.Freshness(clusterOfSize(2, now.Add(-24*time.Hour)), now)
	if half < 0.49 || half > 0.51 {
		t.Errorf("Cluster at half horizon should score ~0.5 freshness, got %f", half)
	}

	stale := scorer.Freshness(clusterOfSize(2, now.Add(-72*time.Hour)), now)
	if stale != 0 {
		t.Errorf("Cluster past horizon should score 0 freshness, got %f", stale)
	}
}

func TestFreshness_UsesNewestArticle(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	now := time.Now()

	cluster := core.Cluster{Articles: []core.Article{
		{ID: "old", Published: now.Add(-100 * time.Hour)},
		{ID: "new", Published: now},
	}}
	if fresh := scorer.Freshness(cluster, now); fresh != 1.0 {
		t.Errorf("Freshness should follow the newest article, got %f", fresh)
	}
}

func TestScore_LLMBonus(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	now := time.Now()
	cluster := clusterOfSize(3, now)

	_, _, withLLM := scorer.Score(cluster, true, now)
	_, _, without := scorer.Score(cluster, false, now)

	if withLLM <= without {
		t.Errorf("Model-backed synthesis should score higher quality: %f vs %f", withLLM, without)
	}
}

func TestScore_Bounds(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	now := time.Now()

	// A huge fresh high-reputation cluster must still stay within [0,1].
	cluster := clusterOfSize(50, now)
	for i := range cluster.Articles {
		cluster.Articles[i].SourceReputation = 1.0
	}

	importance, freshness, quality := scorer.Score(cluster, true, now)
	for name, v := range map[string]float64{"importance": importance, "freshness": freshness, "quality": quality} {
		if v < 0 || v > 1 {
			t.Errorf("%s out of bounds: %f", name, v)
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	scorer := NewScorer(DefaultConfig())
	now := time.Now()
	cluster := clusterOfSize(4, now.Add(-6*time.Hour))

	i1, f1, q1 := scorer.Score(cluster, true, now)
	i2, f2, q2 := scorer.Score(cluster, true, now)
	if i1 != i2 || f1 != f2 || q1 != q2 {
		t.Error("Identical input should produce identical scores")
	}
}
