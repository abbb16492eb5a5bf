package pipeline

import (
	"context"
	"time"

	"newsloom/internal/core"
	"newsloom/internal/dedup"
)

// ArticleSource serves the candidate article window.
type ArticleSource interface {
	FetchCandidateArticles(ctx context.Context, start, end time.Time) ([]core.Article, error)
}

// EntityExtractor resolves the entity set of one article. Extraction
// degrades rather than fails: implementations return an empty set on error.
type EntityExtractor interface {
	Extract(ctx context.Context, article core.Article) core.EntitySet
}

// ClusterBuilder groups articles into clusters of related coverage.
type ClusterBuilder interface {
	Build(articles []core.Article, entitySets map[string]core.EntitySet) []core.Cluster
	Method() string
}

// ClusterDeduper decides whether a cluster becomes a new story, refreshes
// an existing one, or is skipped.
type ClusterDeduper interface {
	Resolve(ctx context.Context, cluster core.Cluster) (dedup.Decision, error)
}

// StorySynthesizer produces the narrative draft for one cluster.
type StorySynthesizer interface {
	Synthesize(ctx context.Context, cluster core.Cluster, entitySets map[string]core.EntitySet) (core.StoryDraft, bool, error)
	ModelName() string
}

// StoryScorer assigns importance, freshness and quality scores.
type StoryScorer interface {
	Score(cluster core.Cluster, usedLLM bool, now time.Time) (importance, freshness, quality float64)
}

// StoryWriter is the transactional persistence surface of one run.
type StoryWriter interface {
	CreateStory(ctx context.Context, story *core.Story) error
	UpdateStory(ctx context.Context, story *core.Story) error
	LinkArticles(ctx context.Context, storyID string, links []core.StoryArticleLink) error
	Commit() error
	Rollback() error
}

// StoryStore opens the write transaction for a run.
type StoryStore interface {
	BeginRun(ctx context.Context) (StoryWriter, error)
}
