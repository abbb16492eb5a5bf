package core

import (
	"encoding/hex"
	"hash/fnv"
	"sort"
	"strings"
	"time"
)

// Story lifecycle states.
const (
	StoryStatusActive   = "active"
	StoryStatusArchived = "archived"
)

// Reason codes explaining why a generation run produced the stories it did.
// A zero-story run is always attributable to exactly one of these.
const (
	ReasonOK                       = "ok"
	ReasonNoCandidateArticles      = "no_candidate_articles"
	ReasonNoClustersAboveThreshold = "no_clusters_above_threshold"
	ReasonAllClustersDeduplicated  = "all_clusters_deduplicated"
	ReasonCancelled                = "cancelled"
	ReasonFailed                   = "failed"
)

// Article is a timestamped document harvested from an external feed.
// Articles are owned by the ingestion collaborator and are read-only here:
// the pipeline reads a time window of them and never mutates them.
type Article struct {
	ID               string     `json:"id"`                        // Unique identifier for the article
	Title            string     `json:"title"`                     // Title of the article
	Summary          string     `json:"summary"`                   // Cleaned body/summary text
	Topic            string     `json:"topic"`                     // Topic label assigned at ingestion
	Source           string     `json:"source"`                    // Source feed identifier
	SourceReputation float64    `json:"source_reputation"`         // Per-source reputation in [0,1], 0 means unknown
	Published        time.Time  `json:"published"`                 // Publication timestamp
	CachedEntities   *EntitySet `json:"cached_entities,omitempty"` // Entity set cached at ingestion, if any
}

// Fingerprint returns a short stable token for the article's content, used
// inside cluster hashes so that content edits change the hash.
func (a Article) Fingerprint() string {
	return fnvHash(a.Title + "\n" + a.Summary)
}

// EntitySet holds typed named entities extracted from one document.
// All slots are case-normalized, deduplicated and sorted.
type EntitySet struct {
	Organizations []string `json:"organizations"`
	Products      []string `json:"products"`
	People        []string `json:"people"`
	Technologies  []string `json:"technologies"`
	Locations     []string `json:"locations"`
}

// Normalize lowercases, trims, deduplicates and sorts every slot in place.
func (e *EntitySet) Normalize() {
	e.Organizations = normalizeTerms(e.Organizations)
	e.Products = normalizeTerms(e.Products)
	e.People = normalizeTerms(e.People)
	e.Technologies = normalizeTerms(e.Technologies)
	e.Locations = normalizeTerms(e.Locations)
}

// All returns every entity across all slots as one sorted slice.
func (e *EntitySet) All() []string {
	if e == nil {
		return nil
	}
	var all []string
	all = append(all, e.Organizations...)
	all = append(all, e.Products...)
	all = append(all, e.People...)
	all = append(all, e.Technologies...)
	all = append(all, e.Locations...)
	sort.Strings(all)
	return all
}

// IsEmpty reports whether no entities were extracted.
func (e *EntitySet) IsEmpty() bool {
	return e == nil || len(e.All()) == 0
}

// Jaccard computes the Jaccard overlap of two entity sets across all slots.
func (e *EntitySet) Jaccard(other *EntitySet) float64 {
	a := e.All()
	b := other.All()
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	intersection := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, s := range b {
		if seen[s] {
			continue
		}
		seen[s] = true
		if set[s] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Cluster is an ephemeral group of candidate articles judged similar enough
// to merge into one story. Clusters are never persisted: they are either
// promoted to a Story or discarded at the end of the run.
type Cluster struct {
	Articles   []Article          `json:"articles"`    // Ordered cluster members
	Topic      string             `json:"topic"`       // Dominant topic bucket the cluster grew in
	PairScores map[string]float64 `json:"pair_scores"` // Similarity per "idA|idB" pair, diagnostic only
}

// ArticleIDs returns the sorted ids of the cluster members.
func (c Cluster) ArticleIDs() []string {
	ids := make([]string, len(c.Articles))
	for i, a := range c.Articles {
		ids[i] = a.ID
	}
	sort.Strings(ids)
	return ids
}

// Newest returns the most recently published member article.
func (c Cluster) Newest() Article {
	var newest Article
	for _, a := range c.Articles {
		if a.Published.After(newest.Published) {
			newest = a
		}
	}
	return newest
}

// StoryDraft is the structured narrative produced by the synthesizer for one
// cluster, before scoring and persistence turn it into a Story.
type StoryDraft struct {
	Title        string   `json:"title"`
	Synthesis    string   `json:"synthesis"`    // Unified narrative paragraph (100-150 words)
	KeyPoints    []string `json:"key_points"`   // 3-8 short strings, always padded/truncated to bounds
	Significance string   `json:"significance"` // Why the story matters
	Topics       []string `json:"topics"`
	Entities     []string `json:"entities"`
	UsedLLM      bool     `json:"used_llm"` // False when the fallback composer produced the draft
}

// Story is a synthesized, deduplicated narrative covering one cluster of
// related articles.
type Story struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Synthesis       string    `json:"synthesis"`
	KeyPoints       []string  `json:"key_points"`
	Significance    string    `json:"significance"`
	Topics          []string  `json:"topics"`
	Entities        []string  `json:"entities"`
	ArticleCount    int       `json:"article_count"`
	ImportanceScore float64   `json:"importance_score"` // [0,1]
	FreshnessScore  float64   `json:"freshness_score"`  // [0,1]
	QualityScore    float64   `json:"quality_score"`    // [0,1]
	ClusterMethod   string    `json:"cluster_method"`   // Clustering policy tag, e.g. "greedy-lexical"
	StoryHash       string    `json:"story_hash"`       // Stable membership fingerprint, unique among active stories
	ModelUsed       string    `json:"model_used"`       // Generation model id, or "fallback"
	Status          string    `json:"status"`           // active | archived
	GeneratedAt     time.Time `json:"generated_at"`
	FirstSeen       time.Time `json:"first_seen"`
	LastUpdated     time.Time `json:"last_updated"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
}

// StoryArticleLink ties one article to the story that claims it. Every
// article belongs to at most one active story at a time, and exactly one
// link per story carries IsPrimary.
type StoryArticleLink struct {
	StoryID        string    `json:"story_id"`
	ArticleID      string    `json:"article_id"`
	RelevanceScore float64   `json:"relevance_score"` // [0,1], centrality of the article in the cluster
	IsPrimary      bool      `json:"is_primary"`      // Most central member of the cluster
	AddedAt        time.Time `json:"added_at"`
}

// GenerationReport is the operator-facing result of one pipeline run.
// StoryOverlap pairs an active story with its linked article ids, for
// membership-overlap comparison against a candidate cluster.
type StoryOverlap struct {
	Story      *Story
	ArticleIDs []string
}

type GenerationReport struct {
	ArticlesConsidered int                      `json:"articles_considered"`
	ClustersFormed     int                      `json:"clusters_formed"`
	DuplicatesSkipped  int                      `json:"duplicates_skipped"`
	StoriesCreated     int                      `json:"stories_created"`
	StoriesUpdated     int                      `json:"stories_updated"`
	StoriesFailed      int                      `json:"stories_failed"`
	LLMFailures        int                      `json:"llm_failures"`
	ReasonCode         string                   `json:"reason_code"`
	Elapsed            time.Duration            `json:"elapsed"`
	StageElapsed       map[string]time.Duration `json:"stage_elapsed"`
	WindowStart        time.Time                `json:"window_start"`
	WindowEnd          time.Time                `json:"window_end"`
}

// fnvHash is a tiny stable content token (FNV-1a, hex encoded).
func fnvHash(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
