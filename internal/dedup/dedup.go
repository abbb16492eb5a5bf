// Package dedup computes stable cluster content hashes and decides whether
// a candidate cluster duplicates, updates, or is distinct from the active
// stories already in the store.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"newsloom/internal/core"
)

// StoryFinder is the slice of the story store the deduplicator needs.
type StoryFinder interface {
	FindActiveByHash(ctx context.Context, hash string) (*core.Story, error)
	FindOverlappingActive(ctx context.Context, articleIDs []string, topic string) ([]core.StoryOverlap, error)
}

// Action describes what the pipeline should do with a candidate cluster.
type Action int

const (
	// ActionCreate means no active story matches: synthesize a new story.
	ActionCreate Action = iota
	// ActionSkip means an active story with the exact hash exists.
	ActionSkip
	// ActionUpdate means an active story overlaps enough to absorb the
	// cluster instead of duplicating it.
	ActionUpdate
)

// Decision is the outcome of resolving one cluster against the store.
type Decision struct {
	Action   Action
	Hash     string
	Existing *core.Story // set for ActionSkip and ActionUpdate
}

// Hash computes the stable story hash for a cluster: sha256 over the sorted
// article ids paired with their content fingerprints. Member reordering
// never changes the hash; member edits always do.
func Hash(cluster core.Cluster) string {
	entries := make([]string, len(cluster.Articles))
	for i, a := range cluster.Articles {
		entries[i] = a.ID + "=" + a.Fingerprint()
	}
	sort.Strings(entries)

	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Deduper resolves candidate clusters against active stories.
type Deduper struct {
	store            StoryFinder
	overlapThreshold float64 // Jaccard on article ids; tuned empirically, keep configurable
}

// NewDeduper creates a deduplicator. overlapThreshold is the minimum
// article-id Jaccard overlap with an existing active story, sharing the
// dominant topic, that turns a candidate into an update instead of a new
// story.
func NewDeduper(store StoryFinder, overlapThreshold float64) *Deduper {
	return &Deduper{
		store:            store,
		overlapThreshold: overlapThreshold,
	}
}

// Resolve decides whether cluster is a known duplicate, an incremental
// update to an existing active story, or a new story.
func (d *Deduper) Resolve(ctx context.Context, cluster core.Cluster) (Decision, error) {
	hash := Hash(cluster)

	existing, err := d.store.FindActiveByHash(ctx, hash)
	if err != nil {
		return Decision{}, fmt.Errorf("hash lookup failed: %w", err)
	}
	if existing != nil {
		return Decision{Action: ActionSkip, Hash: hash, Existing: existing}, nil
	}

	ids := cluster.ArticleIDs()
	candidates, err := d.store.FindOverlappingActive(ctx, ids, cluster.Topic)
	if err != nil {
		return Decision{}, fmt.Errorf("overlap lookup failed: %w", err)
	}
	// The best proportional overlap wins, not the biggest raw intersection:
	// a large story can share many articles yet fall below the threshold
	// while a small one clears it.
	var best *core.Story
	var bestScore float64
	for _, c := range candidates {
		score := idJaccard(ids, c.ArticleIDs)
		if score >= d.overlapThreshold && score > bestScore {
			best = c.Story
			bestScore = score
		}
	}
	if best != nil {
		return Decision{Action: ActionUpdate, Hash: hash, Existing: best}, nil
	}

	return Decision{Action: ActionCreate, Hash: hash}, nil
}

func idJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	intersection := 0
	for _, id := range b {
		if set[id] {
			intersection++
		}
	}
	union := len(set) + len(b) - intersection
	return float64(intersection) / float64(union)
}
