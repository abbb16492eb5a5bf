// Package synthesize turns one cluster of related articles into a
// structured story draft, using the text-generation service when it is
// available and a deterministic fallback composer when it is not.
package synthesize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"newsloom/internal/core"
	"newsloom/internal/dedup"
	"newsloom/internal/llm"
	"newsloom/internal/logger"
)

// Key point bounds enforced on every draft regardless of source.
const (
	MinKeyPoints = 3
	MaxKeyPoints = 8
)

// placeholderKeyPoint pads drafts that yield fewer than MinKeyPoints.
const placeholderKeyPoint = "See the linked coverage for further detail."

// Cache persists synthesis results keyed by cluster content hash plus model
// id. Implemented by the story store with a TTL cutoff.
type Cache interface {
	GetSynthesis(ctx context.Context, clusterHash, model string) (*core.StoryDraft, error)
	PutSynthesis(ctx context.Context, clusterHash, model string, draft core.StoryDraft) error
}

// Options configures synthesizer behavior.
type Options struct {
	Timeout time.Duration // per-call generation timeout
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout: 45 * time.Second,
	}
}

// Synthesizer produces story drafts for clusters. It has no side effects
// beyond generation calls and cache writes; persistence belongs to the
// pipeline.
type Synthesizer struct {
	client  llm.Completer
	cache   Cache
	options Options
}

// NewSynthesizer creates a synthesizer with the given completion client and
// injected synthesis cache. cache may be nil to disable caching.
func NewSynthesizer(client llm.Completer, cache Cache, options Options) *Synthesizer {
	return &Synthesizer{
		client:  client,
		cache:   cache,
		options: options,
	}
}

// ModelName reports the model id of the underlying completion client.
func (s *Synthesizer) ModelName() string {
	return s.client.ModelName()
}

// Synthesize produces a draft for one cluster. The second return reports
// whether the model produced the draft (false means the fallback composer
// did). Generation failures never surface as errors: the draft degrades to
// the fallback. Only context cancellation aborts.
func (s *Synthesizer) Synthesize(ctx context.Context, cluster core.Cluster, entitySets map[string]core.EntitySet) (core.StoryDraft, bool, error) {
	if len(cluster.Articles) == 0 {
		return core.StoryDraft{}, false, fmt.Errorf("cannot synthesize an empty cluster")
	}

	clusterHash := dedup.Hash(cluster)

	if s.cache != nil {
		if cached, err := s.cache.GetSynthesis(ctx, clusterHash, s.client.ModelName()); err == nil && cached != nil {
			return *cached, cached.UsedLLM, nil
		}
	}

	draft, err := s.generate(ctx, cluster)
	if err != nil {
		if ctx.Err() != nil {
			return core.StoryDraft{}, false, ctx.Err()
		}
		log := logger.Get()
		log.Warn().
			Str("cluster_hash", clusterHash).
			Int("articles", len(cluster.Articles)).
			Err(err).
			Msg("synthesis degraded to fallback composer")
		fallback := ComposeFallback(cluster, entitySets)
		return clampDraft(fallback), false, nil
	}

	draft = clampDraft(draft)
	draft.UsedLLM = true

	if s.cache != nil {
		if cacheErr := s.cache.PutSynthesis(ctx, clusterHash, s.client.ModelName(), draft); cacheErr != nil {
			log := logger.Get()
			log.Warn().Err(cacheErr).Msg("failed to cache synthesis result")
		}
	}

	return draft, true, nil
}

// generate runs one structured generation call with a single repair pass on
// malformed output.
func (s *Synthesizer) generate(ctx context.Context, cluster core.Cluster) (core.StoryDraft, error) {
	prompt := BuildSynthesisPrompt(cluster)

	raw, err := s.client.Complete(ctx, prompt, Schema(), s.options.Timeout)
	if err != nil {
		return core.StoryDraft{}, err
	}

	draft, parseErr := parseDraft(raw)
	if parseErr == nil {
		return draft, nil
	}

	repaired, err := s.client.Complete(ctx, BuildRepairPrompt(raw), Schema(), s.options.Timeout)
	if err != nil {
		return core.StoryDraft{}, err
	}
	draft, parseErr = parseDraft(repaired)
	if parseErr != nil {
		return core.StoryDraft{}, &core.SchemaParseError{Op: "synthesize", Raw: truncate(repaired, 200), Err: parseErr}
	}
	return draft, nil
}

func parseDraft(raw string) (core.StoryDraft, error) {
	var draft core.StoryDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return core.StoryDraft{}, err
	}
	if draft.Title == "" {
		return core.StoryDraft{}, errors.New("draft has no title")
	}
	if draft.Synthesis == "" {
		return core.StoryDraft{}, errors.New("draft has no synthesis")
	}
	if len(draft.KeyPoints) == 0 {
		return core.StoryDraft{}, errors.New("draft has no key points")
	}
	return draft, nil
}

// clampDraft enforces the numeric and length bounds downstream invariants
// rely on, for both model and fallback drafts.
func clampDraft(draft core.StoryDraft) core.StoryDraft {
	points := make([]string, 0, MaxKeyPoints)
	for _, p := range draft.KeyPoints {
		if p == "" {
			continue
		}
		points = append(points, p)
		if len(points) == MaxKeyPoints {
			break
		}
	}
	for len(points) < MinKeyPoints {
		points = append(points, placeholderKeyPoint)
	}
	draft.KeyPoints = points

	draft.Title = clipRunes(draft.Title, maxTitleRunes)
	if draft.Significance == "" {
		draft.Significance = "Multiple sources reported on this development within the same window."
	}
	return draft
}

const maxTitleRunes = 200

// clipRunes shortens s to at most n runes. Byte slicing would split
// multi-byte runes and leave invalid UTF-8 in persisted fields.
func clipRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
