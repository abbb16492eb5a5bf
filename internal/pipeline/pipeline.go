// Package pipeline orchestrates one generation run: fetch a window of
// articles, cluster them, deduplicate against active stories, synthesize
// narratives in parallel, score, and persist everything in one transaction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"newsloom/internal/core"
	"newsloom/internal/dedup"
	"newsloom/internal/logger"
	"newsloom/internal/similarity"
)

// Stage names used in report timings and logs.
const (
	StageFetching      = "fetching"
	StageExtracting    = "extracting"
	StageClustering    = "clustering"
	StageDeduplicating = "deduplicating"
	StageSynthesizing  = "synthesizing"
	StageScoring       = "scoring"
	StagePersisting    = "persisting"
)

// Config holds the run-level knobs of the orchestrator.
type Config struct {
	WindowHours int  // Size of the candidate article window
	MaxWorkers  int  // Synthesis fan-out bound
	DryRun      bool // Skip the persisting stage entirely
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		WindowHours: 24,
		MaxWorkers:  4,
	}
}

// Pipeline wires the generation stages together. All collaborators are
// injected so tests can substitute any of them.
type Pipeline struct {
	source      ArticleSource
	extractor   EntityExtractor
	clusters    ClusterBuilder
	deduper     ClusterDeduper
	synthesizer StorySynthesizer
	scorer      StoryScorer
	store       StoryStore
	config      Config
}

// NewPipeline assembles a pipeline from its collaborators.
func NewPipeline(
	source ArticleSource,
	extractor EntityExtractor,
	clusters ClusterBuilder,
	deduper ClusterDeduper,
	synthesizer StorySynthesizer,
	scorer StoryScorer,
	store StoryStore,
	config Config,
) *Pipeline {
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	if config.WindowHours < 1 {
		config.WindowHours = DefaultConfig().WindowHours
	}
	return &Pipeline{
		source:      source,
		extractor:   extractor,
		clusters:    clusters,
		deduper:     deduper,
		synthesizer: synthesizer,
		scorer:      scorer,
		store:       store,
		config:      config,
	}
}

// RunOptions tweak a single run.
type RunOptions struct {
	// Articles bypasses the article source when non-nil, e.g. when the CLI
	// loads a fixture file.
	Articles []core.Article
	// Now pins the run clock; zero means wall clock.
	Now time.Time
}

// clusterOutcome carries one cluster through the stages.
type clusterOutcome struct {
	cluster  core.Cluster
	decision dedup.Decision
	draft    core.StoryDraft
	usedLLM  bool
}

// Run executes one generation run and returns its report. A zero-story run
// is not an error: the report's reason code says why. Run returns an error
// only for cancellation and store failures.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*core.GenerationReport, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	windowStart := now.Add(-time.Duration(p.config.WindowHours) * time.Hour)

	report := &core.GenerationReport{
		ReasonCode:   core.ReasonOK,
		StageElapsed: make(map[string]time.Duration),
		WindowStart:  windowStart,
		WindowEnd:    now,
	}
	runStart := time.Now()
	defer func() { report.Elapsed = time.Since(runStart) }()

	log := logger.Get()
	log.Info().
		Time("window_start", windowStart).
		Time("window_end", now).
		Int("max_workers", p.config.MaxWorkers).
		Bool("dry_run", p.config.DryRun).
		Msg("starting generation run")

	// Fetching.
	articles, err := p.fetchStage(ctx, report, opts, windowStart, now)
	if err != nil {
		return p.abort(report, err)
	}
	report.ArticlesConsidered = len(articles)
	if len(articles) == 0 {
		report.ReasonCode = core.ReasonNoCandidateArticles
		log.Info().Msg("no candidate articles in window")
		return report, nil
	}

	// Extracting.
	entitySets, err := p.extractStage(ctx, report, articles)
	if err != nil {
		return p.abort(report, err)
	}

	// Clustering.
	stageStart := time.Now()
	clusters := p.clusters.Build(articles, entitySets)
	report.StageElapsed[StageClustering] = time.Since(stageStart)
	report.ClustersFormed = len(clusters)
	if len(clusters) == 0 {
		report.ReasonCode = core.ReasonNoClustersAboveThreshold
		log.Info().Int("articles", len(articles)).Msg("no clusters above threshold")
		return report, nil
	}

	// Deduplicating.
	outcomes, err := p.dedupStage(ctx, report, clusters)
	if err != nil {
		return p.abort(report, err)
	}
	if len(outcomes) == 0 {
		report.ReasonCode = core.ReasonAllClustersDeduplicated
		log.Info().Int("clusters", len(clusters)).Msg("every cluster matched an existing story")
		return report, nil
	}

	// Synthesizing.
	if err := p.synthesizeStage(ctx, report, outcomes, entitySets); err != nil {
		return p.abort(report, err)
	}

	// Scoring and assembly.
	stageStart = time.Now()
	stories := make([]*core.Story, len(outcomes))
	links := make([][]core.StoryArticleLink, len(outcomes))
	for i, o := range outcomes {
		stories[i] = p.assembleStory(o, now, windowStart)
		links[i] = p.assembleLinks(stories[i].ID, o.cluster, now)
	}
	report.StageElapsed[StageScoring] = time.Since(stageStart)

	// Persisting.
	if p.config.DryRun {
		p.countResults(report, outcomes)
		log.Info().Int("stories", len(stories)).Msg("dry run, skipping persistence")
		return report, nil
	}
	if err := p.persistStage(ctx, report, outcomes, stories, links); err != nil {
		return p.abort(report, err)
	}

	log.Info().
		Int("created", report.StoriesCreated).
		Int("updated", report.StoriesUpdated).
		Int("skipped", report.DuplicatesSkipped).
		Int("failed", report.StoriesFailed).
		Int("llm_failures", report.LLMFailures).
		Msg("generation run complete")
	return report, nil
}

func (p *Pipeline) abort(report *core.GenerationReport, err error) (*core.GenerationReport, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		report.ReasonCode = core.ReasonCancelled
	} else {
		report.ReasonCode = core.ReasonFailed
	}
	return report, err
}

func (p *Pipeline) fetchStage(ctx context.Context, report *core.GenerationReport, opts RunOptions, start, end time.Time) ([]core.Article, error) {
	stageStart := time.Now()
	defer func() { report.StageElapsed[StageFetching] = time.Since(stageStart) }()

	if opts.Articles != nil {
		// Fixture input still honors the window.
		var inWindow []core.Article
		for _, a := range opts.Articles {
			if !a.Published.Before(start) && !a.Published.After(end) {
				inWindow = append(inWindow, a)
			}
		}
		sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].ID < inWindow[j].ID })
		return inWindow, nil
	}

	articles, err := p.source.FetchCandidateArticles(ctx, start, end)
	if err != nil {
		return nil, p.storeErr("fetch candidate articles", err)
	}
	return articles, nil
}

func (p *Pipeline) extractStage(ctx context.Context, report *core.GenerationReport, articles []core.Article) (map[string]core.EntitySet, error) {
	stageStart := time.Now()
	defer func() { report.StageElapsed[StageExtracting] = time.Since(stageStart) }()

	sets := make([]core.EntitySet, len(articles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxWorkers)
	for i, article := range articles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sets[i] = p.extractor.Extract(gctx, article)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entitySets := make(map[string]core.EntitySet, len(articles))
	for i, article := range articles {
		entitySets[article.ID] = sets[i]
	}
	return entitySets, nil
}

func (p *Pipeline) dedupStage(ctx context.Context, report *core.GenerationReport, clusters []core.Cluster) ([]clusterOutcome, error) {
	stageStart := time.Now()
	defer func() { report.StageElapsed[StageDeduplicating] = time.Since(stageStart) }()

	log := logger.Get()
	var outcomes []clusterOutcome
	for _, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		decision, err := p.deduper.Resolve(ctx, cluster)
		if err != nil {
			return nil, p.storeErr("resolve cluster against active stories", err)
		}
		if decision.Action == dedup.ActionSkip {
			report.DuplicatesSkipped++
			log.Debug().
				Str("hash", decision.Hash).
				Str("story_id", decision.Existing.ID).
				Msg("cluster already covered by active story")
			continue
		}
		outcomes = append(outcomes, clusterOutcome{cluster: cluster, decision: decision})
	}
	return outcomes, nil
}

func (p *Pipeline) synthesizeStage(ctx context.Context, report *core.GenerationReport, outcomes []clusterOutcome, entitySets map[string]core.EntitySet) error {
	stageStart := time.Now()
	defer func() { report.StageElapsed[StageSynthesizing] = time.Since(stageStart) }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxWorkers)
	for i := range outcomes {
		g.Go(func() error {
			draft, usedLLM, err := p.synthesizer.Synthesize(gctx, outcomes[i].cluster, entitySets)
			if err != nil {
				return err
			}
			outcomes[i].draft = draft
			outcomes[i].usedLLM = usedLLM
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, o := range outcomes {
		if !o.usedLLM {
			report.LLMFailures++
		}
	}
	return nil
}

// assembleStory turns one synthesized cluster into a Story row. Updates
// keep the existing identity and first-seen time.
func (p *Pipeline) assembleStory(o clusterOutcome, now, windowStart time.Time) *core.Story {
	importance, freshness, quality := p.scorer.Score(o.cluster, o.usedLLM, now)

	modelUsed := "fallback"
	if o.usedLLM {
		modelUsed = p.synthesizer.ModelName()
	}

	story := &core.Story{
		ID:              uuid.NewString(),
		Title:           o.draft.Title,
		Synthesis:       o.draft.Synthesis,
		KeyPoints:       o.draft.KeyPoints,
		Significance:    o.draft.Significance,
		Topics:          topicsWithFeedTopic(o.draft.Topics, o.cluster.Topic),
		Entities:        o.draft.Entities,
		ArticleCount:    len(o.cluster.Articles),
		ImportanceScore: importance,
		FreshnessScore:  freshness,
		QualityScore:    quality,
		ClusterMethod:   p.clusters.Method(),
		StoryHash:       o.decision.Hash,
		ModelUsed:       modelUsed,
		Status:          core.StoryStatusActive,
		GeneratedAt:     now,
		FirstSeen:       now,
		LastUpdated:     now,
		WindowStart:     windowStart,
		WindowEnd:       now,
	}
	if o.decision.Action == dedup.ActionUpdate && o.decision.Existing != nil {
		story.ID = o.decision.Existing.ID
		story.FirstSeen = o.decision.Existing.FirstSeen
	}
	return story
}

// topicsWithFeedTopic guarantees the cluster's feed topic label is among
// the persisted story topics. Overlap lookups for later runs match on that
// label, and synthesized tags do not reliably include it.
func topicsWithFeedTopic(topics []string, feedTopic string) []string {
	if feedTopic == "" {
		return topics
	}
	for _, t := range topics {
		if t == feedTopic {
			return topics
		}
	}
	out := make([]string, 0, len(topics)+1)
	out = append(out, feedTopic)
	out = append(out, topics...)
	return out
}

// assembleLinks builds the article links for a story. Relevance is the
// article's average pair similarity to the rest of the cluster; the most
// relevant article is primary, ties broken by id.
func (p *Pipeline) assembleLinks(storyID string, cluster core.Cluster, now time.Time) []core.StoryArticleLink {
	links := make([]core.StoryArticleLink, 0, len(cluster.Articles))
	for _, a := range cluster.Articles {
		links = append(links, core.StoryArticleLink{
			StoryID:        storyID,
			ArticleID:      a.ID,
			RelevanceScore: relevance(a.ID, cluster),
			AddedAt:        now,
		})
	}
	if len(links) == 0 {
		return links
	}
	primary := 0
	for i := 1; i < len(links); i++ {
		if links[i].RelevanceScore > links[primary].RelevanceScore {
			primary = i
		}
	}
	links[primary].IsPrimary = true
	return links
}

// relevance averages an article's recorded pair scores against its cluster
// mates. A singleton cluster member gets full relevance.
func relevance(articleID string, cluster core.Cluster) float64 {
	if len(cluster.Articles) <= 1 {
		return 1
	}
	var sum float64
	var n int
	for _, other := range cluster.Articles {
		if other.ID == articleID {
			continue
		}
		if score, ok := cluster.PairScores[similarity.PairKey(articleID, other.ID)]; ok {
			sum += score
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

func (p *Pipeline) persistStage(ctx context.Context, report *core.GenerationReport, outcomes []clusterOutcome, stories []*core.Story, links [][]core.StoryArticleLink) error {
	stageStart := time.Now()
	defer func() { report.StageElapsed[StagePersisting] = time.Since(stageStart) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := p.store.BeginRun(ctx)
	if err != nil {
		return p.storeErr("begin run transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	log := logger.Get()
	for i, story := range stories {
		var writeErr error
		switch outcomes[i].decision.Action {
		case dedup.ActionUpdate:
			writeErr = tx.UpdateStory(ctx, story)
		default:
			writeErr = tx.CreateStory(ctx, story)
		}
		if writeErr == nil {
			writeErr = tx.LinkArticles(ctx, story.ID, links[i])
		}
		if writeErr != nil {
			// One bad story does not sink the batch.
			report.StoriesFailed++
			log.Error().Err(writeErr).Str("story_id", story.ID).Msg("failed to persist story")
			continue
		}
		if outcomes[i].decision.Action == dedup.ActionUpdate {
			report.StoriesUpdated++
		} else {
			report.StoriesCreated++
		}
	}

	if err := tx.Commit(); err != nil {
		report.StoriesCreated = 0
		report.StoriesUpdated = 0
		return p.storeErr("commit run transaction", err)
	}
	return nil
}

func (p *Pipeline) countResults(report *core.GenerationReport, outcomes []clusterOutcome) {
	for _, o := range outcomes {
		if o.decision.Action == dedup.ActionUpdate {
			report.StoriesUpdated++
		} else {
			report.StoriesCreated++
		}
	}
}

func (p *Pipeline) storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var unavailable *core.StoreUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	return &core.StoreUnavailableError{Op: op, Err: err}
}

// ArchiveSweeper ages out stale active stories.
type ArchiveSweeper interface {
	ArchiveStoriesOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// ArchiveSweep archives active stories untouched for longer than age.
func ArchiveSweep(ctx context.Context, sweeper ArchiveSweeper, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, fmt.Errorf("archive age must be positive")
	}
	n, err := sweeper.ArchiveStoriesOlderThan(ctx, age)
	if err != nil {
		return 0, fmt.Errorf("archive sweep: %w", err)
	}
	return n, nil
}
