package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newsloom/internal/cache"
	"newsloom/internal/clustering"
	"newsloom/internal/config"
	"newsloom/internal/core"
	"newsloom/internal/dedup"
	"newsloom/internal/entities"
	"newsloom/internal/llm"
	"newsloom/internal/logger"
	"newsloom/internal/pipeline"
	"newsloom/internal/scoring"
	"newsloom/internal/store"
	"newsloom/internal/synthesize"
)

const timeRound = time.Millisecond

type generateOptions struct {
	windowHours         int
	minArticles         int
	similarityThreshold float64
	overlapThreshold    float64
	model               string
	maxWorkers          int
	dryRun              bool
	noLLM               bool
	articlesFile        string
}

// NewGenerateCmd creates the story generation command
func NewGenerateCmd() *cobra.Command {
	opts := generateOptions{}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one story generation pass over the recent article window",
		Long: `Fetch the recent article window, cluster related coverage, deduplicate
against active stories, synthesize one narrative per cluster, and persist
the scored results.`,
		Run: func(cmd *cobra.Command, args []string) {
			applyGenerateOverrides(cmd, &opts)
			if err := runGenerate(opts); err != nil {
				logger.Error("Generation run failed", err)
				os.Exit(1)
			}
		},
	}

	generateCmd.Flags().IntVar(&opts.windowHours, "window-hours", 0, "Candidate article window in hours (default from config)")
	generateCmd.Flags().IntVar(&opts.minArticles, "min-articles", 0, "Minimum articles per story (default from config)")
	generateCmd.Flags().Float64Var(&opts.similarityThreshold, "similarity-threshold", 0, "Pairwise similarity threshold in (0,1) (default from config)")
	generateCmd.Flags().Float64Var(&opts.overlapThreshold, "overlap-threshold", 0, "Article overlap ratio that updates an existing story (default from config)")
	generateCmd.Flags().StringVar(&opts.model, "model", "", "Generation model to use (default from config)")
	generateCmd.Flags().IntVar(&opts.maxWorkers, "max-workers", 0, "Synthesis concurrency bound (default from config)")
	generateCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Run all stages but skip persistence")
	generateCmd.Flags().BoolVar(&opts.noLLM, "no-llm", false, "Skip the generation model entirely and use extractive fallbacks")
	generateCmd.Flags().StringVar(&opts.articlesFile, "articles", "", "JSON file of articles to ingest before the run")

	return generateCmd
}

// applyGenerateOverrides fills unset flag values from configuration.
func applyGenerateOverrides(cmd *cobra.Command, opts *generateOptions) {
	cfg := config.Get()
	if !cmd.Flags().Changed("window-hours") {
		opts.windowHours = cfg.Generation.WindowHours
	}
	if !cmd.Flags().Changed("min-articles") {
		opts.minArticles = cfg.Generation.MinArticlesPerStory
	}
	if !cmd.Flags().Changed("similarity-threshold") {
		opts.similarityThreshold = cfg.Generation.SimilarityThreshold
	}
	if !cmd.Flags().Changed("overlap-threshold") {
		opts.overlapThreshold = cfg.Generation.OverlapThreshold
	}
	if !cmd.Flags().Changed("model") {
		opts.model = cfg.Gemini.Model
	}
	if !cmd.Flags().Changed("max-workers") {
		opts.maxWorkers = cfg.Generation.MaxWorkers
	}
}

func runGenerate(opts generateOptions) error {
	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize story store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close story store", err)
		}
	}()
	st.SetSynthesisTTL(cfg.SynthesisTTL())

	if opts.articlesFile != "" {
		n, err := ingestArticles(ctx, st, opts.articlesFile)
		if err != nil {
			return err
		}
		fmt.Printf("📥 Ingested %d articles from %s\n", n, opts.articlesFile)
	}

	completer := buildCompleter(ctx, opts)

	entityCache, err := cache.NewLRU[core.EntitySet](cfg.Cache.EntityCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create entity cache: %w", err)
	}
	extractor := entities.NewExtractor(completer, entityCache, cfg.GeminiTimeout())

	builder := clustering.NewBuilder(clustering.Config{
		Threshold:   opts.similarityThreshold,
		MinArticles: opts.minArticles,
	})
	deduper := dedup.NewDeduper(st, opts.overlapThreshold)

	synthOpts := synthesize.DefaultOptions()
	synthOpts.Timeout = cfg.GeminiTimeout()
	synthesizer := synthesize.NewSynthesizer(completer, st, synthOpts)

	scoreCfg := scoring.DefaultConfig()
	scoreCfg.FreshnessHorizon = cfg.FreshnessHorizon()
	scorer := scoring.NewScorer(scoreCfg)

	pipe := pipeline.NewPipeline(
		st, extractor, builder, deduper, synthesizer, scorer,
		runStore{st},
		pipeline.Config{
			WindowHours: opts.windowHours,
			MaxWorkers:  opts.maxWorkers,
			DryRun:      opts.dryRun,
		},
	)

	report, err := pipe.Run(ctx, pipeline.RunOptions{})
	if report != nil {
		printReport(report, opts.dryRun)
	}
	return err
}

// buildCompleter returns the generation client, degrading to the disabled
// completer when no key is configured so runs still produce fallback
// stories.
func buildCompleter(ctx context.Context, opts generateOptions) llm.Completer {
	if opts.noLLM {
		return llm.NewDisabled()
	}
	client, err := llm.NewClient(ctx, opts.model)
	if err != nil {
		logger.Warn(fmt.Sprintf("Generation model unavailable, using extractive fallbacks: %v", err))
		return llm.NewDisabled()
	}
	return client
}

func ingestArticles(ctx context.Context, st *store.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read articles file: %w", err)
	}
	var articles []core.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return 0, fmt.Errorf("failed to parse articles file: %w", err)
	}
	if err := st.SaveArticles(ctx, articles); err != nil {
		return 0, fmt.Errorf("failed to save articles: %w", err)
	}
	return len(articles), nil
}

func printReport(report *core.GenerationReport, dryRun bool) {
	fmt.Println("📰 Generation Report")
	fmt.Println("====================")
	fmt.Printf("🗞️  Articles considered: %d\n", report.ArticlesConsidered)
	fmt.Printf("🧩 Clusters formed: %d\n", report.ClustersFormed)
	fmt.Printf("♻️  Duplicates skipped: %d\n", report.DuplicatesSkipped)
	fmt.Printf("✨ Stories created: %d\n", report.StoriesCreated)
	fmt.Printf("🔄 Stories updated: %d\n", report.StoriesUpdated)
	if report.StoriesFailed > 0 {
		fmt.Printf("❌ Stories failed to persist: %d\n", report.StoriesFailed)
	}
	if report.LLMFailures > 0 {
		fmt.Printf("⚠️  Fallback syntheses: %d\n", report.LLMFailures)
	}
	fmt.Printf("⏱️  Elapsed: %s\n", report.Elapsed.Round(timeRound))

	stages := make([]string, 0, len(report.StageElapsed))
	for stage := range report.StageElapsed {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Printf("   - %s: %s\n", stage, report.StageElapsed[stage].Round(timeRound))
	}

	if report.ReasonCode != core.ReasonOK {
		fmt.Printf("ℹ️  Reason: %s\n", report.ReasonCode)
	}
	if dryRun {
		fmt.Println("🧪 Dry run: nothing was persisted")
	}
}

// runStore adapts the concrete store to the pipeline's transactional
// persistence interface.
type runStore struct {
	st *store.Store
}

func (r runStore) BeginRun(ctx context.Context) (pipeline.StoryWriter, error) {
	return r.st.BeginRun(ctx)
}
