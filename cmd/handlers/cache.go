package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsloom/internal/config"
	"newsloom/internal/logger"
	"newsloom/internal/store"
)

// NewCacheCmd creates the synthesis cache management command
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the synthesis cache",
		Long:  `Inspect, prune, and clear the persistent cache of synthesized drafts.`,
	}

	// Add subcommands
	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCachePruneCmd())
	cacheCmd.AddCommand(newCacheClearCmd())

	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store and cache statistics",
		Long:  `Display counts of ingested articles, active and archived stories, and cached synthesis drafts.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCacheStats(); err != nil {
				logger.Error("Failed to get cache stats", err)
				os.Exit(1)
			}
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop cached drafts older than the freshness horizon",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCachePrune(); err != nil {
				logger.Error("Failed to prune cache", err)
				os.Exit(1)
			}
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the synthesis cache (removes all cached drafts)",
		Run: func(cmd *cobra.Command, args []string) {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if err := runCacheClear(confirm); err != nil {
				logger.Error("Failed to clear cache", err)
				os.Exit(1)
			}
		},
	}

	clearCmd.Flags().Bool("confirm", false, "Skip confirmation prompt")
	return clearCmd
}

func openStore() (*store.Store, error) {
	cfg := config.Get()
	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize story store: %w", err)
	}
	st.SetSynthesisTTL(cfg.SynthesisTTL())
	return st, nil
}

func runCacheStats() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close story store", err)
		}
	}()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	fmt.Println("📊 Store Statistics")
	fmt.Println("===================")
	fmt.Printf("🗞️  Articles: %d\n", stats.Articles)
	fmt.Printf("✨ Active stories: %d\n", stats.ActiveStories)
	fmt.Printf("🗄️  Archived stories: %d\n", stats.ArchivedStories)
	fmt.Printf("📝 Cached drafts: %d\n", stats.CachedDrafts)
	return nil
}

func runCachePrune() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close story store", err)
		}
	}()

	removed, err := st.PruneSynthesisCache(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("🧹 Pruned %d stale drafts\n", removed)
	return nil
}

func runCacheClear(confirm bool) error {
	if !confirm {
		fmt.Print("⚠️  This will remove all cached synthesis drafts. Continue? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" && response != "yes" {
			fmt.Println("Cache clear cancelled")
			return nil
		}
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close story store", err)
		}
	}()

	removed, err := st.ClearSynthesisCache(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("✅ Cleared %d cached drafts\n", removed)
	return nil
}
