package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"newsloom/internal/config"
	"newsloom/internal/logger"
	"newsloom/internal/store"
)

// NewStoriesCmd creates the story listing command
func NewStoriesCmd() *cobra.Command {
	storiesCmd := &cobra.Command{
		Use:   "stories",
		Short: "List active stories, best first",
		Long:  `List the active synthesized stories ordered by quality score.`,
		Run: func(cmd *cobra.Command, args []string) {
			asJSON, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")
			if err := runStories(asJSON, limit); err != nil {
				logger.Error("Failed to list stories", err)
				os.Exit(1)
			}
		},
	}

	storiesCmd.Flags().Bool("json", false, "Emit stories as JSON")
	storiesCmd.Flags().Int("limit", 0, "Show at most this many stories (0 means all)")
	return storiesCmd
}

func runStories(asJSON bool, limit int) error {
	cfg := config.Get()

	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize story store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close story store", err)
		}
	}()

	stories, err := st.ListActiveStories(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list active stories: %w", err)
	}
	if limit > 0 && len(stories) > limit {
		stories = stories[:limit]
	}

	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(stories)
	}

	if len(stories) == 0 {
		fmt.Println("No active stories")
		return nil
	}

	for i, story := range stories {
		fmt.Printf("%d. %s\n", i+1, story.Title)
		fmt.Printf("   quality %.2f | %d articles | %s | updated %s\n",
			story.QualityScore, story.ArticleCount,
			strings.Join(story.Topics, ", "),
			story.LastUpdated.Format("2006-01-02 15:04"))
		for _, point := range story.KeyPoints {
			fmt.Printf("   • %s\n", point)
		}
		fmt.Println()
	}
	return nil
}
