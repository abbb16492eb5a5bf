package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"newsloom/internal/config"
	"newsloom/internal/logger"
	"newsloom/internal/pipeline"
	"newsloom/internal/store"
)

// NewArchiveCmd creates the story archival command
func NewArchiveCmd() *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive active stories that have gone stale",
		Long: `Mark active stories as archived when they have not been updated for
longer than the configured age. Archived stories are kept for history and
no longer participate in deduplication.`,
		Run: func(cmd *cobra.Command, args []string) {
			olderThan, _ := cmd.Flags().GetString("older-than")
			if err := runArchive(olderThan); err != nil {
				logger.Error("Archive sweep failed", err)
				os.Exit(1)
			}
		},
	}

	archiveCmd.Flags().String("older-than", "", "Age past which active stories are archived, e.g. 168h (default from config)")
	return archiveCmd
}

func runArchive(olderThan string) error {
	cfg := config.Get()

	age := cfg.ArchiveAfter()
	if olderThan != "" {
		parsed, err := time.ParseDuration(olderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than value %q: %w", olderThan, err)
		}
		age = parsed
	}

	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize story store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close story store", err)
		}
	}()

	archived, err := pipeline.ArchiveSweep(context.Background(), st, age)
	if err != nil {
		return err
	}

	fmt.Printf("🗄️  Archived %d stories older than %s\n", archived, age)
	return nil
}
