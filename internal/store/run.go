package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"newsloom/internal/core"
)

// RunTx batches all story writes of one pipeline run into a single
// transaction, so a run either lands completely or not at all.
type RunTx struct {
	tx *sql.Tx
}

// BeginRun opens the write transaction for one pipeline run.
func (s *Store) BeginRun(ctx context.Context) (*RunTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin run transaction: %w", err)
	}
	return &RunTx{tx: tx}, nil
}

// CreateStory inserts a new story row.
func (r *RunTx) CreateStory(ctx context.Context, story *core.Story) error {
	keyPoints, topics, entities, err := marshalStoryLists(story)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO stories
	(id, title, synthesis, key_points, significance, topics, entities,
	 article_count, importance_score, freshness_score, quality_score,
	 cluster_method, story_hash, model_used, status,
	 generated_at, first_seen, last_updated, window_start, window_end)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.tx.ExecContext(ctx, query,
		story.ID, story.Title, story.Synthesis, keyPoints, story.Significance,
		topics, entities, story.ArticleCount, story.ImportanceScore,
		story.FreshnessScore, story.QualityScore, story.ClusterMethod,
		story.StoryHash, story.ModelUsed, story.Status,
		story.GeneratedAt.UTC(), story.FirstSeen.UTC(), story.LastUpdated.UTC(),
		story.WindowStart.UTC(), story.WindowEnd.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create story %s: %w", story.ID, err)
	}
	return nil
}

// UpdateStory rewrites the mutable fields of an existing story; identity
// fields (id, first_seen) stay untouched.
func (r *RunTx) UpdateStory(ctx context.Context, story *core.Story) error {
	keyPoints, topics, entities, err := marshalStoryLists(story)
	if err != nil {
		return err
	}

	query := `
	UPDATE stories SET
		title = ?, synthesis = ?, key_points = ?, significance = ?,
		topics = ?, entities = ?, article_count = ?,
		importance_score = ?, freshness_score = ?, quality_score = ?,
		cluster_method = ?, story_hash = ?, model_used = ?, status = ?,
		generated_at = ?, last_updated = ?, window_start = ?, window_end = ?
	WHERE id = ?`

	res, err := r.tx.ExecContext(ctx, query,
		story.Title, story.Synthesis, keyPoints, story.Significance,
		topics, entities, story.ArticleCount,
		story.ImportanceScore, story.FreshnessScore, story.QualityScore,
		story.ClusterMethod, story.StoryHash, story.ModelUsed, story.Status,
		story.GeneratedAt.UTC(), story.LastUpdated.UTC(),
		story.WindowStart.UTC(), story.WindowEnd.UTC(),
		story.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update story %s: %w", story.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("story %s not found", story.ID)
	}
	return nil
}

// LinkArticles replaces the article links of a story. Membership is
// replaced wholesale, so an updated story never keeps stale links.
func (r *RunTx) LinkArticles(ctx context.Context, storyID string, links []core.StoryArticleLink) error {
	if _, err := r.tx.ExecContext(ctx,
		`DELETE FROM story_articles WHERE story_id = ?`, storyID); err != nil {
		return fmt.Errorf("failed to clear links for story %s: %w", storyID, err)
	}

	query := `
	INSERT INTO story_articles (story_id, article_id, relevance_score, is_primary, added_at)
	VALUES (?, ?, ?, ?, ?)`

	for _, link := range links {
		primary := 0
		if link.IsPrimary {
			primary = 1
		}
		if _, err := r.tx.ExecContext(ctx, query,
			storyID, link.ArticleID, link.RelevanceScore, primary, link.AddedAt.UTC()); err != nil {
			return fmt.Errorf("failed to link article %s to story %s: %w", link.ArticleID, storyID, err)
		}
	}
	return nil
}

// Commit commits the run.
func (r *RunTx) Commit() error {
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Rollback abandons the run. Safe to call after Commit.
func (r *RunTx) Rollback() error {
	err := r.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

func marshalStoryLists(story *core.Story) (keyPoints, topics, entities string, err error) {
	kp, err := json.Marshal(emptyIfNil(story.KeyPoints))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal key points: %w", err)
	}
	tp, err := json.Marshal(emptyIfNil(story.Topics))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal topics: %w", err)
	}
	en, err := json.Marshal(emptyIfNil(story.Entities))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal entities: %w", err)
	}
	return string(kp), string(tp), string(en), nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// nowUTC exists so tests can pin time-sensitive queries.
var nowUTC = func() time.Time { return time.Now().UTC() }
