// Package store persists stories, story-article links and cached synthesis
// results in SQLite, and serves the read-only candidate article window the
// pipeline consumes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"newsloom/internal/core"
)

// Store is the SQLite-backed story store.
type Store struct {
	db           *sql.DB
	path         string
	synthesisTTL time.Duration
}

// NewStore creates a store instance backed by a SQLite database in dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "newsloom.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables and indexes.
func (s *Store) initialize() error {
	articlesTable := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		summary TEXT,
		topic TEXT,
		source TEXT,
		source_reputation REAL,
		published DATETIME,
		entities TEXT
	);`

	storiesTable := `
	CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		synthesis TEXT,
		key_points TEXT,
		significance TEXT,
		topics TEXT,
		entities TEXT,
		article_count INTEGER,
		importance_score REAL,
		freshness_score REAL,
		quality_score REAL,
		cluster_method TEXT,
		story_hash TEXT NOT NULL,
		model_used TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		generated_at DATETIME,
		first_seen DATETIME,
		last_updated DATETIME,
		window_start DATETIME,
		window_end DATETIME
	);`

	// Uniqueness of story_hash among active stories is the cross-run guard
	// against double-creation when runs overlap.
	activeHashIndex := `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_stories_active_hash
	ON stories (story_hash) WHERE status = 'active';`

	linksTable := `
	CREATE TABLE IF NOT EXISTS story_articles (
		story_id TEXT NOT NULL,
		article_id TEXT NOT NULL,
		relevance_score REAL,
		is_primary INTEGER NOT NULL DEFAULT 0,
		added_at DATETIME,
		PRIMARY KEY (story_id, article_id),
		FOREIGN KEY (story_id) REFERENCES stories (id)
	);`

	synthesisCacheTable := `
	CREATE TABLE IF NOT EXISTS synthesis_cache (
		cluster_hash TEXT NOT NULL,
		model TEXT NOT NULL,
		draft TEXT NOT NULL,
		created_at DATETIME,
		PRIMARY KEY (cluster_hash, model)
	);`

	statements := []string{articlesTable, storiesTable, activeHashIndex, linksTable, synthesisCacheTable}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveArticles upserts a batch of articles. This is the ingestion-side
// write path, used by fixtures and the CLI; the pipeline itself only reads.
func (s *Store) SaveArticles(ctx context.Context, articles []core.Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT OR REPLACE INTO articles
	(id, title, summary, topic, source, source_reputation, published, entities)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for _, a := range articles {
		var entitiesJSON any
		if a.CachedEntities != nil {
			data, err := json.Marshal(a.CachedEntities)
			if err != nil {
				return fmt.Errorf("failed to marshal entities for article %s: %w", a.ID, err)
			}
			entitiesJSON = string(data)
		}
		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.Title, a.Summary, a.Topic, a.Source, a.SourceReputation,
			a.Published.UTC(), entitiesJSON,
		); err != nil {
			return fmt.Errorf("failed to save article %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// FetchCandidateArticles returns the articles published inside the window,
// ordered by id for deterministic downstream clustering.
func (s *Store) FetchCandidateArticles(ctx context.Context, start, end time.Time) ([]core.Article, error) {
	query := `
	SELECT id, title, summary, topic, source, source_reputation, published, entities
	FROM articles
	WHERE published >= ? AND published <= ?
	ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate articles: %w", err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		var a core.Article
		var published time.Time
		var entitiesJSON sql.NullString
		if err := rows.Scan(&a.ID, &a.Title, &a.Summary, &a.Topic, &a.Source,
			&a.SourceReputation, &published, &entitiesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a.Published = published
		if entitiesJSON.Valid && entitiesJSON.String != "" {
			var set core.EntitySet
			if err := json.Unmarshal([]byte(entitiesJSON.String), &set); err == nil {
				a.CachedEntities = &set
			}
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// FindActiveByHash returns the active story with the given story hash, or
// nil when none exists.
func (s *Store) FindActiveByHash(ctx context.Context, hash string) (*core.Story, error) {
	row := s.db.QueryRowContext(ctx, selectStory+` WHERE story_hash = ? AND status = ?`, hash, core.StoryStatusActive)
	return scanStory(row)
}

// overlapCandidateLimit caps how many active stories an overlap lookup
// returns. The raw intersection count ranks candidates, but the caller
// compares proportional overlap, so the single biggest intersection is not
// always the right match.
const overlapCandidateLimit = 5

// FindOverlappingActive returns active stories with the same topic whose
// linked article sets intersect the given ids, most-shared first, each
// paired with its linked article ids. Returns an empty slice when no
// active story shares both the topic and at least one article.
func (s *Store) FindOverlappingActive(ctx context.Context, articleIDs []string, topic string) ([]core.StoryOverlap, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}

	placeholders := ""
	args := make([]any, 0, len(articleIDs)+2)
	for i, id := range articleIDs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}
	args = append(args, core.StoryStatusActive, topic)

	query := `
	SELECT l.story_id, COUNT(*) AS overlap
	FROM story_articles l
	JOIN stories st ON st.id = l.story_id
	WHERE l.article_id IN (` + placeholders + `)
	  AND st.status = ?
	  AND EXISTS (SELECT 1 FROM json_each(st.topics) WHERE json_each.value = ?)
	GROUP BY l.story_id
	ORDER BY overlap DESC, l.story_id
	LIMIT ` + fmt.Sprintf("%d", overlapCandidateLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping stories: %w", err)
	}
	defer rows.Close()

	var storyIDs []string
	for rows.Next() {
		var storyID string
		var overlap int
		if err := rows.Scan(&storyID, &overlap); err != nil {
			return nil, fmt.Errorf("failed to scan overlapping story: %w", err)
		}
		storyIDs = append(storyIDs, storyID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	candidates := make([]core.StoryOverlap, 0, len(storyIDs))
	for _, storyID := range storyIDs {
		story, err := s.GetStory(ctx, storyID)
		if err != nil {
			return nil, err
		}
		linked, err := s.LinkedArticleIDs(ctx, storyID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, core.StoryOverlap{Story: story, ArticleIDs: linked})
	}
	return candidates, nil
}

// GetStory retrieves one story by id.
func (s *Store) GetStory(ctx context.Context, id string) (*core.Story, error) {
	row := s.db.QueryRowContext(ctx, selectStory+` WHERE id = ?`, id)
	return scanStory(row)
}

// LinkedArticleIDs returns the article ids linked to a story.
func (s *Store) LinkedArticleIDs(ctx context.Context, storyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id FROM story_articles WHERE story_id = ? ORDER BY article_id`, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query story links: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListActiveStories returns all active stories ordered by quality, best
// first.
func (s *Store) ListActiveStories(ctx context.Context) ([]core.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		selectStory+` WHERE status = ? ORDER BY quality_score DESC, id`, core.StoryStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active stories: %w", err)
	}
	defer rows.Close()

	var stories []core.Story
	for rows.Next() {
		story, err := scanStoryRows(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, *story)
	}
	return stories, rows.Err()
}

// ArchiveStoriesOlderThan marks active stories whose last update is older
// than age as archived. Stories are never hard-deleted. Returns the number
// of stories archived.
func (s *Store) ArchiveStoriesOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	now := nowUTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE stories SET status = ?, last_updated = ? WHERE status = ? AND last_updated < ?`,
		core.StoryStatusArchived, now, core.StoryStatusActive, now.Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to archive stories: %w", err)
	}
	return res.RowsAffected()
}

const selectStory = `
	SELECT id, title, synthesis, key_points, significance, topics, entities,
	       article_count, importance_score, freshness_score, quality_score,
	       cluster_method, story_hash, model_used, status,
	       generated_at, first_seen, last_updated, window_start, window_end
	FROM stories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row *sql.Row) (*core.Story, error) {
	story, err := scanStoryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return story, err
}

func scanStoryRows(rows *sql.Rows) (*core.Story, error) {
	return scanStoryRow(rows)
}

func scanStoryRow(row rowScanner) (*core.Story, error) {
	var story core.Story
	var keyPoints, topics, entities string
	err := row.Scan(
		&story.ID, &story.Title, &story.Synthesis, &keyPoints, &story.Significance,
		&topics, &entities, &story.ArticleCount, &story.ImportanceScore,
		&story.FreshnessScore, &story.QualityScore, &story.ClusterMethod,
		&story.StoryHash, &story.ModelUsed, &story.Status,
		&story.GeneratedAt, &story.FirstSeen, &story.LastUpdated,
		&story.WindowStart, &story.WindowEnd,
	)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(keyPoints), &story.KeyPoints)
	_ = json.Unmarshal([]byte(topics), &story.Topics)
	_ = json.Unmarshal([]byte(entities), &story.Entities)
	return &story, nil
}
