package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"newsloom/internal/core"
)

// synthesisTTL bounds how long a cached draft stays usable. Overridable
// per store via SetSynthesisTTL.
const defaultSynthesisTTL = 72 * time.Hour

// SetSynthesisTTL overrides the freshness horizon for cached drafts.
func (s *Store) SetSynthesisTTL(ttl time.Duration) {
	if ttl > 0 {
		s.synthesisTTL = ttl
	}
}

func (s *Store) ttl() time.Duration {
	if s.synthesisTTL > 0 {
		return s.synthesisTTL
	}
	return defaultSynthesisTTL
}

// GetSynthesis returns the cached draft for a cluster hash and model, or
// nil when none is fresh enough.
func (s *Store) GetSynthesis(ctx context.Context, clusterHash, model string) (*core.StoryDraft, error) {
	cutoff := nowUTC().Add(-s.ttl())

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT draft FROM synthesis_cache
		 WHERE cluster_hash = ? AND model = ? AND created_at >= ?`,
		clusterHash, model, cutoff).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query synthesis cache: %w", err)
	}

	var draft core.StoryDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		// A corrupt entry is treated as a miss so the synthesizer
		// regenerates rather than failing the cluster.
		return nil, nil
	}
	return &draft, nil
}

// PutSynthesis stores a draft for reuse across runs.
func (s *Store) PutSynthesis(ctx context.Context, clusterHash, model string, draft core.StoryDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO synthesis_cache (cluster_hash, model, draft, created_at)
		 VALUES (?, ?, ?, ?)`,
		clusterHash, model, string(data), nowUTC())
	if err != nil {
		return fmt.Errorf("failed to store synthesis: %w", err)
	}
	return nil
}

// PruneSynthesisCache drops entries older than the freshness horizon.
// Returns the number of entries removed.
func (s *Store) PruneSynthesisCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM synthesis_cache WHERE created_at < ?`, nowUTC().Add(-s.ttl()))
	if err != nil {
		return 0, fmt.Errorf("failed to prune synthesis cache: %w", err)
	}
	return res.RowsAffected()
}

// ClearSynthesisCache drops all cached drafts.
func (s *Store) ClearSynthesisCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM synthesis_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear synthesis cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats summarizes what the store currently holds.
type Stats struct {
	Articles        int `json:"articles"`
	ActiveStories   int `json:"active_stories"`
	ArchivedStories int `json:"archived_stories"`
	CachedDrafts    int `json:"cached_drafts"`
}

// Stats counts articles, stories by status, and cached drafts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		query string
		dest  *int
		args  []any
	}{
		{`SELECT COUNT(*) FROM articles`, &stats.Articles, nil},
		{`SELECT COUNT(*) FROM stories WHERE status = ?`, &stats.ActiveStories, []any{core.StoryStatusActive}},
		{`SELECT COUNT(*) FROM stories WHERE status = ?`, &stats.ArchivedStories, []any{core.StoryStatusArchived}},
		{`SELECT COUNT(*) FROM synthesis_cache`, &stats.CachedDrafts, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to gather stats: %w", err)
		}
	}
	return stats, nil
}
