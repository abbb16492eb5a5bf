package synthesize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"newsloom/internal/core"
	"newsloom/internal/dedup"
)

// mockCompleter implements llm.Completer with scripted responses
type mockCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string, schema *genai.Schema, timeout time.Duration) (string, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (m *mockCompleter) ModelName() string { return "test-model" }

// mockCache implements Cache in memory
type mockCache struct {
	drafts map[string]core.StoryDraft
	puts   int
}

func newMockCache() *mockCache {
	return &mockCache{drafts: make(map[string]core.StoryDraft)}
}

func (m *mockCache) GetSynthesis(ctx context.Context, clusterHash, model string) (*core.StoryDraft, error) {
	if draft, ok := m.drafts[clusterHash+":"+model]; ok {
		return &draft, nil
	}
	return nil, nil
}

func (m *mockCache) PutSynthesis(ctx context.Context, clusterHash, model string, draft core.StoryDraft) error {
	m.drafts[clusterHash+":"+model] = draft
	m.puts++
	return nil
}

func validDraftJSON(t *testing.T, keyPoints int) string {
	t.Helper()
	draft := map[string]any{
		"title":        "Acme ships Orion database",
		"synthesis":    "Acme released Orion, a distributed database, with broad coverage across outlets.",
		"significance": "First major storage launch of the quarter.",
		"topics":       []string{"tech"},
		"entities":     []string{"acme", "orion"},
	}
	points := make([]string, keyPoints)
	for i := range points {
		points[i] = fmt.Sprintf("key point %d", i+1)
	}
	draft["key_points"] = points
	data, err := json.Marshal(draft)
	if err != nil {
		t.Fatalf("Failed to marshal draft: %v", err)
	}
	return string(data)
}

func synthCluster() (core.Cluster, map[string]core.EntitySet) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cluster := core.Cluster{
		Topic: "tech",
		Articles: []core.Article{
			{ID: "a1", Title: "Acme launches Orion", Summary: "Acme released Orion today. Analysts approved.", Topic: "tech", Published: now},
			{ID: "a2", Title: "Orion arrives", Summary: "The Orion database shipped. Early benchmarks look strong.", Topic: "tech", Published: now.Add(-time.Hour)},
		},
	}
	sets := map[string]core.EntitySet{
		"a1": {Organizations: []string{"acme"}, Products: []string{"orion"}},
		"a2": {Products: []string{"orion"}},
	}
	return cluster, sets
}

func TestSynthesize_ModelBacked(t *testing.T) {
	cluster, sets := synthCluster()
	client := &mockCompleter{responses: []string{validDraftJSON(t, 4)}}
	cache := newMockCache()

	s := NewSynthesizer(client, cache, DefaultOptions())
	draft, usedLLM, err := s.Synthesize(context.Background(), cluster, sets)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !usedLLM {
		t.Error("Expected model-backed synthesis")
	}
	if draft.Title == "" || draft.Synthesis == "" {
		t.Error("Draft should have title and synthesis")
	}
	if len(draft.KeyPoints) != 4 {
		t.Errorf("Expected 4 key points, got %d", len(draft.KeyPoints))
	}
	if cache.puts != 1 {
		t.Errorf("Model draft should be cached, got %d puts", cache.puts)
	}
}

func TestSynthesize_RepairPass(t *testing.T) {
	cluster, sets := synthCluster()
	client := &mockCompleter{responses: []string{"not json {", validDraftJSON(t, 3)}}

	s := NewSynthesizer(client, newMockCache(), DefaultOptions())
	_, usedLLM, err := s.Synthesize(context.Background(), cluster, sets)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !usedLLM {
		t.Error("Repaired output should still count as model-backed")
	}
	if client.calls != 2 {
		t.Errorf("Expected exactly one repair call, got %d calls total", client.calls)
	}
}

func TestSynthesize_FallbackOnPersistentFailure(t *testing.T) {
	cluster, sets := synthCluster()
	transient := &core.TransientGenerationError{Op: "complete", Err: errors.New("rate limited")}
	client := &mockCompleter{errs: []error{transient, transient}}
	cache := newMockCache()

	s := NewSynthesizer(client, cache, DefaultOptions())
	draft, usedLLM, err := s.Synthesize(context.Background(), cluster, sets)
	if err != nil {
		t.Fatalf("Generation failure should degrade, not error: %v", err)
	}
	if usedLLM {
		t.Error("Fallback draft should not be marked model-backed")
	}
	if draft.Title == "" || draft.Synthesis == "" {
		t.Error("Fallback draft should still have title and synthesis")
	}
	if len(draft.KeyPoints) < MinKeyPoints || len(draft.KeyPoints) > MaxKeyPoints {
		t.Errorf("Fallback key points out of bounds: %d", len(draft.KeyPoints))
	}
	// Fallback drafts are never cached, so the next run can retry the model.
	if cache.puts != 0 {
		t.Errorf("Fallback draft should not be cached, got %d puts", cache.puts)
	}
}

func TestSynthesize_CancellationAborts(t *testing.T) {
	cluster, sets := synthCluster()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockCompleter{errs: []error{ctx.Err(), ctx.Err()}}
	s := NewSynthesizer(client, nil, DefaultOptions())
	_, _, err := s.Synthesize(ctx, cluster, sets)
	if err == nil {
		t.Fatal("Cancelled context should abort synthesis, not fall back")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSynthesize_CacheHit(t *testing.T) {
	cluster, sets := synthCluster()
	cache := newMockCache()
	cached := core.StoryDraft{
		Title:     "Cached title",
		Synthesis: "Cached synthesis.",
		KeyPoints: []string{"one", "two", "three"},
		UsedLLM:   true,
	}
	cache.drafts[dedup.Hash(cluster)+":test-model"] = cached

	client := &mockCompleter{}
	s := NewSynthesizer(client, cache, DefaultOptions())
	draft, usedLLM, err := s.Synthesize(context.Background(), cluster, sets)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if client.calls != 0 {
		t.Errorf("Cache hit should make no generation calls, got %d", client.calls)
	}
	if !usedLLM || draft.Title != "Cached title" {
		t.Error("Cache hit should return the cached draft as-is")
	}
}

func TestSynthesize_EmptyCluster(t *testing.T) {
	s := NewSynthesizer(&mockCompleter{}, nil, DefaultOptions())
	if _, _, err := s.Synthesize(context.Background(), core.Cluster{}, nil); err == nil {
		t.Error("Empty cluster should be rejected")
	}
}

func TestClampDraft_PadsAndCaps(t *testing.T) {
	short := clampDraft(core.StoryDraft{Title: "t", Synthesis: "s", KeyPoints: []string{"only one"}})
	if len(short.KeyPoints) != MinKeyPoints {
		t.Errorf("Expected padding to %d key points, got %d", MinKeyPoints, len(short.KeyPoints))
	}

	var many []string
	for i := 0; i < 15; i++ {
		many = append(many, fmt.Sprintf("p%d", i))
	}
	long := clampDraft(core.StoryDraft{Title: "t", Synthesis: "s", KeyPoints: many})
	if len(long.KeyPoints) != MaxKeyPoints {
		t.Errorf("Expected cap at %d key points, got %d", MaxKeyPoints, len(long.KeyPoints))
	}

	// Empty strings are dropped before padding.
	blanks := clampDraft(core.StoryDraft{Title: "t", Synthesis: "s", KeyPoints: []string{"", "real", ""}})
	if len(blanks.KeyPoints) != MinKeyPoints || blanks.KeyPoints[0] != "real" {
		t.Errorf("Blank key points should be dropped, got %v", blanks.KeyPoints)
	}
}

func TestClampDraft_TitleTruncatesOnRuneBoundary(t *testing.T) {
	title := strings.Repeat("é", maxTitleRunes+50)
	clamped := clampDraft(core.StoryDraft{Title: title, Synthesis: "s", KeyPoints: []string{"a", "b", "c"}})
	if !utf8.ValidString(clamped.Title) {
		t.Fatal("Truncated title must stay valid UTF-8")
	}
	if got := utf8.RuneCountInString(clamped.Title); got != maxTitleRunes {
		t.Errorf("Expected %d runes, got %d", maxTitleRunes, got)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// All inputs are multi-byte; cutting on bytes would split a rune.
	s := strings.Repeat("日本語", 10)
	out := truncate(s, 7)
	if !utf8.ValidString(out) {
		t.Fatalf("Truncated string must stay valid UTF-8, got %q", out)
	}
	if !strings.HasSuffix(out, "...") {
		t.Errorf("Expected ellipsis suffix, got %q", out)
	}
	if truncate("short", 10) != "short" {
		t.Error("Strings within the limit pass through unchanged")
	}
}

func TestComposeFallback_Deterministic(t *testing.T) {
	cluster, sets := synthCluster()

	first := ComposeFallback(cluster, sets)
	second := ComposeFallback(cluster, sets)
	if first.Title != second.Title || first.Synthesis != second.Synthesis {
		t.Error("Fallback composition should be deterministic")
	}
	if len(first.KeyPoints) != len(second.KeyPoints) {
		t.Error("Fallback key points should be deterministic")
	}

	// Lead article is the newest: a1.
	if first.Title != cluster.Articles[0].Title {
		t.Errorf("Expected lead title %q, got %q", cluster.Articles[0].Title, first.Title)
	}
	if first.UsedLLM {
		t.Error("Fallback draft must not claim model backing")
	}
}
