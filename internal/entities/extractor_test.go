package entities

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"google.golang.org/genai"

	"newsloom/internal/cache"
	"newsloom/internal/core"
)

// mockCompleter implements llm.Completer with a fixed response
type mockCompleter struct {
	response string
	err      error
	calls    int
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string, schema *genai.Schema, timeout time.Duration) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockCompleter) ModelName() string { return "test-model" }

func newTestExtractor(client *mockCompleter) *Extractor {
	entityCache, _ := cache.NewLRU[core.EntitySet](16)
	return NewExtractor(client, entityCache, time.Second)
}

func TestExtract_ParsesEntities(t *testing.T) {
	client := &mockCompleter{
		response: `{"organizations":["Acme"],"products":["Orion"],"people":[],"technologies":["SQL"],"locations":[]}`,
	}
	extractor := newTestExtractor(client)

	set := extractor.Extract(context.Background(), core.Article{ID: "a1", Title: "t", Summary: "s"})

	if !reflect.DeepEqual(set.Organizations, []string{"acme"}) {
		t.Errorf("Expected normalized organizations [acme], got %v", set.Organizations)
	}
	if !reflect.DeepEqual(set.Technologies, []string{"sql"}) {
		t.Errorf("Expected normalized technologies [sql], got %v", set.Technologies)
	}
}

func TestExtract_CacheAvoidsRepeatCalls(t *testing.T) {
	client := &mockCompleter{
		response: `{"organizations":["acme"],"products":[],"people":[],"technologies":[],"locations":[]}`,
	}
	extractor := newTestExtractor(client)
	article := core.Article{ID: "a1", Title: "same title", Summary: "same summary"}

	first := extractor.Extract(context.Background(), article)
	second := extractor.Extract(context.Background(), article)

	if client.calls != 1 {
		t.Errorf("Second extraction of identical content should hit the cache, got %d calls", client.calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Cached extraction should match the original")
	}
}

func TestExtract_ContentChangeMissesCache(t *testing.T) {
	client := &mockCompleter{
		response: `{"organizations":[],"products":[],"people":[],"technologies":[],"locations":[]}`,
	}
	extractor := newTestExtractor(client)

	extractor.Extract(context.Background(), core.Article{ID: "a1", Title: "before", Summary: "s"})
	extractor.Extract(context.Background(), core.Article{ID: "a1", Title: "after", Summary: "s"})

	if client.calls != 2 {
		t.Errorf("Edited content should invalidate the cache entry, got %d calls", client.calls)
	}
}

func TestExtract_IngestionEntitiesBypassModel(t *testing.T) {
	client := &mockCompleter{err: errors.New("should not be called")}
	extractor := newTestExtractor(client)

	article := core.Article{
		ID:             "a1",
		Title:          "t",
		CachedEntities: &core.EntitySet{Organizations: []string{"Acme", "acme"}},
	}
	set := extractor.Extract(context.Background(), article)

	if client.calls != 0 {
		t.Errorf("Supplied entities should bypass the model, got %d calls", client.calls)
	}
	if !reflect.DeepEqual(set.Organizations, []string{"acme"}) {
		t.Errorf("Supplied entities should still be normalized, got %v", set.Organizations)
	}
}

func TestExtract_FailureDegradesToEmptySet(t *testing.T) {
	client := &mockCompleter{err: &core.TransientGenerationError{Op: "complete", Err: errors.New("down")}}
	extractor := newTestExtractor(client)

	set := extractor.Extract(context.Background(), core.Article{ID: "a1", Title: "t", Summary: "s"})
	if !set.IsEmpty() {
		t.Errorf("Failed extraction should yield an empty set, got %+v", set)
	}
}

func TestCacheKey_IncludesModel(t *testing.T) {
	extractor := newTestExtractor(&mockCompleter{})
	key := extractor.CacheKey(core.Article{Title: "t", Summary: "s"})
	if key == "" {
		t.Fatal("Cache key should not be empty")
	}
	if key[len(key)-len(":test-model"):] != ":test-model" {
		t.Errorf("Cache key should end with the model id, got %s", key)
	}
}
