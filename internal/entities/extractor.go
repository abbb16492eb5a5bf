// Package entities extracts typed named entities from articles using the
// text-generation service, with a per-document-hash cache in front of it.
package entities

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"

	"newsloom/internal/cache"
	"newsloom/internal/core"
	"newsloom/internal/llm"
	"newsloom/internal/logger"
)

const extractionPromptTemplate = `Extract the named entities from the following article.

Title: %s

Content:
%s

Identify every organization, product, person, technology, and location the
article is actually about. Skip entities mentioned only in passing. Return
lowercase names without duplicates.`

const repairPromptTemplate = `The following output was supposed to be a JSON object with the string-array
fields "organizations", "products", "people", "technologies" and "locations",
but it does not parse. Fix it so it matches that shape exactly and return
only the corrected JSON.

%s`

// ExtractionSchema returns the response schema for entity extraction calls.
func ExtractionSchema() *genai.Schema {
	slot := &genai.Schema{
		Type:  genai.TypeArray,
		Items: &genai.Schema{Type: genai.TypeString},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"organizations": slot,
			"products":      slot,
			"people":        slot,
			"technologies":  slot,
			"locations":     slot,
		},
		Required: []string{"organizations", "products", "people", "technologies", "locations"},
	}
}

// Extractor pulls entity sets out of single documents. Extraction failures
// never propagate: a failed call yields an empty set, degrading similarity
// quality for that one article only.
type Extractor struct {
	client  llm.Completer
	cache   *cache.LRU[core.EntitySet]
	timeout time.Duration
}

// NewExtractor creates an extractor with the given completion client and
// injected cache.
func NewExtractor(client llm.Completer, entityCache *cache.LRU[core.EntitySet], timeout time.Duration) *Extractor {
	return &Extractor{
		client:  client,
		cache:   entityCache,
		timeout: timeout,
	}
}

// CacheKey returns the cache key for an article's entity extraction: the
// content hash plus the extractor model id. Content changes naturally
// invalidate stale entries.
func (e *Extractor) CacheKey(article core.Article) string {
	sum := sha256.Sum256([]byte(article.Title + "\n" + article.Summary))
	return hex.EncodeToString(sum[:]) + ":" + e.client.ModelName()
}

// Extract returns the entity set for one article. Ingestion-supplied entity
// sets are honored first, then the cache, then one generation call with a
// single repair attempt. Any failure returns an empty set.
func (e *Extractor) Extract(ctx context.Context, article core.Article) core.EntitySet {
	if article.CachedEntities != nil {
		set := *article.CachedEntities
		set.Normalize()
		return set
	}

	key := e.CacheKey(article)
	set, err := e.cache.GetOrCompute(key, func() (core.EntitySet, error) {
		return e.extractRemote(ctx, article)
	})
	if err != nil {
		log := logger.Get()
		log.Warn().
			Str("article_id", article.ID).
			Err(err).
			Msg("entity extraction degraded to empty set")
		return core.EntitySet{}
	}
	return set
}

func (e *Extractor) extractRemote(ctx context.Context, article core.Article) (core.EntitySet, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate, article.Title, article.Summary)

	raw, err := e.client.Complete(ctx, prompt, ExtractionSchema(), e.timeout)
	if err != nil {
		return core.EntitySet{}, err
	}

	set, parseErr := parseEntitySet(raw)
	if parseErr == nil {
		return set, nil
	}

	// One repair pass, then give up.
	repaired, err := e.client.Complete(ctx, fmt.Sprintf(repairPromptTemplate, raw), ExtractionSchema(), e.timeout)
	if err != nil {
		return core.EntitySet{}, err
	}
	set, parseErr = parseEntitySet(repaired)
	if parseErr != nil {
		return core.EntitySet{}, &core.SchemaParseError{Op: "extract-entities", Raw: truncate(repaired, 200), Err: parseErr}
	}
	return set, nil
}

func parseEntitySet(raw string) (core.EntitySet, error) {
	var set core.EntitySet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return core.EntitySet{}, err
	}
	set.Normalize()
	return set, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
