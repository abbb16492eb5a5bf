package synthesize

import (
	"sort"
	"strings"

	"newsloom/internal/core"
)

// ComposeFallback deterministically builds a story draft without the
// text-generation service. The lead article is the most recent one, with
// length as the tiebreak; the synthesis concatenates the opening of each
// member article.
func ComposeFallback(cluster core.Cluster, entitySets map[string]core.EntitySet) core.StoryDraft {
	articles := make([]core.Article, len(cluster.Articles))
	copy(articles, cluster.Articles)
	sort.Slice(articles, func(i, j int) bool {
		if !articles[i].Published.Equal(articles[j].Published) {
			return articles[i].Published.After(articles[j].Published)
		}
		if len(articles[i].Summary) != len(articles[j].Summary) {
			return len(articles[i].Summary) > len(articles[j].Summary)
		}
		return articles[i].ID < articles[j].ID
	})
	lead := articles[0]

	var synthesis []string
	var keyPoints []string
	for _, a := range articles {
		sentences := splitSentences(a.Summary)
		if len(sentences) > 0 {
			keyPoints = append(keyPoints, sentences[0])
		}
		opening := sentences
		if len(opening) > 2 {
			opening = opening[:2]
		}
		synthesis = append(synthesis, strings.Join(opening, " "))
	}

	entitySeen := make(map[string]bool)
	var entities []string
	for _, a := range articles {
		set := entitySets[a.ID]
		for _, e := range set.All() {
			if !entitySeen[e] {
				entitySeen[e] = true
				entities = append(entities, e)
			}
		}
	}
	sort.Strings(entities)

	topicSeen := make(map[string]bool)
	var topics []string
	for _, a := range articles {
		if a.Topic != "" && !topicSeen[a.Topic] {
			topicSeen[a.Topic] = true
			topics = append(topics, a.Topic)
		}
	}
	sort.Strings(topics)

	return core.StoryDraft{
		Title:        lead.Title,
		Synthesis:    strings.Join(synthesis, " "),
		KeyPoints:    keyPoints,
		Significance: "Several sources covered this development in the same time window.",
		Topics:       topics,
		Entities:     entities,
		UsedLLM:      false,
	}
}

// splitSentences performs a simple terminator-based sentence split, good
// enough for composing fallback text from already-cleaned summaries.
func splitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder
	for _, r := range text {
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(sb.String())
			if len(s) > 1 {
				sentences = append(sentences, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
