// Package similarity computes composite lexical/entity similarity scores
// between pairs of articles. All functions are pure so clustering stays
// reproducible for identical inputs.
package similarity

import (
	"strings"
	"unicode"

	"newsloom/internal/core"
)

// Weights of the composite score. Time proximity is deliberately absent:
// the time window is a hard gate applied before any pair is compared.
const (
	EntityWeight  = 0.5
	LexicalWeight = 0.3
	TopicWeight   = 0.2
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "has": true,
	"have": true, "in": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "were": true, "will": true, "with": true,
}

// Score computes the composite similarity of two articles in [0,1]:
// entity-set Jaccard (0.5), lexical n-gram Jaccard over normalized
// title+summary text (0.3), and a binary topic-match bonus (0.2).
func Score(a, b core.Article, entitiesA, entitiesB core.EntitySet) float64 {
	score := EntityWeight*entitiesA.Jaccard(&entitiesB) +
		LexicalWeight*NGramJaccard(a.Title+" "+a.Summary, b.Title+" "+b.Summary)
	if a.Topic != "" && a.Topic == b.Topic {
		score += TopicWeight
	}
	if score > 1 {
		score = 1
	}
	return score
}

// NGramJaccard computes the Jaccard overlap of the combined unigram, bigram
// and trigram sets of two normalized texts.
func NGramJaccard(a, b string) float64 {
	gramsA := ngramSet(Tokenize(a))
	gramsB := ngramSet(Tokenize(b))
	if len(gramsA) == 0 || len(gramsB) == 0 {
		return 0
	}
	intersection := 0
	for g := range gramsA {
		if gramsB[g] {
			intersection++
		}
	}
	union := len(gramsA) + len(gramsB) - intersection
	return float64(intersection) / float64(union)
}

// Tokenize normalizes text to lowercase word tokens, stripping punctuation
// and stopwords.
func Tokenize(text string) []string {
	var tokens []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() == 0 {
			return
		}
		word := sb.String()
		sb.Reset()
		if !stopwords[word] {
			tokens = append(tokens, word)
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func ngramSet(tokens []string) map[string]bool {
	grams := make(map[string]bool, len(tokens)*3)
	for i := range tokens {
		grams[tokens[i]] = true
		if i+1 < len(tokens) {
			grams[tokens[i]+" "+tokens[i+1]] = true
		}
		if i+2 < len(tokens) {
			grams[tokens[i]+" "+tokens[i+1]+" "+tokens[i+2]] = true
		}
	}
	return grams
}

// PairKey returns the deterministic diagnostic key for a pair of article
// ids, ordered so that PairKey(a,b) == PairKey(b,a).
func PairKey(idA, idB string) string {
	if idB < idA {
		idA, idB = idB, idA
	}
	return idA + "|" + idB
}
