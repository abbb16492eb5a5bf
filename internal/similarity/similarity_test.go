package similarity

import (
	"testing"

	"newsloom/internal/core"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The Quick, Brown Fox is on the run!")
	expected := []string{"quick", "brown", "fox", "run"}
	if len(tokens) != len(expected) {
		t.Fatalf("Expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, tok := range expected {
		if tokens[i] != tok {
			t.Errorf("Token %d: expected %q, got %q", i, tok, tokens[i])
		}
	}
}

func TestTokenize_NonASCIISeparators(t *testing.T) {
	// NBSP, em-dash and CJK punctuation split tokens like ASCII whitespace
	// and punctuation do.
	tokens := Tokenize("cloud platform launch—update alpha、beta")
	expected := []string{"cloud", "platform", "launch", "update", "alpha", "beta"}
	if len(tokens) != len(expected) {
		t.Fatalf("Expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, tok := range expected {
		if tokens[i] != tok {
			t.Errorf("Token %d: expected %q, got %q", i, tok, tokens[i])
		}
	}
	// Non-ASCII letters still form tokens.
	if tokens := Tokenize("café"); len(tokens) != 1 || tokens[0] != "café" {
		t.Errorf("Accented word should survive as one token, got %v", tokens)
	}
}

func TestTokenize_Empty(t *testing.T) {
	if tokens := Tokenize(""); len(tokens) != 0 {
		t.Errorf("Expected no tokens for empty text, got %v", tokens)
	}
	// Stopwords-only text also tokenizes to nothing.
	if tokens := Tokenize("the and of"); len(tokens) != 0 {
		t.Errorf("Expected no tokens for stopword text, got %v", tokens)
	}
}

func TestNGramJaccard_Identical(t *testing.T) {
	text := "openai releases new reasoning model"
	if score := NGramJaccard(text, text); score != 1.0 {
		t.Errorf("Identical texts should score 1.0, got %f", score)
	}
}

func TestNGramJaccard_Disjoint(t *testing.T) {
	if score := NGramJaccard("quantum computing breakthrough", "local election results tonight"); score != 0.0 {
		t.Errorf("Disjoint texts should score 0.0, got %f", score)
	}
}

func TestNGramJaccard_EmptyText(t *testing.T) {
	if score := NGramJaccard("", "something here"); score != 0.0 {
		t.Errorf("Empty text should score 0.0, got %f", score)
	}
}

func TestScore_TopicBonus(t *testing.T) {
	a := core.Article{ID: "a", Title: "alpha", Topic: "tech"}
	b := core.Article{ID: "b", Title: "omega", Topic: "tech"}
	c := core.Article{ID: "c", Title: "omega", Topic: "sports"}

	sameTopic := Score(a, b, core.EntitySet{}, core.EntitySet{})
	diffTopic := Score(a, c, core.EntitySet{}, core.EntitySet{})

	if sameTopic != TopicWeight {
		t.Errorf("Expected topic-only score %f, got %f", TopicWeight, sameTopic)
	}
	if diffTopic != 0 {
		t.Errorf("Expected zero score across topics with no overlap, got %f", diffTopic)
	}
}

func TestScore_EmptyTopicGetsNoBonus(t *testing.T) {
	a := core.Article{ID: "a", Title: "alpha"}
	b := core.Article{ID: "b", Title: "omega"}
	if score := Score(a, b, core.EntitySet{}, core.EntitySet{}); score != 0 {
		t.Errorf("Two articles with empty topics should not get the topic bonus, got %f", score)
	}
}

func TestScore_Symmetric(t *testing.T) {
	a := core.Article{ID: "a", Title: "chipmaker announces new accelerator", Summary: "datacenter silicon", Topic: "tech"}
	b := core.Article{ID: "b", Title: "new accelerator from chipmaker", Summary: "gpu for datacenter", Topic: "tech"}
	ea := core.EntitySet{Organizations: []string{"acme"}, Technologies: []string{"gpu"}}
	eb := core.EntitySet{Organizations: []string{"acme"}, Technologies: []string{"gpu", "hbm"}}

	ab := Score(a, b, ea, eb)
	ba := Score(b, a, eb, ea)
	if ab != ba {
		t.Errorf("Score should be symmetric: %f vs %f", ab, ba)
	}
	if ab <= 0 || ab > 1 {
		t.Errorf("Score should be in (0,1], got %f", ab)
	}
}

func TestScore_FullOverlapClamped(t *testing.T) {
	a := core.Article{ID: "a", Title: "identical title here", Summary: "identical body", Topic: "tech"}
	b := core.Article{ID: "b", Title: "identical title here", Summary: "identical body", Topic: "tech"}
	e := core.EntitySet{Organizations: []string{"acme"}}

	if score := Score(a, b, e, e); score != 1.0 {
		t.Errorf("Full overlap should clamp to 1.0, got %f", score)
	}
}

func TestPairKey_Ordered(t *testing.T) {
	if PairKey("b", "a") != PairKey("a", "b") {
		t.Error("PairKey should be order independent")
	}
	if PairKey("a", "b") != "a|b" {
		t.Errorf("Expected a|b, got %s", PairKey("a", "b"))
	}
}
