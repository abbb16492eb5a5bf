package synthesize

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"newsloom/internal/core"
)

const synthesisInstructions = `You are a news editor synthesizing several related articles into one story.

Write a structured story with:
1. TITLE: a clear, neutral headline under 120 characters. No clickbait.
2. SYNTHESIS: one unified narrative paragraph of 100-150 words that merges
   the key facts from ALL articles. Capture what happened, how the articles
   relate, and the full picture no single article gives.
3. KEY_POINTS: 3-8 short bullet strings, each one distinct fact or angle.
4. SIGNIFICANCE: one or two sentences on why this story matters.
5. TOPICS: short topic tags covering the story.
6. ENTITIES: the organizations, products, people, technologies and
   locations central to the story, lowercase.

Articles:
%s`

const synthesisRepairTemplate = `The following output was supposed to be a JSON object with the fields
"title" (string), "synthesis" (string), "key_points" (array of 3-8 strings),
"significance" (string), "topics" (array of strings) and "entities" (array
of strings), but it does not parse or is missing required fields. Fix it so
it matches that shape exactly and return only the corrected JSON.

%s`

// Schema returns the response schema for synthesis calls.
func Schema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {
				Type:        genai.TypeString,
				Description: "Clear, neutral headline under 120 characters",
			},
			"synthesis": {
				Type:        genai.TypeString,
				Description: "Unified narrative paragraph of 100-150 words merging all articles",
			},
			"key_points": {
				Type:        genai.TypeArray,
				Description: "3-8 short strings, one distinct fact or angle each",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
			"significance": {
				Type:        genai.TypeString,
				Description: "One or two sentences on why the story matters",
			},
			"topics": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"entities": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"title", "synthesis", "key_points", "significance"},
	}
}

// BuildSynthesisPrompt renders the synthesis prompt for one cluster,
// embedding each member article's title, source and summary.
func BuildSynthesisPrompt(cluster core.Cluster) string {
	var sb strings.Builder
	for i, a := range cluster.Articles {
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, a.Title))
		sb.WriteString(fmt.Sprintf("    Source: %s | Published: %s | Topic: %s\n",
			a.Source, a.Published.Format("2006-01-02 15:04"), a.Topic))
		summary := truncate(a.Summary, 1200)
		sb.WriteString(fmt.Sprintf("    %s\n\n", summary))
	}
	return fmt.Sprintf(synthesisInstructions, sb.String())
}

// BuildRepairPrompt asks the model to fix its own malformed output.
func BuildRepairPrompt(raw string) string {
	raw = clipRunes(raw, 4000)
	return fmt.Sprintf(synthesisRepairTemplate, raw)
}
