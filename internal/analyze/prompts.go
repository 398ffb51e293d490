// Package analyze scores enriched publications for press-worthiness with
// an LLM via OpenRouter, in small sequential sub-batches.
package analyze

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oeaw/storyscout/internal/model"
)

// SystemPrompt frames the model as the academy's science communication
// expert and pins the output to JSON.
const SystemPrompt = `You are a senior science communication expert at the Austrian Academy of Sciences (OeAW). Your expertise is identifying which research publications would interest journalists and the general public. You work in the communications department and regularly pitch stories to Austrian media outlets (ORF, Der Standard, Die Presse, APA, Wiener Zeitung, etc.). You evaluate research for its press-worthiness based on accessibility, societal relevance, novelty, storytelling potential, and media timeliness. Always respond with valid JSON only.`

// Per-publication budget inside the prompt.
const (
	promptContentWords = 500
	promptMaxAuthors   = 3
	promptMaxKeywords  = 8
)

var authorSplitRe = regexp.MustCompile(`[;,]`)

// BuildEvaluationPrompt renders the numbered publication blocks plus the
// scoring instructions and the required response shape.
func BuildEvaluationPrompt(pubs []model.Publication) string {
	blocks := make([]string, 0, len(pubs))
	for i, pub := range pubs {
		blocks = append(blocks, publicationBlock(i+1, &pub))
	}

	return fmt.Sprintf(`Evaluate the following %d academic publications from OeAW for public/journalist interest.

For EACH publication, provide:
1. public_accessibility (0.0-1.0): How easily non-experts can understand the research. Consider jargon level, concept complexity, and whether findings can be explained simply.
2. societal_relevance (0.0-1.0): Impact on health, environment, economy, culture, or daily life. How directly does this affect people?
3. novelty_factor (0.0-1.0): Is this a breakthrough? Does it challenge existing beliefs, represent a paradigm shift, or produce unexpected results?
4. storytelling_potential (0.0-1.0): Can journalists build a compelling narrative? Are there human interest angles, visual elements, or relatable scenarios?
5. media_timeliness (0.0-1.0): Does this connect to current public discourse, recent events, trending topics, or seasonal relevance?

6. pitch_suggestion: Write a 4-6 sentence German pitch that a press officer could use when contacting journalists. Include a hook, the key finding, why it matters to the public, and what makes it unique or timely. Use accessible, engaging, non-specialist language.

7. target_audience: Suggest specific media outlets or journalist types (e.g., "Wissenschaftsredaktion ORF", "Der Standard Wissen", "APA Science", "Die Presse Gesundheit")

8. suggested_angle: One sentence German narrative angle for media coverage.

9. reasoning: 2-3 sentence rationale for the scores given.

%s

Respond with ONLY valid JSON in this exact format:
{
  "evaluations": [
    {
      "publication_index": 1,
      "public_accessibility": 0.0,
      "societal_relevance": 0.0,
      "novelty_factor": 0.0,
      "storytelling_potential": 0.0,
      "media_timeliness": 0.0,
      "pitch_suggestion": "...",
      "target_audience": "...",
      "suggested_angle": "...",
      "reasoning": "..."
    }
  ]
}`, len(pubs), strings.Join(blocks, "\n\n"))
}

func publicationBlock(num int, pub *model.Publication) string {
	content := truncateWords(pub.BestContent(), promptContentWords)

	authors := "Unknown"
	if pub.Authors != nil && *pub.Authors != "" {
		parts := authorSplitRe.Split(*pub.Authors, -1)
		if len(parts) > promptMaxAuthors {
			parts = parts[:promptMaxAuthors]
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		authors = strings.Join(parts, ", ")
	}

	keywords := "N/A"
	if len(pub.EnrichedKeywords) > 0 {
		kws := pub.EnrichedKeywords
		if len(kws) > promptMaxKeywords {
			kws = kws[:promptMaxKeywords]
		}
		keywords = strings.Join(kws, ", ")
	}

	return fmt.Sprintf(`--- Publication %d ---
Title: %s
Authors: %s
Institute: %s
Published: %s
Keywords: %s
Content: %s`,
		num, pub.Title, authors,
		orNA(pub.Institute), orNA(pub.PublishedAt), keywords, content)
}

func truncateWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) > max {
		words = words[:max]
	}
	return strings.Join(words, " ")
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}
