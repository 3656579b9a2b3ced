// internal/stages/synthesis/prompt.go
package synthesis

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a market research analyst. You synthesize insights strictly from the source excerpts provided.

Rules:
- Base every insight only on the provided excerpts. Never invent figures, names, or events.
- Each insight cites how many distinct sources support it in "evidence_count".
- Do not include URLs, HTML, or verbatim passages longer than a sentence.
- Respond with a single JSON object, no prose around it:
{"insights": [{"category": "market|competitive|audience|risk", "priority": "high|medium|low", "summary": "...", "evidence_count": N}]}
- "summary" must be at least 30 characters and self-contained.
- "priority" reflects corroboration: high needs 3+ supporting sources, medium 2, low 1.`

// buildUserPrompt lays out the topic, the analysis framing, and numbered
// source excerpts. URLs are withheld so the model cannot echo them back.
func buildUserPrompt(input *Input, excerptLength int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Topic: %s\n", input.Topic)
	if input.Context.Segment != "" {
		fmt.Fprintf(&b, "Segment: %s\n", input.Context.Segment)
	}
	if input.Context.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", input.Context.Audience)
	}
	if len(input.Context.Goals) > 0 {
		fmt.Fprintf(&b, "Goals: %s\n", strings.Join(input.Context.Goals, "; "))
	}

	b.WriteString("\nSource excerpts:\n")
	n := 0
	for _, doc := range input.Documents {
		if !doc.Success {
			continue
		}
		n++
		fmt.Fprintf(&b, "\n[Source %d, tier: %s]\n%s\n", n, doc.Tier, excerpt(doc.Text, excerptLength))
	}

	b.WriteString("\nProduce insights across the market, competitive, audience, and risk categories where the excerpts support them.")
	return b.String()
}

// excerpt truncates at the last word boundary within the limit.
func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

// regenerationNote is appended when the first response violated the output
// filter, giving the model one chance to correct itself.
func regenerationNote(violations []string) string {
	return fmt.Sprintf("\n\nYour previous response was rejected for: %s. Regenerate the full JSON object without these problems.",
		strings.Join(violations, "; "))
}
