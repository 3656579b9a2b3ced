// internal/stages/querygen/generator.go
package querygen

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
)

const TaskType = "generate-queries"

// framing templates, expanded with topic and context terms. The order matters:
// earlier framings keep their slots when the max-query cap truncates the set.
var framings = []struct {
	name      string
	templates []string
}{
	{"problem", []string{
		"%s market size growth statistics",
		"%s adoption challenges barriers",
	}},
	{"competitor", []string{
		"%s main competitors market share",
		"%s competitive landscape leading companies",
	}},
	{"trend", []string{
		"%s trends innovation outlook",
		"%s emerging technology disruption",
	}},
	{"academic", []string{
		"%s research study findings",
		"%s industry report analysis",
	}},
}

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return nil, errors.NewInsufficientContextError("empty topic")
	}

	var candidates []string
	for _, f := range framings {
		for _, tpl := range f.templates {
			candidates = append(candidates, fmt.Sprintf(tpl, topic))
		}
	}

	// Context terms widen each framing rather than forming their own group.
	if seg := strings.TrimSpace(input.Context.Segment); seg != "" {
		candidates = append(candidates,
			fmt.Sprintf("%s %s segment analysis", topic, seg),
			fmt.Sprintf("%s pricing benchmarks %s", topic, seg),
		)
	}
	if aud := strings.TrimSpace(input.Context.Audience); aud != "" {
		candidates = append(candidates,
			fmt.Sprintf("%s %s buying behavior", topic, aud),
			fmt.Sprintf("%s demographics %s profile", topic, aud),
		)
	}
	for _, goal := range input.Context.Goals {
		if g := strings.TrimSpace(goal); g != "" {
			candidates = append(candidates, fmt.Sprintf("%s %s", topic, g))
		}
	}

	queries := h.dedupe(candidates)
	if len(queries) > h.config.MaxQueries {
		queries = queries[:h.config.MaxQueries]
	}

	h.logger.Info("queries generated", map[string]interface{}{
		"candidates": len(candidates),
		"emitted":    len(queries),
	})

	return &Output{Queries: queries}, nil
}

var spaceRe = regexp.MustCompile(`\s+`)

func normalize(q string) string {
	return spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(q)), " ")
}

// dedupe drops exact duplicates after normalization, then suppresses
// near-duplicates whose token overlap exceeds the configured threshold.
func (h *Handler) dedupe(candidates []string) []string {
	seen := make(map[string]bool)
	var kept []string
	var keptTokens []map[string]bool

	for _, q := range candidates {
		norm := normalize(q)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true

		tokens := tokenSet(norm)
		dup := false
		for _, prev := range keptTokens {
			if overlap(tokens, prev) >= h.config.OverlapThreshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}

		kept = append(kept, spaceRe.ReplaceAllString(strings.TrimSpace(q), " "))
		keptTokens = append(keptTokens, tokens)
	}
	return kept
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// overlap is the Jaccard-style ratio of shared tokens over the smaller set.
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if b[tok] {
			shared++
		}
	}
	min := len(a)
	if len(b) < min {
		min = len(b)
	}
	return float64(shared) / float64(min)
}
