// internal/stages/synthesis/filter.go
package synthesis

import (
	"fmt"
	"regexp"
	"strings"

	"research-pipeline/internal/common/metrics"
	"research-pipeline/internal/models"
)

var (
	urlRe     = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	htmlTagRe = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
	quoteRe   = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
)

// OutputFilter rejects insights that leak raw data or show fabrication
// markers. It is the last barrier before content reaches the report, so it
// never passes a violating insight through.
type OutputFilter struct {
	maxQuoteLength int
	markers        []string
}

func NewOutputFilter(maxQuoteLength int, markers []string) *OutputFilter {
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return &OutputFilter{maxQuoteLength: maxQuoteLength, markers: lowered}
}

// Check returns the violations found in one insight summary, empty when clean.
func (f *OutputFilter) Check(ins llmInsight) []string {
	var violations []string

	if urlRe.MatchString(ins.Summary) {
		violations = append(violations, "embedded URL")
	}
	if htmlTagRe.MatchString(ins.Summary) {
		violations = append(violations, "embedded HTML markup")
	}
	for _, match := range quoteRe.FindAllStringSubmatch(ins.Summary, -1) {
		quoted := match[1]
		if quoted == "" {
			quoted = match[2]
		}
		if len(quoted) > f.maxQuoteLength {
			violations = append(violations, fmt.Sprintf("verbatim quote over %d chars", f.maxQuoteLength))
			break
		}
	}
	lower := strings.ToLower(ins.Summary)
	for _, marker := range f.markers {
		if strings.Contains(lower, marker) {
			violations = append(violations, fmt.Sprintf("fabrication marker %q", marker))
			break
		}
	}
	if ins.EvidenceCount <= 0 {
		violations = append(violations, "zero evidence count")
	}

	return violations
}

// Partition splits a validated response into clean insights and the
// violations of the rejected ones, keyed by insight index.
func (f *OutputFilter) Partition(resp *llmResponse) ([]models.Insight, map[int][]string) {
	var clean []models.Insight
	rejected := make(map[int][]string)

	for i, ins := range resp.Insights {
		if violations := f.Check(ins); len(violations) > 0 {
			rejected[i] = violations
			for _, v := range violations {
				metrics.InsightsRejected.WithLabelValues(reasonLabel(v)).Inc()
			}
			continue
		}
		clean = append(clean, models.Insight{
			Category:      models.InsightCategory(ins.Category),
			Priority:      models.InsightPriority(ins.Priority),
			Summary:       strings.TrimSpace(ins.Summary),
			EvidenceCount: ins.EvidenceCount,
		})
	}
	return clean, rejected
}

func reasonLabel(violation string) string {
	switch {
	case strings.HasPrefix(violation, "embedded URL"):
		return "url"
	case strings.HasPrefix(violation, "embedded HTML"):
		return "html"
	case strings.HasPrefix(violation, "verbatim quote"):
		return "long_quote"
	case strings.HasPrefix(violation, "fabrication marker"):
		return "fabrication_marker"
	case violation == "zero evidence count":
		return "zero_evidence"
	default:
		return "other"
	}
}
