// internal/stages/quality/gate.go
package quality

import (
	"context"
	"fmt"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/models"
)

const TaskType = "quality-gate"

// Config holds the aggregate evidence thresholds the gate enforces.
type Config struct {
	MinSources       int
	MinContentVolume int     // total extracted characters
	MinQualityScore  float64 // 0-100
}

func LoadConfig() *Config {
	return &Config{
		MinSources:       5,
		MinContentVolume: 3000,
		MinQualityScore:  60.0,
	}
}

type Input struct {
	Insights   []models.Insight       `json:"insights"`
	Provenance models.ProvenanceStats `json:"provenance"`
}

type Output struct {
	Report models.QualityReport `json:"report"`
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

// Execute scores the aggregate evidence and lists every threshold violation.
// A failing verdict is returned alongside the error so the caller can attach
// the report to a degraded session instead of discarding it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := models.QualityReport{
		SourcesUsed:   input.Provenance.SourcesUsed,
		ContentVolume: input.Provenance.ContentVolume,
		InsightCount:  len(input.Insights),
		Score:         h.score(input),
	}

	if report.SourcesUsed < h.config.MinSources {
		report.Violations = append(report.Violations,
			fmt.Sprintf("minimum sources not met: %d < %d", report.SourcesUsed, h.config.MinSources))
	}
	if report.ContentVolume < h.config.MinContentVolume {
		report.Violations = append(report.Violations,
			fmt.Sprintf("minimum content volume not met: %d < %d", report.ContentVolume, h.config.MinContentVolume))
	}
	if report.InsightCount == 0 {
		report.Violations = append(report.Violations, "no insights produced")
	}
	for _, ins := range input.Insights {
		if ins.EvidenceCount <= 0 {
			report.Violations = append(report.Violations,
				fmt.Sprintf("insight without evidence: %q", truncate(ins.Summary, 60)))
		}
	}
	if report.Score < h.config.MinQualityScore {
		report.Violations = append(report.Violations,
			fmt.Sprintf("quality score below floor: %.1f < %.1f", report.Score, h.config.MinQualityScore))
	}

	report.Passed = len(report.Violations) == 0
	out := &Output{Report: report}

	if !report.Passed {
		h.logger.Warn("quality gate failed", map[string]interface{}{
			"score":      report.Score,
			"violations": report.Violations,
		})
		return out, errors.NewQualityGateFailedError(report.Violations)
	}

	h.logger.Info("quality gate passed", map[string]interface{}{
		"score":    report.Score,
		"sources":  report.SourcesUsed,
		"insights": report.InsightCount,
	})
	return out, nil
}

// score blends source breadth, content volume, and corroboration into a
// 0-100 value. Each component saturates at its threshold times a headroom
// factor so a single strong dimension cannot mask two weak ones.
func (h *Handler) score(input *Input) float64 {
	sources := saturate(float64(input.Provenance.SourcesUsed), float64(h.config.MinSources)*1.5)
	volume := saturate(float64(input.Provenance.ContentVolume), float64(h.config.MinContentVolume)*1.5)

	corroborated := 0
	for _, ins := range input.Insights {
		if ins.EvidenceCount >= 2 {
			corroborated++
		}
	}
	corroboration := 0.0
	if len(input.Insights) > 0 {
		corroboration = float64(corroborated) / float64(len(input.Insights))
	}

	return (sources*0.4 + volume*0.3 + corroboration*0.3) * 100
}

func saturate(value, ceiling float64) float64 {
	if ceiling <= 0 || value >= ceiling {
		return 1.0
	}
	return value / ceiling
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
