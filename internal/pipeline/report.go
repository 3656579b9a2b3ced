// internal/pipeline/report.go
package pipeline

import (
	"fmt"
	"time"

	"research-pipeline/internal/models"
	"research-pipeline/internal/stages/extract"
	"research-pipeline/internal/stages/quality"
	"research-pipeline/internal/stages/querygen"
	"research-pipeline/internal/stages/search"
	"research-pipeline/internal/stages/synthesis"
)

// buildReport assembles the best-effort final artifact. Missing sections are
// declared as omitted, never papered over with substitute content, and raw
// extracted data is reduced to counts before anything reaches the report.
func (o *Orchestrator) buildReport(sess *models.AnalysisSession, arts *runArtifacts, elapsed time.Duration) *models.FinalReport {
	report := &models.FinalReport{
		ProcessingTime:  elapsed,
		RawDataFiltered: true,
		GeneratedAt:     time.Now().UTC(),
	}

	report.Sections = append(report.Sections,
		queriesSection(sess, arts.queries),
		sourcesSection(sess, arts.searched),
		evidenceSection(sess, arts.extracted),
		insightsSection(sess, arts.insights),
		qualitySection(sess, arts.verdict),
	)

	if arts.insights != nil {
		report.Insights = arts.insights.Insights
	}
	if arts.verdict != nil {
		report.Quality = &arts.verdict.Report
	}

	ok := 0
	for _, stage := range stageOrder {
		r := sess.StageResultFor(stage)
		if r != nil && r.Status == models.StageOK {
			ok++
			continue
		}
		report.FailedStages = append(report.FailedStages, stage)
	}
	report.SuccessRate = float64(ok) / float64(len(stageOrder))

	return report
}

func queriesSection(sess *models.AnalysisSession, out *querygen.Output) models.ReportSection {
	section := models.ReportSection{Name: "queries", State: models.SectionOmitted}
	if out != nil && len(out.Queries) > 0 {
		section.State = sectionState(sess, querygen.TaskType)
		section.Detail = fmt.Sprintf("%d queries generated", len(out.Queries))
	}
	return section
}

func sourcesSection(sess *models.AnalysisSession, out *search.Output) models.ReportSection {
	section := models.ReportSection{Name: "sources", State: models.SectionOmitted}
	if out == nil || len(out.Results) == 0 {
		return section
	}
	section.State = sectionState(sess, search.TaskType)
	if len(out.TiersSkipped) > 0 && section.State == models.SectionComplete {
		section.State = models.SectionDegraded
	}
	section.Detail = fmt.Sprintf("%d sources across tiers, %d tiers skipped", len(out.Results), len(out.TiersSkipped))
	return section
}

func evidenceSection(sess *models.AnalysisSession, out *extract.Output) models.ReportSection {
	section := models.ReportSection{Name: "evidence", State: models.SectionOmitted}
	if out == nil || out.Succeeded == 0 {
		return section
	}
	section.State = sectionState(sess, extract.TaskType)
	section.Detail = fmt.Sprintf("%d of %d sources extracted, %d chars", out.Succeeded, out.Attempted, out.ContentVolume)
	return section
}

func insightsSection(sess *models.AnalysisSession, out *synthesis.Output) models.ReportSection {
	section := models.ReportSection{Name: "insights", State: models.SectionOmitted}
	if out == nil || len(out.Insights) == 0 {
		return section
	}
	section.State = sectionState(sess, synthesis.TaskType)
	if out.Provenance.RejectedCount > 0 && section.State == models.SectionComplete {
		section.State = models.SectionDegraded
	}
	section.Detail = fmt.Sprintf("%d insights from %d sources, %d rejected by filter",
		len(out.Insights), out.Provenance.SourcesUsed, out.Provenance.RejectedCount)
	return section
}

func qualitySection(sess *models.AnalysisSession, out *quality.Output) models.ReportSection {
	section := models.ReportSection{Name: "quality", State: models.SectionOmitted}
	if out == nil {
		return section
	}
	if out.Report.Passed {
		section.State = models.SectionComplete
		section.Detail = fmt.Sprintf("score %.1f", out.Report.Score)
		return section
	}
	section.State = models.SectionDegraded
	section.Detail = fmt.Sprintf("score %.1f, %d violations", out.Report.Score, len(out.Report.Violations))
	return section
}

// sectionState maps a stage's recorded outcome to a section state: a clean
// stage is complete, a failed stage that still yielded content is degraded.
func sectionState(sess *models.AnalysisSession, stage string) models.SectionState {
	r := sess.StageResultFor(stage)
	if r == nil || r.Status == models.StageSkipped {
		return models.SectionOmitted
	}
	if r.Status == models.StageFailed {
		return models.SectionDegraded
	}
	return models.SectionComplete
}
