// internal/models/session.go
package models

import "time"

// SessionStatus is the overall state of an analysis session.
type SessionStatus string

const (
	SessionInProgress        SessionStatus = "in_progress"
	SessionCompleted         SessionStatus = "completed"
	SessionCompletedWithGaps SessionStatus = "completed_with_gaps"
	SessionCancelled         SessionStatus = "cancelled"
	SessionFailed            SessionStatus = "failed"
)

// StageStatus is the state of one stage execution.
type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// AnalysisContext carries the optional user-supplied framing for a topic.
type AnalysisContext struct {
	Segment  string   `json:"segment,omitempty"`
	Audience string   `json:"audience,omitempty"`
	Goals    []string `json:"goals,omitempty"`
}

// StageResult is an immutable record of one stage's outcome, appended to the
// session after the stage finishes and never rewritten.
type StageResult struct {
	Stage       string      `json:"stage"`
	Status      StageStatus `json:"status"`
	Artifact    []byte      `json:"artifact,omitempty"` // stage-specific JSON payload
	ErrorDetail string      `json:"errorDetail,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// AnalysisSession is the unit of work driven by the pipeline orchestrator.
// Only the orchestrator mutates it; it is persisted after every stage
// transition and never deleted automatically.
type AnalysisSession struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Context   AnalysisContext `json:"context"`
	Stages    []StageResult   `json:"stages"`
	Status    SessionStatus   `json:"status"`
	Report    *FinalReport    `json:"report,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// StageResultFor returns the latest result recorded for a stage name.
func (s *AnalysisSession) StageResultFor(stage string) *StageResult {
	for i := len(s.Stages) - 1; i >= 0; i-- {
		if s.Stages[i].Stage == stage {
			return &s.Stages[i]
		}
	}
	return nil
}

// SectionState marks how complete one report section is.
type SectionState string

const (
	SectionComplete SectionState = "complete"
	SectionDegraded SectionState = "degraded"
	SectionOmitted  SectionState = "omitted"
)

// ReportSection is one part of the final artifact with its completeness state.
type ReportSection struct {
	Name   string       `json:"name"`
	State  SectionState `json:"state"`
	Detail string       `json:"detail,omitempty"`
}

// FinalReport is the best-effort artifact every run produces. Gaps are stated
// explicitly; no substitute content is ever inserted to mask one.
type FinalReport struct {
	Sections       []ReportSection `json:"sections"`
	Insights       []Insight       `json:"insights"`
	Quality        *QualityReport  `json:"quality,omitempty"`
	SuccessRate    float64         `json:"successRate"`
	FailedStages   []string        `json:"failedStages,omitempty"`
	ProcessingTime time.Duration   `json:"processingTime"`
	RawDataFiltered bool           `json:"rawDataFiltered"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}
