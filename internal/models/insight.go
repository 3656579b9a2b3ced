// internal/models/insight.go
package models

// InsightCategory partitions synthesized insights by signal type.
type InsightCategory string

const (
	CategoryMarket      InsightCategory = "market"
	CategoryCompetitive InsightCategory = "competitive"
	CategoryAudience    InsightCategory = "audience"
	CategoryRisk        InsightCategory = "risk"
)

// InsightPriority orders insights by cross-source corroboration.
type InsightPriority string

const (
	PriorityHigh   InsightPriority = "high"
	PriorityMedium InsightPriority = "medium"
	PriorityLow    InsightPriority = "low"
)

// Insight is a synthesized, evidence-backed statement. The type deliberately
// has no field that could hold raw HTML, URL lists, or extraction metadata,
// so the no-raw-data invariant is structural rather than a runtime filter.
type Insight struct {
	Category      InsightCategory `json:"category"`
	Priority      InsightPriority `json:"priority"`
	Summary       string          `json:"summary"`
	EvidenceCount int             `json:"evidenceCount"`
}

// ProvenanceStats summarizes where the insights came from using counts only.
type ProvenanceStats struct {
	SourcesUsed     int `json:"sourcesUsed"`
	UniqueDomains   int `json:"uniqueDomains"`
	ContentVolume   int `json:"contentVolume"` // total extracted characters
	InsightCount    int `json:"insightCount"`
	RejectedCount   int `json:"rejectedCount"`
	RegeneratedOnce int `json:"regeneratedOnce"`
}
