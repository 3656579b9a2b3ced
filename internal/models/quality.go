// internal/models/quality.go
package models

// QualityReport is the QA gate's verdict over the aggregate evidence.
type QualityReport struct {
	SourcesUsed   int      `json:"sourcesUsed"`
	ContentVolume int      `json:"contentVolume"`
	InsightCount  int      `json:"insightCount"`
	Score         float64  `json:"score"` // 0-100
	Violations    []string `json:"violations,omitempty"`
	Passed        bool     `json:"passed"`
}
