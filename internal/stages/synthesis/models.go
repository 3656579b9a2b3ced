// internal/stages/synthesis/models.go
package synthesis

import "research-pipeline/internal/models"

type Input struct {
	Topic     string                     `json:"topic"`
	Context   models.AnalysisContext     `json:"context"`
	Documents []models.ExtractedDocument `json:"documents"`
}

// Output carries the filtered insights plus counts-only provenance. Raw
// document text never appears here.
type Output struct {
	Insights   []models.Insight       `json:"insights"`
	Provenance models.ProvenanceStats `json:"provenance"`
}

// llmResponse mirrors the JSON document the model is instructed to return.
type llmResponse struct {
	Insights []llmInsight `json:"insights"`
}

type llmInsight struct {
	Category      string `json:"category"`
	Priority      string `json:"priority"`
	Summary       string `json:"summary"`
	EvidenceCount int    `json:"evidence_count"`
}
