// internal/stages/extract/models.go
package extract

import "research-pipeline/internal/models"

type Input struct {
	Results []models.SearchResult `json:"results"`
}

// Output retains failed documents for extraction statistics; only successful
// ones feed the synthesis stage.
type Output struct {
	Documents     []models.ExtractedDocument `json:"documents"`
	Attempted     int                        `json:"attempted"`
	Succeeded     int                        `json:"succeeded"`
	CoverageRatio float64                    `json:"coverageRatio"`
	ContentVolume int                        `json:"contentVolume"`
}

// SuccessfulDocuments filters out the failures.
func (o *Output) SuccessfulDocuments() []models.ExtractedDocument {
	docs := make([]models.ExtractedDocument, 0, o.Succeeded)
	for _, d := range o.Documents {
		if d.Success {
			docs = append(docs, d)
		}
	}
	return docs
}
