// internal/stages/querygen/models.go
package querygen

import "research-pipeline/internal/models"

type Input struct {
	Topic   string                 `json:"topic"`
	Context models.AnalysisContext `json:"context"`
}

type Output struct {
	Queries []string `json:"queries"`
}
