// internal/stages/search/models.go
package search

import "research-pipeline/internal/models"

type Input struct {
	Queries []string `json:"queries"`
}

// Output carries the ranked merged result set plus per-tier statistics. Tier
// warnings (all providers in a tier failed) surface here and are logged by
// the orchestrator, never raised as pipeline failures.
type Output struct {
	Results      []models.SearchResult `json:"results"`
	TiersSkipped []string              `json:"tiersSkipped,omitempty"`
	ProviderErrs int                   `json:"providerErrors"`
	QueriesRun   int                   `json:"queriesRun"`
}
