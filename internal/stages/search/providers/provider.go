// internal/stages/search/providers/provider.go
package providers

import (
	"context"

	"research-pipeline/internal/models"
)

// Provider is the capability interface every search adapter implements.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}
