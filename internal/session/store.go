// internal/session/store.go

// Package session persists analysis sessions. Sessions are durable records:
// they are written on creation, updated after every stage transition, and
// never deleted by the pipeline.
package session

import (
	"context"

	"research-pipeline/internal/models"
)

// Store is the persistence boundary for analysis sessions.
type Store interface {
	Create(ctx context.Context, s *models.AnalysisSession) error
	Update(ctx context.Context, s *models.AnalysisSession) error
	Get(ctx context.Context, id string) (*models.AnalysisSession, error)
}
