// internal/checkpoint/store.go

// Package checkpoint persists per-stage artifacts so an interrupted session
// can resume from the last completed stage. Checkpoints are append-only: a
// stage result, once written, is never rewritten within a session.
package checkpoint

import (
	"context"

	"research-pipeline/internal/models"
)

// Store saves and loads stage checkpoints for a session.
type Store interface {
	// Save appends one stage result. Implementations must not overwrite an
	// existing checkpoint for the same stage.
	Save(ctx context.Context, sessionID string, result models.StageResult) error

	// Load returns all checkpoints for a session in write order.
	Load(ctx context.Context, sessionID string) ([]models.StageResult, error)

	// Latest returns the newest checkpoint for a stage, or nil when the
	// stage has not run.
	Latest(ctx context.Context, sessionID, stage string) (*models.StageResult, error)
}
