// internal/checkpoint/memory.go
package checkpoint

import (
	"context"
	"sync"

	"research-pipeline/internal/models"
)

// MemoryStore is an in-process Store for tests and single-node runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.StageResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]models.StageResult)}
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, result models.StageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], result)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]models.StageResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StageResult, len(s.sessions[sessionID]))
	copy(out, s.sessions[sessionID])
	return out, nil
}

func (s *MemoryStore) Latest(_ context.Context, sessionID, stage string) (*models.StageResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := s.sessions[sessionID]
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Stage == stage {
			r := results[i]
			return &r, nil
		}
	}
	return nil, nil
}
