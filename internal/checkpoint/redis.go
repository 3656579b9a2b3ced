// internal/checkpoint/redis.go
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/models"
)

// RedisStore keeps each session's checkpoints in a Redis list, one JSON
// entry per stage result. RPUSH gives the append-only ordering for free.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{"component": "checkpoint-store"}),
	}
}

func checkpointKey(sessionID string) string {
	return fmt.Sprintf("checkpoint:%s", sessionID)
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, result models.StageResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.NewCheckpointWriteFailedError(result.Stage, err)
	}

	key := checkpointKey(sessionID)
	if err := s.client.RPush(ctx, key, payload).Err(); err != nil {
		return errors.NewCheckpointWriteFailedError(result.Stage, err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			s.logger.WithError(err).Warn("checkpoint TTL refresh failed", map[string]interface{}{
				"sessionId": sessionID,
			})
		}
	}

	s.logger.Debug("checkpoint saved", map[string]interface{}{
		"sessionId": sessionID,
		"stage":     result.Stage,
		"status":    string(result.Status),
	})
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]models.StageResult, error) {
	entries, err := s.client.LRange(ctx, checkpointKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, errors.NewSessionStoreFailedError(err)
	}

	results := make([]models.StageResult, 0, len(entries))
	for _, entry := range entries {
		var r models.StageResult
		if err := json.Unmarshal([]byte(entry), &r); err != nil {
			return nil, errors.NewSessionStoreFailedError(fmt.Errorf("corrupt checkpoint entry: %w", err))
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *RedisStore) Latest(ctx context.Context, sessionID, stage string) (*models.StageResult, error) {
	all, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Stage == stage {
			return &all[i], nil
		}
	}
	return nil, nil
}
