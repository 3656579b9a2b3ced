// internal/checkpoint/redis_test.go
package checkpoint

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/models"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour, logger.NewTestLogger(t)), mr
}

func stageResult(stage string, status models.StageStatus) models.StageResult {
	return models.StageResult{
		Stage:     stage,
		Status:    status,
		Artifact:  []byte(fmt.Sprintf(`{"stage":%q}`, stage)),
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveAndLoad_PreservesWriteOrder(t *testing.T) {
	store, _ := newMiniredisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-1", stageResult("generate-queries", models.StageOK)))
	require.NoError(t, store.Save(ctx, "sess-1", stageResult("search-fanout", models.StageOK)))
	require.NoError(t, store.Save(ctx, "sess-1", stageResult("extract-content", models.StageFailed)))

	results, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "generate-queries", results[0].Stage)
	assert.Equal(t, "search-fanout", results[1].Stage)
	assert.Equal(t, "extract-content", results[2].Stage)
	assert.Equal(t, models.StageFailed, results[2].Status)
}

func TestLoad_UnknownSessionIsEmpty(t *testing.T) {
	store, _ := newMiniredisStore(t)

	results, err := store.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLatest_ReturnsNewestForStage(t *testing.T) {
	store, _ := newMiniredisStore(t)
	ctx := context.Background()

	first := stageResult("search-fanout", models.StageFailed)
	second := stageResult("search-fanout", models.StageOK)
	require.NoError(t, store.Save(ctx, "sess-2", first))
	require.NoError(t, store.Save(ctx, "sess-2", second))

	latest, err := store.Latest(ctx, "sess-2", "search-fanout")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.StageOK, latest.Status)

	none, err := store.Latest(ctx, "sess-2", "quality-gate")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSave_SessionsAreIsolated(t *testing.T) {
	store, _ := newMiniredisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sess-a", stageResult("generate-queries", models.StageOK)))
	require.NoError(t, store.Save(ctx, "sess-b", stageResult("search-fanout", models.StageOK)))

	a, err := store.Load(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, "generate-queries", a[0].Stage)
}

func TestSave_WriteFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, 0, logger.NewNoOpLogger())

	result := stageResult("generate-queries", models.StageOK)
	payload, err := json.Marshal(result)
	require.NoError(t, err)

	mock.ExpectRPush("checkpoint:sess-x", payload).SetErr(stderrors.New("connection reset"))

	err = store.Save(context.Background(), "sess-x", result)
	require.Error(t, err)

	var stdErr *apperrors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeCheckpointWriteFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}
