// internal/session/postgres.go
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/models"
)

// PostgresStore persists sessions in a single table. Stage results and the
// report are stored as JSONB documents; the status column is duplicated as a
// plain column for querying.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.With(map[string]interface{}{"component": "session-store"}),
	}
}

const createSessionQuery = `
	INSERT INTO analysis_sessions (id, topic, context, stages, status, report, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (s *PostgresStore) Create(ctx context.Context, sess *models.AnalysisSession) error {
	contextJSON, stagesJSON, reportJSON, err := marshalParts(sess)
	if err != nil {
		return errors.NewSessionStoreFailedError(err)
	}

	_, err = s.db.ExecContext(ctx, createSessionQuery,
		sess.ID, sess.Topic, contextJSON, stagesJSON, string(sess.Status), reportJSON,
		sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return errors.NewSessionStoreFailedError(err)
	}

	s.logger.Info("session created", map[string]interface{}{
		"sessionId": sess.ID,
		"topic":     sess.Topic,
	})
	return nil
}

const updateSessionQuery = `
	UPDATE analysis_sessions
	SET stages = $2, status = $3, report = $4, updated_at = $5
	WHERE id = $1`

func (s *PostgresStore) Update(ctx context.Context, sess *models.AnalysisSession) error {
	_, stagesJSON, reportJSON, err := marshalParts(sess)
	if err != nil {
		return errors.NewSessionStoreFailedError(err)
	}

	res, err := s.db.ExecContext(ctx, updateSessionQuery,
		sess.ID, stagesJSON, string(sess.Status), reportJSON, sess.UpdatedAt)
	if err != nil {
		return errors.NewSessionStoreFailedError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewSessionNotFoundError(sess.ID)
	}
	return nil
}

const getSessionQuery = `
	SELECT id, topic, context, stages, status, report, created_at, updated_at
	FROM analysis_sessions
	WHERE id = $1`

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.AnalysisSession, error) {
	var (
		sess        models.AnalysisSession
		contextJSON []byte
		stagesJSON  []byte
		reportJSON  []byte
		status      string
	)

	err := s.db.QueryRowContext(ctx, getSessionQuery, id).Scan(
		&sess.ID, &sess.Topic, &contextJSON, &stagesJSON, &status, &reportJSON,
		&sess.CreatedAt, &sess.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewSessionNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewSessionStoreFailedError(err)
	}

	sess.Status = models.SessionStatus(status)
	if err := json.Unmarshal(contextJSON, &sess.Context); err != nil {
		return nil, errors.NewSessionStoreFailedError(err)
	}
	if err := json.Unmarshal(stagesJSON, &sess.Stages); err != nil {
		return nil, errors.NewSessionStoreFailedError(err)
	}
	if len(reportJSON) > 0 {
		sess.Report = &models.FinalReport{}
		if err := json.Unmarshal(reportJSON, sess.Report); err != nil {
			return nil, errors.NewSessionStoreFailedError(err)
		}
	}
	return &sess, nil
}

func marshalParts(sess *models.AnalysisSession) (contextJSON, stagesJSON, reportJSON []byte, err error) {
	if contextJSON, err = json.Marshal(sess.Context); err != nil {
		return nil, nil, nil, err
	}
	stages := sess.Stages
	if stages == nil {
		stages = []models.StageResult{}
	}
	if stagesJSON, err = json.Marshal(stages); err != nil {
		return nil, nil, nil, err
	}
	if sess.Report != nil {
		if reportJSON, err = json.Marshal(sess.Report); err != nil {
			return nil, nil, nil, err
		}
	}
	return contextJSON, stagesJSON, reportJSON, nil
}
