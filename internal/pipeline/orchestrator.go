// internal/pipeline/orchestrator.go

// Package pipeline drives an analysis session through its stages with
// checkpointed resume and degraded continuation. Every run ends in a
// terminal session state with a report, whatever failed along the way.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"research-pipeline/internal/checkpoint"
	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/common/metrics"
	"research-pipeline/internal/models"
	"research-pipeline/internal/notify"
	"research-pipeline/internal/session"
	"research-pipeline/internal/stages/extract"
	"research-pipeline/internal/stages/quality"
	"research-pipeline/internal/stages/querygen"
	"research-pipeline/internal/stages/search"
	"research-pipeline/internal/stages/synthesis"
)

// Stage handler boundaries, satisfied by the concrete stage handlers and by
// fakes in tests.
type (
	QueryGenerator interface {
		Execute(ctx context.Context, in *querygen.Input) (*querygen.Output, error)
	}
	SearchOrchestrator interface {
		Execute(ctx context.Context, in *search.Input) (*search.Output, error)
	}
	ContentExtractor interface {
		Execute(ctx context.Context, in *extract.Input) (*extract.Output, error)
	}
	SynthesisEngine interface {
		Execute(ctx context.Context, in *synthesis.Input) (*synthesis.Output, error)
	}
	QualityGate interface {
		Execute(ctx context.Context, in *quality.Input) (*quality.Output, error)
	}
)

// Stages bundles the five stage handlers.
type Stages struct {
	Queries    QueryGenerator
	Search     SearchOrchestrator
	Extract    ContentExtractor
	Synthesize SynthesisEngine
	Quality    QualityGate
}

type Orchestrator struct {
	sessions     session.Store
	checkpoints  checkpoint.Store
	stages       Stages
	stageTimeout time.Duration
	notifier     notify.Notifier
	logger       logger.Logger
}

// NewOrchestrator wires the stage handlers and stores together. stageTimeout
// is the aggregate deadline applied to each stage execution; 0 disables it.
func NewOrchestrator(sessions session.Store, checkpoints checkpoint.Store, stages Stages, stageTimeout time.Duration, notifier notify.Notifier, log logger.Logger) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Orchestrator{
		sessions:     sessions,
		checkpoints:  checkpoints,
		stages:       stages,
		stageTimeout: stageTimeout,
		notifier:     notifier,
		logger:       log.With(map[string]interface{}{"component": "orchestrator"}),
	}
}

// StartSession registers a new analysis session. The session is persisted
// before any stage runs so a crash between start and run loses nothing.
func (o *Orchestrator) StartSession(ctx context.Context, topic string, analysisCtx models.AnalysisContext) (*models.AnalysisSession, error) {
	now := time.Now().UTC()
	sess := &models.AnalysisSession{
		ID:        uuid.NewString(),
		Topic:     topic,
		Context:   analysisCtx,
		Status:    models.SessionInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Status returns the persisted session.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*models.AnalysisSession, error) {
	return o.sessions.Get(ctx, sessionID)
}

// runArtifacts accumulates stage outputs across one run, whether they were
// produced fresh or restored from checkpoints.
type runArtifacts struct {
	queries   *querygen.Output
	searched  *search.Output
	extracted *extract.Output
	insights  *synthesis.Output
	verdict   *quality.Output
}

// Run executes the session's remaining stages. Completed stages are restored
// from checkpoints, so calling Run again on an interrupted or finished
// session is safe. The returned session is always in a terminal state unless
// the error is a session-store failure.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) (*models.AnalysisSession, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionInProgress {
		return sess, nil
	}

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	log := o.logger.With(map[string]interface{}{"sessionId": sess.ID})
	started := time.Now()
	arts := &runArtifacts{}

	o.runStages(ctx, sess, arts, log)

	log.Debug("stage starting", map[string]interface{}{"state": string(StateFinalizing)})
	report := o.buildReport(sess, arts, time.Since(started))
	sess.Report = report
	sess.Status = terminalStatus(ctx, sess, report)
	sess.UpdatedAt = time.Now().UTC()

	// Persistence of the terminal state must survive the caller's
	// cancellation; otherwise a cancelled run would stay in_progress forever.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := o.sessions.Update(persistCtx, sess); err != nil {
		log.WithError(err).Error("terminal session update failed", nil)
		return sess, err
	}

	if err := o.notifier.SessionFinished(persistCtx, sess); err != nil {
		log.WithError(err).Warn("session notification failed", nil)
	}

	log.Info("session finished", map[string]interface{}{
		"state":       string(StateDone),
		"status":      string(sess.Status),
		"successRate": report.SuccessRate,
		"duration":    time.Since(started).String(),
	})
	return sess, nil
}

// runStages walks the stage sequence. A failed stage records its result and
// skips its dependents; it never aborts the walk.
func (o *Orchestrator) runStages(ctx context.Context, sess *models.AnalysisSession, arts *runArtifacts, log logger.Logger) {
	// generate-queries
	runStageInto(o, ctx, sess, querygen.TaskType, log, &arts.queries, func(ctx context.Context) (*querygen.Output, error) {
		return o.stages.Queries.Execute(ctx, &querygen.Input{Topic: sess.Topic, Context: sess.Context})
	})

	// search-fanout
	if arts.queries == nil {
		o.skipStage(ctx, sess, search.TaskType, "no queries generated", log)
	} else {
		runStageInto(o, ctx, sess, search.TaskType, log, &arts.searched, func(ctx context.Context) (*search.Output, error) {
			return o.stages.Search.Execute(ctx, &search.Input{Queries: arts.queries.Queries})
		})
	}

	// extract-content. A low-coverage failure still carries partial
	// documents, which downstream stages use.
	if arts.searched == nil {
		o.skipStage(ctx, sess, extract.TaskType, "no search results", log)
	} else {
		runStageInto(o, ctx, sess, extract.TaskType, log, &arts.extracted, func(ctx context.Context) (*extract.Output, error) {
			return o.stages.Extract.Execute(ctx, &extract.Input{Results: arts.searched.Results})
		})
	}

	// synthesize-insights
	docs := successfulDocs(arts.extracted)
	if len(docs) == 0 {
		o.skipStage(ctx, sess, synthesis.TaskType, "no extracted content", log)
	} else {
		runStageInto(o, ctx, sess, synthesis.TaskType, log, &arts.insights, func(ctx context.Context) (*synthesis.Output, error) {
			return o.stages.Synthesize.Execute(ctx, &synthesis.Input{
				Topic:     sess.Topic,
				Context:   sess.Context,
				Documents: docs,
			})
		})
	}

	// quality-gate
	if arts.insights == nil {
		o.skipStage(ctx, sess, quality.TaskType, "nothing to assess", log)
	} else {
		runStageInto(o, ctx, sess, quality.TaskType, log, &arts.verdict, func(ctx context.Context) (*quality.Output, error) {
			return o.stages.Quality.Execute(ctx, &quality.Input{
				Insights:   arts.insights.Insights,
				Provenance: arts.insights.Provenance,
			})
		})
	}
}

// runStageInto restores a completed stage from its checkpoint or executes it,
// then records the outcome. On failure a partial output, when the stage
// returned one, is still kept in the artifact slot.
func runStageInto[T any](o *Orchestrator, ctx context.Context, sess *models.AnalysisSession, stage string, log logger.Logger, slot **T, fn func(ctx context.Context) (*T, error)) {
	if restored, ok := restore[T](ctx, o.checkpoints, sess.ID, stage); ok {
		*slot = restored
		// The session record may lag behind the checkpoint store after an
		// interrupted run; bring it back in line without re-checkpointing.
		if sess.StageResultFor(stage) == nil {
			sess.Stages = append(sess.Stages, models.StageResult{
				Stage:     stage,
				Status:    models.StageOK,
				Artifact:  marshalArtifact(restored),
				Timestamp: time.Now().UTC(),
			})
			sess.UpdatedAt = time.Now().UTC()
		}
		log.Info("stage restored from checkpoint", map[string]interface{}{"stage": stage})
		return
	}
	if ctx.Err() != nil {
		return
	}

	log.Debug("stage starting", map[string]interface{}{
		"stage": stage,
		"state": string(stateFor(stage)),
	})

	// The stage-level deadline caps the whole execution even when the
	// handler's own per-call timeouts misbehave.
	stageCtx := ctx
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}

	started := time.Now()
	out, err := fn(stageCtx)
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.StagesFailed.WithLabelValues(stage, string(errors.CodeOf(err))).Inc()
		log.WithError(err).Warn("stage failed", map[string]interface{}{"stage": stage})
		*slot = out
		o.record(ctx, sess, models.StageResult{
			Stage:       stage,
			Status:      models.StageFailed,
			Artifact:    marshalArtifact(out),
			ErrorDetail: err.Error(),
			Timestamp:   time.Now().UTC(),
		}, log)
		return
	}

	metrics.StagesCompleted.WithLabelValues(stage).Inc()
	*slot = out
	o.record(ctx, sess, models.StageResult{
		Stage:     stage,
		Status:    models.StageOK,
		Artifact:  marshalArtifact(out),
		Timestamp: time.Now().UTC(),
	}, log)
}

func (o *Orchestrator) skipStage(ctx context.Context, sess *models.AnalysisSession, stage, reason string, log logger.Logger) {
	if sess.StageResultFor(stage) != nil {
		return
	}
	log.Info("stage skipped", map[string]interface{}{"stage": stage, "reason": reason})
	o.record(ctx, sess, models.StageResult{
		Stage:       stage,
		Status:      models.StageSkipped,
		ErrorDetail: reason,
		Timestamp:   time.Now().UTC(),
	}, log)
}

// record appends the stage result to the session, checkpoints it, and
// persists the session. Checkpoint and persistence failures degrade resume
// granularity but never fail the stage itself.
func (o *Orchestrator) record(ctx context.Context, sess *models.AnalysisSession, result models.StageResult, log logger.Logger) {
	sess.Stages = append(sess.Stages, result)
	sess.UpdatedAt = time.Now().UTC()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.checkpoints.Save(saveCtx, sess.ID, result); err != nil {
		log.WithError(err).Warn("checkpoint save failed", map[string]interface{}{"stage": result.Stage})
	}
	if err := o.sessions.Update(saveCtx, sess); err != nil {
		log.WithError(err).Warn("session update failed", map[string]interface{}{"stage": result.Stage})
	}
}

// restore loads the latest successful checkpoint for a stage.
func restore[T any](ctx context.Context, store checkpoint.Store, sessionID, stage string) (*T, bool) {
	cp, err := store.Latest(ctx, sessionID, stage)
	if err != nil || cp == nil || cp.Status != models.StageOK || len(cp.Artifact) == 0 {
		return nil, false
	}
	out := new(T)
	if err := json.Unmarshal(cp.Artifact, out); err != nil {
		return nil, false
	}
	return out, true
}

func marshalArtifact(v interface{}) []byte {
	if v == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if string(payload) == "null" {
		return nil
	}
	return payload
}

func successfulDocs(out *extract.Output) []models.ExtractedDocument {
	if out == nil {
		return nil
	}
	return out.SuccessfulDocuments()
}

// terminalStatus maps the run outcome to a terminal session status. A run
// whose five stages all finished is completed even when cancellation lands
// during finalizing, since nothing was cut short; otherwise cancellation wins,
// a run with nothing to show fails, and anything in between completes with
// gaps.
func terminalStatus(ctx context.Context, sess *models.AnalysisSession, report *models.FinalReport) models.SessionStatus {
	ok := 0
	for _, stage := range stageOrder {
		if r := sess.StageResultFor(stage); r != nil && r.Status == models.StageOK {
			ok++
		}
	}
	if ok == len(stageOrder) {
		return models.SessionCompleted
	}
	if ctx.Err() != nil {
		return models.SessionCancelled
	}
	if len(report.Insights) == 0 && ok == 0 {
		return models.SessionFailed
	}
	return models.SessionCompletedWithGaps
}
