// internal/pipeline/orchestrator_test.go
package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-pipeline/internal/checkpoint"
	apperrors "research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/models"
	"research-pipeline/internal/stages/extract"
	"research-pipeline/internal/stages/quality"
	"research-pipeline/internal/stages/querygen"
	"research-pipeline/internal/stages/search"
	"research-pipeline/internal/stages/synthesis"
)

// memorySessions is a map-backed session.Store for orchestrator tests.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]models.AnalysisSession
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]models.AnalysisSession)}
}

func (m *memorySessions) Create(_ context.Context, s *models.AnalysisSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memorySessions) Update(_ context.Context, s *models.AnalysisSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return apperrors.NewSessionNotFoundError(s.ID)
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memorySessions) Get(_ context.Context, id string) (*models.AnalysisSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.NewSessionNotFoundError(id)
	}
	copied := s
	return &copied, nil
}

// Fake stage handlers. Each counts calls and returns scripted values.
type fakeStages struct {
	queryCalls, searchCalls, extractCalls, synthCalls, qualityCalls int

	queryErr   error
	searchErr  error
	extractErr error
	synthErr   error
	qualityErr error

	queryBlock bool   // hang until the stage context expires
	onQuality  func() // invoked after the quality stage returns

	extractOut *extract.Output
	qualityOut *quality.Output
}

type fakeQueryGen struct{ f *fakeStages }

func (s fakeQueryGen) Execute(ctx context.Context, in *querygen.Input) (*querygen.Output, error) {
	s.f.queryCalls++
	if s.f.queryBlock {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.f.queryErr != nil {
		return nil, s.f.queryErr
	}
	return &querygen.Output{Queries: []string{in.Topic + " market analysis", in.Topic + " trends"}}, nil
}

type fakeSearch struct{ f *fakeStages }

func (s fakeSearch) Execute(_ context.Context, in *search.Input) (*search.Output, error) {
	s.f.searchCalls++
	if s.f.searchErr != nil {
		return nil, s.f.searchErr
	}
	return &search.Output{
		Results: []models.SearchResult{
			{URL: "https://a.example", Tier: models.TierPrimary, Score: 0.9},
			{URL: "https://b.example", Tier: models.TierAcademic, Score: 0.8},
		},
		QueriesRun: len(in.Queries),
	}, nil
}

type fakeExtract struct{ f *fakeStages }

func (s fakeExtract) Execute(_ context.Context, in *extract.Input) (*extract.Output, error) {
	s.f.extractCalls++
	if s.f.extractErr != nil {
		return s.f.extractOut, s.f.extractErr
	}
	docs := make([]models.ExtractedDocument, len(in.Results))
	for i, r := range in.Results {
		docs[i] = models.ExtractedDocument{URL: r.URL, Tier: r.Tier, Text: "extracted body text", Success: true}
	}
	return &extract.Output{Documents: docs, Attempted: len(docs), Succeeded: len(docs), CoverageRatio: 1.0, ContentVolume: 5000}, nil
}

type fakeSynth struct{ f *fakeStages }

func (s fakeSynth) Execute(_ context.Context, in *synthesis.Input) (*synthesis.Output, error) {
	s.f.synthCalls++
	if s.f.synthErr != nil {
		return nil, s.f.synthErr
	}
	return &synthesis.Output{
		Insights: []models.Insight{
			{Category: models.CategoryMarket, Priority: models.PriorityHigh, Summary: "Demand rose across every surveyed channel.", EvidenceCount: 3},
		},
		Provenance: models.ProvenanceStats{SourcesUsed: len(in.Documents), ContentVolume: 5000, InsightCount: 1},
	}, nil
}

type fakeQuality struct{ f *fakeStages }

func (s fakeQuality) Execute(_ context.Context, in *quality.Input) (*quality.Output, error) {
	s.f.qualityCalls++
	if s.f.onQuality != nil {
		defer s.f.onQuality()
	}
	if s.f.qualityErr != nil {
		return s.f.qualityOut, s.f.qualityErr
	}
	return &quality.Output{Report: models.QualityReport{
		SourcesUsed:  in.Provenance.SourcesUsed,
		InsightCount: len(in.Insights),
		Score:        85,
		Passed:       true,
	}}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []models.SessionStatus
}

func (n *recordingNotifier) SessionFinished(_ context.Context, s *models.AnalysisSession) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, s.Status)
	return nil
}

type testHarness struct {
	orch     *Orchestrator
	sessions *memorySessions
	points   *checkpoint.MemoryStore
	fakes    *fakeStages
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *testHarness {
	fakes := &fakeStages{}
	sessions := newMemorySessions()
	points := checkpoint.NewMemoryStore()
	notifier := &recordingNotifier{}

	orch := NewOrchestrator(sessions, points, Stages{
		Queries:    fakeQueryGen{fakes},
		Search:     fakeSearch{fakes},
		Extract:    fakeExtract{fakes},
		Synthesize: fakeSynth{fakes},
		Quality:    fakeQuality{fakes},
	}, time.Minute, notifier, logger.NewTestLogger(t))

	return &testHarness{orch: orch, sessions: sessions, points: points, fakes: fakes, notifier: notifier}
}

func startSession(t *testing.T, h *testHarness) *models.AnalysisSession {
	sess, err := h.orch.StartSession(context.Background(), "plant-based meat", models.AnalysisContext{Segment: "retail"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	return sess
}

func TestRun_CleanPathCompletes(t *testing.T) {
	h := newHarness(t)
	sess := startSession(t, h)

	got, err := h.orch.Run(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, 1.0, got.Report.SuccessRate)
	assert.Empty(t, got.Report.FailedStages)
	assert.True(t, got.Report.RawDataFiltered)
	require.Len(t, got.Report.Sections, 5)
	for _, section := range got.Report.Sections {
		assert.Equal(t, models.SectionComplete, section.State, section.Name)
	}
	assert.Equal(t, []models.SessionStatus{models.SessionCompleted}, h.notifier.statuses)

	// The terminal state is persisted, not just returned.
	persisted, err := h.orch.Status(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, persisted.Status)
}

func TestRun_SearchFailureDegradesInsteadOfAborting(t *testing.T) {
	h := newHarness(t)
	h.fakes.searchErr = apperrors.NewSearchNoResultsError(2)
	sess := startSession(t, h)

	got, err := h.orch.Run(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompletedWithGaps, got.Status)
	assert.Zero(t, h.fakes.extractCalls)
	assert.Zero(t, h.fakes.synthCalls)
	assert.Contains(t, got.Report.FailedStages, search.TaskType)

	bySection := sectionsByName(got.Report)
	assert.Equal(t, models.SectionComplete, bySection["queries"].State)
	assert.Equal(t, models.SectionOmitted, bySection["sources"].State)
	assert.Equal(t, models.SectionOmitted, bySection["insights"].State)

	downstream := got.StageResultFor(synthesis.TaskType)
	require.NotNil(t, downstream)
	assert.Equal(t, models.StageSkipped, downstream.Status)
}

func TestRun_QualityGateFailureCompletesWithGaps(t *testing.T) {
	h := newHarness(t)
	h.fakes.qualityErr = apperrors.NewQualityGateFailedError([]string{"minimum sources not met: 2 < 5"})
	h.fakes.qualityOut = &quality.Output{Report: models.QualityReport{
		SourcesUsed: 2,
		Score:       40,
		Violations:  []string{"minimum sources not met: 2 < 5"},
	}}
	sess := startSession(t, h)

	got, err := h.orch.Run(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompletedWithGaps, got.Status)
	// Insights still ship; only the quality section is marked degraded.
	assert.Len(t, got.Report.Insights, 1)
	require.NotNil(t, got.Report.Quality)
	assert.Equal(t, []string{"minimum sources not met: 2 < 5"}, got.Report.Quality.Violations)
	assert.Equal(t, models.SectionDegraded, sectionsByName(got.Report)["quality"].State)
}

func TestRun_PartialExtractionContinuesDegraded(t *testing.T) {
	h := newHarness(t)
	h.fakes.extractErr = apperrors.NewExtractionCoverageLowError(0.2, 0.4)
	h.fakes.extractOut = &extract.Output{
		Documents: []models.ExtractedDocument{
			{URL: "https://a.example", Tier: models.TierPrimary, Text: "partial body", Success: true},
			{URL: "https://b.example", Tier: models.TierAcademic, Success: false},
		},
		Attempted: 2, Succeeded: 1, CoverageRatio: 0.5, ContentVolume: 1200,
	}
	sess := startSession(t, h)

	got, err := h.orch.Run(context.Background(), sess.ID)
	require.NoError(t, err)

	// Synthesis still ran over the surviving document.
	assert.Equal(t, 1, h.fakes.synthCalls)
	assert.Equal(t, models.SessionCompletedWithGaps, got.Status)
	assert.Equal(t, models.SectionDegraded, sectionsByName(got.Report)["evidence"].State)
	assert.Len(t, got.Report.Insights, 1)
}

func TestRun_FirstStageFailureIsTerminalFailed(t *testing.T) {
	h := newHarness(t)
	h.fakes.queryErr = apperrors.NewInsufficientContextError("empty topic")
	sess := startSession(t, h)

	got, err := h.orch.Run(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionFailed, got.Status)
	require.NotNil(t, got.Report)
	assert.Zero(t, got.Report.SuccessRate)
	assert.Len(t, got.Report.FailedStages, 5)
	for _, section := range got.Report.Sections {
		assert.Equal(t, models.SectionOmitted, section.State, section.Name)
	}
}

func TestRun_ResumeSkipsCheckpointedStages(t *testing.T) {
	h := newHarness(t)
	sess := startSession(t, h)
	ctx := context.Background()

	// First two stages already completed in a previous interrupted run.
	require.NoError(t, h.points.Save(ctx, sess.ID, models.StageResult{
		Stage:     querygen.TaskType,
		Status:    models.StageOK,
		Artifact:  []byte(`{"queries":["plant-based meat market analysis"]}`),
		Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, h.points.Save(ctx, sess.ID, models.StageResult{
		Stage:     search.TaskType,
		Status:    models.StageOK,
		Artifact:  []byte(`{"results":[{"url":"https://a.example","tier":"primary","score":0.9}],"queriesRun":1}`),
		Timestamp: time.Now().UTC(),
	}))

	got, err := h.orch.Run(ctx, sess.ID)
	require.NoError(t, err)

	assert.Zero(t, h.fakes.queryCalls)
	assert.Zero(t, h.fakes.searchCalls)
	assert.Equal(t, 1, h.fakes.extractCalls)
	assert.Equal(t, 1, h.fakes.synthCalls)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Empty(t, got.Report.FailedStages)
}

func TestRun_TerminalSessionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	sess := startSession(t, h)

	first, err := h.orch.Run(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionCompleted, first.Status)

	again, err := h.orch.Run(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, again.Status)
	// No stage executed twice.
	assert.Equal(t, 1, h.fakes.queryCalls)
	assert.Equal(t, 1, h.fakes.qualityCalls)
	assert.Len(t, h.notifier.statuses, 1)
}

func TestRun_CancellationReachesTerminalState(t *testing.T) {
	h := newHarness(t)
	sess := startSession(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := h.orch.Run(ctx, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCancelled, got.Status)
	persisted, err := h.orch.Status(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, persisted.Status)
}

// A stage that never returns on its own is cut off by the stage-level
// deadline, and the session still reaches a terminal state.
func TestRun_StageTimeoutBoundsBlockedStage(t *testing.T) {
	h := newHarness(t)
	h.orch.stageTimeout = 25 * time.Millisecond
	h.fakes.queryBlock = true
	sess := startSession(t, h)

	got, err := h.orch.Run(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionFailed, got.Status)
	first := got.StageResultFor(querygen.TaskType)
	require.NotNil(t, first)
	assert.Equal(t, models.StageFailed, first.Status)
	assert.Contains(t, first.ErrorDetail, "context deadline exceeded")
	assert.Zero(t, h.fakes.searchCalls)
}

// Cancellation that lands after every stage already finished must not
// downgrade the session: nothing was cut short.
func TestRun_CancellationDuringFinalizingStaysCompleted(t *testing.T) {
	h := newHarness(t)
	sess := startSession(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fakes.onQuality = cancel

	got, err := h.orch.Run(ctx, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, 1.0, got.Report.SuccessRate)
	persisted, err := h.orch.Status(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, persisted.Status)
}

func TestRun_UnknownSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Run(context.Background(), "no-such-session")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.CodeOf(err))
}

func sectionsByName(report *models.FinalReport) map[string]models.ReportSection {
	out := make(map[string]models.ReportSection, len(report.Sections))
	for _, s := range report.Sections {
		out[s.Name] = s
	}
	return out
}
