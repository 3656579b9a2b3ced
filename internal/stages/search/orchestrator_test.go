// internal/stages/search/orchestrator_test.go
package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/common/retry"
	"research-pipeline/internal/models"
	"research-pipeline/internal/stages/search/providers"
)

// fakeProvider returns canned results or a canned error.
type fakeProvider struct {
	name    string
	results []models.SearchResult
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, _ string, _ int) ([]models.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testConfig(tiers ...Tier) *Config {
	cfg := LoadConfig()
	cfg.Tiers = tiers
	cfg.PerCallTimeout = time.Second
	return cfg
}

func noRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond}
}

func result(url string, tier models.ProviderTier, relevance float64) models.SearchResult {
	return models.SearchResult{URL: url, Title: url, Tier: tier, Relevance: relevance}
}

// Three providers, two results each, one duplicate URL across providers:
// the merged output holds exactly five deduplicated results ranked by the
// configured formula score = 0.6*(1/tierPriority) + 0.4*relevance.
func TestExecute_DeduplicatesAndRanks(t *testing.T) {
	pA := &fakeProvider{name: "a", results: []models.SearchResult{
		result("https://one.example/a", models.TierPrimary, 0.9),
		result("https://two.example/b", models.TierPrimary, 0.5),
	}}
	pB := &fakeProvider{name: "b", results: []models.SearchResult{
		result("http://ONE.example/a/", models.TierPrimary, 0.7), // dup of pA's first
		result("https://three.example/c", models.TierPrimary, 0.8),
	}}
	pC := &fakeProvider{name: "c", results: []models.SearchResult{
		result("https://four.example/d", models.TierAcademic, 0.6),
		result("https://five.example/e", models.TierAcademic, 0.4),
	}}

	cfg := testConfig(
		Tier{Name: models.TierPrimary, Priority: 1, MaxResults: 10, Providers: toProviders(pA, pB)},
		Tier{Name: models.TierAcademic, Priority: 2, MaxResults: 10, Providers: toProviders(pC)},
	)
	cfg.MinResults = 100 // force all tiers

	h := NewHandler(cfg, noRetry(), logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &Input{Queries: []string{"market entry risk for product X"}})
	require.NoError(t, err)

	assert.Len(t, out.Results, 5)

	// Tier 1 results outrank tier 2 regardless of raw relevance, and within a
	// tier higher relevance wins.
	urls := make([]string, 0, len(out.Results))
	for _, r := range out.Results {
		urls = append(urls, models.NormalizeURL(r.URL))
	}
	assert.Equal(t, []string{
		"one.example/a",
		"three.example/c",
		"two.example/b",
		"four.example/d",
		"five.example/e",
	}, urls)
}

func TestExecute_ProviderFailureDoesNotAbortTier(t *testing.T) {
	ok := &fakeProvider{name: "ok", results: []models.SearchResult{
		result("https://a.example", models.TierPrimary, 0.9),
	}}
	broken := &fakeProvider{name: "broken", err: apperrors.NewProviderUnavailableError("broken", stderrors.New("conn refused"))}

	cfg := testConfig(Tier{Name: models.TierPrimary, Priority: 1, MaxResults: 10, Providers: toProviders(ok, broken)})
	h := NewHandler(cfg, noRetry(), logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Queries: []string{"q"}})
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
	assert.Equal(t, 1, out.ProviderErrs)
	assert.Empty(t, out.TiersSkipped)
}

func TestExecute_TierSkippedWhenAllProvidersFail(t *testing.T) {
	dead1 := &fakeProvider{name: "d1", err: apperrors.NewProviderUnavailableError("d1", stderrors.New("down"))}
	dead2 := &fakeProvider{name: "d2", err: apperrors.NewProviderUnavailableError("d2", stderrors.New("down"))}
	alive := &fakeProvider{name: "alive", results: []models.SearchResult{
		result("https://b.example", models.TierNews, 0.5),
	}}

	cfg := testConfig(
		Tier{Name: models.TierPrimary, Priority: 1, MaxResults: 10, Providers: toProviders(dead1, dead2)},
		Tier{Name: models.TierNews, Priority: 2, MaxResults: 10, Providers: toProviders(alive)},
	)
	h := NewHandler(cfg, noRetry(), logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Queries: []string{"q"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"primary"}, out.TiersSkipped)
	assert.Len(t, out.Results, 1)
}

func TestExecute_NoResultsAnywhere(t *testing.T) {
	dead := &fakeProvider{name: "dead", err: apperrors.NewProviderUnavailableError("dead", stderrors.New("down"))}
	empty := &fakeProvider{name: "empty"}

	cfg := testConfig(
		Tier{Name: models.TierPrimary, Priority: 1, MaxResults: 10, Providers: toProviders(dead)},
		Tier{Name: models.TierSecondary, Priority: 2, MaxResults: 10, Providers: toProviders(empty)},
	)
	h := NewHandler(cfg, noRetry(), logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{Queries: []string{"q"}})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSearchNoResults, apperrors.CodeOf(err))
}

// slowProvider burns part of its budget on every call and records how much
// time each call started with.
type slowProvider struct {
	name      string
	delay     time.Duration
	remaining []time.Duration
}

func (s *slowProvider) Name() string { return s.name }

func (s *slowProvider) Search(ctx context.Context, _ string, _ int) ([]models.SearchResult, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.remaining = append(s.remaining, time.Until(deadline))
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []models.SearchResult{
		result(fmt.Sprintf("https://slow.example/%d", len(s.remaining)), models.TierPrimary, 0.5),
	}, nil
}

// Every query against a provider gets a fresh timeout; a slow early query must
// not drain the budget of the ones after it.
func TestExecute_PerCallTimeoutIsPerQuery(t *testing.T) {
	slow := &slowProvider{name: "slow", delay: 20 * time.Millisecond}

	cfg := testConfig(Tier{Name: models.TierPrimary, Priority: 1, MaxResults: 10, Providers: []providers.Provider{slow}})
	cfg.PerCallTimeout = 50 * time.Millisecond
	cfg.MinResults = 100

	h := NewHandler(cfg, noRetry(), logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &Input{Queries: []string{"q1", "q2", "q3", "q4"}})
	require.NoError(t, err)

	assert.Len(t, out.Results, 4)
	require.Len(t, slow.remaining, 4)
	for i, left := range slow.remaining {
		assert.Greater(t, left, 40*time.Millisecond, "call %d started with a drained budget", i)
	}
}

func TestExecute_StopsAfterDiversityFloor(t *testing.T) {
	primary := &fakeProvider{name: "primary", results: []models.SearchResult{
		result("https://p1.example", models.TierPrimary, 0.9),
		result("https://p2.example", models.TierPrimary, 0.8),
	}}
	academic := &fakeProvider{name: "academic", results: []models.SearchResult{
		result("https://a1.example", models.TierAcademic, 0.9),
	}}
	news := &fakeProvider{name: "news", results: []models.SearchResult{
		result("https://n1.example", models.TierNews, 0.9),
	}}

	cfg := testConfig(
		Tier{Name: models.TierPrimary, Priority: 1, MaxResults: 10, Providers: toProviders(primary)},
		Tier{Name: models.TierAcademic, Priority: 2, MaxResults: 10, Providers: toProviders(academic)},
		Tier{Name: models.TierNews, Priority: 3, MaxResults: 10, Providers: toProviders(news)},
	)
	cfg.MinResults = 3

	h := NewHandler(cfg, noRetry(), logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &Input{Queries: []string{"q"}})
	require.NoError(t, err)

	// Minimum met and academic tier present: the news tier is never issued.
	assert.Len(t, out.Results, 3)
	assert.Equal(t, 0, news.calls)
}

func toProviders(fakes ...*fakeProvider) []providers.Provider {
	out := make([]providers.Provider, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}
