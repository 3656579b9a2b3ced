// internal/stages/extract/extractor_test.go
package extract

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/common/retry"
	"research-pipeline/internal/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string][]models.ExtractionStrategy
	// pages maps url+strategy to returned text; missing entries fail.
	pages map[string]string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls: make(map[string][]models.ExtractionStrategy),
		pages: make(map[string]string),
	}
}

func (f *fakeFetcher) serve(url string, strategy models.ExtractionStrategy, text string) {
	f.pages[url+"|"+string(strategy)] = text
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, strategy models.ExtractionStrategy) (string, error) {
	f.mu.Lock()
	f.calls[url] = append(f.calls[url], strategy)
	text, ok := f.pages[url+"|"+string(strategy)]
	f.mu.Unlock()
	if !ok {
		return "", apperrors.NewFetchFailedError(url, fmt.Errorf("not served"))
	}
	return text, nil
}

func longText(n int) string {
	return strings.Repeat("market analysis content ", n/24+1)
}

func fastPolicy() retry.Policy {
	return retry.Policy{InitialDelay: time.Millisecond}
}

func newTestHandler(t *testing.T, fetcher Fetcher) *Handler {
	return NewHandler(LoadConfig(), fetcher, fastPolicy(), logger.NewTestLogger(t))
}

func TestExecute_DirectStrategySucceeds(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("https://a.example/report", models.StrategyDirect, longText(500))

	h := newTestHandler(t, fetcher)
	out, err := h.Execute(context.Background(), &Input{
		Results: []models.SearchResult{{URL: "https://a.example/report", Tier: models.TierPrimary}},
	})
	require.NoError(t, err)

	require.Len(t, out.Documents, 1)
	assert.True(t, out.Documents[0].Success)
	assert.Equal(t, models.StrategyDirect, out.Documents[0].Strategy)
	assert.Equal(t, models.TierPrimary, out.Documents[0].Tier)
	assert.Equal(t, 1.0, out.CoverageRatio)
	assert.Equal(t, []models.ExtractionStrategy{models.StrategyDirect}, fetcher.calls["https://a.example/report"])
}

func TestExecute_FallsBackToNextStrategy(t *testing.T) {
	fetcher := newFakeFetcher()
	// Direct yields thin text, rendered yields the full page.
	fetcher.serve("https://b.example", models.StrategyDirect, "too short")
	fetcher.serve("https://b.example", models.StrategyRendered, longText(500))

	h := newTestHandler(t, fetcher)
	out, err := h.Execute(context.Background(), &Input{
		Results: []models.SearchResult{{URL: "https://b.example", Tier: models.TierSecondary}},
	})
	require.NoError(t, err)

	require.Len(t, out.SuccessfulDocuments(), 1)
	assert.Equal(t, models.StrategyRendered, out.Documents[0].Strategy)
	assert.Equal(t, []models.ExtractionStrategy{models.StrategyDirect, models.StrategyRendered}, fetcher.calls["https://b.example"])
}

func TestExecute_RetryBudgetExhausted(t *testing.T) {
	fetcher := newFakeFetcher() // serves nothing, every attempt fails

	cfg := LoadConfig()
	cfg.RetryBudget = 2
	cfg.MinCoverageRatio = 0 // isolate budget behavior from the coverage floor
	h := NewHandler(cfg, fetcher, fastPolicy(), logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{
		Results: []models.SearchResult{{URL: "https://dead.example", Tier: models.TierNews}},
	})
	require.NoError(t, err)

	require.Len(t, out.Documents, 1)
	assert.False(t, out.Documents[0].Success)
	assert.Empty(t, out.Documents[0].Text)
	// Budget of 2 means the third strategy is never tried.
	assert.Len(t, fetcher.calls["https://dead.example"], 2)
}

// The injected policy spaces strategy attempts out instead of hammering the
// next one immediately.
func TestExecute_BacksOffBetweenStrategyAttempts(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("https://c.example", models.StrategyRendered, longText(500))

	h := NewHandler(LoadConfig(), fetcher, retry.Policy{InitialDelay: 15 * time.Millisecond}, logger.NewTestLogger(t))

	started := time.Now()
	out, err := h.Execute(context.Background(), &Input{
		Results: []models.SearchResult{{URL: "https://c.example", Tier: models.TierPrimary}},
	})
	require.NoError(t, err)

	require.Len(t, out.SuccessfulDocuments(), 1)
	assert.Equal(t, models.StrategyRendered, out.Documents[0].Strategy)
	assert.GreaterOrEqual(t, time.Since(started), 15*time.Millisecond)
}

func TestExecute_CoverageBelowFloor(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.serve("https://ok.example", models.StrategyDirect, longText(400))
	// Four more URLs that never succeed: 1/5 = 0.2 < 0.4 floor.
	results := []models.SearchResult{{URL: "https://ok.example", Tier: models.TierPrimary}}
	for i := 0; i < 4; i++ {
		results = append(results, models.SearchResult{URL: fmt.Sprintf("https://bad%d.example", i), Tier: models.TierSecondary})
	}

	h := newTestHandler(t, fetcher)
	out, err := h.Execute(context.Background(), &Input{Results: results})
	require.Error(t, err)

	var stdErr *apperrors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, apperrors.ErrCodeExtractionCoverageLow, stdErr.Code)

	// Partial output still comes back for degraded continuation.
	require.NotNil(t, out)
	assert.Equal(t, 5, out.Attempted)
	assert.Equal(t, 1, out.Succeeded)
	assert.InDelta(t, 0.2, out.CoverageRatio, 1e-9)
	assert.Len(t, out.SuccessfulDocuments(), 1)
}

func TestExecute_EmptyInput(t *testing.T) {
	h := newTestHandler(t, newFakeFetcher())

	out, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	assert.Empty(t, out.Documents)
	assert.Zero(t, out.Attempted)
}

func TestExtractReadableText_StripsBoilerplate(t *testing.T) {
	html := `<html><head><style>p{color:red}</style></head><body>
		<nav>Home | About</nav>
		<article><h1>Market outlook</h1><p>Demand grew steadily.</p>
		<script>track();</script></article>
		<footer>Copyright</footer></body></html>`

	text, err := ExtractReadableText(html)
	require.NoError(t, err)
	assert.Contains(t, text, "Market outlook")
	assert.Contains(t, text, "Demand grew steadily.")
	assert.NotContains(t, text, "track();")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "Copyright")
}
