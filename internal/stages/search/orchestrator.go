// internal/stages/search/orchestrator.go
package search

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/common/metrics"
	"research-pipeline/internal/common/retry"
	"research-pipeline/internal/models"
)

const TaskType = "search-fanout"

type Handler struct {
	config *Config
	policy retry.Policy
	logger logger.Logger
}

func NewHandler(config *Config, policy retry.Policy, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		policy: policy,
		logger: log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute fans the query set out across tiers in priority order. A provider
// failure is recorded, never fatal; a tier is skipped only when every one of
// its providers failed. Further tiers stop once the minimum result count is
// reached and the diversity floor (at least one academic or industry result)
// holds.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	tiers := make([]Tier, len(h.config.Tiers))
	copy(tiers, h.config.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Priority < tiers[j].Priority })

	out := &Output{QueriesRun: len(input.Queries)}
	seen := make(map[string]bool)
	diversityMet := false

	for _, tier := range tiers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(out.Results) >= h.config.MinResults && diversityMet {
			break
		}

		results, failures := h.executeTier(ctx, tier, input.Queries)
		out.ProviderErrs += failures

		if len(results) == 0 && failures == len(tier.Providers) {
			out.TiersSkipped = append(out.TiersSkipped, string(tier.Name))
			h.logger.Warn("tier skipped, all providers failed", map[string]interface{}{
				"tier":      tier.Name,
				"providers": len(tier.Providers),
			})
			continue
		}

		added := 0
		for _, r := range results {
			key := models.NormalizeURL(r.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			r.Score = h.score(tier, r.Relevance)
			out.Results = append(out.Results, r)
			added++
			if r.Tier.DiversityTier() {
				diversityMet = true
			}
			if added >= tier.MaxResults {
				break
			}
		}
	}

	if len(out.Results) == 0 {
		return nil, errors.NewSearchNoResultsError(len(input.Queries))
	}

	// Scores, not provider completion order, determine the final ranking.
	sort.SliceStable(out.Results, func(i, j int) bool {
		if out.Results[i].Score != out.Results[j].Score {
			return out.Results[i].Score > out.Results[j].Score
		}
		return out.Results[i].URL < out.Results[j].URL
	})

	h.logger.Info("search completed", map[string]interface{}{
		"results":        len(out.Results),
		"tiersSkipped":   out.TiersSkipped,
		"providerErrors": out.ProviderErrs,
	})

	return out, nil
}

// executeTier issues provider calls concurrently with bounded fan-out.
// Results are accumulated under one mutex, the single mutation point for the
// tier; ordering is restored afterwards by the score sort in Execute.
func (h *Handler) executeTier(ctx context.Context, tier Tier, queries []string) ([]models.SearchResult, int) {
	var (
		mu       sync.Mutex
		gathered []models.SearchResult
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Concurrency)

	for _, p := range tier.Providers {
		provider := p
		g.Go(func() error {
			var results []models.SearchResult
			err := h.policy.Do(gctx, provider.Name(), func(ctx context.Context) error {
				// Each query gets its own timeout so a slow early call cannot
				// starve the later ones.
				var (
					attempt []models.SearchResult
					callErr error
				)
				for _, query := range queries {
					callCtx, cancel := context.WithTimeout(ctx, h.config.PerCallTimeout)
					r, err := provider.Search(callCtx, query, tier.MaxResults)
					cancel()
					if err != nil {
						callErr = err
						continue
					}
					attempt = append(attempt, r...)
				}
				if len(attempt) == 0 && callErr != nil {
					return callErr
				}
				results = attempt
				return nil
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				metrics.ProviderCalls.WithLabelValues(provider.Name(), "error").Inc()
				h.logger.Warn("provider failed", map[string]interface{}{
					"provider": provider.Name(),
					"tier":     tier.Name,
					"error":    err.Error(),
				})
				// Recorded, not propagated: one provider never aborts the tier.
				return nil
			}
			metrics.ProviderCalls.WithLabelValues(provider.Name(), "ok").Inc()
			gathered = append(gathered, results...)
			return nil
		})
	}

	_ = g.Wait()

	// Deterministic intra-tier order regardless of goroutine completion.
	sort.SliceStable(gathered, func(i, j int) bool {
		if gathered[i].Relevance != gathered[j].Relevance {
			return gathered[i].Relevance > gathered[j].Relevance
		}
		return gathered[i].URL < gathered[j].URL
	})

	return gathered, failures
}

// score combines tier priority and per-result relevance. Both weights come
// from configuration; tier priority 1 maps to 1.0, priority n to 1/n.
func (h *Handler) score(tier Tier, relevance float64) float64 {
	priorityScore := 1.0
	if tier.Priority > 0 {
		priorityScore = 1.0 / float64(tier.Priority)
	}
	return h.config.TierWeight*priorityScore + h.config.RelevanceWeight*relevance
}
