// internal/stages/extract/extractor.go
package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/common/retry"
	"research-pipeline/internal/models"
)

const TaskType = "extract-content"

type Handler struct {
	config  *Config
	fetcher Fetcher
	policy  retry.Policy
	logger  logger.Logger
}

func NewHandler(config *Config, fetcher Fetcher, policy retry.Policy, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		fetcher: fetcher,
		policy:  policy,
		logger:  log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute fetches every result concurrently, trying strategies in order until
// one yields enough text or the per-URL retry budget runs out. Exhausted URLs
// become failed documents rather than errors; the stage itself fails only when
// the overall coverage ratio drops below the configured floor.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Results) == 0 {
		return &Output{}, nil
	}

	docs := make([]models.ExtractedDocument, len(input.Results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Concurrency)
	var mu sync.Mutex

	for i, result := range input.Results {
		i, result := i, result
		g.Go(func() error {
			doc := h.extractOne(gctx, result)
			mu.Lock()
			docs[i] = doc
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Output{Documents: docs, Attempted: len(docs)}
	for _, d := range docs {
		if d.Success {
			out.Succeeded++
			out.ContentVolume += len(d.Text)
		}
	}
	out.CoverageRatio = float64(out.Succeeded) / float64(out.Attempted)

	// Keep tier diversity visible downstream: successful docs first, original
	// order otherwise.
	sort.SliceStable(out.Documents, func(i, j int) bool {
		return out.Documents[i].Success && !out.Documents[j].Success
	})

	h.logger.Info("extraction complete", map[string]interface{}{
		"attempted":     out.Attempted,
		"succeeded":     out.Succeeded,
		"coverageRatio": out.CoverageRatio,
		"contentVolume": out.ContentVolume,
	})

	if out.CoverageRatio < h.config.MinCoverageRatio {
		return out, errors.NewExtractionCoverageLowError(out.CoverageRatio, h.config.MinCoverageRatio)
	}
	return out, nil
}

// extractOne tries the configured strategies in order, one per policy attempt,
// so the injected backoff applies between them. The retry budget caps how many
// strategies a single URL may burn.
func (h *Handler) extractOne(ctx context.Context, result models.SearchResult) models.ExtractedDocument {
	doc := models.ExtractedDocument{URL: result.URL, Tier: result.Tier}

	strategies := h.config.Strategies
	if len(strategies) > h.config.RetryBudget {
		strategies = strategies[:h.config.RetryBudget]
	}
	if len(strategies) == 0 {
		return doc
	}

	policy := h.policy
	policy.MaxAttempts = len(strategies)
	// Every failure moves on to the next strategy, whatever its cause.
	policy.Retryable = func(error) bool { return true }

	attempts := 0
	err := policy.Do(ctx, result.URL, func(ctx context.Context) error {
		strategy := strategies[attempts]
		attempts++

		fetchCtx, cancel := context.WithTimeout(ctx, h.config.PerURLTimeout)
		text, err := h.fetcher.Fetch(fetchCtx, result.URL, strategy)
		cancel()

		if err != nil {
			h.logger.Debug("fetch attempt failed", map[string]interface{}{
				"url":      result.URL,
				"strategy": string(strategy),
				"attempt":  attempts,
				"error":    err.Error(),
			})
			return err
		}
		if len(text) < h.config.MinContentLength {
			h.logger.Debug("fetched text below minimum length", map[string]interface{}{
				"url":      result.URL,
				"strategy": string(strategy),
				"length":   len(text),
			})
			return fmt.Errorf("content below minimum length: %d", len(text))
		}

		doc.Text = text
		doc.Strategy = strategy
		doc.Success = true
		return nil
	})
	if err != nil {
		h.logger.Warn("extraction budget exhausted", map[string]interface{}{
			"url":      result.URL,
			"attempts": attempts,
		})
	}
	return doc
}
