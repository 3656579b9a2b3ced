// internal/stages/synthesis/engine.go
package synthesis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/common/retry"
	"research-pipeline/internal/common/validation"
	"research-pipeline/internal/models"
)

const TaskType = "synthesize-insights"

// ChatClient is the slice of the OpenAI-compatible API the engine needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Handler struct {
	config *Config
	client ChatClient
	policy retry.Policy
	filter *OutputFilter
	logger logger.Logger
}

func NewHandler(config *Config, client ChatClient, policy retry.Policy, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		client: client,
		policy: policy,
		filter: NewOutputFilter(config.MaxQuoteLength, config.FabricationMarkers),
		logger: log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute asks the model for categorized insights over the extracted
// documents, validates the response shape, and runs the output filter. When
// the filter rejects anything the model gets exactly one regeneration pass;
// insights still violating after that are dropped, not repaired.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	docs := successfulDocs(input.Documents)
	if len(docs) == 0 {
		return nil, errors.NewSynthesisUnderflowError(0)
	}

	callCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	userPrompt := buildUserPrompt(input, h.config.ExcerptLength)
	resp, err := h.generate(callCtx, userPrompt)
	if err != nil {
		return nil, err
	}

	clean, rejected := h.filter.Partition(resp)
	regenerated := 0

	if len(rejected) > 0 {
		violations := flattenViolations(rejected)
		h.logger.Warn("output filter rejected insights, regenerating once", map[string]interface{}{
			"rejected":   len(rejected),
			"violations": violations,
		})

		regen, err := h.generate(callCtx, userPrompt+regenerationNote(violations))
		if err == nil {
			regenClean, regenRejected := h.filter.Partition(regen)
			if len(regenRejected) > 0 {
				h.logger.Warn("insights still violating after regeneration, dropped", map[string]interface{}{
					"dropped": len(regenRejected),
				})
			}
			clean = regenClean
			rejected = regenRejected
			regenerated = 1
		} else {
			h.logger.WithError(err).Warn("regeneration call failed, keeping filtered first response", nil)
		}
	}

	if len(clean) == 0 {
		return nil, errors.NewSynthesisUnderflowError(len(rejected))
	}

	sortInsights(clean)

	out := &Output{
		Insights: clean,
		Provenance: models.ProvenanceStats{
			SourcesUsed:     len(docs),
			UniqueDomains:   countDomains(docs),
			ContentVolume:   contentVolume(docs),
			InsightCount:    len(clean),
			RejectedCount:   len(rejected),
			RegeneratedOnce: regenerated,
		},
	}

	h.logger.Info("synthesis complete", map[string]interface{}{
		"insights": len(clean),
		"rejected": len(rejected),
		"sources":  len(docs),
	})
	return out, nil
}

// generate retries the chat completion under the injected policy. Transient
// API failures are worth another attempt; the stage-level timeout on ctx still
// bounds the whole thing.
func (h *Handler) generate(ctx context.Context, userPrompt string) (*llmResponse, error) {
	var parsed *llmResponse
	err := h.policy.Do(ctx, TaskType, func(ctx context.Context) error {
		resp, err := h.generateOnce(ctx, userPrompt)
		if err != nil {
			return err
		}
		parsed = resp
		return nil
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewLLMTimeoutError()
		}
		return nil, err
	}
	return parsed, nil
}

// generateOnce performs one chat completion and validates its JSON payload.
func (h *Handler) generateOnce(ctx context.Context, userPrompt string) (*llmResponse, error) {
	resp, err := h.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       h.config.Model,
		MaxTokens:   h.config.MaxTokens,
		Temperature: float32(h.config.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewLLMTimeoutError()
		}
		return nil, errors.NewLLMSynthesisFailedError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewLLMSynthesisFailedError(fmt.Errorf("empty choices"))
	}

	payload := []byte(strings.TrimSpace(resp.Choices[0].Message.Content))

	result, err := validation.ValidateInsightResponse(payload)
	if err != nil {
		return nil, errors.NewLLMSynthesisFailedError(err)
	}
	if !result.Valid {
		return nil, errors.NewLLMSynthesisFailedError(fmt.Errorf("response failed schema validation: %v", result.Errors))
	}

	var parsed llmResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, errors.NewLLMSynthesisFailedError(err)
	}
	return &parsed, nil
}

func successfulDocs(docs []models.ExtractedDocument) []models.ExtractedDocument {
	out := make([]models.ExtractedDocument, 0, len(docs))
	for _, d := range docs {
		if d.Success {
			out = append(out, d)
		}
	}
	return out
}

func contentVolume(docs []models.ExtractedDocument) int {
	total := 0
	for _, d := range docs {
		total += len(d.Text)
	}
	return total
}

func countDomains(docs []models.ExtractedDocument) int {
	domains := make(map[string]bool)
	for _, d := range docs {
		host := models.NormalizeURL(d.URL)
		if idx := strings.IndexByte(host, '/'); idx > 0 {
			host = host[:idx]
		}
		domains[host] = true
	}
	return len(domains)
}

var priorityRank = map[models.InsightPriority]int{
	models.PriorityHigh:   0,
	models.PriorityMedium: 1,
	models.PriorityLow:    2,
}

// sortInsights orders by priority, then evidence count, then summary for a
// deterministic report.
func sortInsights(insights []models.Insight) {
	sort.SliceStable(insights, func(i, j int) bool {
		if priorityRank[insights[i].Priority] != priorityRank[insights[j].Priority] {
			return priorityRank[insights[i].Priority] < priorityRank[insights[j].Priority]
		}
		if insights[i].EvidenceCount != insights[j].EvidenceCount {
			return insights[i].EvidenceCount > insights[j].EvidenceCount
		}
		return insights[i].Summary < insights[j].Summary
	})
}

func flattenViolations(rejected map[int][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, vs := range rejected {
		for _, v := range vs {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}
