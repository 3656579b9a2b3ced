// internal/stages/search/providers/webapi.go
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/models"
)

// WebAPI queries a JSON web-search endpoint (custom search engine style:
// key + cx + q parameters, items in the response).
type WebAPI struct {
	name     string
	baseURL  string
	apiKey   string
	engineID string
	tier     models.ProviderTier
	client   *http.Client
}

func NewWebAPI(name, baseURL, apiKey, engineID string, tier models.ProviderTier, timeout time.Duration) *WebAPI {
	return &WebAPI{
		name:     name,
		baseURL:  baseURL,
		apiKey:   apiKey,
		engineID: engineID,
		tier:     tier,
		client:   &http.Client{Timeout: timeout},
	}
}

func (w *WebAPI) Name() string { return w.name }

func (w *WebAPI) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, errors.NewProviderUnavailableError(w.name, err)
	}
	params := url.Values{}
	params.Add("key", w.apiKey)
	params.Add("cx", w.engineID)
	params.Add("q", query)
	params.Add("num", fmt.Sprintf("%d", limit))
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, errors.NewProviderUnavailableError(w.name, err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, errors.NewSearchTimeoutError(w.name)
		}
		return nil, errors.NewProviderUnavailableError(w.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.NewProviderRateLimitedError(w.name)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.NewProviderUnavailableError(w.name, fmt.Errorf("status %d", resp.StatusCode))
	}

	var apiResponse struct {
		Items []struct {
			Link    string  `json:"link"`
			Title   string  `json:"title"`
			Snippet string  `json:"snippet"`
			Mime    string  `json:"mime"`
			Rank    float64 `json:"rank"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, errors.NewProviderUnavailableError(w.name, err)
	}

	results := make([]models.SearchResult, 0, len(apiResponse.Items))
	for _, item := range apiResponse.Items {
		// Skip non-HTML hits, they cannot be extracted downstream.
		if item.Mime != "" && !strings.Contains(item.Mime, "html") {
			continue
		}
		results = append(results, models.SearchResult{
			URL:       item.Link,
			Title:     item.Title,
			Snippet:   item.Snippet,
			Tier:      w.tier,
			Relevance: relevanceOf(item.Link, item.Title, item.Rank),
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// relevanceOf estimates per-result relevance when the API supplies no rank:
// authoritative domains and official titles score above the baseline.
func relevanceOf(link, title string, rank float64) float64 {
	if rank > 0 {
		return rank
	}
	relevance := 1.0
	if strings.Contains(link, ".gov") || strings.Contains(link, ".edu") {
		relevance += 0.2
	}
	if strings.Contains(strings.ToLower(title), "official") {
		relevance += 0.1
	}
	return relevance
}
