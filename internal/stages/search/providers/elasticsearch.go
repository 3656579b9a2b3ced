// internal/stages/search/providers/elasticsearch.go
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"research-pipeline/internal/common/errors"
	"research-pipeline/internal/models"
)

// Elasticsearch searches an internal document index (industry reports,
// previously archived pages) as the industry-tier provider.
type Elasticsearch struct {
	name   string
	client *elasticsearch.Client
	index  string
	tier   models.ProviderTier
}

func NewElasticsearch(name string, client *elasticsearch.Client, index string, tier models.ProviderTier) *Elasticsearch {
	return &Elasticsearch{name: name, client: client, index: index, tier: tier}
}

func (e *Elasticsearch) Name() string { return e.name }

func (e *Elasticsearch) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "summary", "content"},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, errors.NewProviderUnavailableError(e.name, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, errors.NewProviderUnavailableError(e.name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewProviderUnavailableError(e.name, fmt.Errorf("elasticsearch: %s", res.Status()))
	}

	var parsed struct {
		Hits struct {
			MaxScore float64 `json:"max_score"`
			Hits     []struct {
				Score  float64 `json:"_score"`
				Source struct {
					URL     string `json:"url"`
					Title   string `json:"title"`
					Summary string `json:"summary"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewProviderUnavailableError(e.name, err)
	}

	results := make([]models.SearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		relevance := 1.0
		if parsed.Hits.MaxScore > 0 {
			relevance = hit.Score / parsed.Hits.MaxScore
		}
		results = append(results, models.SearchResult{
			URL:       hit.Source.URL,
			Title:     hit.Source.Title,
			Snippet:   hit.Source.Summary,
			Tier:      e.tier,
			Relevance: relevance,
		})
	}
	return results, nil
}
