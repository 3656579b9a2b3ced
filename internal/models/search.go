// internal/models/search.go
package models

import "strings"

// ProviderTier ranks provider groups by priority.
type ProviderTier string

const (
	TierPrimary     ProviderTier = "primary"
	TierSecondary   ProviderTier = "secondary"
	TierSpecialized ProviderTier = "specialized"
	TierAcademic    ProviderTier = "academic"
	TierNews        ProviderTier = "news"
	TierIndustry    ProviderTier = "industry"
)

// DiversityTier reports whether a tier counts toward the diversity floor:
// the search stage keeps issuing tiers until at least one academic or
// industry result is present.
func (t ProviderTier) DiversityTier() bool {
	return t == TierAcademic || t == TierIndustry
}

// SearchResult is one ranked hit from a provider. Deduplicated by normalized
// URL within a session.
type SearchResult struct {
	URL       string       `json:"url"`
	Title     string       `json:"title"`
	Snippet   string       `json:"snippet"`
	Tier      ProviderTier `json:"tier"`
	Relevance float64      `json:"relevance"`
	Score     float64      `json:"score"` // weighted tier+relevance ranking score
}

// NormalizeURL lowercases the URL, strips the scheme and any trailing slash
// so near-identical links dedupe to one entry.
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimSuffix(u, "/")
}

// ExtractionStrategy names one way of obtaining page text.
type ExtractionStrategy string

const (
	StrategyDirect   ExtractionStrategy = "direct"
	StrategyRendered ExtractionStrategy = "rendered"
	StrategyCached   ExtractionStrategy = "cached"
)

// ExtractedDocument holds text pulled from one SearchResult URL. The raw text
// never survives past the synthesis stage.
type ExtractedDocument struct {
	URL      string             `json:"url"`
	Tier     ProviderTier       `json:"tier"`
	Text     string             `json:"text,omitempty"`
	Strategy ExtractionStrategy `json:"strategy"`
	Success  bool               `json:"success"`
}
