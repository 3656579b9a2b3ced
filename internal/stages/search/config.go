// internal/stages/search/config.go
package search

import (
	"time"

	"research-pipeline/internal/models"
	"research-pipeline/internal/stages/search/providers"
)

// Tier groups provider adapters executed together with one result cap.
type Tier struct {
	Name       models.ProviderTier
	Priority   int // lower executes first
	MaxResults int
	Providers  []providers.Provider
}

// Config holds tier ordering, ranking weights, and fan-out limits.
type Config struct {
	Tiers           []Tier
	MinResults      int
	TierWeight      float64
	RelevanceWeight float64
	PerCallTimeout  time.Duration
	Concurrency     int
}

func LoadConfig() *Config {
	return &Config{
		MinResults:      10,
		TierWeight:      0.6,
		RelevanceWeight: 0.4,
		PerCallTimeout:  10 * time.Second,
		Concurrency:     4,
	}
}
