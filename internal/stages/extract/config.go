// internal/stages/extract/config.go
package extract

import (
	"time"

	"research-pipeline/internal/models"
)

// Config holds fetch strategy order, retry budget, and the coverage floor.
type Config struct {
	Strategies       []models.ExtractionStrategy
	RetryBudget      int // attempts per URL across all strategies
	MinContentLength int
	MinCoverageRatio float64
	PerURLTimeout    time.Duration
	Concurrency      int
	MaxBodyBytes     int
}

func LoadConfig() *Config {
	return &Config{
		Strategies:       []models.ExtractionStrategy{models.StrategyDirect, models.StrategyRendered, models.StrategyCached},
		RetryBudget:      2,
		MinContentLength: 300,
		MinCoverageRatio: 0.4,
		PerURLTimeout:    15 * time.Second,
		Concurrency:      5,
		MaxBodyBytes:     512 * 1024,
	}
}
