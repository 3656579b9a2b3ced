// internal/stages/synthesis/config.go
package synthesis

import "time"

// Config holds LLM call parameters and the output filter thresholds.
type Config struct {
	Model              string
	MaxTokens          int
	Temperature        float64
	Timeout            time.Duration
	MaxQuoteLength     int // chars a single quoted span may run before rejection
	ExcerptLength      int // chars of each document fed into the prompt
	FabricationMarkers []string
}

func LoadConfig() *Config {
	return &Config{
		Model:          "gpt-4o-mini",
		MaxTokens:      2048,
		Temperature:    0.2,
		Timeout:        90 * time.Second,
		MaxQuoteLength: 160,
		ExcerptLength:  1500,
		FabricationMarkers: []string{
			"as an ai",
			"i cannot verify",
			"hypothetical example",
			"illustrative figure",
			"made-up",
			"lorem ipsum",
		},
	}
}
