// internal/stages/querygen/config.go
package querygen

// Config bounds the generated query set.
type Config struct {
	MaxQueries       int
	OverlapThreshold float64
}

func LoadConfig() *Config {
	return &Config{
		MaxQueries:       12,
		OverlapThreshold: 0.8,
	}
}
