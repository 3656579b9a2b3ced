// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like SYNTHESIS_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when missing.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries several locations so tests run from nested packages still
// pick up the project .env.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig pulls well-known secrets directly from the environment
// when the config file left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Synthesis.APIKey == "" {
		if val := os.Getenv("SYNTHESIS_API_KEY"); val != "" {
			cfg.Synthesis.APIKey = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Elasticsearch.Password == "" {
		if val := os.Getenv("ELASTICSEARCH_PASSWORD"); val != "" {
			cfg.Database.Elasticsearch.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = 120000
	}
	if cfg.Pipeline.MaxStageRetries == 0 {
		cfg.Pipeline.MaxStageRetries = 2
	}
	if cfg.Pipeline.RetryBackoff == 0 {
		cfg.Pipeline.RetryBackoff = 500
	}

	if cfg.QueryGen.MaxQueries == 0 {
		cfg.QueryGen.MaxQueries = 12
	}
	if cfg.QueryGen.OverlapThreshold == 0 {
		cfg.QueryGen.OverlapThreshold = 0.8
	}

	if cfg.Search.MinResults == 0 {
		cfg.Search.MinResults = 10
	}
	if cfg.Search.TierWeight == 0 {
		cfg.Search.TierWeight = 0.6
	}
	if cfg.Search.RelevanceWeight == 0 {
		cfg.Search.RelevanceWeight = 0.4
	}
	if cfg.Search.PerCallTimeout == 0 {
		cfg.Search.PerCallTimeout = 10000
	}
	if cfg.Search.Concurrency == 0 {
		cfg.Search.Concurrency = 4
	}
	for i := range cfg.Search.Tiers {
		if cfg.Search.Tiers[i].MaxResults == 0 {
			cfg.Search.Tiers[i].MaxResults = 10
		}
	}

	if len(cfg.Extraction.Strategies) == 0 {
		cfg.Extraction.Strategies = []string{"direct", "rendered", "cached"}
	}
	if cfg.Extraction.RetryBudget == 0 {
		cfg.Extraction.RetryBudget = 2
	}
	if cfg.Extraction.MinContentLength == 0 {
		cfg.Extraction.MinContentLength = 300
	}
	if cfg.Extraction.MinCoverageRatio == 0 {
		cfg.Extraction.MinCoverageRatio = 0.4
	}
	if cfg.Extraction.PerURLTimeout == 0 {
		cfg.Extraction.PerURLTimeout = 15000
	}
	if cfg.Extraction.Concurrency == 0 {
		cfg.Extraction.Concurrency = 5
	}
	if cfg.Extraction.MaxBodyBytes == 0 {
		cfg.Extraction.MaxBodyBytes = 512 * 1024
	}

	if cfg.Synthesis.Model == "" {
		cfg.Synthesis.Model = "gpt-4o-mini"
	}
	if cfg.Synthesis.MaxTokens == 0 {
		cfg.Synthesis.MaxTokens = 4096
	}
	if cfg.Synthesis.Timeout == 0 {
		cfg.Synthesis.Timeout = 60000
	}
	if cfg.Synthesis.MaxQuoteLength == 0 {
		cfg.Synthesis.MaxQuoteLength = 280
	}
	if cfg.Synthesis.ExcerptLength == 0 {
		cfg.Synthesis.ExcerptLength = 1500
	}
	if len(cfg.Synthesis.FabricationMarkers) == 0 {
		cfg.Synthesis.FabricationMarkers = []string{
			"customized for", "based on placeholder", "n/a",
			"example of", "simulated", "generic insight", "lorem ipsum",
		}
	}

	if cfg.Quality.MinSources == 0 {
		cfg.Quality.MinSources = 5
	}
	if cfg.Quality.MinContentVolume == 0 {
		cfg.Quality.MinContentVolume = 3000
	}
	if cfg.Quality.MinQualityScore == 0 {
		cfg.Quality.MinQualityScore = 60.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = ":9102"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if len(cfg.Search.Tiers) == 0 {
		return fmt.Errorf("search.tiers must configure at least one tier")
	}
	if cfg.Extraction.MinCoverageRatio < 0 || cfg.Extraction.MinCoverageRatio > 1 {
		return fmt.Errorf("extraction.min_coverage_ratio must be within [0,1]")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
