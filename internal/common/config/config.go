// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Pipeline      PipelineConfig     `mapstructure:"pipeline"`
	QueryGen      QueryGenConfig     `mapstructure:"query_generation"`
	Search        SearchConfig       `mapstructure:"search"`
	Extraction    ExtractionConfig   `mapstructure:"extraction"`
	Synthesis     SynthesisConfig    `mapstructure:"synthesis"`
	Quality       QualityConfig      `mapstructure:"quality"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Pipeline Configuration ---

// PipelineConfig holds orchestrator-level settings.
type PipelineConfig struct {
	StageTimeout      int `mapstructure:"stage_timeout"`       // milliseconds, aggregate per stage
	MaxStageRetries   int `mapstructure:"max_stage_retries"`   // for retryable stages
	RetryBackoff      int `mapstructure:"retry_backoff"`       // milliseconds, initial delay
	CheckpointTTLDays int `mapstructure:"checkpoint_ttl_days"` // 0 = keep forever
}

// QueryGenConfig bounds the generated query set.
type QueryGenConfig struct {
	MaxQueries       int     `mapstructure:"max_queries"`
	OverlapThreshold float64 `mapstructure:"overlap_threshold"` // token-overlap near-duplicate cutoff
}

// SearchConfig holds provider tier settings and ranking weights.
type SearchConfig struct {
	Tiers           []TierConfig              `mapstructure:"tiers"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
	MinResults      int                       `mapstructure:"min_results"`
	TierWeight      float64                   `mapstructure:"tier_weight"`
	RelevanceWeight float64                   `mapstructure:"relevance_weight"`
	PerCallTimeout  int                       `mapstructure:"per_call_timeout"` // milliseconds
	Concurrency     int                       `mapstructure:"concurrency"`      // per-tier provider fan-out
}

// ProviderConfig describes one named provider adapter referenced by tiers.
type ProviderConfig struct {
	Type     string `mapstructure:"type"` // webapi or elasticsearch
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	EngineID string `mapstructure:"engine_id"`
	Index    string `mapstructure:"index"` // elasticsearch only, falls back to database.elasticsearch.index
}

// TierConfig configures one provider tier.
type TierConfig struct {
	Name       string   `mapstructure:"name"`     // primary/secondary/specialized/academic/news/industry
	Priority   int      `mapstructure:"priority"` // lower executes first
	MaxResults int      `mapstructure:"max_results"`
	Providers  []string `mapstructure:"providers"` // provider names registered at startup
}

// ExtractionConfig holds fetch strategy and coverage settings.
type ExtractionConfig struct {
	Strategies       []string `mapstructure:"strategies"` // direct/rendered/cached, attempted in order
	RetryBudget      int      `mapstructure:"retry_budget"`
	MinContentLength int      `mapstructure:"min_content_length"`
	MinCoverageRatio float64  `mapstructure:"min_coverage_ratio"`
	PerURLTimeout    int      `mapstructure:"per_url_timeout"` // milliseconds
	Concurrency      int      `mapstructure:"concurrency"`
	MaxBodyBytes     int      `mapstructure:"max_body_bytes"`
	RendererURL      string   `mapstructure:"renderer_url"` // rendered strategy endpoint, URL appended
	CacheURL         string   `mapstructure:"cache_url"`    // cached strategy endpoint, URL appended
}

// SynthesisConfig holds LLM settings and the output filter thresholds.
type SynthesisConfig struct {
	BaseURL            string   `mapstructure:"base_url"`
	APIKey             string   `mapstructure:"api_key"`
	Model              string   `mapstructure:"model"`
	MaxTokens          int      `mapstructure:"max_tokens"`
	Temperature        float64  `mapstructure:"temperature"`
	Timeout            int      `mapstructure:"timeout"` // milliseconds
	MaxQuoteLength     int      `mapstructure:"max_quote_length"`
	ExcerptLength      int      `mapstructure:"excerpt_length"` // chars of document text fed per source
	FabricationMarkers []string `mapstructure:"fabrication_markers"`
}

// QualityConfig holds the QA gate thresholds.
type QualityConfig struct {
	MinSources       int     `mapstructure:"min_sources"`
	MinContentVolume int     `mapstructure:"min_content_volume"`
	MinQualityScore  float64 `mapstructure:"min_quality_score"`
}

// NotificationConfig holds settings for the terminal-state publisher.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
