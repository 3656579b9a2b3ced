// cmd/pipeline-runner/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"research-pipeline/internal/checkpoint"
	"research-pipeline/internal/common/aws"
	"research-pipeline/internal/common/config"
	"research-pipeline/internal/common/database"
	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/common/observability"
	"research-pipeline/internal/common/retry"
	"research-pipeline/internal/models"
	"research-pipeline/internal/notify"
	"research-pipeline/internal/pipeline"
	"research-pipeline/internal/session"
	"research-pipeline/internal/stages/extract"
	"research-pipeline/internal/stages/quality"
	"research-pipeline/internal/stages/querygen"
	"research-pipeline/internal/stages/search"
	"research-pipeline/internal/stages/search/providers"
	"research-pipeline/internal/stages/synthesis"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline runner...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry, only when a tier references it ---
	var esClient *database.ElasticsearchClient
	if needsElasticsearch(cfg) {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Stage handlers ---
	stagePolicy := retry.Default(cfg.Pipeline.MaxStageRetries, config.GetDuration(cfg.Pipeline.RetryBackoff))

	queryHandler := querygen.NewHandler(&querygen.Config{
		MaxQueries:       cfg.QueryGen.MaxQueries,
		OverlapThreshold: cfg.QueryGen.OverlapThreshold,
	}, log)

	tiers, err := buildTiers(cfg, esClient)
	if err != nil {
		zapLog.Fatal("search tier construction failed", zap.Error(err))
	}
	searchHandler := search.NewHandler(&search.Config{
		Tiers:           tiers,
		MinResults:      cfg.Search.MinResults,
		TierWeight:      cfg.Search.TierWeight,
		RelevanceWeight: cfg.Search.RelevanceWeight,
		PerCallTimeout:  config.GetDuration(cfg.Search.PerCallTimeout),
		Concurrency:     cfg.Search.Concurrency,
	}, stagePolicy, log)

	fetcher := extract.NewHTTPFetcher(
		config.GetDuration(cfg.Extraction.PerURLTimeout),
		cfg.Extraction.RendererURL,
		cfg.Extraction.CacheURL,
		cfg.Extraction.MaxBodyBytes,
	)
	extractHandler := extract.NewHandler(&extract.Config{
		Strategies:       toStrategies(cfg.Extraction.Strategies),
		RetryBudget:      cfg.Extraction.RetryBudget,
		MinContentLength: cfg.Extraction.MinContentLength,
		MinCoverageRatio: cfg.Extraction.MinCoverageRatio,
		PerURLTimeout:    config.GetDuration(cfg.Extraction.PerURLTimeout),
		Concurrency:      cfg.Extraction.Concurrency,
		MaxBodyBytes:     cfg.Extraction.MaxBodyBytes,
	}, fetcher, stagePolicy, log)

	llmConfig := openai.DefaultConfig(cfg.Synthesis.APIKey)
	if cfg.Synthesis.BaseURL != "" {
		llmConfig.BaseURL = cfg.Synthesis.BaseURL
	}
	synthHandler := synthesis.NewHandler(&synthesis.Config{
		Model:              cfg.Synthesis.Model,
		MaxTokens:          cfg.Synthesis.MaxTokens,
		Temperature:        cfg.Synthesis.Temperature,
		Timeout:            config.GetDuration(cfg.Synthesis.Timeout),
		MaxQuoteLength:     cfg.Synthesis.MaxQuoteLength,
		ExcerptLength:      cfg.Synthesis.ExcerptLength,
		FabricationMarkers: cfg.Synthesis.FabricationMarkers,
	}, openai.NewClientWithConfig(llmConfig), stagePolicy, log)

	qualityHandler := quality.NewHandler(&quality.Config{
		MinSources:       cfg.Quality.MinSources,
		MinContentVolume: cfg.Quality.MinContentVolume,
		MinQualityScore:  cfg.Quality.MinQualityScore,
	}, log)

	// --- Stores and notifier ---
	sessions := session.NewPostgresStore(pg.DB, log)
	checkpointTTL := time.Duration(cfg.Pipeline.CheckpointTTLDays) * 24 * time.Hour
	checkpoints := checkpoint.NewRedisStore(redisClient.Client, checkpointTTL, log)

	var notifier notify.Notifier = notify.NoOpNotifier{}
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.SNS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = notify.NewSNSNotifier(snsClient, cfg.Notifications.SNS.TopicARN, log)
		zapLog.Info("SNS notifier initialized")
	}

	orch := pipeline.NewOrchestrator(sessions, checkpoints, pipeline.Stages{
		Queries:    queryHandler,
		Search:     searchHandler,
		Extract:    extractHandler,
		Synthesize: synthHandler,
		Quality:    qualityHandler,
	}, config.GetDuration(cfg.Pipeline.StageTimeout), notifier, log)

	// --- HTTP servers ---
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := newAPIServer(orch, runCtx, log)
	apiSrv := &http.Server{Addr: ":8080", Handler: api.routes()}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsAddr := cfg.App.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	go func() {
		zapLog.Info("metrics endpoint listening", zap.String("addr", metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		zapLog.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("api server failed", zap.Error(err))
		}
	}()

	<-runCtx.Done()
	zapLog.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("api shutdown incomplete", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("metrics shutdown incomplete", zap.Error(err))
	}
	api.wait()
	zapLog.Info("Pipeline runner stopped")
}

// buildTiers resolves tier provider names against the configured catalog.
func buildTiers(cfg *config.Config, esClient *database.ElasticsearchClient) ([]search.Tier, error) {
	tiers := make([]search.Tier, 0, len(cfg.Search.Tiers))
	for _, tc := range cfg.Search.Tiers {
		tierName := models.ProviderTier(tc.Name)

		adapters := make([]providers.Provider, 0, len(tc.Providers))
		for _, name := range tc.Providers {
			pc, ok := cfg.Search.Providers[name]
			if !ok {
				return nil, fmt.Errorf("tier %q references unknown provider %q", tc.Name, name)
			}
			switch pc.Type {
			case "webapi":
				adapters = append(adapters, providers.NewWebAPI(
					name, pc.BaseURL, pc.APIKey, pc.EngineID, tierName,
					config.GetDuration(cfg.Search.PerCallTimeout),
				))
			case "elasticsearch":
				if esClient == nil {
					return nil, fmt.Errorf("provider %q needs elasticsearch but no client is configured", name)
				}
				index := pc.Index
				if index == "" {
					index = cfg.Database.Elasticsearch.Index
				}
				adapters = append(adapters, providers.NewElasticsearch(name, esClient.Client, index, tierName))
			default:
				return nil, fmt.Errorf("provider %q has unknown type %q", name, pc.Type)
			}
		}

		tiers = append(tiers, search.Tier{
			Name:       tierName,
			Priority:   tc.Priority,
			MaxResults: tc.MaxResults,
			Providers:  adapters,
		})
	}
	return tiers, nil
}

func needsElasticsearch(cfg *config.Config) bool {
	for _, pc := range cfg.Search.Providers {
		if pc.Type == "elasticsearch" {
			return true
		}
	}
	return false
}

func toStrategies(names []string) []models.ExtractionStrategy {
	out := make([]models.ExtractionStrategy, 0, len(names))
	for _, n := range names {
		out = append(out, models.ExtractionStrategy(n))
	}
	return out
}
