package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shawkridge/athena-sub002/internal/agents"
	"github.com/shawkridge/athena-sub002/internal/aggregator"
	"github.com/shawkridge/athena-sub002/internal/cache"
	"github.com/shawkridge/athena-sub002/internal/circuitbreaker"
	"github.com/shawkridge/athena-sub002/internal/config"
	"github.com/shawkridge/athena-sub002/internal/db"
	"github.com/shawkridge/athena-sub002/internal/executor"
	"github.com/shawkridge/athena-sub002/internal/httpapi"
	"github.com/shawkridge/athena-sub002/internal/ratelimit"
	"github.com/shawkridge/athena-sub002/internal/store"
	"github.com/shawkridge/athena-sub002/internal/streaming"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Source registry. Placeholder connectors keep the service runnable
	// end to end; real deployments swap these for live source clients.
	registry := agents.NewRegistry(logger)
	for _, source := range builtInSources {
		agent := agents.Agent(&agents.StaticAgent{Source: source})
		var regErr error
		if sc, ok := cfg.Research.Sources[source]; ok && sc.Credibility > 0 {
			regErr = registry.RegisterWithCredibility(agent, sc.Credibility)
		} else {
			regErr = registry.Register(agent)
		}
		if regErr != nil {
			logger.Fatal("Failed to register agent", zap.String("source", source), zap.Error(regErr))
		}
	}

	breakers := circuitbreaker.NewManager(
		circuitbreaker.SourceConfigFromEnv(),
		breakerOverrides(cfg),
		logger,
	)

	rateOverrides := rateLimitOverrides(cfg)
	for source, limit := range ratelimit.LoadOverrides(logger) {
		if _, set := rateOverrides[source]; !set {
			rateOverrides[source] = limit
		}
	}
	limiter := ratelimit.NewLimiter(rateOverrides, logger)

	queryCache := buildCache(cfg, logger)
	findingStore, consolidator := buildStore(cfg, logger)
	defer findingStore.Close()

	streams := streaming.NewManager(cfg.Research.Streaming.HistoryCapacity)
	if client, ok := findingStore.(*db.Client); ok {
		streams.SetSink(eventLogSink(client))
	}

	agg := aggregator.New(aggregator.Config{
		SimilarityThreshold: cfg.Research.Aggregation.SimilarityThreshold,
		SourceCredibility:   registry.Credibilities(),
	}, logger)

	exec := executor.New(
		registry, breakers, limiter, queryCache, agg,
		findingStore, consolidator, streams,
		executor.Config{
			AgentTimeout:       cfg.AgentTimeout(),
			CacheTTL:           cfg.CacheTTL(),
			StreamingBatchSize: cfg.Research.Streaming.BatchSize,
		},
		logger,
	)

	mux := http.NewServeMux()
	httpapi.NewTasksHandler(exec, findingStore, logger).RegisterRoutes(mux)
	httpapi.NewStreamingHandler(streams, logger).RegisterRoutes(mux)
	httpapi.NewHealthHandler(breakers).RegisterRoutes(mux)
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	port := getEnvOrDefaultInt("HTTP_PORT", 8080)
	server := &http.Server{
		Addr:        ":" + strconv.Itoa(port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("Research service listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down research service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}

// builtInSources is the default fan-out set. Per-source credibility and
// limits come from the registry defaults unless research.yaml overrides
// them.
var builtInSources = []string{
	"documentation",
	"github",
	"arxiv",
	"stackoverflow",
	"hackernews",
	"reddit",
	"youtube",
	"medium",
	"twitter",
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Observability.Logging.Format == "console" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(cfg.Observability.Logging.Level); err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

func breakerOverrides(cfg *config.Config) map[string]circuitbreaker.Config {
	overrides := make(map[string]circuitbreaker.Config)
	for source, sc := range cfg.Research.Sources {
		if sc.FailureThreshold == 0 && sc.SuccessThreshold == 0 && sc.TimeoutSeconds == 0 {
			continue
		}
		bc := circuitbreaker.DefaultConfig()
		if sc.FailureThreshold > 0 {
			bc.FailureThreshold = sc.FailureThreshold
		}
		if sc.SuccessThreshold > 0 {
			bc.SuccessThreshold = sc.SuccessThreshold
		}
		if sc.TimeoutSeconds > 0 {
			bc.Timeout = time.Duration(sc.TimeoutSeconds) * time.Second
		}
		overrides[source] = bc
	}
	return overrides
}

func rateLimitOverrides(cfg *config.Config) map[string]ratelimit.SourceLimit {
	overrides := make(map[string]ratelimit.SourceLimit)
	for source, sc := range cfg.Research.Sources {
		if sc.RequestsPerMinute == 0 && sc.BurstSize == 0 {
			continue
		}
		overrides[source] = ratelimit.SourceLimit{
			RequestsPerMinute: sc.RequestsPerMinute,
			BurstSize:         sc.BurstSize,
		}
	}
	return overrides
}

func buildCache(cfg *config.Config, logger *zap.Logger) *cache.QueryCache {
	if !cfg.Redis.Enabled {
		return cache.New(cfg.Research.Cache.MaxEntries, logger)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	logger.Info("Query cache mirroring to Redis", zap.String("addr", cfg.Redis.Addr))
	return cache.NewWithRedis(cfg.Research.Cache.MaxEntries, rdb, logger)
}

// buildStore prefers Postgres; without it the in-memory store keeps the
// service functional for local runs.
func buildStore(cfg *config.Config, logger *zap.Logger) (store.FindingStore, store.Consolidator) {
	if !cfg.Database.Enabled {
		logger.Info("Postgres disabled, using in-memory store")
		return store.NewMemoryStore(), store.NoopConsolidator{}
	}

	client, err := db.NewClient(&db.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		logger.Warn("Postgres unavailable, falling back to in-memory store", zap.Error(err))
		return store.NewMemoryStore(), store.NoopConsolidator{}
	}
	return client, store.NoopConsolidator{}
}

// eventLogSink persists every streamed event through the db write queue so
// a task's timeline survives restarts.
func eventLogSink(client *db.Client) func(streaming.Event) {
	return func(evt streaming.Event) {
		entry := &db.EventLog{
			TaskID:    evt.TaskID,
			Type:      evt.Type,
			Source:    evt.Source,
			Message:   evt.Message,
			Timestamp: evt.Timestamp,
			Seq:       evt.Seq,
		}
		if evt.Payload != nil {
			if b, err := json.Marshal(evt.Payload); err == nil {
				var payload db.JSONB
				if json.Unmarshal(b, &payload) == nil {
					entry.Payload = payload
				}
			}
		}
		client.SaveEventLog(entry)
	}
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
