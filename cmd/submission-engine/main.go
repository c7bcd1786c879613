// cmd/submission-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"submission-engine/internal/adapters"
	awsclients "submission-engine/internal/common/aws"
	"submission-engine/internal/common/config"
	"submission-engine/internal/common/database"
	httpclient "submission-engine/internal/common/http"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/common/observability"
	"submission-engine/internal/intelligence"
	"submission-engine/internal/models"
	"submission-engine/internal/notify"
	"submission-engine/internal/orchestrator"
	"submission-engine/internal/store"
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

	zapLog.Info("Starting submission engine...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("submission-engine")
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
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
	// The interaction audit index is best-effort; startup still fails fast if
	// the cluster is configured but unreachable.
	var esClient *database.ElasticsearchClient
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

	// --- Init AWS clients ---
	var sesClient *awsclients.SESClient
	if cfg.Integrations.AWS.SES.Enabled {
		sesClient, err = awsclients.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		zapLog.Info("SES client initialized")
	}

	var notifier notify.EscalationNotifier = notify.NewLogNotifier(log)
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := awsclients.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = notify.NewSNSNotifier(snsClient, cfg.Integrations.AWS.SNS.EscalationTopicARN, log)
		zapLog.Info("SNS escalation notifier initialized")
	}

	// --- Build the adapter registry from configured servicers ---
	deps := adapters.Dependencies{
		HTTP:      httpclient.NewClient(cfg.Orchestrator.SubmitTimeout),
		SES:       sesClient,
		FromEmail: cfg.Integrations.AWS.SES.FromEmail,
		Logger:    log,
	}
	registry := adapters.NewRegistry()
	for _, servicerCfg := range cfg.Servicers {
		registry.Register(adapters.NewFromConfig(servicerCfg, deps))
		zapLog.Info("servicer adapter registered",
			zap.String("servicerId", servicerCfg.ID),
			zap.String("channelType", string(servicerCfg.ChannelType)),
		)
	}

	intel := intelligence.NewRedisService(
		redis.Client, esClient, cfg.Database.Elasticsearch.Index, log)
	taskStore := store.NewPostgresTaskStore(pg.DB, log)

	orch := orchestrator.New(taskStore, registry, intel, notifier, nil, obs, log, orchestrator.Options{
		SubmitTimeout:        cfg.Orchestrator.SubmitTimeout,
		HealthCheckInterval:  cfg.Orchestrator.HealthCheckInterval,
		PendingWarnThreshold: cfg.Orchestrator.PendingWarnThreshold,
		StalePendingAge:      cfg.Orchestrator.StalePendingAge,
	})

	if err := orch.Start(ctx); err != nil {
		zapLog.Fatal("orchestrator start failed", zap.Error(err))
	}
	zapLog.Info("Orchestrator started, persisted tasks resumed")

	// --- Metrics and pprof endpoint ---
	if cfg.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(orch.GetQueueStats())
			})
			http.HandleFunc("/connections", func(w http.ResponseWriter, r *http.Request) {
				checkCtx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
				defer cancel()
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(orch.TestServicerConnections(checkCtx))
			})
			http.HandleFunc("/breakers", func(w http.ResponseWriter, r *http.Request) {
				states := make(map[string]orchestrator.BreakerState)
				for id := range cfg.Servicers {
					states[id] = orch.BreakerState(id)
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(states)
			})

			zapLog.Info("metrics endpoint listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
				zapLog.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	// --- Startup connectivity sweep ---
	go func() {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		for servicerID, result := range orch.TestServicerConnections(sweepCtx) {
			if result.Success {
				zapLog.Info("servicer connection verified", zap.String("servicerId", servicerID))
			} else {
				zapLog.Warn("servicer connection failed",
					zap.String("servicerId", servicerID),
					zap.String("message", result.Message),
				)
			}
		}
	}()

	zapLog.Info("Submission engine running",
		zap.Int("servicers", len(cfg.Servicers)),
		zap.Strings("channels", channelNames()),
	)

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zapLog.Info("shutdown signal received", zap.String("signal", sig.String()))

	orch.Stop()
	zapLog.Info("Submission engine stopped")
}

func channelNames() []string {
	out := make([]string, 0, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		out = append(out, string(ch))
	}
	return out
}
