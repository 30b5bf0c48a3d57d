package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zapdeskhq/zapbot-platform/cmd/mainconfig"
	"github.com/zapdeskhq/zapbot-platform/internal/app/bootstrap"
	appconfig "github.com/zapdeskhq/zapbot-platform/internal/config"
	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
	"github.com/zapdeskhq/zapbot-platform/internal/notify"
	"github.com/zapdeskhq/zapbot-platform/internal/observability/metrics"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting zapbot worker", "env", cfg.Env, "workers", cfg.WorkerCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL)
	jobStore := conversation.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.WebhookJobsTable, logger)

	businesses, closeRepo, err := bootstrap.OpenBusinessRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open business repository", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	store, closeStore, err := bootstrap.OpenConversationStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	botMetrics := metrics.NewBotMetrics(registry)

	opts := []conversation.EngineOption{conversation.WithEngineMetrics(botMetrics)}
	if email := bootstrap.BuildEmailSender(cfg, sesv2.NewFromConfig(awsCfg), logger); email != nil {
		opts = append(opts, conversation.WithHandoffNotifier(notify.NewService(email, logger)))
		logger.Info("handoff notifications enabled", "provider", cfg.EmailProvider)
	}

	engine, err := bootstrap.BuildEngine(ctx, cfg, businesses, store, bootstrap.NewRedisClient(cfg), logger, opts...)
	if err != nil {
		logger.Error("failed to build pipeline engine", "error", err)
		os.Exit(1)
	}

	worker := conversation.NewWorker(engine, queue, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithJobUpdater(jobStore))
	worker.Start(ctx)

	// Liveness and metrics for the worker process.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down bot worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("bot worker stopped")
	case <-shutdownCtx.Done():
		logger.Error("bot worker shutdown timed out", "error", shutdownCtx.Err())
	}
}
