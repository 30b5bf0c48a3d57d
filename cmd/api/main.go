package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zapdeskhq/zapbot-platform/cmd/mainconfig"
	"github.com/zapdeskhq/zapbot-platform/internal/api/router"
	"github.com/zapdeskhq/zapbot-platform/internal/app/bootstrap"
	appconfig "github.com/zapdeskhq/zapbot-platform/internal/config"
	"github.com/zapdeskhq/zapbot-platform/internal/conversation"
	"github.com/zapdeskhq/zapbot-platform/internal/http/handlers"
	"github.com/zapdeskhq/zapbot-platform/internal/observability/metrics"
	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting zapbot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := bootstrap.OpenConversationStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	registry := prometheus.NewRegistry()

	var publisher *conversation.Publisher
	var jobs conversation.JobRecorder
	var worker *conversation.Worker

	if cfg.UseMemoryQueue {
		// Dev mode: process inbound jobs in this process instead of SQS.
		queue := conversation.NewMemoryQueue(0)
		publisher = conversation.NewPublisher(queue, logger)

		businesses, closeRepo, err := bootstrap.OpenBusinessRepository(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to open business repository", "error", err)
			os.Exit(1)
		}
		defer closeRepo()

		botMetrics := metrics.NewBotMetrics(registry)
		engine, err := bootstrap.BuildEngine(ctx, cfg, businesses, store, bootstrap.NewRedisClient(cfg), logger,
			conversation.WithEngineMetrics(botMetrics))
		if err != nil {
			logger.Error("failed to build pipeline engine", "error", err)
			os.Exit(1)
		}

		worker = conversation.NewWorker(engine, queue, logger,
			conversation.WithWorkerCount(cfg.WorkerCount))
		worker.Start(ctx)
		logger.Info("in-process bot worker started", "workers", cfg.WorkerCount)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL)
		publisher = conversation.NewPublisher(queue, logger)
		jobs = conversation.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.WebhookJobsTable, logger)
	}

	webhookHandler := handlers.NewEvolutionWebhookHandler(publisher, jobs, cfg.EvolutionAPIKey, logger)
	teamHandler := handlers.NewTeamHandler(conversation.NewTeamService(store, logger), store, logger)

	r := router.New(&router.Config{
		Logger:               logger,
		WebhookHandler:       webhookHandler,
		TeamHandler:          teamHandler,
		TeamAuthSecret:       cfg.TeamJWTSecret,
		MetricsHandler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		WebhookRatePerSecond: 50,
		WebhookBurst:         100,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if worker != nil {
		worker.Wait()
	}

	logger.Info("server stopped")
}
