package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/wolfman30/bookline-ai-platform/cmd/mainconfig"
	appconfig "github.com/wolfman30/bookline-ai-platform/internal/config"
	"github.com/wolfman30/bookline-ai-platform/internal/convlog"
	"github.com/wolfman30/bookline-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// Standalone turn-log consumer. Deployments that run the API with an SQS
// queue can move persistence out of the API process entirely by running
// this binary against the same queue.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	queue := convlog.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TurnLogQueueURL)
	store := convlog.NewStore(pool, cfg.ConfidenceThreshold)
	writer := convlog.NewWriter(queue, store, metrics.NewPipelineMetrics(nil), logger, cfg.TurnLogWorkers)

	done := make(chan struct{})
	go func() {
		writer.Run(ctx)
		close(done)
	}()
	logger.Info("turn log worker started", "workers", cfg.TurnLogWorkers)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down turn log worker")
	cancel()

	select {
	case <-done:
		logger.Info("turn log worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("turn log worker shutdown timed out")
	}
}
