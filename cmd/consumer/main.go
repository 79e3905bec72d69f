package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spacesedan/sentiscope/config"
	"github.com/spacesedan/sentiscope/internal/backends"
	"github.com/spacesedan/sentiscope/internal/clients"
	"github.com/spacesedan/sentiscope/internal/clients/kafka_client"
	"github.com/spacesedan/sentiscope/internal/consumers"
	"github.com/spacesedan/sentiscope/internal/db"
	"github.com/spacesedan/sentiscope/internal/logging"
	"github.com/spacesedan/sentiscope/internal/monitoring"
	"github.com/spacesedan/sentiscope/internal/utils"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg, err := config.Load()
	logging.InitLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("[Main] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kafkaCfg := kafka_client.GetKafkaConfig()

	switch kafkaCfg.Topic {
	case kafka_client.KAFKA_TOPIC_ANALYZE_REQUESTS:
		cleanup := registerAnalyzeRequests(ctx, cfg, kafkaCfg)
		defer cleanup()
	case kafka_client.KAFKA_TOPIC_ANALYZE_RESULTS:
		registerResultsArchive(ctx, cfg)
	}

	if err := kafka_client.StartConsumer(ctx, kafkaCfg); err != nil {
		slog.Error("[Main] Failed to start consumer",
			slog.String("error", err.Error()))
	}
}

func registerAnalyzeRequests(ctx context.Context, cfg config.AppConfig, kafkaCfg kafka_client.KafkaConfig) func() {
	stack, err := backends.Build(ctx, cfg)
	if err != nil {
		slog.Error("[Main] Failed to build inference stack", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var producer *kafka_client.Producer
	for {
		producer, err = kafka_client.NewProducer(kafkaCfg)
		if err == nil {
			break
		}
		slog.Warn("[Main] Kafka init failed, retrying...", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			stack.Close()
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}

	healthy := &atomic.Bool{}
	go monitoring.MonitorInferenceHealth(ctx, stack.Probe, healthy, cfg.Inference.HealthInterval)

	var tracker consumers.JobTracker
	if stack.Valkey != nil {
		tracker = stack.Valkey
	}

	processor := consumers.NewJobProcessor(stack.Analyzer, producer, tracker, cfg.Analyzer.MaxBatchItems)
	kafka_client.RegisterConsumer(kafka_client.KAFKA_TOPIC_ANALYZE_REQUESTS,
		consumers.WrapConsumer(consumers.StartAnalyzeRequestConsumer(processor)).WithHealthCheck(healthy).Handler())

	return func() {
		producer.Close()
		stack.Close()
	}
}

func registerResultsArchive(ctx context.Context, cfg config.AppConfig) {
	if !cfg.Archive.Enabled {
		slog.Error("[Main] ARCHIVE_ENABLED must be true to consume analyze results")
		os.Exit(1)
	}

	dynamo, err := clients.NewDynamoDBClient(ctx, clients.AWSConfig{
		Region:   cfg.Archive.AWSRegion,
		Endpoint: cfg.Archive.AWSEndpoint,
	})
	if err != nil {
		slog.Error("[Main] Failed to create DynamoDB client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	archiver := consumers.NewResultsArchiver(db.NewResultArchive(dynamo, cfg.Archive.TableName), utils.BATCH_SIZE)
	kafka_client.RegisterConsumer(kafka_client.KAFKA_TOPIC_ANALYZE_RESULTS, consumers.StartResultsArchiveConsumer(archiver))
}
