package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spacesedan/sentiscope/config"
	"github.com/spacesedan/sentiscope/internal/backends"
	"github.com/spacesedan/sentiscope/internal/clients/kafka_client"
	"github.com/spacesedan/sentiscope/internal/logging"
	"github.com/spacesedan/sentiscope/internal/monitoring"
	"github.com/spacesedan/sentiscope/internal/server"
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

	stack, err := backends.Build(ctx, cfg)
	if err != nil {
		slog.Error("[Main] Failed to build inference stack", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer stack.Close()

	healthy := &atomic.Bool{}
	go monitoring.MonitorInferenceHealth(ctx, stack.Probe, healthy, cfg.Inference.HealthInterval)

	opts := []server.Option{
		server.WithHealth(healthy),
		server.WithMaxBatchItems(cfg.Analyzer.MaxBatchItems),
	}

	kafkaCfg := kafka_client.GetKafkaConfig()
	if kafkaCfg.Enabled {
		producer, err := kafka_client.NewProducer(kafkaCfg)
		if err != nil {
			slog.Error("[Main] Failed to create Kafka producer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer producer.Close()
		opts = append(opts, server.WithJobPublisher(producer))
	}

	srv := server.New(stack.Analyzer, opts...)
	if err := srv.Start(ctx, ":"+cfg.Port); err != nil {
		slog.Error("[Main] Server stopped with error", slog.String("error", err.Error()))
	}
}
