package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spacesedan/sentiscope/config"
	"github.com/spacesedan/sentiscope/internal/backends"
	"github.com/spacesedan/sentiscope/internal/logging"
	"github.com/spacesedan/sentiscope/internal/server"
)

// main builds the inference stack once per cold start and serves API
// Gateway proxy events through the same routes as the HTTP server.
func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg, err := config.Load()
	logging.InitLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("[Lambda] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	stack, err := backends.Build(context.Background(), cfg)
	if err != nil {
		slog.Error("[Lambda] Failed to build inference stack", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer stack.Close()

	srv := server.New(stack.Analyzer, server.WithMaxBatchItems(cfg.Analyzer.MaxBatchItems))

	slog.Info("[Lambda] Initialization complete", slog.String("environment", env))
	lambda.Start(NewProxyHandler(srv.Handler()))
}
