package main

import (
	"log/slog"
	"os"

	"github.com/spacesedan/sentiscope/config"
	"github.com/spacesedan/sentiscope/internal/clients"
	"github.com/spacesedan/sentiscope/internal/logging"
)

// download-models fetches the configured Hugging Face models into the model
// directory so the server can start without network access.
func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg, err := config.Load()
	logging.InitLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("[DownloadModels] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	failed := false
	for _, name := range []string{cfg.Hugot.GeneralModel, cfg.Hugot.AspectModel} {
		if name == "" {
			continue
		}
		path, err := clients.ResolveModelPath(cfg.Hugot.ModelDir, name, "")
		if err != nil {
			slog.Error("[DownloadModels] Failed to fetch model",
				slog.String("model", name),
				slog.String("error", err.Error()))
			failed = true
			continue
		}
		slog.Info("[DownloadModels] Model ready", slog.String("model", name), slog.String("path", path))
	}

	if failed {
		os.Exit(1)
	}
}
