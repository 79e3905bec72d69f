package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analyzer.yaml")
	yml := `
segmenter:
  max_units: 128
inference:
  general_backend: vader
  aspect_backend: none
  timeout: 5s
labels:
  general:
    LABEL_2: NEUTRAL
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ANALYZER_CONFIG_FILE", path)
	t.Setenv("MAX_BATCH_ITEMS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Segmenter.MaxUnits != 128 {
		t.Errorf("max units = %d, want 128", cfg.Segmenter.MaxUnits)
	}
	if cfg.Inference.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Inference.Timeout)
	}
	if cfg.Analyzer.MaxBatchItems != 10 {
		t.Errorf("max batch items = %d, want 10", cfg.Analyzer.MaxBatchItems)
	}
	if cfg.Labels.General["LABEL_2"] != "NEUTRAL" {
		t.Errorf("labels not loaded: %v", cfg.Labels.General)
	}
	// untouched keys keep their defaults
	if cfg.Port != "8000" {
		t.Errorf("port = %q, want 8000", cfg.Port)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("ANALYZER_CONFIG_FILE", "")
	t.Setenv("MAX_UNITS", "lots")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "MAX_UNITS") {
		t.Fatalf("expected MAX_UNITS parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"zero units", func(c *AppConfig) { c.Segmenter.MaxUnits = 0 }, "max units"},
		{"bad counter", func(c *AppConfig) { c.Segmenter.UnitCounter = "chars" }, "unit counter"},
		{"bad general", func(c *AppConfig) { c.Inference.GeneralBackend = "openai" }, "general backend"},
		{"openai without key", func(c *AppConfig) { c.Inference.AspectBackend = BACKEND_OPENAI }, "OPENAI_API_KEY"},
		{"remote without endpoint", func(c *AppConfig) { c.Inference.GeneralBackend = BACKEND_REMOTE }, "remote general endpoint"},
		{"cache without address", func(c *AppConfig) { c.Cache.Enabled = true }, "VALKEY_INIT_ADDRESS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
