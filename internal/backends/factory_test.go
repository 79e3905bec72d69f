package backends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spacesedan/sentiscope/config"
	"github.com/spacesedan/sentiscope/internal/models"
)

func TestBuildVaderStack(t *testing.T) {
	cfg := config.Default()
	cfg.Inference.GeneralBackend = config.BACKEND_VADER
	cfg.Inference.AspectBackend = config.BACKEND_NONE

	stack, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer stack.Close()

	if !stack.Probe(context.Background()) {
		t.Fatal("local backends should always report healthy")
	}

	results, err := stack.Analyzer.AnalyzeBatch(context.Background(), []models.InputItem{
		{ID: "1", Text: "I love this. It is wonderful."},
		{ID: "2", Text: ""},
	})
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].GeneralSentiment.Label != models.LabelPositive {
		t.Errorf("label = %q, want POSITIVE", results[0].GeneralSentiment.Label)
	}
	if results[0].AspectSentiment == nil || len(results[0].AspectSentiment) != 0 {
		t.Errorf("expected empty aspect list, got %#v", results[0].AspectSentiment)
	}
}

func TestBuildRemoteStackUsesHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`{"label":"LABEL_1","score":0.8}`))
		}
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Inference.GeneralBackend = config.BACKEND_REMOTE
	cfg.Inference.AspectBackend = config.BACKEND_NONE
	cfg.Remote.GeneralEndpoint = srv.URL + "/general"
	cfg.Remote.HealthEndpoint = srv.URL + "/health"

	stack, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer stack.Close()

	if stack.Probe(context.Background()) {
		t.Fatal("probe should reflect the remote health endpoint")
	}

	results, err := stack.Analyzer.AnalyzeBatch(context.Background(), []models.InputItem{{ID: "x", Text: "Good."}})
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if got := results[0].GeneralSentiment; got.Label != models.LabelPositive || got.Score != 0.8 {
		t.Fatalf("unexpected general sentiment %+v", got)
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Inference.GeneralBackend = "magic"
	cfg.Inference.AspectBackend = config.BACKEND_NONE

	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestCacheScopeChangesWithModels(t *testing.T) {
	base := config.Default()

	tests := []struct {
		name   string
		mutate func(*config.AppConfig)
	}{
		{"general backend", func(c *config.AppConfig) { c.Inference.GeneralBackend = config.BACKEND_VADER }},
		{"general model", func(c *config.AppConfig) { c.Hugot.GeneralModel = "other/model" }},
		{"aspect backend", func(c *config.AppConfig) { c.Inference.AspectBackend = config.BACKEND_NONE }},
		{"openai model", func(c *config.AppConfig) {
			c.Inference.AspectBackend = config.BACKEND_OPENAI
			c.OpenAI.Model = "gpt-4o"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if cacheScope(cfg) == cacheScope(base) {
				t.Fatalf("scope %q did not change", cacheScope(cfg))
			}
		})
	}
}
