// Package backends wires configuration into a ready to use analyzer.
package backends

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spacesedan/sentiscope/config"
	"github.com/spacesedan/sentiscope/internal/chunking"
	"github.com/spacesedan/sentiscope/internal/clients"
	"github.com/spacesedan/sentiscope/internal/monitoring"
	"github.com/spacesedan/sentiscope/internal/pipeline"
	"github.com/spacesedan/sentiscope/internal/sentiment"
)

type Stack struct {
	Analyzer *pipeline.Analyzer
	Probe    monitoring.Probe
	// Valkey is nil unless the cache is enabled.
	Valkey  *clients.ValkeyClient
	closers []func()
}

func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Build creates every client the configuration asks for. On error anything
// already opened is closed again.
func Build(ctx context.Context, cfg config.AppConfig) (_ *Stack, err error) {
	stack := &Stack{}
	defer func() {
		if err != nil {
			stack.Close()
		}
	}()

	counter, err := chunking.NewUnitCounter(cfg.Segmenter.UnitCounter, cfg.Segmenter.TiktokenEncoding)
	if err != nil {
		return nil, err
	}
	segmenter := chunking.NewSegmenter(cfg.Segmenter.MaxUnits, counter)

	var hugotClient *clients.HugotClient
	needsHugot := cfg.Inference.GeneralBackend == config.BACKEND_HUGOT || cfg.Inference.AspectBackend == config.BACKEND_HUGOT
	if needsHugot {
		hugotClient, err = clients.NewHugotClient(hugotConfig(cfg.Hugot),
			cfg.Inference.GeneralBackend == config.BACKEND_HUGOT,
			cfg.Inference.AspectBackend == config.BACKEND_HUGOT)
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, hugotClient.Close)
	}

	var probes []monitoring.Probe
	var remote *clients.RemoteInferenceClient
	if cfg.Inference.GeneralBackend == config.BACKEND_REMOTE || cfg.Inference.AspectBackend == config.BACKEND_REMOTE {
		remote = clients.NewRemoteInferenceClient(clients.RemoteInferenceConfig{
			GeneralEndpoint: cfg.Remote.GeneralEndpoint,
			AspectEndpoint:  cfg.Remote.AspectEndpoint,
			HealthEndpoint:  cfg.Remote.HealthEndpoint,
			ClientID:        cfg.Remote.ClientID,
			ClientSecret:    cfg.Remote.ClientSecret,
			TokenURL:        cfg.Remote.TokenURL,
			Timeout:         cfg.Remote.Timeout,
			MaxRetries:      cfg.Remote.MaxRetries,
		})
		probes = append(probes, remote.HealthCheck)
	}

	general, err := newGeneralClassifier(cfg.Inference.GeneralBackend, hugotClient, remote)
	if err != nil {
		return nil, err
	}
	aspects, err := newAspectExtractor(cfg, hugotClient, remote)
	if err != nil {
		return nil, err
	}

	guard := sentiment.NewGuard(int64(cfg.Inference.Concurrency))
	opts := []sentiment.AdapterOption{
		sentiment.WithTimeout(cfg.Inference.Timeout),
		sentiment.WithLabelMaps(sentiment.DefaultLabelMaps().Merge(sentiment.LabelMaps{
			General: sentiment.LabelMap(cfg.Labels.General),
			Aspect:  sentiment.LabelMap(cfg.Labels.Aspect),
		})),
		sentiment.WithCacheScope(cacheScope(cfg)),
	}

	if cfg.Cache.Enabled {
		stack.Valkey, err = clients.InitValkey(clients.ValkeyConfig{
			Address:  cfg.Cache.Address,
			Password: cfg.Cache.Password,
			TLS:      cfg.Cache.TLS,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, clients.CloseValkey)
		opts = append(opts, sentiment.WithCache(stack.Valkey))
	}

	adapter := sentiment.NewAdapter(guard.General(general), guard.Aspects(aspects), opts...)

	stack.Analyzer = pipeline.NewAnalyzer(segmenter, adapter,
		pipeline.WithItemParallelism(cfg.Analyzer.ItemParallelism),
		pipeline.WithSegmentParallelism(cfg.Analyzer.SegmentParallelism))

	// Local backends have nothing to probe, so an empty set reports healthy.
	stack.Probe = monitoring.AllOf(probes...)

	slog.Info("[Backends] Inference stack ready",
		slog.String("general", cfg.Inference.GeneralBackend),
		slog.String("aspects", cfg.Inference.AspectBackend),
		slog.Int("max_units", cfg.Segmenter.MaxUnits),
		slog.String("unit_counter", cfg.Segmenter.UnitCounter),
		slog.Bool("cache", cfg.Cache.Enabled))

	return stack, nil
}

func newGeneralClassifier(backend string, hugotClient *clients.HugotClient, remote *clients.RemoteInferenceClient) (sentiment.GeneralClassifier, error) {
	switch backend {
	case config.BACKEND_HUGOT:
		return hugotClient, nil
	case config.BACKEND_VADER:
		return sentiment.NewVaderClassifier(), nil
	case config.BACKEND_REMOTE:
		return remote, nil
	default:
		return nil, fmt.Errorf("unknown general backend: %s", backend)
	}
}

func newAspectExtractor(cfg config.AppConfig, hugotClient *clients.HugotClient, remote *clients.RemoteInferenceClient) (sentiment.AspectExtractor, error) {
	switch cfg.Inference.AspectBackend {
	case config.BACKEND_HUGOT:
		return hugotClient, nil
	case config.BACKEND_OPENAI:
		return clients.NewOpenAIAspectClient(clients.OpenAIConfig{
			APIKey:            cfg.OpenAI.APIKey,
			Model:             cfg.OpenAI.Model,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
			Timeout:           cfg.OpenAI.Timeout,
		})
	case config.BACKEND_REMOTE:
		return remote, nil
	case config.BACKEND_NONE, "":
		return sentiment.NoAspects{}, nil
	default:
		return nil, fmt.Errorf("unknown aspect backend: %s", cfg.Inference.AspectBackend)
	}
}

// cacheScope identifies the models behind each capability, so switching a
// backend or model never serves results cached by the previous one.
func cacheScope(cfg config.AppConfig) string {
	general := cfg.Inference.GeneralBackend
	switch general {
	case config.BACKEND_HUGOT:
		general += ":" + cfg.Hugot.GeneralModel + ":" + cfg.Hugot.GeneralModelPath
	case config.BACKEND_REMOTE:
		general += ":" + cfg.Remote.GeneralEndpoint
	}

	aspects := cfg.Inference.AspectBackend
	switch aspects {
	case config.BACKEND_HUGOT:
		aspects += ":" + cfg.Hugot.AspectModel + ":" + cfg.Hugot.AspectModelPath
	case config.BACKEND_OPENAI:
		aspects += ":" + cfg.OpenAI.Model
	case config.BACKEND_REMOTE:
		aspects += ":" + cfg.Remote.AspectEndpoint
	}
	return general + "," + aspects
}

func hugotConfig(cfg config.HugotConfig) clients.HugotConfig {
	return clients.HugotConfig{
		ModelDir:            cfg.ModelDir,
		GeneralModel:        cfg.GeneralModel,
		GeneralModelPath:    cfg.GeneralModelPath,
		GeneralOnnxFilename: cfg.GeneralOnnxFilename,
		AspectModel:         cfg.AspectModel,
		AspectModelPath:     cfg.AspectModelPath,
		AspectOnnxFilename:  cfg.AspectOnnxFilename,
	}
}
