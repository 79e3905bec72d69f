package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/spacesedan/sentiscope/internal/models"
)

const (
	HUGOT_GENERAL_PIPELINE = "generalSentimentPipeline"
	HUGOT_ASPECT_PIPELINE  = "aspectSentimentPipeline"
)

type HugotConfig struct {
	ModelDir            string
	GeneralModel        string
	GeneralModelPath    string
	GeneralOnnxFilename string
	AspectModel         string
	AspectModelPath     string
	AspectOnnxFilename  string
}

// HugotClient runs local transformer pipelines. Either pipeline may be nil
// when the corresponding backend is served elsewhere.
type HugotClient struct {
	session *hugot.Session
	general *pipelines.TextClassificationPipeline
	aspects *pipelines.TokenClassificationPipeline

	// pipelines are not safe for concurrent use
	mu sync.Mutex
}

func NewHugotClient(cfg HugotConfig, withGeneral, withAspects bool) (*HugotClient, error) {
	session, err := hugot.NewORTSession()
	if err != nil {
		return nil, fmt.Errorf("[HugotClient] failed to create session: %w", err)
	}

	client := &HugotClient{session: session}

	if withGeneral {
		modelPath, err := ResolveModelPath(cfg.ModelDir, cfg.GeneralModel, cfg.GeneralModelPath)
		if err != nil {
			client.Close()
			return nil, err
		}
		client.general, err = hugot.NewPipeline(session, hugot.TextClassificationConfig{
			ModelPath:    modelPath,
			Name:         HUGOT_GENERAL_PIPELINE,
			OnnxFilename: cfg.GeneralOnnxFilename,
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("[HugotClient] failed to create general pipeline: %w", err)
		}
		slog.Info("[HugotClient] General sentiment pipeline ready", slog.String("model", modelPath))
	}

	if withAspects {
		modelPath, err := ResolveModelPath(cfg.ModelDir, cfg.AspectModel, cfg.AspectModelPath)
		if err != nil {
			client.Close()
			return nil, err
		}
		client.aspects, err = hugot.NewPipeline(session, hugot.TokenClassificationConfig{
			ModelPath:    modelPath,
			Name:         HUGOT_ASPECT_PIPELINE,
			OnnxFilename: cfg.AspectOnnxFilename,
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("[HugotClient] failed to create aspect pipeline: %w", err)
		}
		slog.Info("[HugotClient] Aspect pipeline ready", slog.String("model", modelPath))
	}

	return client, nil
}

// ResolveModelPath prefers an explicit path and otherwise downloads the named
// model into modelDir when it is not there yet.
func ResolveModelPath(modelDir, modelName, explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("[HugotClient] model path %s: %w", explicitPath, err)
		}
		return explicitPath, nil
	}
	if modelName == "" {
		return "", errors.New("[HugotClient] neither a model name nor a model path is configured")
	}

	local := LocalModelPath(modelDir, modelName)
	if _, err := os.Stat(local); err == nil {
		slog.Info("[HugotClient] Using existing model", slog.String("path", local))
		return local, nil
	}

	return DownloadModel(modelDir, modelName)
}

// LocalModelPath mirrors hugot's download layout, which replaces the slash in
// the repository name with an underscore.
func LocalModelPath(modelDir, modelName string) string {
	return strings.TrimSuffix(modelDir, "/") + "/" + strings.ReplaceAll(modelName, "/", "_")
}

func DownloadModel(modelDir, modelName string) (string, error) {
	if err := os.MkdirAll(modelDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("[HugotClient] failed to create model directory: %w", err)
	}

	slog.Info("[HugotClient] Model not found, downloading...", slog.String("model", modelName))
	modelPath, err := hugot.DownloadModel(modelName, modelDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("[HugotClient] failed to download %s: %w", modelName, err)
	}
	slog.Info("[HugotClient] Model downloaded successfully", slog.String("path", modelPath))
	return modelPath, nil
}

func (h *HugotClient) ClassifyGeneral(ctx context.Context, segment string) (models.SegmentSentiment, error) {
	if h.general == nil {
		return models.SegmentSentiment{}, errors.New("general pipeline is not loaded")
	}

	var out *pipelines.TextClassificationOutput
	err := h.run(ctx, func() error {
		var runErr error
		out, runErr = h.general.RunPipeline([]string{segment})
		return runErr
	})
	if err != nil {
		return models.SegmentSentiment{}, err
	}

	if out == nil || len(out.ClassificationOutputs) == 0 || len(out.ClassificationOutputs[0]) == 0 {
		return models.SegmentSentiment{}, errors.New("general pipeline returned no classification")
	}

	best := out.ClassificationOutputs[0][0]
	for _, candidate := range out.ClassificationOutputs[0][1:] {
		if candidate.Score > best.Score {
			best = candidate
		}
	}

	return models.SegmentSentiment{Label: best.Label, Score: float64(best.Score)}, nil
}

func (h *HugotClient) ExtractAspects(ctx context.Context, segment string) ([]models.AspectSentiment, error) {
	if h.aspects == nil {
		return nil, errors.New("aspect pipeline is not loaded")
	}

	var out *pipelines.TokenClassificationOutput
	err := h.run(ctx, func() error {
		var runErr error
		out, runErr = h.aspects.RunPipeline([]string{segment})
		return runErr
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Entities) == 0 {
		return []models.AspectSentiment{}, nil
	}

	spans := make([]tokenSpan, 0, len(out.Entities[0]))
	for _, e := range out.Entities[0] {
		spans = append(spans, tokenSpan{Tag: e.Entity, Start: int(e.Start), End: int(e.End), Word: e.Word})
	}
	return MergeTokenSpans(segment, spans), nil
}

// run executes fn under the pipeline lock. RunPipeline takes no context, so
// a cancelled caller returns early and the pipeline call finishes on its own.
func (h *HugotClient) run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if ctx.Err() != nil {
			done <- ctx.Err()
			return
		}
		done <- fn()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (h *HugotClient) Close() {
	if h.session == nil {
		return
	}
	if err := h.session.Destroy(); err != nil {
		slog.Warn("[HugotClient] Failed to destroy session", slog.String("error", err.Error()))
	}
	h.session = nil
}

type tokenSpan struct {
	Tag   string
	Start int
	End   int
	Word  string
}

// MergeTokenSpans folds BIO tagged tokens into aspect/sentiment pairs. Tags
// look like "B-POS", "I-POS" or "O"; the part after the prefix is the raw
// sentiment label.
func MergeTokenSpans(segment string, spans []tokenSpan) []models.AspectSentiment {
	aspects := []models.AspectSentiment{}

	var (
		open      bool
		sentiment string
		start     int
		end       int
		words     []string
	)

	flush := func() {
		if !open {
			return
		}
		var text string
		if start >= 0 && end <= len(segment) && start < end {
			text = segment[start:end]
		} else {
			text = strings.Join(words, " ")
		}
		text = strings.TrimSpace(text)
		if text != "" {
			aspects = append(aspects, models.AspectSentiment{Aspect: text, Sentiment: sentiment})
		}
		open = false
		words = nil
	}

	for _, span := range spans {
		tag := strings.TrimSpace(span.Tag)
		if tag == "" || tag == "O" {
			flush()
			continue
		}

		prefix, label := "", tag
		if len(tag) > 2 && tag[1] == '-' {
			prefix, label = tag[:1], tag[2:]
		}

		if open && prefix != "B" && label == sentiment {
			end = span.End
			words = append(words, span.Word)
			continue
		}

		flush()
		open = true
		sentiment = label
		start, end = span.Start, span.End
		words = []string{span.Word}
	}
	flush()

	return aspects
}
