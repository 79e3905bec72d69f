package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spacesedan/sentiscope/internal/models"
	"golang.org/x/time/rate"
)

const OPENAI_ASPECT_PROMPT = `You extract aspect based sentiment from a short piece of text.

An aspect is a concrete thing the author talks about (a product feature, a
service, a person, a place). For every aspect mentioned in the text, decide
whether the author's sentiment toward it is positive, negative or neutral.

Rules:
- Use the aspect wording exactly as it appears in the text.
- Only report aspects that are actually present in the text.
- If there are no aspects, return an empty list.

Respond with JSON only, in this format:
{
  "aspects": [
    {"aspect": "battery life", "sentiment": "positive"}
  ]
}
`

type OpenAIConfig struct {
	APIKey            string
	Model             string
	RequestsPerSecond float64
	Timeout           time.Duration
}

type completionFunc func(ctx context.Context, system, user string) (string, error)

// OpenAIAspectClient extracts aspects with a chat model. Requests are paced
// by a token bucket so parallel segments do not trip the provider's limits.
type OpenAIAspectClient struct {
	complete completionFunc
	limiter  *rate.Limiter
}

func NewOpenAIAspectClient(cfg OpenAIConfig) (*OpenAIAspectClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("[OpenAIClient] missing OPENAI_API_KEY")
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	model := openai.ChatModel(cfg.Model)

	complete := func(ctx context.Context, system, user string) (string, error) {
		resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Temperature: openai.Float(0),
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("empty completion")
		}
		return resp.Choices[0].Message.Content, nil
	}

	slog.Info("[OpenAIClient] OpenAI aspect client initialized",
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return newOpenAIAspectClient(complete, cfg.RequestsPerSecond), nil
}

func newOpenAIAspectClient(complete completionFunc, rps float64) *OpenAIAspectClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &OpenAIAspectClient{
		complete: complete,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

func (o *OpenAIAspectClient) ExtractAspects(ctx context.Context, segment string) ([]models.AspectSentiment, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	raw, err := o.complete(ctx, OPENAI_ASPECT_PROMPT, segment)
	if err != nil {
		slog.Error("[OpenAIClient] Aspect request failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, err
	}

	aspects, err := ParseAspectResponse(raw)
	if err != nil {
		slog.Warn("[OpenAIClient] Could not parse aspect response",
			getPreview([]byte(raw)),
			slog.String("error", err.Error()))
		return nil, err
	}

	slog.Debug("[OpenAIClient] Aspects extracted",
		slog.Int("aspects", len(aspects)),
		slog.Duration("elapsed", time.Since(start)))
	return aspects, nil
}

type aspectResponse struct {
	Aspects []models.AspectSentiment `json:"aspects"`
}

func ParseAspectResponse(raw string) ([]models.AspectSentiment, error) {
	cleaned := cleanOpenAIResponse(raw)
	if !strings.HasPrefix(cleaned, "{") || !strings.HasSuffix(cleaned, "}") {
		return nil, fmt.Errorf("response is not a JSON object")
	}

	var out aspectResponse
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out.Aspects == nil {
		return []models.AspectSentiment{}, nil
	}
	return out.Aspects, nil
}

// cleanOpenAIResponse strips markdown code fences around a JSON payload.
func cleanOpenAIResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}

	return strings.TrimSpace(cleaned)
}

func getPreview(respBody []byte) slog.Attr {
	raw := string(respBody)
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return slog.String("raw_response", raw)
}
