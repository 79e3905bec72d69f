package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spacesedan/sentiscope/internal/models"
	"golang.org/x/oauth2/clientcredentials"
)

type RemoteInferenceConfig struct {
	GeneralEndpoint string
	AspectEndpoint  string
	HealthEndpoint  string
	ClientID        string
	ClientSecret    string
	TokenURL        string
	Timeout         time.Duration
	MaxRetries      int
}

type remoteRequest struct {
	Text string `json:"text"`
}

type remoteAspectResponse struct {
	Aspects []models.AspectSentiment `json:"aspects"`
}

// RemoteInferenceClient talks to hosted classifier endpoints. When OAuth2
// client credentials are configured every request carries a bearer token.
type RemoteInferenceClient struct {
	Client         *http.Client
	cfg            RemoteInferenceConfig
	initialBackoff time.Duration
}

func NewRemoteInferenceClient(cfg RemoteInferenceConfig) *RemoteInferenceClient {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = MAX_RETRIES
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		creds := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = creds.Client(context.Background())
		httpClient.Timeout = cfg.Timeout
	}

	slog.Info("[RemoteInferenceClient] Initializing Client",
		slog.Duration("timeout", cfg.Timeout),
		slog.Bool("oauth2", cfg.ClientID != ""))

	return &RemoteInferenceClient{
		Client:         httpClient,
		cfg:            cfg,
		initialBackoff: INITIAL_BACKOFF,
	}
}

func (r *RemoteInferenceClient) ClassifyGeneral(ctx context.Context, segment string) (models.SegmentSentiment, error) {
	var out models.SegmentSentiment
	if err := r.postJSON(ctx, r.cfg.GeneralEndpoint, remoteRequest{Text: segment}, &out); err != nil {
		return models.SegmentSentiment{}, err
	}
	return out, nil
}

func (r *RemoteInferenceClient) ExtractAspects(ctx context.Context, segment string) ([]models.AspectSentiment, error) {
	var out remoteAspectResponse
	if err := r.postJSON(ctx, r.cfg.AspectEndpoint, remoteRequest{Text: segment}, &out); err != nil {
		return nil, err
	}
	if out.Aspects == nil {
		return []models.AspectSentiment{}, nil
	}
	return out.Aspects, nil
}

// HealthCheck reports whether the health endpoint answers 200. Without a
// configured endpoint the service is assumed healthy.
func (r *RemoteInferenceClient) HealthCheck(ctx context.Context) bool {
	if r.cfg.HealthEndpoint == "" {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.HealthEndpoint, nil)
	if err != nil {
		return false
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		slog.Warn("[RemoteInferenceClient] Health check failed", slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// DoWithRetry retries transport errors and 5xx responses with exponential
// backoff. newReq is called once per attempt so the body is never reused.
func (r *RemoteInferenceClient) DoWithRetry(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	backoff := r.initialBackoff

	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}

		resp, err := r.Client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		lastErr = errors.New(errMsg(err, resp))
		if err != nil {
			lastErr = err
		}
		if resp != nil {
			resp.Body.Close()
		}

		slog.Warn("[RemoteInferenceClient] Request failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()))

		if attempt == r.cfg.MaxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > MAX_BACKOFF {
			backoff = MAX_BACKOFF
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", r.cfg.MaxRetries, lastErr)
}

func (r *RemoteInferenceClient) postJSON(ctx context.Context, endpoint string, input, output any) error {
	if endpoint == "" {
		return errors.New("remote endpoint is not configured")
	}

	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	resp, err := r.DoWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", USER_AGENT)
		return req, nil
	})
	if err != nil {
		slog.Error("[RemoteInferenceClient] Failed request after retries",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote inference returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, output); err != nil {
		slog.Error("[RemoteInferenceClient] Failed to unmarshal response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
			getPreview(respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func errMsg(err error, resp *http.Response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return fmt.Sprintf("status code %d", resp.StatusCode)
	}
	return "unknown error"
}
