package clients

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spacesedan/sentiscope/internal/models"
	"github.com/valkey-io/valkey-go"
)

const (
	VALKEY_SEGMENT_PREFIX = "sentiscope:segment:"
	VALKEY_JOBS_KEY       = "sentiscope:processed_jobs"
	VALKEY_JOBS_TTL       = 24 * time.Hour
)

var (
	valkeyInstance *ValkeyClient
	valkeyOnce     sync.Once
)

type ValkeyConfig struct {
	Address  string
	Password string
	TLS      bool
	TTL      time.Duration
}

// ValkeyClient caches segment inferences and remembers which async jobs have
// already been analyzed.
type ValkeyClient struct {
	Client valkey.Client
	cfg    ValkeyConfig
	mu     sync.Mutex
}

func newValkey(cfg ValkeyConfig) (valkey.Client, error) {
	opts := valkey.ClientOption{
		InitAddress:      []string{cfg.Address},
		Password:         cfg.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", err)
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey", slog.String("address", cfg.Address))
	return client, nil
}

func InitValkey(cfg ValkeyConfig) (*ValkeyClient, error) {
	var initErr error
	valkeyOnce.Do(func() {
		client, err := newValkey(cfg)
		if err != nil {
			initErr = err
			return
		}
		valkeyInstance = &ValkeyClient{Client: client, cfg: cfg}
	})
	if initErr != nil {
		return nil, initErr
	}
	if valkeyInstance == nil {
		return nil, fmt.Errorf("[ValkeyClient] client failed to initialize earlier")
	}
	return valkeyInstance, nil
}

func CloseValkey() {
	if valkeyInstance != nil {
		valkeyInstance.Client.Close()
	}
}

func (vc *ValkeyClient) recreateClient() {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	slog.Warn("[ValkeyClient] Attempting to recreate Valkey client...")
	client, err := newValkey(vc.cfg)
	if err != nil {
		slog.Error("[ValkeyClient] Recreate failed", slog.String("error", err.Error()))
		return
	}
	vc.Client.Close()
	vc.Client = client
}

func (vc *ValkeyClient) client() valkey.Client {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.Client
}

// Get returns a cached inference for key. A miss is not an error.
func (vc *ValkeyClient) Get(ctx context.Context, key string) (models.SegmentInference, bool, error) {
	c := vc.client()
	res := vc.DoWithRetry(ctx, c.B().Get().Key(VALKEY_SEGMENT_PREFIX+key).Build(), 2)
	raw, err := res.ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return models.SegmentInference{}, false, nil
		}
		if isConnectionError(err) {
			vc.recreateClient()
		}
		return models.SegmentInference{}, false, err
	}

	var inference models.SegmentInference
	if err := json.Unmarshal([]byte(raw), &inference); err != nil {
		return models.SegmentInference{}, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return inference, true, nil
}

func (vc *ValkeyClient) Set(ctx context.Context, key string, value models.SegmentInference) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c := vc.client()
	fullKey := VALKEY_SEGMENT_PREFIX + key
	completed := []valkey.Completed{
		c.B().Set().Key(fullKey).Value(string(data)).Build(),
		c.B().Expire().Key(fullKey).Seconds(int64(vc.cfg.TTL.Seconds())).Build(),
	}

	for _, res := range vc.DoMultiWithRetry(ctx, completed, 2) {
		if err := res.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (vc *ValkeyClient) MarkJobProcessed(ctx context.Context, jobID string) error {
	c := vc.client()
	completed := []valkey.Completed{
		c.B().Sadd().Key(VALKEY_JOBS_KEY).Member(jobID).Build(),
		c.B().Expire().Key(VALKEY_JOBS_KEY).Seconds(int64(VALKEY_JOBS_TTL.Seconds())).Build(),
	}

	for _, res := range vc.DoMultiWithRetry(ctx, completed, 3) {
		if err := res.Error(); err != nil {
			return err
		}
	}

	slog.Debug("[ValkeyClient] Job marked as processed", slog.String("job_id", jobID))
	return nil
}

func (vc *ValkeyClient) IsJobProcessed(ctx context.Context, jobID string) bool {
	c := vc.client()
	res := vc.DoWithRetry(ctx, c.B().Sismember().Key(VALKEY_JOBS_KEY).Member(jobID).Build(), 3)

	if err := res.Error(); isConnectionError(err) {
		vc.recreateClient()
	}

	ok, err := res.AsBool()
	if err != nil {
		return false
	}
	return ok
}

func (vc *ValkeyClient) DoMultiWithRetry(ctx context.Context, completed []valkey.Completed, retries int) []valkey.ValkeyResult {
	var results []valkey.ValkeyResult

	for i := 0; i < retries; i++ {
		results = vc.client().DoMulti(ctx, completed...)
		hasErr := false
		for _, r := range results {
			if r.Error() != nil {
				hasErr = true
				slog.Warn("[ValkeyClient] Do Multi failed",
					slog.Int("attempt", i+1),
					slog.String("error", r.Error().Error()))
				if isConnectionError(r.Error()) {
					vc.recreateClient()
				}
				break
			}
		}
		if !hasErr || ctx.Err() != nil {
			break
		}
		time.Sleep(time.Millisecond * 250)
	}

	return results
}

func (vc *ValkeyClient) DoWithRetry(ctx context.Context, completed valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		result = vc.client().Do(ctx, completed)
		err := result.Error()
		if err == nil || valkey.IsValkeyNil(err) || ctx.Err() != nil {
			break
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))

		time.Sleep(250 * time.Millisecond)
	}

	return result
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
