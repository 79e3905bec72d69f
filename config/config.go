package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BACKEND_HUGOT  = "hugot"
	BACKEND_VADER  = "vader"
	BACKEND_REMOTE = "remote"
	BACKEND_OPENAI = "openai"
	BACKEND_NONE   = "none"
)

type AppConfig struct {
	Env       string          `yaml:"-"`
	Port      string          `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Inference InferenceConfig `yaml:"inference"`
	Hugot     HugotConfig     `yaml:"hugot"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Remote    RemoteConfig    `yaml:"remote"`
	Cache     CacheConfig     `yaml:"cache"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Labels    LabelsConfig    `yaml:"labels"`
}

// SegmenterConfig sets the segment budget. The default unit is words, which
// only approximates a transformer's subword token count; "tiktoken" counts
// BPE tokens instead.
type SegmenterConfig struct {
	MaxUnits         int    `yaml:"max_units"`
	UnitCounter      string `yaml:"unit_counter"`
	TiktokenEncoding string `yaml:"tiktoken_encoding"`
}

type AnalyzerConfig struct {
	MaxBatchItems      int `yaml:"max_batch_items"`
	ItemParallelism    int `yaml:"item_parallelism"`
	SegmentParallelism int `yaml:"segment_parallelism"`
}

type InferenceConfig struct {
	GeneralBackend string        `yaml:"general_backend"`
	AspectBackend  string        `yaml:"aspect_backend"`
	Concurrency    int           `yaml:"concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

type HugotConfig struct {
	ModelDir            string `yaml:"model_dir"`
	GeneralModel        string `yaml:"general_model"`
	GeneralModelPath    string `yaml:"general_model_path"`
	GeneralOnnxFilename string `yaml:"general_onnx_filename"`
	AspectModel         string `yaml:"aspect_model"`
	AspectModelPath     string `yaml:"aspect_model_path"`
	AspectOnnxFilename  string `yaml:"aspect_onnx_filename"`
}

type OpenAIConfig struct {
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

type RemoteConfig struct {
	GeneralEndpoint string        `yaml:"general_endpoint"`
	AspectEndpoint  string        `yaml:"aspect_endpoint"`
	HealthEndpoint  string        `yaml:"health_endpoint"`
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	TokenURL        string        `yaml:"token_url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
}

type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	TLS      bool          `yaml:"tls"`
	TTL      time.Duration `yaml:"ttl"`
}

type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TableName   string `yaml:"table_name"`
	AWSRegion   string `yaml:"aws_region"`
	AWSEndpoint string `yaml:"aws_endpoint"`
}

// LabelsConfig extends the built in raw label translations.
type LabelsConfig struct {
	General map[string]string `yaml:"general"`
	Aspect  map[string]string `yaml:"aspect"`
}

func Default() AppConfig {
	return AppConfig{
		Env:      "dev",
		Port:     "8000",
		LogLevel: "info",
		Segmenter: SegmenterConfig{
			MaxUnits:    400,
			UnitCounter: "words",
		},
		Analyzer: AnalyzerConfig{
			MaxBatchItems:      500,
			ItemParallelism:    4,
			SegmentParallelism: 2,
		},
		Inference: InferenceConfig{
			GeneralBackend: BACKEND_HUGOT,
			AspectBackend:  BACKEND_HUGOT,
			Concurrency:    1,
			Timeout:        30 * time.Second,
			HealthInterval: 15 * time.Second,
		},
		Hugot: HugotConfig{
			ModelDir:     "./models",
			GeneralModel: "KnightsAnalytics/distilbert-base-uncased-finetuned-sst-2-english",
		},
		OpenAI: OpenAIConfig{
			Model:             "gpt-4o-mini",
			RequestsPerSecond: 2,
			Timeout:           60 * time.Second,
		},
		Remote: RemoteConfig{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Archive: ArchiveConfig{
			TableName: "AnalyzedItems",
			AWSRegion: "us-west-2",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// ANALYZER_CONFIG_FILE (if any) and finally environment variables.
func Load() (AppConfig, error) {
	cfg := Default()

	if path := os.Getenv("ANALYZER_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v == "true" || v == "1"
		}
	}

	str("APP_ENV", &cfg.Env)
	str("PORT", &cfg.Port)
	str("LOG_LEVEL", &cfg.LogLevel)

	num("MAX_UNITS", &cfg.Segmenter.MaxUnits)
	str("UNIT_COUNTER", &cfg.Segmenter.UnitCounter)
	str("TIKTOKEN_ENCODING", &cfg.Segmenter.TiktokenEncoding)

	num("MAX_BATCH_ITEMS", &cfg.Analyzer.MaxBatchItems)
	num("ITEM_PARALLELISM", &cfg.Analyzer.ItemParallelism)
	num("SEGMENT_PARALLELISM", &cfg.Analyzer.SegmentParallelism)

	str("GENERAL_BACKEND", &cfg.Inference.GeneralBackend)
	str("ASPECT_BACKEND", &cfg.Inference.AspectBackend)
	num("INFERENCE_CONCURRENCY", &cfg.Inference.Concurrency)
	dur("INFERENCE_TIMEOUT", &cfg.Inference.Timeout)
	dur("HEALTHCHECK_INTERVAL", &cfg.Inference.HealthInterval)

	str("HUGOT_MODEL_DIR", &cfg.Hugot.ModelDir)
	str("HUGOT_GENERAL_MODEL", &cfg.Hugot.GeneralModel)
	str("HUGOT_GENERAL_MODEL_PATH", &cfg.Hugot.GeneralModelPath)
	str("HUGOT_GENERAL_ONNX_FILENAME", &cfg.Hugot.GeneralOnnxFilename)
	str("HUGOT_ASPECT_MODEL", &cfg.Hugot.AspectModel)
	str("HUGOT_ASPECT_MODEL_PATH", &cfg.Hugot.AspectModelPath)
	str("HUGOT_ASPECT_ONNX_FILENAME", &cfg.Hugot.AspectOnnxFilename)

	str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("OPENAI_MODEL", &cfg.OpenAI.Model)
	float("OPENAI_REQUESTS_PER_SECOND", &cfg.OpenAI.RequestsPerSecond)
	dur("OPENAI_TIMEOUT", &cfg.OpenAI.Timeout)

	str("REMOTE_INFERENCE_GENERAL_ENDPOINT", &cfg.Remote.GeneralEndpoint)
	str("REMOTE_INFERENCE_ASPECT_ENDPOINT", &cfg.Remote.AspectEndpoint)
	str("REMOTE_INFERENCE_HEALTH_ENDPOINT", &cfg.Remote.HealthEndpoint)
	str("REMOTE_INFERENCE_CLIENT_ID", &cfg.Remote.ClientID)
	str("REMOTE_INFERENCE_CLIENT_SECRET", &cfg.Remote.ClientSecret)
	str("REMOTE_INFERENCE_TOKEN_URL", &cfg.Remote.TokenURL)
	dur("REMOTE_INFERENCE_TIMEOUT", &cfg.Remote.Timeout)
	num("REMOTE_INFERENCE_MAX_RETRIES", &cfg.Remote.MaxRetries)

	flag("CACHE_ENABLED", &cfg.Cache.Enabled)
	str("VALKEY_INIT_ADDRESS", &cfg.Cache.Address)
	str("VALKEY_PASSWORD", &cfg.Cache.Password)
	flag("VALKEY_TLS", &cfg.Cache.TLS)
	dur("CACHE_TTL", &cfg.Cache.TTL)

	flag("ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	str("ARCHIVE_TABLE_NAME", &cfg.Archive.TableName)
	str("AWS_REGION", &cfg.Archive.AWSRegion)
	str("AWS_ENDPOINT", &cfg.Archive.AWSEndpoint)

	return errors.Join(errs...)
}

func (c AppConfig) Validate() error {
	var errs []error

	if c.Segmenter.MaxUnits <= 0 {
		errs = append(errs, fmt.Errorf("max units must be positive, got %d", c.Segmenter.MaxUnits))
	}
	switch strings.ToLower(c.Segmenter.UnitCounter) {
	case "", "words", "tiktoken":
	default:
		errs = append(errs, fmt.Errorf("unknown unit counter %q", c.Segmenter.UnitCounter))
	}
	if c.Analyzer.MaxBatchItems <= 0 {
		errs = append(errs, fmt.Errorf("max batch items must be positive, got %d", c.Analyzer.MaxBatchItems))
	}
	if c.Analyzer.ItemParallelism <= 0 || c.Analyzer.SegmentParallelism <= 0 {
		errs = append(errs, errors.New("parallelism settings must be positive"))
	}
	if c.Inference.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("inference concurrency must be positive, got %d", c.Inference.Concurrency))
	}

	switch c.Inference.GeneralBackend {
	case BACKEND_HUGOT, BACKEND_VADER, BACKEND_REMOTE:
	default:
		errs = append(errs, fmt.Errorf("unknown general backend %q", c.Inference.GeneralBackend))
	}
	switch c.Inference.AspectBackend {
	case BACKEND_HUGOT, BACKEND_OPENAI, BACKEND_REMOTE, BACKEND_NONE:
	default:
		errs = append(errs, fmt.Errorf("unknown aspect backend %q", c.Inference.AspectBackend))
	}

	if c.Inference.AspectBackend == BACKEND_OPENAI && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai aspect backend"))
	}
	if c.Inference.GeneralBackend == BACKEND_REMOTE && c.Remote.GeneralEndpoint == "" {
		errs = append(errs, errors.New("remote general endpoint is required for the remote backend"))
	}
	if c.Inference.AspectBackend == BACKEND_REMOTE && c.Remote.AspectEndpoint == "" {
		errs = append(errs, errors.New("remote aspect endpoint is required for the remote backend"))
	}
	if c.Cache.Enabled && c.Cache.Address == "" {
		errs = append(errs, errors.New("VALKEY_INIT_ADDRESS is required when the cache is enabled"))
	}

	return errors.Join(errs...)
}
