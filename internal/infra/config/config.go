package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Generation GenerationConfig `yaml:"generation"`
	Inference  InferenceConfig  `yaml:"inference"`
	Index      IndexConfig      `yaml:"index"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Reinforce  ReinforceConfig  `yaml:"reinforce"`
	Tokenizer  TokenizerConfig  `yaml:"tokenizer"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string          `yaml:"address"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
	CORSOrigins  []string        `yaml:"corsOrigins"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// PipelineConfig tunes retrieval, gating and conversation memory.
type PipelineConfig struct {
	TopK            int      `yaml:"topK"`
	RerankThreshold float64  `yaml:"rerankThreshold"`
	HistoryLimit    int      `yaml:"historyLimit"`
	CrisisLookback  int      `yaml:"crisisLookback"`
	CrisisPhrases   []string `yaml:"crisisPhrases"`
	MaxPromptTokens int      `yaml:"maxPromptTokens"`
	StatelessReward bool     `yaml:"statelessReward"`
}

// GenerationConfig holds the beam search parameters.
type GenerationConfig struct {
	MaxLength         int     `yaml:"maxLength"`
	NumBeams          int     `yaml:"numBeams"`
	NoRepeatNgramSize int     `yaml:"noRepeatNgramSize"`
	LengthPenalty     float64 `yaml:"lengthPenalty"`
	EarlyStopping     bool    `yaml:"earlyStopping"`
}

// InferenceConfig selects and configures the model backend.
type InferenceConfig struct {
	Provider     string        `yaml:"provider"`
	BaseURL      string        `yaml:"baseUrl"`
	Timeout      time.Duration `yaml:"timeout"`
	EmbeddingDim int           `yaml:"embeddingDim"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breakers around model calls.
type BreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MinRequests  uint32        `yaml:"minRequests"`
	FailureRatio float64       `yaml:"failureRatio"`
	OpenTimeout  time.Duration `yaml:"openTimeout"`
	HalfOpenMax  uint32        `yaml:"halfOpenMax"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend  string         `yaml:"backend"`
	Path     string         `yaml:"path"`
	Table    string         `yaml:"table"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// QdrantConfig contains the gRPC endpoint of a Qdrant deployment.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// CorpusConfig locates the passage file.
type CorpusConfig struct {
	Path string `yaml:"path"`
}

// ArtifactsConfig locates corpus and index files.
type ArtifactsConfig struct {
	Source string   `yaml:"source"`
	Root   string   `yaml:"root"`
	S3     S3Config `yaml:"s3"`
}

// S3Config contains S3-compatible object storage settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// StorageConfig selects the session store.
type StorageConfig struct {
	Driver     string         `yaml:"driver"`
	SQLitePath string         `yaml:"sqlitePath"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// CacheConfig controls the generation cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	TTL     time.Duration `yaml:"ttl"`
}

// ReinforceConfig drives fine-tuning dataset export.
type ReinforceConfig struct {
	MinScore      float64 `yaml:"minScore"`
	Limit         int     `yaml:"limit"`
	BaseModel     string  `yaml:"baseModel"`
	DatasetPrefix string  `yaml:"datasetPrefix"`
	Queue         string  `yaml:"queue"`
	NATSURL       string  `yaml:"natsUrl"`
	Subject       string  `yaml:"subject"`
	ValkeyKey     string  `yaml:"valkeyKey"`
	Consume       bool    `yaml:"consume"`
	Schedule      string  `yaml:"schedule"`
}

// TokenizerConfig selects the prompt tokenizer.
type TokenizerConfig struct {
	Kind     string `yaml:"kind"`
	Encoding string `yaml:"encoding"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTP.Address, "HTTP_ADDRESS")
	setBool(&cfg.HTTP.RateLimit.Enabled, "HTTP_RATE_LIMIT_ENABLED")
	setInt(&cfg.HTTP.RateLimit.RequestsPerMinute, "HTTP_RATE_LIMIT_RPM")
	setInt(&cfg.HTTP.RateLimit.Burst, "HTTP_RATE_LIMIT_BURST")
	if v := os.Getenv("HTTP_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}

	setInt(&cfg.Pipeline.TopK, "PIPELINE_TOP_K")
	setFloat(&cfg.Pipeline.RerankThreshold, "PIPELINE_RERANK_THRESHOLD")
	setInt(&cfg.Pipeline.HistoryLimit, "PIPELINE_HISTORY_LIMIT")
	setBool(&cfg.Pipeline.StatelessReward, "PIPELINE_STATELESS_REWARD")

	setString(&cfg.Inference.Provider, "INFERENCE_PROVIDER")
	setString(&cfg.Inference.BaseURL, "INFERENCE_BASE_URL")
	setDuration(&cfg.Inference.Timeout, "INFERENCE_TIMEOUT")
	setInt(&cfg.Inference.EmbeddingDim, "INFERENCE_EMBEDDING_DIM")

	setString(&cfg.Index.Backend, "INDEX_BACKEND")
	setString(&cfg.Index.Path, "INDEX_PATH")
	setString(&cfg.Index.Qdrant.Addr, "QDRANT_ADDR")
	setString(&cfg.Index.Qdrant.Collection, "QDRANT_COLLECTION")
	setString(&cfg.Index.Postgres.DSN, "INDEX_POSTGRES_DSN")
	setString(&cfg.Corpus.Path, "CORPUS_PATH")

	setString(&cfg.Artifacts.Source, "ARTIFACTS_SOURCE")
	setString(&cfg.Artifacts.Root, "ARTIFACTS_ROOT")
	setString(&cfg.Artifacts.S3.Endpoint, "S3_ENDPOINT")
	setString(&cfg.Artifacts.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.Artifacts.S3.SecretKey, "S3_SECRET_KEY")
	setString(&cfg.Artifacts.S3.Bucket, "S3_BUCKET")
	setString(&cfg.Artifacts.S3.Region, "S3_REGION")

	setString(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setString(&cfg.Storage.SQLitePath, "STORAGE_SQLITE_PATH")
	setString(&cfg.Storage.Postgres.DSN, "POSTGRES_DSN")
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Postgres.MaxConns = int32(parsed)
		}
	}

	setBool(&cfg.Cache.Enabled, "CACHE_ENABLED")
	setString(&cfg.Cache.Addr, "VALKEY_ADDR")
	setDuration(&cfg.Cache.TTL, "CACHE_TTL")

	setFloat(&cfg.Reinforce.MinScore, "REINFORCE_MIN_SCORE")
	setString(&cfg.Reinforce.Queue, "REINFORCE_QUEUE")
	setString(&cfg.Reinforce.NATSURL, "NATS_URL")
	setString(&cfg.Reinforce.Subject, "REINFORCE_SUBJECT")
	setBool(&cfg.Reinforce.Consume, "REINFORCE_CONSUME")
	setString(&cfg.Reinforce.Schedule, "REINFORCE_SCHEDULE")

	setString(&cfg.Tokenizer.Kind, "TOKENIZER_KIND")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
		},
		Pipeline: PipelineConfig{
			TopK:            50,
			RerankThreshold: 0.85,
			HistoryLimit:    500,
			CrisisLookback:  3,
			MaxPromptTokens: 512,
		},
		Generation: GenerationConfig{
			MaxLength:         500,
			NumBeams:          16,
			NoRepeatNgramSize: 14,
			LengthPenalty:     0.2,
			EarlyStopping:     true,
		},
		Inference: InferenceConfig{
			Provider:     "local",
			Timeout:      90 * time.Second,
			EmbeddingDim: 384,
			Breaker: BreakerConfig{
				Enabled:      true,
				MinRequests:  5,
				FailureRatio: 0.6,
				OpenTimeout:  30 * time.Second,
				HalfOpenMax:  1,
			},
		},
		Index: IndexConfig{
			Backend: "flat",
			Path:    "data/index.hbix",
			Table:   "passage_embeddings",
			Qdrant: QdrantConfig{
				Collection: "health_passages",
			},
		},
		Corpus: CorpusConfig{
			Path: "data/corpus.jsonl",
		},
		Artifacts: ArtifactsConfig{
			Source: "fs",
			Root:   ".",
		},
		Storage: StorageConfig{
			Driver:     "memory",
			SQLitePath: "data/chat.db",
			Postgres: PostgresConfig{
				MaxConns: 4,
			},
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Reinforce: ReinforceConfig{
			MinScore:      0.5,
			Limit:         1000,
			BaseModel:     "flan-t5-health",
			DatasetPrefix: "datasets/reinforce",
			Queue:         "none",
			Subject:       "healthbot.reinforce",
			ValkeyKey:     "healthbot:reinforce:jobs",
		},
		Tokenizer: TokenizerConfig{
			Kind:     "whitespace",
			Encoding: "cl100k_base",
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.Pipeline.TopK < 0 {
		return errors.New("pipeline.topK cannot be negative")
	}
	if c.Pipeline.RerankThreshold < 0 || c.Pipeline.RerankThreshold > 1 {
		return errors.New("pipeline.rerankThreshold must be within [0, 1]")
	}
	if c.Pipeline.MaxPromptTokens <= 0 {
		return errors.New("pipeline.maxPromptTokens must be positive")
	}
	if c.Pipeline.CrisisLookback < 0 {
		return errors.New("pipeline.crisisLookback cannot be negative")
	}
	if c.Generation.MaxLength <= 0 || c.Generation.NumBeams <= 0 {
		return errors.New("generation.maxLength and generation.numBeams must be positive")
	}
	switch c.Inference.Provider {
	case "local":
	case "remote":
		if strings.TrimSpace(c.Inference.BaseURL) == "" {
			return errors.New("inference.baseUrl cannot be empty for the remote provider")
		}
	default:
		return fmt.Errorf("inference.provider %q is not supported", c.Inference.Provider)
	}
	if c.Inference.EmbeddingDim <= 0 {
		return errors.New("inference.embeddingDim must be positive")
	}
	switch c.Index.Backend {
	case "flat":
		if strings.TrimSpace(c.Index.Path) == "" {
			return errors.New("index.path cannot be empty for the flat backend")
		}
	case "pgvector":
		if strings.TrimSpace(c.Index.Postgres.DSN) == "" && strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			return errors.New("index.postgres.dsn or storage.postgres.dsn is required for the pgvector backend")
		}
	case "qdrant":
		if strings.TrimSpace(c.Index.Qdrant.Addr) == "" {
			return errors.New("index.qdrant.addr cannot be empty for the qdrant backend")
		}
	default:
		return fmt.Errorf("index.backend %q is not supported", c.Index.Backend)
	}
	if strings.TrimSpace(c.Corpus.Path) == "" {
		return errors.New("corpus.path cannot be empty")
	}
	switch c.Artifacts.Source {
	case "fs":
	case "s3":
		if c.Artifacts.S3.Endpoint == "" || c.Artifacts.S3.Bucket == "" {
			return errors.New("artifacts.s3.endpoint and artifacts.s3.bucket are required for the s3 source")
		}
	default:
		return fmt.Errorf("artifacts.source %q is not supported", c.Artifacts.Source)
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return errors.New("storage.sqlitePath cannot be empty for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			return errors.New("storage.postgres.dsn cannot be empty for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Addr) == "" {
		return errors.New("cache.addr cannot be empty when the answer cache is enabled")
	}
	switch c.Reinforce.Queue {
	case "none":
	case "nats":
		if strings.TrimSpace(c.Reinforce.NATSURL) == "" {
			return errors.New("reinforce.natsUrl cannot be empty for the nats queue")
		}
	case "valkey":
		if strings.TrimSpace(c.Cache.Addr) == "" {
			return errors.New("cache.addr is required for the valkey reinforce queue")
		}
	default:
		return fmt.Errorf("reinforce.queue %q is not supported", c.Reinforce.Queue)
	}
	if c.Reinforce.Schedule != "" {
		if _, err := cron.ParseStandard(c.Reinforce.Schedule); err != nil {
			return fmt.Errorf("reinforce.schedule: %w", err)
		}
	}
	switch c.Tokenizer.Kind {
	case "whitespace", "tiktoken":
	default:
		return fmt.Errorf("tokenizer.kind %q is not supported", c.Tokenizer.Kind)
	}
	return nil
}
