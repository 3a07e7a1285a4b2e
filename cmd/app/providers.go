package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/domain/reinforce"
	"github.com/yanqian/health-assistant/internal/infra/answercache"
	"github.com/yanqian/health-assistant/internal/infra/config"
	"github.com/yanqian/health-assistant/internal/infra/corpus"
	"github.com/yanqian/health-assistant/internal/infra/inference"
	"github.com/yanqian/health-assistant/internal/infra/localmodel"
	"github.com/yanqian/health-assistant/internal/infra/objectstore"
	"github.com/yanqian/health-assistant/internal/infra/queue"
	"github.com/yanqian/health-assistant/internal/infra/sessionrepo"
	"github.com/yanqian/health-assistant/internal/infra/tokenizer"
	"github.com/yanqian/health-assistant/internal/infra/vectorindex"
	"github.com/yanqian/health-assistant/internal/observability/metrics"
	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// conversationStore is implemented by every session repository.
type conversationStore interface {
	healthbot.SessionStore
	reinforce.SampleSource
}

func providePipelineConfig(cfg *config.Config) healthbot.Config {
	return healthbot.Config{
		TopK:            cfg.Pipeline.TopK,
		RerankThreshold: cfg.Pipeline.RerankThreshold,
		HistoryLimit:    cfg.Pipeline.HistoryLimit,
		CrisisLookback:  cfg.Pipeline.CrisisLookback,
		CrisisPhrases:   cfg.Pipeline.CrisisPhrases,
		MaxPromptTokens: cfg.Pipeline.MaxPromptTokens,
		StatelessReward: cfg.Pipeline.StatelessReward,
		Decode: healthbot.DecodeParams{
			MaxLength:         cfg.Generation.MaxLength,
			NumBeams:          cfg.Generation.NumBeams,
			NoRepeatNgramSize: cfg.Generation.NoRepeatNgramSize,
			LengthPenalty:     cfg.Generation.LengthPenalty,
			EarlyStopping:     cfg.Generation.EarlyStopping,
			DoSample:          false,
		},
		CacheTTL: cfg.Cache.TTL,
	}
}

func provideReinforceConfig(cfg *config.Config) reinforce.Config {
	return reinforce.Config{
		MinScore:      cfg.Reinforce.MinScore,
		Limit:         cfg.Reinforce.Limit,
		DatasetPrefix: cfg.Reinforce.DatasetPrefix,
		BaseModel:     cfg.Reinforce.BaseModel,
	}
}

func provideArtifactStore(cfg *config.Config, logger *slog.Logger) (objectstore.Store, error) {
	switch cfg.Artifacts.Source {
	case "s3":
		store, err := objectstore.NewS3Store(objectstore.S3Options{
			Endpoint:  cfg.Artifacts.S3.Endpoint,
			AccessKey: cfg.Artifacts.S3.AccessKey,
			SecretKey: cfg.Artifacts.S3.SecretKey,
			Bucket:    cfg.Artifacts.S3.Bucket,
			Region:    cfg.Artifacts.S3.Region,
		}, logger)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfiguration, "failed to initialize s3 artifacts", err)
		}
		logger.Info("s3 artifact store enabled", "bucket", cfg.Artifacts.S3.Bucket)
		return store, nil
	default:
		return objectstore.NewLocalStore(cfg.Artifacts.Root), nil
	}
}

func provideTokenizer(cfg *config.Config, logger *slog.Logger) healthbot.Tokenizer {
	if cfg.Tokenizer.Kind == "tiktoken" {
		tok, err := tokenizer.NewTiktoken(cfg.Tokenizer.Encoding)
		if err != nil {
			logger.Error("tiktoken unavailable, using whitespace tokenizer", "error", err)
			return tokenizer.NewWhitespace()
		}
		return tok
	}
	return tokenizer.NewWhitespace()
}

// provideModels loads the corpus and index and connects the inference
// backends. Any failure is fatal at startup.
func provideModels(cfg *config.Config, artifacts objectstore.Store, tok healthbot.Tokenizer, logger *slog.Logger) (healthbot.Models, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models := healthbot.Models{Tokenizer: tok}
	switch cfg.Inference.Provider {
	case "remote":
		client, err := inference.NewClient(inference.Options{
			BaseURL:      cfg.Inference.BaseURL,
			Timeout:      cfg.Inference.Timeout,
			EmbeddingDim: cfg.Inference.EmbeddingDim,
			Breaker: inference.BreakerSettings{
				Enabled:      cfg.Inference.Breaker.Enabled,
				MinRequests:  cfg.Inference.Breaker.MinRequests,
				FailureRatio: cfg.Inference.Breaker.FailureRatio,
				OpenTimeout:  cfg.Inference.Breaker.OpenTimeout,
				HalfOpenMax:  cfg.Inference.Breaker.HalfOpenMax,
			},
		}, logger)
		if err != nil {
			return healthbot.Models{}, nil, apperrors.Wrap(apperrors.CodeConfiguration, "failed to build inference client", err)
		}
		models.Encoder, models.CrossEncoder, models.Generator = client, client, client
		logger.Info("remote inference enabled", "base_url", cfg.Inference.BaseURL)
	default:
		models.Encoder = localmodel.NewEncoder(cfg.Inference.EmbeddingDim)
		models.CrossEncoder = localmodel.NewCrossEncoder()
		models.Generator = localmodel.NewGenerator()
		logger.Info("local inference enabled", "embedding_dim", cfg.Inference.EmbeddingDim)
	}

	passages, err := loadCorpus(ctx, artifacts, cfg.Corpus.Path)
	if err != nil {
		return healthbot.Models{}, nil, err
	}
	models.Passages = passages

	index, cleanup, err := openIndex(ctx, cfg, artifacts, logger)
	if err != nil {
		return healthbot.Models{}, nil, err
	}
	models.Index = index

	if err := healthbot.ValidateModels(models); err != nil {
		cleanup()
		return healthbot.Models{}, nil, err
	}
	logger.Info("models loaded", "passages", passages.Len(), "index_backend", cfg.Index.Backend, "dimension", index.Dimension())
	return models, cleanup, nil
}

func loadCorpus(ctx context.Context, artifacts objectstore.Store, key string) (*corpus.Store, error) {
	rc, err := artifacts.Get(ctx, key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, fmt.Sprintf("failed to open corpus %q", key), err)
	}
	defer rc.Close()
	store, err := corpus.Load(rc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "failed to load corpus", err)
	}
	return store, nil
}

func openIndex(ctx context.Context, cfg *config.Config, artifacts objectstore.Store, logger *slog.Logger) (healthbot.VectorIndex, func(), error) {
	noop := func() {}
	switch cfg.Index.Backend {
	case "pgvector":
		pgCfg := cfg.Index.Postgres
		if strings.TrimSpace(pgCfg.DSN) == "" {
			pgCfg = cfg.Storage.Postgres
		}
		pool, err := openPostgresPool(ctx, pgCfg)
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeConfiguration, "failed to connect pgvector index", err)
		}
		index, err := vectorindex.NewPGVector(ctx, pool, cfg.Index.Table, cfg.Inference.EmbeddingDim)
		if err != nil {
			pool.Close()
			return nil, nil, apperrors.Wrap(apperrors.CodeConfiguration, "failed to open pgvector index", err)
		}
		logger.Info("pgvector index enabled", "table", cfg.Index.Table, "rows", index.Len())
		return index, pool.Close, nil
	case "qdrant":
		index, err := vectorindex.NewQdrant(ctx, cfg.Index.Qdrant.Addr, cfg.Index.Qdrant.Collection, cfg.Inference.EmbeddingDim)
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeConfiguration, "failed to open qdrant index", err)
		}
		logger.Info("qdrant index enabled", "collection", cfg.Index.Qdrant.Collection, "points", index.Len())
		return index, func() { _ = index.Close() }, nil
	default:
		rc, err := artifacts.Get(ctx, cfg.Index.Path)
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeConfiguration, fmt.Sprintf("failed to open index %q", cfg.Index.Path), err)
		}
		defer rc.Close()
		index, err := vectorindex.ReadFlat(rc)
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.CodeConfiguration, "failed to load flat index", err)
		}
		return index, noop, nil
	}
}

func provideSessionStore(cfg *config.Config, logger *slog.Logger) (conversationStore, func()) {
	fallback := sessionrepo.NewMemoryStore()
	noop := func() {}
	switch cfg.Storage.Driver {
	case "postgres":
		if strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
			logger.Info("postgres dsn not set, using memory session store")
			return fallback, noop
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool, err := openPostgresPool(ctx, cfg.Storage.Postgres)
		if err != nil {
			logger.Error("postgres unavailable, using memory session store", "error", err)
			return fallback, noop
		}
		logger.Info("postgres session store enabled")
		return sessionrepo.NewPostgresStore(pool), pool.Close
	case "sqlite":
		if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Error("failed to create sqlite directory, using memory session store", "error", err)
				return fallback, noop
			}
		}
		store, err := sessionrepo.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			logger.Error("failed to open sqlite, using memory session store", "error", err)
			return fallback, noop
		}
		logger.Info("sqlite session store enabled", "path", cfg.Storage.SQLitePath)
		return store, func() { _ = store.Close() }
	default:
		return fallback, noop
	}
}

func provideConversationStore(store conversationStore) healthbot.SessionStore {
	return store
}

func provideSampleSource(store conversationStore) reinforce.SampleSource {
	return store
}

func openPostgresPool(ctx context.Context, pgCfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(strings.TrimSpace(pgCfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if pgCfg.MaxConns > 0 {
		poolConfig.MaxConns = pgCfg.MaxConns
	}
	if pgCfg.MinConns > 0 {
		poolConfig.MinConns = pgCfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// provideValkeyClient connects only when the cache or the job queue needs it.
// A nil client means Valkey is disabled or unreachable.
func provideValkeyClient(cfg *config.Config, logger *slog.Logger) (valkey.Client, func()) {
	noop := func() {}
	if !cfg.Cache.Enabled && cfg.Reinforce.Queue != "valkey" {
		return nil, noop
	}
	opt, err := buildValkeyOptions(cfg.Cache.Addr)
	if err != nil {
		logger.Error("invalid valkey configuration", "error", err)
		return nil, noop
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client", "error", err)
		return nil, noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed", "error", err)
		client.Close()
		return nil, noop
	}
	logger.Info("valkey connected", "addr", cfg.Cache.Addr)
	return client, client.Close
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}

func provideAnswerCache(cfg *config.Config, client valkey.Client, logger *slog.Logger) healthbot.AnswerCache {
	if !cfg.Cache.Enabled {
		return nil
	}
	if client == nil {
		logger.Info("valkey unavailable, using memory answer cache")
		return answercache.NewMemoryCache()
	}
	return answercache.NewValkeyCache(client, "")
}

func provideJobQueue(cfg *config.Config, client valkey.Client, logger *slog.Logger) (reinforce.JobQueue, func()) {
	noop := func() {}
	fallback := func() (reinforce.JobQueue, func()) {
		q := queue.NewImmediateQueue(logJob(logger))
		return q, noop
	}
	switch cfg.Reinforce.Queue {
	case "nats":
		q, err := queue.NewNATSQueue(cfg.Reinforce.NATSURL, cfg.Reinforce.Subject, queue.NATSOptions{}, logger)
		if err != nil {
			logger.Error("nats unavailable, jobs will only be logged", "error", err)
			return fallback()
		}
		if cfg.Reinforce.Consume {
			q.SetHandler(logJob(logger))
		}
		logger.Info("nats job queue enabled", "subject", cfg.Reinforce.Subject, "consume", cfg.Reinforce.Consume)
		return q, q.Close
	case "valkey":
		if client == nil {
			logger.Error("valkey unavailable, jobs will only be logged")
			return fallback()
		}
		q := queue.NewValkeyQueue(client, cfg.Reinforce.ValkeyKey, logger)
		if cfg.Reinforce.Consume {
			q.SetHandler(logJob(logger))
		}
		logger.Info("valkey job queue enabled", "key", cfg.Reinforce.ValkeyKey, "consume", cfg.Reinforce.Consume)
		return q, q.Close
	default:
		return fallback()
	}
}

// logJob stands in for the external training worker. It handles jobs when no
// broker is configured, or when reinforce.consume attaches it to a broker.
func logJob(logger *slog.Logger) queue.Handler {
	logger = logger.With("component", "queue.immediate")
	return func(_ context.Context, name string, payload map[string]any) {
		logger.Info("fine-tuning job received", "name", name, "job_id", payload["job_id"], "samples", payload["samples"])
	}
}

func provideDatasetStore(store objectstore.Store) reinforce.DatasetStore {
	return store
}

func provideRecorder(m *metrics.Metrics) healthbot.Recorder {
	return m
}

func provideScheduler(cfg *config.Config, svc *reinforce.Service, logger *slog.Logger) (*reinforce.Scheduler, error) {
	if cfg.Reinforce.Schedule == "" {
		return nil, nil
	}
	return reinforce.NewScheduler(cfg.Reinforce.Schedule, svc, logger)
}
