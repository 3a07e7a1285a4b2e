package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/yanqian/health-assistant/internal/domain/indexing"
	"github.com/yanqian/health-assistant/internal/infra/chunker"
	"github.com/yanqian/health-assistant/internal/infra/config"
	"github.com/yanqian/health-assistant/internal/infra/corpus"
	"github.com/yanqian/health-assistant/internal/infra/vectorindex"
)

var (
	buildCorpus    string
	buildOut       string
	buildCorpusOut string
	buildBackend   string
	buildMaxTokens int
	buildOverlap   int
	buildBatch     int
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the corpus and write the vector index",
	Long: `build reads the corpus, optionally splits long passages, embeds every
passage and writes the index to the selected backend.

When --max-tokens is set the passages are renumbered, so the rewritten
corpus is written to --corpus-out next to the index.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildCorpus, "corpus", "", "Corpus file (defaults to corpus.path)")
	buildCmd.Flags().StringVar(&buildOut, "out", "", "Flat index output file (defaults to index.path)")
	buildCmd.Flags().StringVar(&buildCorpusOut, "corpus-out", "", "Where to write the chunked corpus")
	buildCmd.Flags().StringVar(&buildBackend, "backend", "", "Index backend: flat, pgvector or qdrant (defaults to index.backend)")
	buildCmd.Flags().IntVar(&buildMaxTokens, "max-tokens", 0, "Split passages longer than this many words")
	buildCmd.Flags().IntVar(&buildOverlap, "overlap", 0, "Words repeated between consecutive chunks")
	buildCmd.Flags().IntVar(&buildBatch, "batch", indexing.DefaultBatchSize, "Passages per encode call")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	corpusPath := firstNonEmpty(buildCorpus, cfg.Corpus.Path)
	backend := firstNonEmpty(buildBackend, cfg.Index.Backend)
	if buildMaxTokens > 0 && buildCorpusOut == "" {
		return fmt.Errorf("--corpus-out is required with --max-tokens")
	}

	f, err := os.Open(corpusPath)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	store, err := corpus.Load(f)
	f.Close()
	if err != nil {
		return err
	}

	encoder, err := newEncoder(cfg, log)
	if err != nil {
		return err
	}
	var splitter indexing.Splitter
	if buildMaxTokens > 0 {
		splitter = chunker.NewSimple(buildMaxTokens, buildOverlap)
	}
	passages := make([]string, store.Len())
	for i := range passages {
		passages[i], _ = store.Passage(i)
	}

	ctx := cmd.Context()
	start := time.Now()
	artifact, err := indexing.NewBuilder(encoder, splitter, buildBatch, log).Build(ctx, passages)
	if err != nil {
		return err
	}
	dim := encoder.Dimension()

	// Files are staged before any backend is touched and installed last.
	var files stagedFiles
	defer files.abort()
	if artifact.Chunked {
		if err := files.stage(buildCorpusOut, func(f *os.File) error {
			return corpus.Write(f, artifact.Passages)
		}); err != nil {
			return err
		}
	}

	switch backend {
	case "pgvector":
		err = writePGVector(ctx, cfg, dim, artifact.Vectors)
	case "qdrant":
		err = writeQdrant(ctx, cfg, dim, artifact.Vectors)
	default:
		err = files.stage(firstNonEmpty(buildOut, cfg.Index.Path), func(f *os.File) error {
			return vectorindex.WriteFlat(f, dim, artifact.Vectors)
		})
	}
	if err != nil {
		return err
	}
	if err := files.commit(); err != nil {
		return err
	}

	log.Info("index built",
		"backend", backend,
		"passages", len(artifact.Passages),
		"dimension", dim,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d passages (dim %d) into %s\n", len(artifact.Passages), dim, backend)
	return nil
}

func writePGVector(ctx context.Context, cfg *config.Config, dim int, rows [][]float32) error {
	dsn := firstNonEmpty(cfg.Index.Postgres.DSN, cfg.Storage.Postgres.DSN)
	if dsn == "" {
		return fmt.Errorf("pgvector backend needs index.postgres.dsn or POSTGRES_DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return vectorindex.ReplacePGVector(ctx, pool, cfg.Index.Table, dim, rows)
}

func writeQdrant(ctx context.Context, cfg *config.Config, dim int, rows [][]float32) error {
	q, err := vectorindex.DialQdrant(cfg.Index.Qdrant.Addr, cfg.Index.Qdrant.Collection, dim)
	if err != nil {
		return err
	}
	defer q.Close()
	return q.Replace(ctx, rows)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
