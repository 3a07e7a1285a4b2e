package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/infra/config"
	"github.com/yanqian/health-assistant/internal/infra/inference"
	"github.com/yanqian/health-assistant/internal/infra/localmodel"
	"github.com/yanqian/health-assistant/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Build and check the passage index served by the health assistant",
	Long: `indexer embeds the corpus with the configured encoder and writes the
vector index the API searches. Settings come from the same configuration
file and environment variables as the API server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(), nil
}

func newEncoder(cfg *config.Config, log *slog.Logger) (healthbot.Encoder, error) {
	if cfg.Inference.Provider != "remote" {
		return localmodel.NewEncoder(cfg.Inference.EmbeddingDim), nil
	}
	client, err := inference.NewClient(inference.Options{
		BaseURL:      cfg.Inference.BaseURL,
		Timeout:      cfg.Inference.Timeout,
		EmbeddingDim: cfg.Inference.EmbeddingDim,
	}, log)
	if err != nil {
		return nil, err
	}
	return client, nil
}
