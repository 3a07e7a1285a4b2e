package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanqian/health-assistant/internal/domain/indexing"
	"github.com/yanqian/health-assistant/internal/infra/corpus"
	"github.com/yanqian/health-assistant/internal/infra/vectorindex"
)

var (
	verifyCorpus string
	verifyIndex  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that a flat index and a corpus line up",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyCorpus, "corpus", "", "Corpus file (defaults to corpus.path)")
	verifyCmd.Flags().StringVar(&verifyIndex, "index", "", "Flat index file (defaults to index.path)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	cf, err := os.Open(firstNonEmpty(verifyCorpus, cfg.Corpus.Path))
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer cf.Close()
	store, err := corpus.Load(cf)
	if err != nil {
		return err
	}

	xf, err := os.Open(firstNonEmpty(verifyIndex, cfg.Index.Path))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer xf.Close()
	index, err := vectorindex.ReadFlat(xf)
	if err != nil {
		return err
	}

	if err := indexing.Verify(index, store, cfg.Inference.EmbeddingDim); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d passages, dimension %d\n", store.Len(), index.Dimension())
	return nil
}
