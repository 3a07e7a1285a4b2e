package indexing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// DefaultBatchSize bounds the number of passages sent per encode call.
const DefaultBatchSize = 64

// Splitter rewrites passages into smaller ones, preserving order.
type Splitter interface {
	Split(passages []string) []string
}

// Artifact is an aligned pair of passages and their unit-length embeddings.
// Row i of Vectors embeds Passages[i].
type Artifact struct {
	Passages []string
	Vectors  [][]float32
	Chunked  bool
}

// Builder encodes a corpus into index rows.
type Builder struct {
	encoder   healthbot.Encoder
	splitter  Splitter
	batchSize int
	logger    *slog.Logger
}

// NewBuilder constructs a Builder. splitter may be nil.
func NewBuilder(encoder healthbot.Encoder, splitter Splitter, batchSize int, logger *slog.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Builder{
		encoder:   encoder,
		splitter:  splitter,
		batchSize: batchSize,
		logger:    logger.With("component", "indexing.builder"),
	}
}

// Build embeds every passage. Both halves of the artifact come from the same
// ordered slice so positions always line up.
func (b *Builder) Build(ctx context.Context, passages []string) (Artifact, error) {
	artifact := Artifact{Passages: passages}
	if b.splitter != nil {
		artifact.Passages = b.splitter.Split(passages)
		artifact.Chunked = true
		b.logger.Info("corpus chunked", "before", len(passages), "after", len(artifact.Passages))
	}

	dim := b.encoder.Dimension()
	artifact.Vectors = make([][]float32, 0, len(artifact.Passages))
	for start := 0; start < len(artifact.Passages); start += b.batchSize {
		end := min(start+b.batchSize, len(artifact.Passages))
		vectors, err := b.encoder.Encode(ctx, artifact.Passages[start:end])
		if err != nil {
			return Artifact{}, apperrors.Wrap(apperrors.CodeInference, fmt.Sprintf("failed to encode passages %d-%d", start, end-1), err)
		}
		if len(vectors) != end-start {
			return Artifact{}, apperrors.Wrap(apperrors.CodeInference,
				fmt.Sprintf("encoder returned %d vectors for %d passages", len(vectors), end-start), nil)
		}
		for i, vec := range vectors {
			if dim > 0 && len(vec) != dim {
				return Artifact{}, apperrors.Wrap(apperrors.CodeInference,
					fmt.Sprintf("passage %d: embedding dimension %d, expected %d", start+i, len(vec), dim), nil)
			}
			artifact.Vectors = append(artifact.Vectors, healthbot.Normalize(vec))
		}
		b.logger.Debug("batch encoded", "from", start, "to", end)
	}
	return artifact, nil
}

// Verify checks that an index and a corpus can be served together.
func Verify(index healthbot.VectorIndex, passages healthbot.PassageStore, encoderDim int) error {
	if index.Len() != passages.Len() {
		return apperrors.Wrap(apperrors.CodeConfiguration,
			fmt.Sprintf("index has %d rows but corpus has %d passages", index.Len(), passages.Len()), nil)
	}
	if encoderDim > 0 && index.Dimension() > 0 && encoderDim != index.Dimension() {
		return apperrors.Wrap(apperrors.CodeConfiguration,
			fmt.Sprintf("index dimension %d does not match encoder dimension %d", index.Dimension(), encoderDim), nil)
	}
	return nil
}
