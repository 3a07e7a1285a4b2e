package indexing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/health-assistant/internal/infra/chunker"
	"github.com/yanqian/health-assistant/internal/infra/corpus"
	"github.com/yanqian/health-assistant/internal/infra/localmodel"
	"github.com/yanqian/health-assistant/internal/infra/vectorindex"
	apperrors "github.com/yanqian/health-assistant/pkg/errors"
	"github.com/yanqian/health-assistant/pkg/logger"
)

type failingEncoder struct{}

func (failingEncoder) Encode(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model server down")
}

func (failingEncoder) Dimension() int { return 4 }

func TestBuildProducesAlignedUnitVectors(t *testing.T) {
	passages := []string{"drink water", "sleep eight hours", "wash your hands", "eat vegetables"}
	builder := NewBuilder(localmodel.NewEncoder(32), nil, 3, logger.Discard())

	artifact, err := builder.Build(context.Background(), passages)
	require.NoError(t, err)
	require.False(t, artifact.Chunked)
	require.Equal(t, passages, artifact.Passages)
	require.Len(t, artifact.Vectors, len(passages))
	for _, vec := range artifact.Vectors {
		require.Len(t, vec, 32)
		var norm float64
		for _, x := range vec {
			norm += float64(x) * float64(x)
		}
		require.InDelta(t, 1, math.Sqrt(norm), 1e-5)
	}
}

func TestBuildWithChunkingRenumbers(t *testing.T) {
	passages := []string{"short", "one two three four five"}
	builder := NewBuilder(localmodel.NewEncoder(16), chunker.NewSimple(2, 0), 0, logger.Discard())

	artifact, err := builder.Build(context.Background(), passages)
	require.NoError(t, err)
	require.True(t, artifact.Chunked)
	require.Equal(t, []string{"short", "one two", "three four", "five"}, artifact.Passages)
	require.Len(t, artifact.Vectors, 4)
}

func TestBuildSurfacesEncoderFailure(t *testing.T) {
	builder := NewBuilder(failingEncoder{}, nil, 0, logger.Discard())

	_, err := builder.Build(context.Background(), []string{"x"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInference))
}

func TestVerify(t *testing.T) {
	index, err := vectorindex.NewFlat(2, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)

	require.NoError(t, Verify(index, corpus.NewStore([]string{"a", "b"}), 2))

	err = Verify(index, corpus.NewStore([]string{"a"}), 2)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))

	err = Verify(index, corpus.NewStore([]string{"a", "b"}), 3)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}
