package healthbot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

func candidatesFor(texts ...string) []Candidate {
	out := make([]Candidate, len(texts))
	for i, text := range texts {
		out[i] = Candidate{Position: i, Text: text}
	}
	return out
}

func TestSelectorEmptyCandidates(t *testing.T) {
	cross := &tableCrossEncoder{}
	got, err := NewSelector(cross, DefaultRerankThreshold).Select(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Nil(t, got.Best)
	require.Zero(t, got.BestScore)
	require.Empty(t, got.Scores)
	require.False(t, got.Confident)
	require.Zero(t, cross.calls)
}

func TestSelectorPicksFirstArgmax(t *testing.T) {
	cross := &tableCrossEncoder{scores: map[string]float64{"a": 0.5, "b": 0.9, "c": 0.9}}
	selector := NewSelector(cross, DefaultRerankThreshold)

	first, err := selector.Select(context.Background(), "q", candidatesFor("a", "b", "c"))
	require.NoError(t, err)
	require.True(t, first.Confident)
	require.Equal(t, "b", *first.Best)
	require.Equal(t, 1, first.BestIndex)
	require.Equal(t, []float64{0.5, 0.9, 0.9}, first.Scores)

	second, err := selector.Select(context.Background(), "q", candidatesFor("a", "b", "c"))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSelectorBelowThresholdKeepsScore(t *testing.T) {
	cross := &tableCrossEncoder{scores: map[string]float64{"a": 0.2, "b": 0.84}}
	got, err := NewSelector(cross, DefaultRerankThreshold).Select(context.Background(), "q", candidatesFor("a", "b"))
	require.NoError(t, err)
	require.False(t, got.Confident)
	require.Nil(t, got.Best)
	require.Equal(t, 0.84, got.BestScore)
	require.Equal(t, 1, got.BestIndex)
}

func TestSelectorThresholdIsInclusive(t *testing.T) {
	cross := &tableCrossEncoder{scores: map[string]float64{"a": 0.85}}
	got, err := NewSelector(cross, 0.85).Select(context.Background(), "q", candidatesFor("a"))
	require.NoError(t, err)
	require.True(t, got.Confident)
}

func TestSelectorFailures(t *testing.T) {
	_, err := NewSelector(&tableCrossEncoder{err: errors.New("boom")}, 0.85).Select(context.Background(), "q", candidatesFor("a"))
	require.True(t, apperrors.IsCode(err, apperrors.CodeInference))

	short := crossEncoderFunc(func(context.Context, []Pair) ([]float64, error) { return []float64{0.9}, nil })
	_, err = NewSelector(short, 0.85).Select(context.Background(), "q", candidatesFor("a", "b"))
	require.True(t, apperrors.IsCode(err, apperrors.CodeInference))
}

type crossEncoderFunc func(ctx context.Context, pairs []Pair) ([]float64, error)

func (f crossEncoderFunc) Score(ctx context.Context, pairs []Pair) ([]float64, error) {
	return f(ctx, pairs)
}
