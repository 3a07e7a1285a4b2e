package healthbot

import (
	"context"
	"fmt"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// DefaultRerankThreshold is the minimum cross-encoder score trusted for generation.
const DefaultRerankThreshold = 0.85

// Selector reranks candidates and makes the confidence decision.
type Selector struct {
	crossEncoder CrossEncoder
	threshold    float64
}

// NewSelector constructs a Selector.
func NewSelector(crossEncoder CrossEncoder, threshold float64) *Selector {
	return &Selector{crossEncoder: crossEncoder, threshold: threshold}
}

// Select scores every candidate and keeps the first argmax. The best score and
// all scores are returned even when the result is not confident.
func (s *Selector) Select(ctx context.Context, question string, candidates []Candidate) (RerankResult, error) {
	if len(candidates) == 0 {
		return RerankResult{BestIndex: -1, Scores: []float64{}}, nil
	}
	pairs := make([]Pair, len(candidates))
	for i, c := range candidates {
		pairs[i] = Pair{Query: question, Passage: c.Text}
	}
	scores, err := s.crossEncoder.Score(ctx, pairs)
	if err != nil {
		return RerankResult{}, apperrors.Wrap(apperrors.CodeInference, "rerank candidates", err)
	}
	if len(scores) != len(candidates) {
		return RerankResult{}, apperrors.Wrap(apperrors.CodeInference,
			fmt.Sprintf("cross-encoder returned %d scores for %d candidates", len(scores), len(candidates)), nil)
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	result := RerankResult{
		BestIndex: best,
		BestScore: scores[best],
		Scores:    scores,
		Confident: scores[best] >= s.threshold,
	}
	if result.Confident {
		text := candidates[best].Text
		result.Best = &text
	}
	return result, nil
}
