package localmodel

import (
	"context"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

// CrossEncoder scores a pair by the share of question terms found in the passage.
type CrossEncoder struct{}

// NewCrossEncoder constructs the scorer.
func NewCrossEncoder() *CrossEncoder {
	return &CrossEncoder{}
}

// Score returns one value in [0, 1] per pair.
func (c *CrossEncoder) Score(_ context.Context, pairs []healthbot.Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	cache := make(map[string]map[string]struct{})
	for i, pair := range pairs {
		query, ok := cache[pair.Query]
		if !ok {
			query = contentTokens(pair.Query)
			cache[pair.Query] = query
		}
		scores[i] = tokenOverlap(query, contentTokens(pair.Passage))
	}
	return scores, nil
}

var _ healthbot.CrossEncoder = (*CrossEncoder)(nil)
