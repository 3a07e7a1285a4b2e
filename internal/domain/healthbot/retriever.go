package healthbot

import (
	"context"
	"math"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// Retriever narrows the corpus to the k nearest passages of a question.
type Retriever struct {
	encoder  Encoder
	index    VectorIndex
	passages PassageStore
}

// NewRetriever constructs a Retriever.
func NewRetriever(encoder Encoder, index VectorIndex, passages PassageStore) *Retriever {
	return &Retriever{encoder: encoder, index: index, passages: passages}
}

// Retrieve returns at most k candidates ordered by index similarity.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]Candidate, error) {
	if k <= 0 || r.index.Len() == 0 {
		return nil, nil
	}
	vectors, err := r.encoder.Encode(ctx, []string{question})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInference, "encode question", err)
	}
	if len(vectors) != 1 {
		return nil, apperrors.Wrap(apperrors.CodeInference, "encoder returned unexpected vector count", nil)
	}
	query := Normalize(vectors[0])
	hits, err := r.index.Search(ctx, query, k)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInference, "search vector index", err)
	}
	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		text, ok := r.passages.Passage(hit.Position)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Position: hit.Position, Text: text, Similarity: hit.Score})
		if len(candidates) == k {
			break
		}
	}
	return candidates, nil
}

// Normalize returns a unit-length copy of v. Zero vectors are returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is empty, zero or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
