package localmodel

import (
	"context"
	"hash/fnv"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

const projectionsPerToken = 4

// Encoder hashes tokens into a fixed size bag-of-words vector. Texts sharing
// vocabulary get a positive cosine and identical texts a cosine of one.
type Encoder struct {
	dim int
}

// NewEncoder constructs the encoder.
func NewEncoder(dim int) *Encoder {
	if dim <= 0 {
		dim = 384
	}
	return &Encoder{dim: dim}
}

// Encode converts each text into a hashed token vector.
func (e *Encoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector := make([]float32, e.dim)
		for _, token := range splitAlphaNumLower(text) {
			hash := fnv.New64a()
			_, _ = hash.Write([]byte(token))
			seed := hash.Sum64()
			for j := 0; j < projectionsPerToken; j++ {
				seed = seed*1099511628211 + 1469598103934665603
				weight := float32(1)
				if seed&1 == 1 {
					weight = -1
				}
				vector[(seed>>1)%uint64(e.dim)] += weight
			}
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// Dimension reports the vector size.
func (e *Encoder) Dimension() int {
	return e.dim
}

var _ healthbot.Encoder = (*Encoder)(nil)
