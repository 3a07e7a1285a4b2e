package healthbot

import (
	"context"
	"math"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

const (
	feedbackWeight = 0.7
	autoWeight     = 0.3
)

// RewardScorer rates how faithful an answer is to its source passage.
type RewardScorer struct {
	encoder Encoder
}

// NewRewardScorer constructs a RewardScorer.
func NewRewardScorer(encoder Encoder) *RewardScorer {
	return &RewardScorer{encoder: encoder}
}

// Score returns the reward in [-1, 1] rounded to three decimals. feedback, when
// present, must already be normalized to [-1, 1].
func (s *RewardScorer) Score(ctx context.Context, answer, source string, feedback *float64) (float64, error) {
	var sim float64
	if source != "" {
		vectors, err := s.encoder.Encode(ctx, []string{answer, source})
		if err != nil {
			return 0, apperrors.Wrap(apperrors.CodeInference, "encode reward inputs", err)
		}
		if len(vectors) != 2 {
			return 0, apperrors.Wrap(apperrors.CodeInference, "encoder returned unexpected vector count", nil)
		}
		sim = CosineSimilarity(vectors[0], vectors[1])
	}
	return BlendReward(2*sim-1, feedback), nil
}

// BlendReward combines the automatic reward with optional feedback.
func BlendReward(auto float64, feedback *float64) float64 {
	reward := auto
	if feedback != nil {
		reward = feedbackWeight*(*feedback) + autoWeight*auto
	}
	return round3(clamp(reward, -1, 1))
}

// NormalizeStars maps a 1..5 star rating onto [-1, 1].
func NormalizeStars(stars int) float64 {
	return clamp(float64(stars-3)/2, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
