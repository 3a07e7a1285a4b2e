package healthbot

import (
	"context"
	"strings"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// SubmitFeedback blends a human rating into the reward of one assistant
// message. The stored answer is scored against the passage it was generated
// from and the message score is replaced with the blended value.
func (s *Service) SubmitFeedback(ctx context.Context, req FeedbackRequest) (FeedbackResponse, error) {
	rating, err := feedbackRating(req)
	if err != nil {
		return FeedbackResponse{}, err
	}
	msg, ok, err := s.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return FeedbackResponse{}, apperrors.Wrap(apperrors.CodeStorage, "failed to load message", err)
	}
	if !ok {
		return FeedbackResponse{}, apperrors.Wrap(apperrors.CodeNotFound, "message not found", nil)
	}
	if msg.Role != RoleAssistant {
		return FeedbackResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "feedback applies to assistant messages only", nil)
	}

	var source string
	if msg.Source != nil {
		source = *msg.Source
	}
	reward, err := s.pipeline.Scorer().Score(ctx, msg.Text, source, &rating)
	if err != nil {
		return FeedbackResponse{}, err
	}
	if err := s.store.UpdateScore(ctx, msg.ID, reward); err != nil {
		return FeedbackResponse{}, apperrors.Wrap(apperrors.CodeStorage, "failed to update score", err)
	}
	if _, err := s.store.SaveFeedback(ctx, Feedback{
		UserID:    strings.TrimSpace(req.UserID),
		MessageID: msg.ID,
		Rating:    rating,
		Comment:   strings.TrimSpace(req.Comment),
		Reward:    reward,
	}); err != nil {
		return FeedbackResponse{}, apperrors.Wrap(apperrors.CodeStorage, "failed to store feedback", err)
	}
	s.logger.Info("feedback applied", "message_id", msg.ID, "rating", rating, "reward", reward)
	return FeedbackResponse{MessageID: msg.ID, Reward: reward}, nil
}

func feedbackRating(req FeedbackRequest) (float64, error) {
	switch {
	case req.Rating != nil && req.Stars != nil:
		return 0, apperrors.Wrap(apperrors.CodeInvalidInput, "provide either rating or stars, not both", nil)
	case req.Rating != nil:
		if *req.Rating < -1 || *req.Rating > 1 {
			return 0, apperrors.Wrap(apperrors.CodeInvalidInput, "rating must be within [-1, 1]", nil)
		}
		return *req.Rating, nil
	case req.Stars != nil:
		if *req.Stars < 1 || *req.Stars > 5 {
			return 0, apperrors.Wrap(apperrors.CodeInvalidInput, "stars must be within [1, 5]", nil)
		}
		return NormalizeStars(*req.Stars), nil
	default:
		return 0, apperrors.Wrap(apperrors.CodeInvalidInput, "rating is required", nil)
	}
}
