package healthbot

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// Service exposes the conversational operations on top of the pipeline.
type Service struct {
	pipeline *Pipeline
	store    SessionStore
	cfg      Config
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg Config, pipeline *Pipeline, store SessionStore, logger *slog.Logger) *Service {
	return &Service{
		pipeline: pipeline,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "healthbot.service"),
	}
}

// ChatRequest asks a question within a session. A nil SessionID reuses the
// user's latest session or opens a new one.
type ChatRequest struct {
	UserID    string `json:"userId"`
	SessionID *int64 `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse pairs the pipeline result with the stored message identifiers.
type ChatResponse struct {
	Result
	SessionID int64 `json:"sessionId"`
	MessageID int64 `json:"messageId"`
}

// StatelessRequest asks a one-off question.
type StatelessRequest struct {
	Question string `json:"question"`
}

// FeedbackRequest rates an assistant message. Rating is in [-1, 1]; Stars is
// an alternative 1..5 scale.
type FeedbackRequest struct {
	UserID    string   `json:"userId"`
	MessageID int64    `json:"messageId"`
	Rating    *float64 `json:"rating,omitempty"`
	Stars     *int     `json:"stars,omitempty"`
	Comment   string   `json:"comment,omitempty"`
}

// FeedbackResponse reports the recomputed reward.
type FeedbackResponse struct {
	MessageID int64   `json:"messageId"`
	Reward    float64 `json:"reward"`
}

// CreateSession opens a new conversation.
func (s *Service) CreateSession(ctx context.Context, userID, title string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, apperrors.Wrap(apperrors.CodeInvalidInput, "user id cannot be empty", nil)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultSessionTitle
	}
	session, err := s.store.CreateSession(ctx, userID, title)
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeStorage, "failed to create session", err)
	}
	return session, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "user id cannot be empty", nil)
	}
	sessions, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "failed to list sessions", err)
	}
	return sessions, nil
}

// History returns the stored messages of a session in chronological order.
func (s *Service) History(ctx context.Context, sessionID int64) ([]Message, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.store.Read(ctx, sessionID, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "failed to read history", err)
	}
	return messages, nil
}

// Chat answers a question with session memory and persists both turns. When
// persistence fails the computed result is still returned with the error.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "user id cannot be empty", nil)
	}
	if strings.TrimSpace(req.Message) == "" {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "message cannot be empty", nil)
	}
	session, err := s.resolveSession(ctx, userID, req.SessionID)
	if err != nil {
		return ChatResponse{}, err
	}
	history, err := s.store.Read(ctx, session.ID, s.cfg.HistoryLimit)
	if err != nil {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeStorage, "failed to read history", err)
	}
	result, err := s.pipeline.Run(ctx, ModeSession, Query{Question: req.Message, History: history})
	if err != nil {
		return ChatResponse{}, err
	}
	resp := ChatResponse{Result: result, SessionID: session.ID}
	if _, err := s.store.Append(ctx, Message{SessionID: session.ID, Role: RoleUser, Text: req.Message}); err != nil {
		return resp, apperrors.Wrap(apperrors.CodeStorage, "failed to store question", err)
	}
	stored, err := s.store.Append(ctx, assistantMessage(session.ID, result))
	if err != nil {
		return resp, apperrors.Wrap(apperrors.CodeStorage, "failed to store answer", err)
	}
	resp.MessageID = stored.ID
	return resp, nil
}

// AnswerStateless answers without reading or writing any session state.
func (s *Service) AnswerStateless(ctx context.Context, req StatelessRequest) (Result, error) {
	return s.pipeline.Run(ctx, ModeStateless, Query{Question: req.Question})
}

// EditAndResend rewrites a stored user message and answers it again within
// its session. The new answer is appended as a fresh assistant message.
func (s *Service) EditAndResend(ctx context.Context, messageID int64, text string) (ChatResponse, error) {
	if strings.TrimSpace(text) == "" {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "message cannot be empty", nil)
	}
	original, ok, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeStorage, "failed to load message", err)
	}
	if !ok {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeNotFound, "message not found", nil)
	}
	if original.Role != RoleUser {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "only user messages can be edited", nil)
	}
	edited, ok, err := s.store.EditMessage(ctx, messageID, text)
	if err != nil {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeStorage, "failed to edit message", err)
	}
	if !ok {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeNotFound, "message not found", nil)
	}
	history, err := s.store.Read(ctx, edited.SessionID, s.cfg.HistoryLimit)
	if err != nil {
		return ChatResponse{}, apperrors.Wrap(apperrors.CodeStorage, "failed to read history", err)
	}
	result, err := s.pipeline.Run(ctx, ModeSession, Query{Question: text, History: history})
	if err != nil {
		return ChatResponse{}, err
	}
	resp := ChatResponse{Result: result, SessionID: edited.SessionID}
	stored, err := s.store.Append(ctx, assistantMessage(edited.SessionID, result))
	if err != nil {
		return resp, apperrors.Wrap(apperrors.CodeStorage, "failed to store answer", err)
	}
	resp.MessageID = stored.ID
	return resp, nil
}

// Metrics summarizes stored conversations.
func (s *Service) Metrics(ctx context.Context) (Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, apperrors.Wrap(apperrors.CodeStorage, "failed to compute metrics", err)
	}
	return stats, nil
}

func (s *Service) session(ctx context.Context, sessionID int64) (Session, error) {
	session, ok, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeStorage, "failed to load session", err)
	}
	if !ok {
		return Session{}, apperrors.Wrap(apperrors.CodeNotFound, "session not found", nil)
	}
	return session, nil
}

func (s *Service) resolveSession(ctx context.Context, userID string, sessionID *int64) (Session, error) {
	if sessionID != nil {
		session, err := s.session(ctx, *sessionID)
		if err != nil {
			return Session{}, err
		}
		if session.UserID != userID {
			return Session{}, apperrors.Wrap(apperrors.CodeNotFound, "session not found", nil)
		}
		return session, nil
	}
	sessions, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeStorage, "failed to list sessions", err)
	}
	if len(sessions) > 0 {
		return sessions[0], nil
	}
	return s.CreateSession(ctx, userID, DefaultSessionTitle)
}

func assistantMessage(sessionID int64, result Result) Message {
	return Message{
		SessionID:  sessionID,
		Role:       RoleAssistant,
		Text:       result.Answer,
		Score:      result.Reward,
		Confidence: result.Confidence,
		Source:     result.Source,
	}
}
