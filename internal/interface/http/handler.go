package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/domain/reinforce"
	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// ChatService is the conversational surface served over HTTP.
type ChatService interface {
	CreateSession(ctx context.Context, userID, title string) (healthbot.Session, error)
	ListSessions(ctx context.Context, userID string) ([]healthbot.Session, error)
	History(ctx context.Context, sessionID int64) ([]healthbot.Message, error)
	Chat(ctx context.Context, req healthbot.ChatRequest) (healthbot.ChatResponse, error)
	AnswerStateless(ctx context.Context, req healthbot.StatelessRequest) (healthbot.Result, error)
	EditAndResend(ctx context.Context, messageID int64, text string) (healthbot.ChatResponse, error)
	SubmitFeedback(ctx context.Context, req healthbot.FeedbackRequest) (healthbot.FeedbackResponse, error)
	Metrics(ctx context.Context) (healthbot.Stats, error)
}

// Trainer starts fine-tuning runs from collected feedback.
type Trainer interface {
	Trigger(ctx context.Context) (reinforce.Job, error)
}

// Handler wires the HTTP transport to domain services.
type Handler struct {
	chat    ChatService
	trainer Trainer
	logger  *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(chat ChatService, trainer Trainer, logger *slog.Logger) *Handler {
	return &Handler{
		chat:    chat,
		trainer: trainer,
		logger:  logger.With("component", "http.handler"),
	}
}

type createSessionRequest struct {
	UserID string `json:"userId" form:"user_id"`
	Title  string `json:"title" form:"title"`
}

type editRequest struct {
	Message string `json:"message"`
}

// chatReply reports whether the exchange was stored alongside the answer.
type chatReply struct {
	healthbot.ChatResponse
	Persisted bool `json:"persisted"`
}

// CreateSession opens a new conversation.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	session, err := h.chat.CreateSession(c.Request.Context(), req.UserID, req.Title)
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ListSessions returns the user's sessions, newest first.
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.chat.ListSessions(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// History returns every message of a session.
func (h *Handler) History(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Query("session_id"), 10, 64)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "session_id must be an integer", err))
		return
	}
	messages, err := h.chat.History(c.Request.Context(), sessionID)
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "messages": messages})
}

// Chat answers a question within a session.
func (h *Handler) Chat(c *gin.Context) {
	var req healthbot.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp, err := h.chat.Chat(c.Request.Context(), req)
	h.respondChat(c, resp, err)
}

// Stateless answers a single question without conversation memory.
func (h *Handler) Stateless(c *gin.Context) {
	var req healthbot.StatelessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	result, err := h.chat.AnswerStateless(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// EditAndResend rewrites a user message and answers it again.
func (h *Handler) EditAndResend(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "message id must be an integer", err))
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp, err := h.chat.EditAndResend(c.Request.Context(), messageID, req.Message)
	h.respondChat(c, resp, err)
}

// Feedback records a rating and returns the recomputed reward.
func (h *Handler) Feedback(c *gin.Context) {
	var req healthbot.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp, err := h.chat.SubmitFeedback(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Metrics returns conversation totals.
func (h *Handler) Metrics(c *gin.Context) {
	stats, err := h.chat.Metrics(c.Request.Context())
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Reinforce exports positive samples and queues a fine-tuning job.
func (h *Handler) Reinforce(c *gin.Context) {
	job, err := h.trainer.Trigger(c.Request.Context())
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}
	status := http.StatusAccepted
	if job.Status == reinforce.JobSkipped {
		status = http.StatusOK
	}
	c.JSON(status, job)
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondChat returns the computed answer even when storing it failed.
func (h *Handler) respondChat(c *gin.Context, resp healthbot.ChatResponse, err error) {
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodeStorage) || resp.Answer == "" {
			abortWithError(c, fromDomainError(err))
			return
		}
		h.logger.Error("answer computed but not stored", "session_id", resp.SessionID, "error", err)
		c.JSON(http.StatusOK, chatReply{ChatResponse: resp, Persisted: false})
		return
	}
	c.JSON(http.StatusOK, chatReply{ChatResponse: resp, Persisted: true})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
