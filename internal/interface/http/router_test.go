package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/domain/reinforce"
	"github.com/yanqian/health-assistant/internal/infra/config"
	"github.com/yanqian/health-assistant/internal/observability/metrics"
	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

func TestRouter_ChatSuccess(t *testing.T) {
	score := 0.97
	svc := &stubChat{
		chatFn: func(ctx context.Context, req healthbot.ChatRequest) (healthbot.ChatResponse, error) {
			require.Equal(t, "alice", req.UserID)
			require.Equal(t, "How much water should I drink?", req.Message)
			return healthbot.ChatResponse{
				Result:    healthbot.Result{Answer: "About two liters.", Confidence: &score, Stage: healthbot.StageDone},
				SessionID: 7,
				MessageID: 12,
			}, nil
		},
	}

	recorder := performRequest(http.MethodPost, "/api/chat", `{"userId":"alice","message":"How much water should I drink?"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, "About two liters.", got["answer"])
	require.Equal(t, 0.97, got["score"])
	require.EqualValues(t, 7, got["sessionId"])
	require.EqualValues(t, 12, got["messageId"])
	require.Equal(t, true, got["persisted"])
}

func TestRouter_ChatInvalidJSON(t *testing.T) {
	recorder := performRequest(http.MethodPost, "/api/chat", `{"message":123}`, newRouterUnderTest(t, &stubChat{}, nil))
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "invalid_request", errBody["error"]["code"])
	require.NotEmpty(t, errBody["error"]["message"])
}

func TestRouter_ChatInvalidInput(t *testing.T) {
	svc := &stubChat{
		chatFn: func(ctx context.Context, req healthbot.ChatRequest) (healthbot.ChatResponse, error) {
			return healthbot.ChatResponse{}, apperrors.Wrap(apperrors.CodeInvalidInput, "message cannot be empty", nil)
		},
	}

	recorder := performRequest(http.MethodPost, "/api/chat", `{"userId":"alice","message":""}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "invalid_request", errBody["error"]["code"])
	require.Equal(t, "message cannot be empty", errBody["error"]["message"])
}

func TestRouter_ChatInferenceFailureIsGeneric(t *testing.T) {
	svc := &stubChat{
		chatFn: func(ctx context.Context, req healthbot.ChatRequest) (healthbot.ChatResponse, error) {
			return healthbot.ChatResponse{}, apperrors.Wrap(apperrors.CodeInference, "retrieval failed", errors.New("dial tcp: refused"))
		},
	}

	recorder := performRequest(http.MethodPost, "/api/chat", `{"userId":"alice","message":"hi"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusBadGateway, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "inference_error", errBody["error"]["code"])
	require.Equal(t, genericFailureMessage, errBody["error"]["message"])
	require.NotContains(t, recorder.Body.String(), "refused")
}

func TestRouter_ChatOpenBreakerIsUnavailable(t *testing.T) {
	svc := &stubChat{
		chatFn: func(ctx context.Context, req healthbot.ChatRequest) (healthbot.ChatResponse, error) {
			cause := fmt.Errorf("inference: embed: %w", gobreaker.ErrOpenState)
			return healthbot.ChatResponse{}, apperrors.Wrap(apperrors.CodeInference, "encode question", cause)
		},
	}

	recorder := performRequest(http.MethodPost, "/api/chat", `{"userId":"alice","message":"hi"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "inference_unavailable", errBody["error"]["code"])
	require.Equal(t, genericFailureMessage, errBody["error"]["message"])
}

func TestRouter_ChatReturnsAnswerWhenStorageFails(t *testing.T) {
	svc := &stubChat{
		chatFn: func(ctx context.Context, req healthbot.ChatRequest) (healthbot.ChatResponse, error) {
			resp := healthbot.ChatResponse{Result: healthbot.Result{Answer: "Rest.", Stage: healthbot.StageDone}, SessionID: 3}
			return resp, apperrors.Wrap(apperrors.CodeStorage, "failed to store answer", errors.New("disk full"))
		},
	}

	recorder := performRequest(http.MethodPost, "/api/chat", `{"userId":"alice","message":"tired"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, "Rest.", got["answer"])
	require.Equal(t, false, got["persisted"])
}

func TestRouter_StatelessSuccess(t *testing.T) {
	svc := &stubChat{
		statelessFn: func(ctx context.Context, req healthbot.StatelessRequest) (healthbot.Result, error) {
			require.Equal(t, "What is a fever?", req.Question)
			return healthbot.Result{Answer: healthbot.StatelessLowConfidenceAnswer, Stage: healthbot.StageLowConfidence}, nil
		},
	}

	recorder := performRequest(http.MethodPost, "/api/chat/stateless", `{"question":"What is a fever?"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var got healthbot.Result
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, healthbot.StatelessLowConfidenceAnswer, got.Answer)
	require.Nil(t, got.Confidence)
}

func TestRouter_CreateSessionViaQuery(t *testing.T) {
	svc := &stubChat{
		createFn: func(ctx context.Context, userID, title string) (healthbot.Session, error) {
			require.Equal(t, "alice", userID)
			require.Equal(t, "Sleep", title)
			return healthbot.Session{ID: 4, UserID: userID, Title: title}, nil
		},
	}

	recorder := performRequest(http.MethodGet, "/api/chat/session?user_id=alice&title=Sleep", "", newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusCreated, recorder.Code)

	var got healthbot.Session
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.EqualValues(t, 4, got.ID)
}

func TestRouter_HistoryValidatesSessionID(t *testing.T) {
	recorder := performRequest(http.MethodGet, "/api/chat/history?session_id=abc", "", newRouterUnderTest(t, &stubChat{}, nil))
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRouter_HistoryNotFound(t *testing.T) {
	svc := &stubChat{
		historyFn: func(ctx context.Context, sessionID int64) ([]healthbot.Message, error) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, "session not found", nil)
		},
	}

	recorder := performRequest(http.MethodGet, "/api/chat/history?session_id=9", "", newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusNotFound, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "not_found", errBody["error"]["code"])
}

func TestRouter_EditAndResend(t *testing.T) {
	svc := &stubChat{
		editFn: func(ctx context.Context, messageID int64, text string) (healthbot.ChatResponse, error) {
			require.EqualValues(t, 5, messageID)
			require.Equal(t, "edited question", text)
			return healthbot.ChatResponse{Result: healthbot.Result{Answer: "new answer"}, SessionID: 1, MessageID: 6}, nil
		},
	}

	recorder := performRequest(http.MethodPut, "/api/chat/edit/5", `{"message":"edited question"}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "new answer")
}

func TestRouter_Feedback(t *testing.T) {
	svc := &stubChat{
		feedbackFn: func(ctx context.Context, req healthbot.FeedbackRequest) (healthbot.FeedbackResponse, error) {
			require.EqualValues(t, 12, req.MessageID)
			require.NotNil(t, req.Stars)
			require.Equal(t, 5, *req.Stars)
			return healthbot.FeedbackResponse{MessageID: req.MessageID, Reward: 0.97}, nil
		},
	}

	recorder := performRequest(http.MethodPost, "/api/feedback", `{"userId":"alice","messageId":12,"stars":5}`, newRouterUnderTest(t, svc, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var got healthbot.FeedbackResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, 0.97, got.Reward)
}

func TestRouter_ReinforceQueued(t *testing.T) {
	trainer := &stubTrainer{job: reinforce.Job{ID: "job-1", Status: reinforce.JobQueued, Samples: 3}}

	recorder := performRequest(http.MethodPost, "/api/train/reinforce", "", newRouterUnderTest(t, &stubChat{}, trainer))
	require.Equal(t, http.StatusAccepted, recorder.Code)

	var got reinforce.Job
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	require.Equal(t, "job-1", got.ID)
}

func TestRouter_ReinforceQueueFailure(t *testing.T) {
	trainer := &stubTrainer{err: apperrors.Wrap(apperrors.CodeQueue, "failed to enqueue job", errors.New("nats down"))}

	recorder := performRequest(http.MethodPost, "/api/train/reinforce", "", newRouterUnderTest(t, &stubChat{}, trainer))
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestRouter_HealthzAndPrometheus(t *testing.T) {
	server := newRouterUnderTest(t, &stubChat{}, nil)

	recorder := performRequest(http.MethodGet, "/healthz", "", server)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = performRequest(http.MethodGet, "/metrics", "", server)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, strings.Contains(recorder.Body.String(), "healthbot_http_requests_total"))
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	handler := NewHandler(&stubChat{}, &stubTrainer{}, newTestLogger())
	server := NewRouter(cfg, handler, nil)

	require.Equal(t, http.StatusOK, performRequest(http.MethodGet, "/healthz", "", server).Code)
	recorder := performRequest(http.MethodGet, "/healthz", "", server)
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "rate_limit_exceeded", errBody["error"]["code"])
}

func TestRouter_CORSPreflight(t *testing.T) {
	recorder := performRequest(http.MethodOptions, "/api/chat", "", newRouterUnderTest(t, &stubChat{}, nil))
	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_CORSListedOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.CORSOrigins = []string{"https://chat.example.org"}
	server := NewRouter(cfg, NewHandler(&stubChat{}, &stubTrainer{}, newTestLogger()), metrics.New())

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, req)
		return rec
	}

	allowed := preflight("https://chat.example.org")
	require.Equal(t, "https://chat.example.org", allowed.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", allowed.Header().Get("Vary"))

	denied := preflight("https://evil.example.com")
	require.Equal(t, http.StatusNoContent, denied.Code)
	require.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}

func performRequest(method, path, body string, server *http.Server) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func newRouterUnderTest(t *testing.T, svc ChatService, trainer Trainer) *http.Server {
	t.Helper()
	if trainer == nil {
		trainer = &stubTrainer{}
	}
	handler := NewHandler(svc, trainer, newTestLogger())
	return NewRouter(testConfig(), handler, metrics.New())
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
	}
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubChat struct {
	createFn    func(ctx context.Context, userID, title string) (healthbot.Session, error)
	historyFn   func(ctx context.Context, sessionID int64) ([]healthbot.Message, error)
	chatFn      func(ctx context.Context, req healthbot.ChatRequest) (healthbot.ChatResponse, error)
	statelessFn func(ctx context.Context, req healthbot.StatelessRequest) (healthbot.Result, error)
	editFn      func(ctx context.Context, messageID int64, text string) (healthbot.ChatResponse, error)
	feedbackFn  func(ctx context.Context, req healthbot.FeedbackRequest) (healthbot.FeedbackResponse, error)
}

func (s *stubChat) CreateSession(ctx context.Context, userID, title string) (healthbot.Session, error) {
	if s.createFn != nil {
		return s.createFn(ctx, userID, title)
	}
	return healthbot.Session{}, nil
}

func (s *stubChat) ListSessions(ctx context.Context, userID string) ([]healthbot.Session, error) {
	return []healthbot.Session{}, nil
}

func (s *stubChat) History(ctx context.Context, sessionID int64) ([]healthbot.Message, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, sessionID)
	}
	return []healthbot.Message{}, nil
}

func (s *stubChat) Chat(ctx context.Context, req healthbot.ChatRequest) (healthbot.ChatResponse, error) {
	if s.chatFn != nil {
		return s.chatFn(ctx, req)
	}
	return healthbot.ChatResponse{}, nil
}

func (s *stubChat) AnswerStateless(ctx context.Context, req healthbot.StatelessRequest) (healthbot.Result, error) {
	if s.statelessFn != nil {
		return s.statelessFn(ctx, req)
	}
	return healthbot.Result{}, nil
}

func (s *stubChat) EditAndResend(ctx context.Context, messageID int64, text string) (healthbot.ChatResponse, error) {
	if s.editFn != nil {
		return s.editFn(ctx, messageID, text)
	}
	return healthbot.ChatResponse{}, nil
}

func (s *stubChat) SubmitFeedback(ctx context.Context, req healthbot.FeedbackRequest) (healthbot.FeedbackResponse, error) {
	if s.feedbackFn != nil {
		return s.feedbackFn(ctx, req)
	}
	return healthbot.FeedbackResponse{}, nil
}

func (s *stubChat) Metrics(ctx context.Context) (healthbot.Stats, error) {
	return healthbot.Stats{}, nil
}

type stubTrainer struct {
	job reinforce.Job
	err error
}

func (s *stubTrainer) Trigger(ctx context.Context) (reinforce.Job, error) {
	return s.job, s.err
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
