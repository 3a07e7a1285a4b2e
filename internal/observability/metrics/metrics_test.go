package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

func TestObserveResultCountsByModeAndStage(t *testing.T) {
	m := New()
	score := 0.9
	reward := 0.4
	m.ObserveResult(healthbot.ModeSession, healthbot.Result{Stage: healthbot.StageDone, Confidence: &score, Reward: &reward})
	m.ObserveResult(healthbot.ModeSession, healthbot.Result{Stage: healthbot.StageDone})
	m.ObserveResult(healthbot.ModeStateless, healthbot.Result{Stage: healthbot.StageFlagged})

	require.Equal(t, 2.0, testutil.ToFloat64(m.pipelineResults.WithLabelValues("session", "done")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.pipelineResults.WithLabelValues("stateless", "flagged")))
	require.Equal(t, 1, testutil.CollectAndCount(m.rerankBestScore))
}

func TestRequestStartedRecordsRequest(t *testing.T) {
	m := New()
	done := m.RequestStarted()
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestsInFlight))
	done(http.MethodPost, "/api/chat", http.StatusOK)

	require.Equal(t, 0.0, testutil.ToFloat64(m.requestsInFlight))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("POST", "/api/chat", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveStage(healthbot.StageRetrieve, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "healthbot_pipeline_stage_seconds"))
}
