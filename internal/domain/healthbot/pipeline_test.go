package healthbot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

type countingRecorder struct {
	stages  []Stage
	results []Result
}

func (r *countingRecorder) ObserveStage(stage Stage, _ time.Duration) { r.stages = append(r.stages, stage) }
func (r *countingRecorder) ObserveResult(_ Mode, res Result)          { r.results = append(r.results, res) }

func newTestPipeline(t *testing.T, m *testModels, cfg Config) (*Pipeline, *countingRecorder) {
	t.Helper()
	rec := &countingRecorder{}
	p, err := NewPipeline(cfg, m.models(), nil, rec, newTestLogger())
	require.NoError(t, err)
	return p, rec
}

func TestPipelineCrisisShortCircuits(t *testing.T) {
	m := newTestModels()
	m.encoder.err = errors.New("must not be called")
	p, rec := newTestPipeline(t, m, DefaultConfig())

	res, err := p.Run(context.Background(), ModeSession, Query{Question: "I want to kill myself"})
	require.NoError(t, err)
	require.True(t, res.Flagged)
	require.Equal(t, SafetyAnswer, res.Answer)
	require.Nil(t, res.Source)
	require.Nil(t, res.Reward)
	require.Equal(t, StageFlagged, res.Stage)
	require.Zero(t, m.cross.calls)
	require.Zero(t, m.gen.calls)
	require.Equal(t, []Stage{StageCrisisCheck}, rec.stages)
}

func TestPipelineCrisisFromHistory(t *testing.T) {
	p, _ := newTestPipeline(t, newTestModels(), DefaultConfig())
	history := []Message{{Role: RoleUser, Text: "thinking of an overdose"}}

	res, err := p.Run(context.Background(), ModeSession, Query{Question: "and then?", History: history})
	require.NoError(t, err)
	require.True(t, res.Flagged)
}

func TestPipelineLowConfidence(t *testing.T) {
	m := newTestModels()
	m.cross.scores = nil
	m.cross.fallback = 0.3
	p, _ := newTestPipeline(t, m, DefaultConfig())

	res, err := p.Run(context.Background(), ModeSession, Query{Question: "What is the capital of France?"})
	require.NoError(t, err)
	require.False(t, res.Flagged)
	require.Equal(t, LowConfidenceAnswer, res.Answer)
	require.Nil(t, res.Source)
	require.Nil(t, res.Reward)
	require.NotNil(t, res.Confidence)
	require.Equal(t, 0.3, *res.Confidence)
	require.Equal(t, StageLowConfidence, res.Stage)
	require.Zero(t, m.gen.calls)

	stateless, err := p.Run(context.Background(), ModeStateless, Query{Question: "What is the capital of France?"})
	require.NoError(t, err)
	require.Equal(t, StatelessLowConfidenceAnswer, stateless.Answer)
}

func TestPipelineEmptyIndexIsLowConfidence(t *testing.T) {
	m := newTestModels()
	m.index = newSliceIndex(nil)
	models := m.models()
	models.Passages = slicePassages(nil)
	p, err := NewPipeline(DefaultConfig(), models, nil, nil, newTestLogger())
	require.NoError(t, err)

	res, err := p.Run(context.Background(), ModeSession, Query{Question: "fever"})
	require.NoError(t, err)
	require.Equal(t, LowConfidenceAnswer, res.Answer)
	require.Nil(t, res.Confidence)
	require.Zero(t, m.cross.calls)
}

func TestPipelineConfidentAnswer(t *testing.T) {
	m := newTestModels()
	p, rec := newTestPipeline(t, m, DefaultConfig())

	res, err := p.Run(context.Background(), ModeSession, Query{Question: "How is malaria transmitted?"})
	require.NoError(t, err)
	require.Equal(t, StageDone, res.Stage)
	require.NotNil(t, res.Source)
	require.Equal(t, corpus[1], *res.Source)
	require.Equal(t, corpus[1], res.Answer)
	require.Equal(t, 0.97, *res.Confidence)
	require.NotNil(t, res.Reward)
	require.Equal(t, 1.0, *res.Reward)
	require.Equal(t, []Stage{StageCrisisCheck, StageRetrieve, StageRerank, StageGenerate, StageScore}, rec.stages)
	require.Len(t, rec.results, 1)
}

func TestPipelineStatelessReward(t *testing.T) {
	m := newTestModels()
	p, _ := newTestPipeline(t, m, DefaultConfig())
	res, err := p.Run(context.Background(), ModeStateless, Query{Question: "How is malaria transmitted?"})
	require.NoError(t, err)
	require.NotNil(t, res.Source)
	require.Nil(t, res.Reward)

	cfg := DefaultConfig()
	cfg.StatelessReward = true
	p, _ = newTestPipeline(t, newTestModels(), cfg)
	res, err = p.Run(context.Background(), ModeStateless, Query{Question: "How is malaria transmitted?"})
	require.NoError(t, err)
	require.NotNil(t, res.Reward)
}

func TestPipelineInferenceFailureReturnsNoAnswer(t *testing.T) {
	m := newTestModels()
	m.gen.err = errors.New("generator crashed")
	p, rec := newTestPipeline(t, m, DefaultConfig())

	res, err := p.Run(context.Background(), ModeSession, Query{Question: "How is malaria transmitted?"})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInference))
	require.Equal(t, Result{}, res)
	require.Empty(t, rec.results)
}

func TestPipelineRejectsEmptyQuestion(t *testing.T) {
	p, _ := newTestPipeline(t, newTestModels(), DefaultConfig())
	_, err := p.Run(context.Background(), ModeSession, Query{Question: "   "})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestValidateModels(t *testing.T) {
	m := newTestModels().models()
	require.NoError(t, ValidateModels(m))

	misaligned := m
	misaligned.Passages = slicePassages(corpus[:2])
	require.True(t, apperrors.IsCode(ValidateModels(misaligned), apperrors.CodeConfiguration))

	missing := m
	missing.Generator = nil
	require.True(t, apperrors.IsCode(ValidateModels(missing), apperrors.CodeConfiguration))

	_, err := NewPipeline(DefaultConfig(), misaligned, nil, nil, newTestLogger())
	require.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}
