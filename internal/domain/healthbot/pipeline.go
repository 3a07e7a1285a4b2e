package healthbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// Config drives the answering pipeline.
type Config struct {
	TopK            int
	RerankThreshold float64
	HistoryLimit    int
	CrisisLookback  int
	CrisisPhrases   []string
	MaxPromptTokens int
	StatelessReward bool
	Decode          DecodeParams
	CacheTTL        time.Duration
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		TopK:            50,
		RerankThreshold: DefaultRerankThreshold,
		HistoryLimit:    500,
		CrisisLookback:  3,
		MaxPromptTokens: DefaultMaxPromptTokens,
		Decode:          DefaultDecodeParams(),
		CacheTTL:        24 * time.Hour,
	}
}

// Pipeline runs crisis check, retrieval, rerank, generation and scoring.
type Pipeline struct {
	cfg       Config
	crisis    *CrisisFilter
	retriever *Retriever
	selector  *Selector
	generator *AnswerGenerator
	scorer    *RewardScorer
	recorder  Recorder
	logger    *slog.Logger
}

// ValidateModels checks that the loaded artifacts agree with each other.
func ValidateModels(m Models) error {
	switch {
	case m.Encoder == nil, m.Index == nil, m.Passages == nil, m.CrossEncoder == nil, m.Generator == nil, m.Tokenizer == nil:
		return apperrors.Wrap(apperrors.CodeConfiguration, "models are incomplete", nil)
	case m.Index.Len() != m.Passages.Len():
		return apperrors.Wrap(apperrors.CodeConfiguration,
			fmt.Sprintf("index holds %d vectors but corpus holds %d passages", m.Index.Len(), m.Passages.Len()), nil)
	case m.Encoder.Dimension() > 0 && m.Index.Dimension() > 0 && m.Encoder.Dimension() != m.Index.Dimension():
		return apperrors.Wrap(apperrors.CodeConfiguration,
			fmt.Sprintf("encoder dimension %d does not match index dimension %d", m.Encoder.Dimension(), m.Index.Dimension()), nil)
	}
	return nil
}

// NewPipeline validates the models and assembles the stages.
func NewPipeline(cfg Config, models Models, cache AnswerCache, recorder Recorder, logger *slog.Logger) (*Pipeline, error) {
	if err := ValidateModels(models); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Pipeline{
		cfg:       cfg,
		crisis:    NewCrisisFilter(cfg.CrisisPhrases, cfg.CrisisLookback),
		retriever: NewRetriever(models.Encoder, models.Index, models.Passages),
		selector:  NewSelector(models.CrossEncoder, cfg.RerankThreshold),
		generator: NewAnswerGenerator(models.Generator, models.Tokenizer, cfg.Decode, cfg.MaxPromptTokens, cache, cfg.CacheTTL, logger),
		scorer:    NewRewardScorer(models.Encoder),
		recorder:  recorder,
		logger:    logger.With("component", "healthbot.pipeline"),
	}, nil
}

// Scorer exposes the reward scorer for feedback ingestion.
func (p *Pipeline) Scorer() *RewardScorer {
	return p.scorer
}

// Run answers q. Session mode always scores the answer; stateless mode scores
// only when StatelessReward is enabled.
func (p *Pipeline) Run(ctx context.Context, mode Mode, q Query) (Result, error) {
	question := strings.TrimSpace(q.Question)
	if question == "" {
		return Result{}, apperrors.Wrap(apperrors.CodeInvalidInput, "question cannot be empty", nil)
	}
	result, err := p.run(ctx, mode, question, q.History)
	if err != nil {
		p.logger.Error("pipeline failed", "mode", mode, "error", err)
		return Result{}, err
	}
	p.recorder.ObserveResult(mode, result)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, mode Mode, question string, history []Message) (Result, error) {
	started := time.Now()
	flagged := p.crisis.DetectConversation(question, history)
	p.recorder.ObserveStage(StageCrisisCheck, time.Since(started))
	if flagged {
		p.logger.Warn("crisis content detected", "mode", mode)
		return Result{Answer: SafetyAnswer, Flagged: true, Stage: StageFlagged}, nil
	}

	started = time.Now()
	candidates, err := p.retriever.Retrieve(ctx, question, p.cfg.TopK)
	if err != nil {
		return Result{}, err
	}
	p.recorder.ObserveStage(StageRetrieve, time.Since(started))

	started = time.Now()
	rerank, err := p.selector.Select(ctx, question, candidates)
	if err != nil {
		return Result{}, err
	}
	p.recorder.ObserveStage(StageRerank, time.Since(started))

	if !rerank.Confident {
		result := Result{Answer: p.lowConfidenceAnswer(mode), Stage: StageLowConfidence}
		if len(candidates) > 0 {
			score := rerank.BestScore
			result.Confidence = &score
		}
		p.logger.Info("low confidence answer", "mode", mode, "candidates", len(candidates), "best_score", rerank.BestScore)
		return result, nil
	}

	source := *rerank.Best
	score := rerank.BestScore
	started = time.Now()
	answer, err := p.generator.Generate(ctx, question, source)
	if err != nil {
		return Result{}, err
	}
	p.recorder.ObserveStage(StageGenerate, time.Since(started))

	result := Result{Answer: answer, Confidence: &score, Source: &source, Stage: StageDone}
	if mode == ModeSession || p.cfg.StatelessReward {
		started = time.Now()
		reward, err := p.scorer.Score(ctx, answer, source, nil)
		if err != nil {
			return Result{}, err
		}
		p.recorder.ObserveStage(StageScore, time.Since(started))
		result.Reward = &reward
	}
	return result, nil
}

func (p *Pipeline) lowConfidenceAnswer(mode Mode) string {
	if mode == ModeStateless {
		return StatelessLowConfidenceAnswer
	}
	return LowConfidenceAnswer
}
