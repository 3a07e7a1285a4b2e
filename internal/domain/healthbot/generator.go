package healthbot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

// DefaultMaxPromptTokens is the generator's input budget.
const DefaultMaxPromptTokens = 512

// AnswerGenerator builds the prompt and runs deterministic generation.
type AnswerGenerator struct {
	generator Generator
	tokenizer Tokenizer
	params    DecodeParams
	maxTokens int
	cache     AnswerCache
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// NewAnswerGenerator constructs an AnswerGenerator. cache may be nil.
func NewAnswerGenerator(generator Generator, tokenizer Tokenizer, params DecodeParams, maxTokens int, cache AnswerCache, cacheTTL time.Duration, logger *slog.Logger) *AnswerGenerator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxPromptTokens
	}
	return &AnswerGenerator{
		generator: generator,
		tokenizer: tokenizer,
		params:    params,
		maxTokens: maxTokens,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger.With("component", "healthbot.generator"),
	}
}

// BuildPrompt renders the question and its single context passage.
func BuildPrompt(question, passage string) string {
	return fmt.Sprintf("Answer this health question: %s [CONTEXT: %s]", question, passage)
}

// Generate answers question grounded on passage.
func (g *AnswerGenerator) Generate(ctx context.Context, question, passage string) (string, error) {
	prompt := BuildPrompt(question, passage)
	if n := g.tokenizer.Count(prompt); n > g.maxTokens {
		g.logger.Debug("prompt truncated", "tokens", n, "max_tokens", g.maxTokens)
	}
	prompt = g.tokenizer.Truncate(prompt, g.maxTokens)
	key := g.cacheKey(prompt)
	if g.cache != nil {
		cached, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			g.logger.Warn("answer cache lookup failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}
	answer, err := g.generator.Generate(ctx, prompt, g.params)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInference, "generate answer", err)
	}
	answer = strings.TrimSpace(answer)
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, answer, g.cacheTTL); err != nil {
			g.logger.Warn("answer cache store failed", "error", err)
		}
	}
	return answer, nil
}

func (g *AnswerGenerator) cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%d|%g|%t|%t", prompt,
		g.params.MaxLength, g.params.NumBeams, g.params.NoRepeatNgramSize,
		g.params.LengthPenalty, g.params.EarlyStopping, g.params.DoSample)))
	return hex.EncodeToString(sum[:])
}
