package localmodel

import (
	"context"
	"sort"
	"strings"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

const (
	questionMarker = "Answer this health question: "
	contextMarker  = " [CONTEXT: "
)

// Generator extracts the context sentences most related to the question.
type Generator struct{}

// NewGenerator constructs the generator.
func NewGenerator() *Generator {
	return &Generator{}
}

type rankedSentence struct {
	index int
	text  string
	score float64
}

// Generate answers from the prompt's context, keeping at most MaxLength words.
func (g *Generator) Generate(_ context.Context, prompt string, params healthbot.DecodeParams) (string, error) {
	question, passage := splitPrompt(prompt)
	sentences := splitSentences(passage)
	if len(sentences) == 0 {
		return "", nil
	}
	query := contentTokens(question)
	ranked := make([]rankedSentence, len(sentences))
	for i, s := range sentences {
		ranked[i] = rankedSentence{index: i, text: s, score: tokenOverlap(query, contentTokens(s))}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	budget := params.MaxLength
	if budget <= 0 {
		budget = 500
	}
	var picked []rankedSentence
	words := 0
	for _, s := range ranked {
		n := len(strings.Fields(s.text))
		if words > 0 && (words+n > budget || s.score == 0) {
			break
		}
		picked = append(picked, s)
		words += n
		if params.EarlyStopping && len(picked) == 2 {
			break
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].index < picked[j].index })
	out := make([]string, len(picked))
	for i, s := range picked {
		out[i] = s.text
	}
	answer := strings.Join(out, " ")
	if fields := strings.Fields(answer); len(fields) > budget {
		answer = strings.Join(fields[:budget], " ")
	}
	return answer, nil
}

func splitPrompt(prompt string) (string, string) {
	body := strings.TrimPrefix(prompt, questionMarker)
	idx := strings.Index(body, contextMarker)
	if idx < 0 {
		return body, ""
	}
	return body[:idx], strings.TrimSuffix(body[idx+len(contextMarker):], "]")
}

func splitSentences(text string) []string {
	var (
		out     []string
		current strings.Builder
	)
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

var _ healthbot.Generator = (*Generator)(nil)
