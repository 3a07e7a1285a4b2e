package tokenizer

import (
	"strings"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

// Whitespace counts whitespace separated words as tokens.
type Whitespace struct{}

// NewWhitespace constructs the tokenizer.
func NewWhitespace() Whitespace {
	return Whitespace{}
}

// Count returns the number of tokens in text.
func (Whitespace) Count(text string) int {
	return len(strings.Fields(text))
}

// Truncate keeps the first maxTokens words. Text within budget is returned
// unchanged.
func (Whitespace) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

var _ healthbot.Tokenizer = Whitespace{}
