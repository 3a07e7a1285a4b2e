package chunker

import "strings"

// Simple splits long passages into word-bounded segments so each one fits the
// encoder and prompt budgets.
type Simple struct {
	MaxTokens int
	Overlap   int
}

// NewSimple constructs a chunker. A non-positive maxTokens falls back to 200.
func NewSimple(maxTokens, overlap int) *Simple {
	if maxTokens <= 0 {
		maxTokens = 200
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	return &Simple{MaxTokens: maxTokens, Overlap: overlap}
}

// Chunk splits text on line breaks and then by word budget. Passages already
// within budget come back as a single chunk.
func (c *Simple) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if countTokens(text) <= c.MaxTokens {
		return []string{text}
	}
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	var (
		current []string
		out     []string
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, strings.Join(current, " "))
		if c.Overlap > 0 {
			current = append([]string(nil), current[len(current)-min(c.Overlap, len(current)):]...)
			return
		}
		current = current[:0]
	}

	for _, part := range parts {
		for _, word := range strings.Fields(part) {
			if len(current) >= c.MaxTokens {
				flush()
			}
			current = append(current, word)
		}
	}
	if len(out) == 0 || len(current) > c.Overlap {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

// Split chunks every passage in order and returns the flattened result.
func (c *Simple) Split(passages []string) []string {
	out := make([]string, 0, len(passages))
	for _, passage := range passages {
		out = append(out, c.Chunk(passage)...)
	}
	return out
}

func countTokens(text string) int {
	return len(strings.Fields(text))
}
