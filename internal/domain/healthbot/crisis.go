package healthbot

import "strings"

// DefaultCrisisPhrases are matched as lowercase substrings.
var DefaultCrisisPhrases = []string{
	"suicid",
	"kill myself",
	"harm myself",
	"self-harm",
	"overdose",
	"hurt myself",
	"end my life",
}

// CrisisFilter flags self-harm related content before any inference runs.
type CrisisFilter struct {
	phrases  []string
	lookback int
}

// NewCrisisFilter builds a filter over the given phrases. A nil slice selects
// DefaultCrisisPhrases; lookback bounds how many prior messages are scanned.
func NewCrisisFilter(phrases []string, lookback int) *CrisisFilter {
	if phrases == nil {
		phrases = DefaultCrisisPhrases
	}
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	if lookback < 0 {
		lookback = 0
	}
	return &CrisisFilter{phrases: normalized, lookback: lookback}
}

// Detect reports whether text contains any crisis phrase.
func (f *CrisisFilter) Detect(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range f.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// DetectConversation checks the question and the most recent history turns.
func (f *CrisisFilter) DetectConversation(question string, history []Message) bool {
	if f.Detect(question) {
		return true
	}
	start := len(history) - f.lookback
	if start < 0 {
		start = 0
	}
	for _, msg := range history[start:] {
		if f.Detect(msg.Text) {
			return true
		}
	}
	return false
}
