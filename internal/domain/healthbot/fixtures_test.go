package healthbot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// letterEncoder embeds text as a 26 dimensional letter histogram.
type letterEncoder struct {
	calls int
	err   error
}

func (e *letterEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 26)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				vec[r-'a']++
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (e *letterEncoder) Dimension() int { return 26 }

// sliceIndex scores every passage by inner product with the letter encoder.
type sliceIndex struct {
	vectors  [][]float32
	lastQry  []float32
	searchFn func(vector []float32, k int) ([]IndexHit, error)
}

func newSliceIndex(passages []string) *sliceIndex {
	enc := &letterEncoder{}
	vectors, _ := enc.Encode(context.Background(), passages)
	for i := range vectors {
		vectors[i] = Normalize(vectors[i])
	}
	return &sliceIndex{vectors: vectors}
}

func (s *sliceIndex) Search(_ context.Context, vector []float32, k int) ([]IndexHit, error) {
	s.lastQry = vector
	if s.searchFn != nil {
		return s.searchFn(vector, k)
	}
	hits := make([]IndexHit, len(s.vectors))
	for i, v := range s.vectors {
		var dot float64
		for j := range v {
			dot += float64(v[j]) * float64(vector[j])
		}
		hits[i] = IndexHit{Position: i, Score: dot}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *sliceIndex) Len() int       { return len(s.vectors) }
func (s *sliceIndex) Dimension() int { return 26 }

type slicePassages []string

func (p slicePassages) Passage(position int) (string, bool) {
	if position < 0 || position >= len(p) {
		return "", false
	}
	return p[position], true
}

func (p slicePassages) Len() int { return len(p) }

// tableCrossEncoder returns a fixed score per passage text. Queries listed in
// offTopic score every passage at the fallback.
type tableCrossEncoder struct {
	scores   map[string]float64
	offTopic map[string]bool
	fallback float64
	calls    int
	err      error
}

func (c *tableCrossEncoder) Score(_ context.Context, pairs []Pair) ([]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		if c.offTopic[p.Query] {
			out[i] = c.fallback
			continue
		}
		if s, ok := c.scores[p.Passage]; ok {
			out[i] = s
			continue
		}
		out[i] = c.fallback
	}
	return out, nil
}

// echoGenerator answers with the context embedded in the prompt.
type echoGenerator struct {
	calls      int
	lastPrompt string
	lastParams DecodeParams
	err        error
}

func (g *echoGenerator) Generate(_ context.Context, prompt string, params DecodeParams) (string, error) {
	g.calls++
	g.lastPrompt = prompt
	g.lastParams = params
	if g.err != nil {
		return "", g.err
	}
	start := strings.Index(prompt, "[CONTEXT: ")
	if start < 0 {
		return " " + prompt + " ", nil
	}
	return " " + strings.TrimSuffix(prompt[start+len("[CONTEXT: "):], "]") + " ", nil
}

type wordTokenizer struct {
	lastMax int
}

func (t *wordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func (t *wordTokenizer) Truncate(text string, maxTokens int) string {
	t.lastMax = maxTokens
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, answer string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]string{}
	}
	c.entries[key] = answer
	return nil
}

// fakeStore is a minimal SessionStore for service tests.
type fakeStore struct {
	mu        sync.Mutex
	sessions  []Session
	messages  []Message
	feedback  []Feedback
	appendErr error
	editGone  bool
	clock     time.Time
}

func (s *fakeStore) now() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *fakeStore) CreateSession(_ context.Context, userID, title string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := Session{ID: int64(len(s.sessions) + 1), UserID: userID, Title: title, CreatedAt: s.now()}
	s.sessions = append(s.sessions, session)
	return session, nil
}

func (s *fakeStore) GetSession(_ context.Context, id int64) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.ID == id {
			return session, true, nil
		}
	}
	return Session{}, false, nil
}

func (s *fakeStore) ListSessions(_ context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if s.sessions[i].UserID == userID {
			out = append(out, s.sessions[i])
		}
	}
	return out, nil
}

func (s *fakeStore) Append(_ context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return Message{}, s.appendErr
	}
	msg.ID = int64(len(s.messages) + 1)
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *fakeStore) Read(_ context.Context, sessionID int64, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) GetMessage(_ context.Context, id int64) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true, nil
		}
	}
	return Message{}, false, nil
}

func (s *fakeStore) UpdateScore(_ context.Context, id int64, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Score = &score
			return nil
		}
	}
	return errors.New("missing message")
}

func (s *fakeStore) EditMessage(_ context.Context, id int64, text string) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editGone {
		return Message{}, false, nil
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Text = text
			return s.messages[i], true, nil
		}
	}
	return Message{}, false, nil
}

func (s *fakeStore) SaveFeedback(_ context.Context, fb Feedback) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb.ID = int64(len(s.feedback) + 1)
	s.feedback = append(s.feedback, fb)
	return fb, nil
}

func (s *fakeStore) Stats(context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{TotalSessions: int64(len(s.sessions)), TotalMessages: int64(len(s.messages))}, nil
}

var corpus = []string{
	"Drink plenty of water and rest when you have a mild fever.",
	"Malaria is transmitted by the bite of infected mosquitoes.",
	"Wash your hands with soap to prevent the spread of cholera.",
}

type testModels struct {
	encoder *letterEncoder
	index   *sliceIndex
	cross   *tableCrossEncoder
	gen     *echoGenerator
	tok     *wordTokenizer
}

func newTestModels() *testModels {
	return &testModels{
		encoder: &letterEncoder{},
		index:   newSliceIndex(corpus),
		cross:   &tableCrossEncoder{scores: map[string]float64{corpus[1]: 0.97}, fallback: 0.1},
		gen:     &echoGenerator{},
		tok:     &wordTokenizer{},
	}
}

func (m *testModels) models() Models {
	return Models{
		Encoder:      m.encoder,
		Index:        m.index,
		Passages:     slicePassages(corpus),
		CrossEncoder: m.cross,
		Generator:    m.gen,
		Tokenizer:    m.tok,
	}
}
