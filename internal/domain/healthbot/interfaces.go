package healthbot

import (
	"context"
	"time"
)

// Encoder maps texts into the embedding space shared with the vector index.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorIndex performs nearest neighbour search over the corpus embeddings.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, k int) ([]IndexHit, error)
	Len() int
	Dimension() int
}

// PassageStore resolves index positions to corpus text.
type PassageStore interface {
	Passage(position int) (string, bool)
	Len() int
}

// CrossEncoder scores (question, passage) pairs jointly.
type CrossEncoder interface {
	Score(ctx context.Context, pairs []Pair) ([]float64, error)
}

// Generator runs the seq2seq model with fixed decode parameters.
type Generator interface {
	Generate(ctx context.Context, prompt string, params DecodeParams) (string, error)
}

// Tokenizer bounds prompts to the generator's input budget.
type Tokenizer interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// AnswerCache memoizes deterministic generations.
type AnswerCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, answer string, ttl time.Duration) error
}

// SessionStore persists sessions, messages and feedback.
type SessionStore interface {
	CreateSession(ctx context.Context, userID, title string) (Session, error)
	GetSession(ctx context.Context, sessionID int64) (Session, bool, error)
	ListSessions(ctx context.Context, userID string) ([]Session, error)
	Append(ctx context.Context, msg Message) (Message, error)
	Read(ctx context.Context, sessionID int64, limit int) ([]Message, error)
	GetMessage(ctx context.Context, messageID int64) (Message, bool, error)
	UpdateScore(ctx context.Context, messageID int64, score float64) error
	EditMessage(ctx context.Context, messageID int64, text string) (Message, bool, error)
	SaveFeedback(ctx context.Context, fb Feedback) (Feedback, error)
	Stats(ctx context.Context) (Stats, error)
}

// Recorder receives pipeline observations.
type Recorder interface {
	ObserveStage(stage Stage, elapsed time.Duration)
	ObserveResult(mode Mode, result Result)
}

// NopRecorder discards observations.
type NopRecorder struct{}

func (NopRecorder) ObserveStage(Stage, time.Duration) {}
func (NopRecorder) ObserveResult(Mode, Result)        {}

// Models bundles the loaded inference resources the pipeline runs on.
type Models struct {
	Encoder      Encoder
	Index        VectorIndex
	Passages     PassageStore
	CrossEncoder CrossEncoder
	Generator    Generator
	Tokenizer    Tokenizer
}
