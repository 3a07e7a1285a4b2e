package healthbot

import "time"

// Role identifies the author of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode selects how the pipeline treats conversation state.
type Mode string

const (
	ModeSession   Mode = "session"
	ModeStateless Mode = "stateless"
)

// Stage names a state of the answering pipeline.
type Stage string

const (
	StageCrisisCheck   Stage = "crisis_check"
	StageRetrieve      Stage = "retrieve"
	StageRerank        Stage = "rerank"
	StageGenerate      Stage = "generate"
	StageScore         Stage = "score"
	StageFlagged       Stage = "flagged"
	StageLowConfidence Stage = "low_confidence"
	StageDone          Stage = "done"
)

// Fixed user facing answers.
const (
	SafetyAnswer = "If you are thinking about harming yourself or others, please seek immediate help. " +
		"Contact local emergency services or a mental health professional. " +
		"If you are in Rwanda, call your local hotline for urgent support. " +
		"I cannot provide emergency intervention."
	LowConfidenceAnswer          = "I'm not sure about that. Please consult a qualified health professional or provide more details."
	StatelessLowConfidenceAnswer = "I'm not confident enough to answer that. Please consult a healthcare provider."
	DefaultSessionTitle          = "New Chat"
)

// Session groups the messages of one conversation.
type Session struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one persisted conversational turn. Assistant messages carry the
// reward in Score, the rerank confidence and the passage used as context.
type Message struct {
	ID         int64     `json:"id"`
	SessionID  int64     `json:"sessionId"`
	Role       Role      `json:"role"`
	Text       string    `json:"message"`
	Score      *float64  `json:"score,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Source     *string   `json:"source,omitempty"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Feedback records an explicit human rating of an assistant message.
type Feedback struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	MessageID int64     `json:"messageId"`
	Rating    float64   `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Reward    float64   `json:"reward"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats summarizes stored conversations.
type Stats struct {
	TotalSessions int64    `json:"totalSessions"`
	TotalMessages int64    `json:"totalMessages"`
	AvgScore      *float64 `json:"avgScore"`
}

// Query is the transient input of one pipeline run.
type Query struct {
	Question string
	History  []Message
}

// Candidate is a retrieved passage with its vector similarity.
type Candidate struct {
	Position   int     `json:"position"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// RerankResult carries the cross-encoder outcome. Best is set only when the
// best score clears the threshold; Confident is the single gate decision.
type RerankResult struct {
	Best      *string   `json:"best,omitempty"`
	BestIndex int       `json:"bestIndex"`
	BestScore float64   `json:"bestScore"`
	Scores    []float64 `json:"scores"`
	Confident bool      `json:"confident"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"score"`
	Source     *string  `json:"source"`
	Flagged    bool     `json:"flagged"`
	Reward     *float64 `json:"reward,omitempty"`
	Stage      Stage    `json:"stage"`
}

// IndexHit is a raw nearest neighbour returned by a VectorIndex.
type IndexHit struct {
	Position int
	Score    float64
}

// Pair is one (question, passage) input of the cross-encoder.
type Pair struct {
	Query   string
	Passage string
}

// DecodeParams fixes the beam search configuration of the generator.
type DecodeParams struct {
	MaxLength         int     `json:"max_length"`
	NumBeams          int     `json:"num_beams"`
	NoRepeatNgramSize int     `json:"no_repeat_ngram_size"`
	LengthPenalty     float64 `json:"length_penalty"`
	EarlyStopping     bool    `json:"early_stopping"`
	DoSample          bool    `json:"do_sample"`
}

// DefaultDecodeParams returns the deterministic decoding configuration.
func DefaultDecodeParams() DecodeParams {
	return DecodeParams{
		MaxLength:         500,
		NumBeams:          16,
		NoRepeatNgramSize: 14,
		LengthPenalty:     0.2,
		EarlyStopping:     true,
		DoSample:          false,
	}
}
