package reinforce

import (
	"context"
	"time"
)

// Sample is a positively scored answer paired with the question that produced it.
type Sample struct {
	SessionID int64   `json:"sessionId"`
	MessageID int64   `json:"messageId"`
	Question  string  `json:"question"`
	Answer    string  `json:"answer"`
	Score     float64 `json:"score"`
}

// JobStatus describes the outcome of a trigger.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobSkipped JobStatus = "skipped"
)

// Job is the fine-tuning request handed to the training worker.
type Job struct {
	ID         string    `json:"jobId"`
	Status     JobStatus `json:"status"`
	DatasetKey string    `json:"datasetKey,omitempty"`
	Samples    int       `json:"samples"`
	BaseModel  string    `json:"baseModel,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SampleSource lists training candidates from the conversation store.
type SampleSource interface {
	PositiveSamples(ctx context.Context, minScore float64, limit int) ([]Sample, error)
}

// DatasetStore persists exported datasets.
type DatasetStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// JobQueue hands jobs to the training worker.
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload any) error
}
