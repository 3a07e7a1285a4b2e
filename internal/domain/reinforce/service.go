package reinforce

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
	"github.com/yanqian/health-assistant/pkg/util"
)

// JobName identifies reinforcement jobs on the queue.
const JobName = "reinforce.finetune"

// Config drives sample selection and export.
type Config struct {
	MinScore      float64
	Limit         int
	DatasetPrefix string
	BaseModel     string
}

// Service exports positively rated conversations and triggers fine-tuning.
type Service struct {
	cfg    Config
	source SampleSource
	store  DatasetStore
	queue  JobQueue
	now    func() time.Time
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg Config, source SampleSource, store DatasetStore, queue JobQueue, logger *slog.Logger) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	if strings.TrimSpace(cfg.DatasetPrefix) == "" {
		cfg.DatasetPrefix = "datasets/reinforce"
	}
	return &Service{
		cfg:    cfg,
		source: source,
		store:  store,
		queue:  queue,
		now:    util.NowUTC,
		logger: logger.With("component", "reinforce.service"),
	}
}

type datasetRow struct {
	InputText  string `json:"input_text"`
	TargetText string `json:"target_text"`
}

// Trigger collects samples, uploads the dataset and enqueues a job. With no
// eligible samples nothing is uploaded and the job is reported as skipped.
func (s *Service) Trigger(ctx context.Context) (Job, error) {
	samples, err := s.source.PositiveSamples(ctx, s.cfg.MinScore, s.cfg.Limit)
	if err != nil {
		return Job{}, apperrors.Wrap(apperrors.CodeStorage, "failed to collect samples", err)
	}
	job := Job{ID: uuid.NewString(), CreatedAt: s.now(), BaseModel: s.cfg.BaseModel}
	if len(samples) == 0 {
		job.Status = JobSkipped
		s.logger.Info("no positive samples for fine-tuning", "min_score", s.cfg.MinScore)
		return job, nil
	}

	data, err := EncodeDataset(samples)
	if err != nil {
		return Job{}, apperrors.Wrap(apperrors.CodeStorage, "failed to encode dataset", err)
	}
	job.DatasetKey = strings.TrimSuffix(s.cfg.DatasetPrefix, "/") + "/" + job.ID + ".jsonl"
	job.Samples = len(samples)
	if err := s.store.Put(ctx, job.DatasetKey, data, "application/x-ndjson"); err != nil {
		return Job{}, apperrors.Wrap(apperrors.CodeStorage, "failed to upload dataset", err)
	}
	job.Status = JobQueued
	if err := s.queue.Enqueue(ctx, JobName, jobPayload(job)); err != nil {
		return Job{}, apperrors.Wrap(apperrors.CodeQueue, "failed to enqueue job", err)
	}
	s.logger.Info("fine-tuning job queued", "job_id", job.ID, "samples", job.Samples, "dataset", job.DatasetKey)
	return job, nil
}

// EncodeDataset renders samples as JSON lines in question/answer form.
func EncodeDataset(samples []Sample) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, sample := range samples {
		row := datasetRow{InputText: "question: " + sample.Question, TargetText: sample.Answer}
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func jobPayload(job Job) map[string]any {
	return map[string]any{
		"job_id":      job.ID,
		"dataset_key": job.DatasetKey,
		"samples":     job.Samples,
		"base_model":  job.BaseModel,
		"created_at":  job.CreatedAt.Format(time.RFC3339),
	}
}
