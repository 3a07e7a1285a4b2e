package reinforce

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/health-assistant/pkg/errors"
)

type stubSource struct {
	samples  []Sample
	err      error
	minScore float64
	limit    int
}

func (s *stubSource) PositiveSamples(_ context.Context, minScore float64, limit int) ([]Sample, error) {
	s.minScore, s.limit = minScore, limit
	return s.samples, s.err
}

type recordingStore struct {
	objects map[string][]byte
	err     error
}

func (s *recordingStore) Put(_ context.Context, key string, data []byte, _ string) error {
	if s.err != nil {
		return s.err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = data
	return nil
}

type recordingQueue struct {
	names    []string
	payloads []any
	err      error
}

func (q *recordingQueue) Enqueue(_ context.Context, name string, payload any) error {
	q.names = append(q.names, name)
	q.payloads = append(q.payloads, payload)
	return q.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTriggerQueuesDataset(t *testing.T) {
	source := &stubSource{samples: []Sample{
		{SessionID: 1, MessageID: 2, Question: "What causes malaria?", Answer: "Mosquito bites.", Score: 0.9},
		{SessionID: 1, MessageID: 4, Question: "How to treat fever?", Answer: "Rest and fluids.", Score: 0.7},
	}}
	store := &recordingStore{}
	queue := &recordingQueue{}
	svc := NewService(Config{MinScore: 0.5, BaseModel: "flan-t5-health"}, source, store, queue, newTestLogger())

	job, err := svc.Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, JobQueued, job.Status)
	require.Equal(t, 2, job.Samples)
	require.Equal(t, 0.5, source.minScore)
	require.Equal(t, 1000, source.limit)
	require.True(t, strings.HasPrefix(job.DatasetKey, "datasets/reinforce/"))
	require.True(t, strings.HasSuffix(job.DatasetKey, job.ID+".jsonl"))

	data := store.objects[job.DatasetKey]
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var rows []datasetRow
	for scanner.Scan() {
		var row datasetRow
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		rows = append(rows, row)
	}
	require.Equal(t, []datasetRow{
		{InputText: "question: What causes malaria?", TargetText: "Mosquito bites."},
		{InputText: "question: How to treat fever?", TargetText: "Rest and fluids."},
	}, rows)

	require.Equal(t, []string{JobName}, queue.names)
	payload := queue.payloads[0].(map[string]any)
	require.Equal(t, job.ID, payload["job_id"])
	require.Equal(t, "flan-t5-health", payload["base_model"])
}

func TestTriggerSkipsWithoutSamples(t *testing.T) {
	store := &recordingStore{}
	queue := &recordingQueue{}
	job, err := NewService(Config{}, &stubSource{}, store, queue, newTestLogger()).Trigger(context.Background())
	require.NoError(t, err)
	require.Equal(t, JobSkipped, job.Status)
	require.Empty(t, store.objects)
	require.Empty(t, queue.names)
}

func TestTriggerFailures(t *testing.T) {
	samples := []Sample{{Question: "q", Answer: "a", Score: 1}}

	_, err := NewService(Config{}, &stubSource{err: errors.New("db")}, &recordingStore{}, &recordingQueue{}, newTestLogger()).Trigger(context.Background())
	require.True(t, apperrors.IsCode(err, apperrors.CodeStorage))

	_, err = NewService(Config{}, &stubSource{samples: samples}, &recordingStore{err: errors.New("s3")}, &recordingQueue{}, newTestLogger()).Trigger(context.Background())
	require.True(t, apperrors.IsCode(err, apperrors.CodeStorage))

	_, err = NewService(Config{}, &stubSource{samples: samples}, &recordingStore{}, &recordingQueue{err: errors.New("nats")}, newTestLogger()).Trigger(context.Background())
	require.True(t, apperrors.IsCode(err, apperrors.CodeQueue))
}
