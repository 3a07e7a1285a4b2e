package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

// DefaultValkeyKey is the list that holds pending fine-tuning jobs.
const DefaultValkeyKey = "healthbot:reinforce:jobs"

const (
	minPopBackoff = 100 * time.Millisecond
	maxPopBackoff = 5 * time.Second
)

// ValkeyQueue keeps fine-tuning jobs in a Valkey list. Producers LPUSH; an
// optional in-process worker BRPOPs and hands jobs to the current handler.
type ValkeyQueue struct {
	client   valkey.Client
	queueKey string
	logger   *slog.Logger

	// pop blocks for the next raw envelope; ok is false on an empty poll.
	pop func(ctx context.Context) (raw string, ok bool, err error)

	mu      sync.Mutex
	handler Handler
	running bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewValkeyQueue constructs a Valkey-backed queue. The worker starts on the
// first non-nil SetHandler.
func NewValkeyQueue(client valkey.Client, queueKey string, logger *slog.Logger) *ValkeyQueue {
	if queueKey == "" {
		queueKey = DefaultValkeyKey
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &ValkeyQueue{
		client:   client,
		queueKey: queueKey,
		logger:   logger.With("component", "queue.valkey"),
		ctx:      ctx,
		cancel:   cancel,
	}
	q.pop = q.brpop(5 * time.Second)
	return q
}

// SetHandler swaps the handler. A nil handler stops the worker after the job
// in flight, leaving further jobs in the list.
func (q *ValkeyQueue) SetHandler(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	if handler != nil && !q.running && q.ctx.Err() == nil {
		q.running = true
		go q.consume()
	}
}

// Enqueue pushes a job onto the list.
func (q *ValkeyQueue) Enqueue(ctx context.Context, name string, payload any) error {
	encoded, err := encodeEnvelope(name, payload)
	if err != nil {
		return err
	}
	cmd := q.client.B().Lpush().Key(q.queueKey).Element(string(encoded)).Build()
	return q.client.Do(ctx, cmd).Error()
}

// Close stops the worker and aborts a blocked pop.
func (q *ValkeyQueue) Close() {
	q.cancel()
}

func (q *ValkeyQueue) brpop(timeout time.Duration) func(ctx context.Context) (string, bool, error) {
	return func(ctx context.Context) (string, bool, error) {
		cmd := q.client.B().Brpop().Key(q.queueKey).Timeout(timeout.Seconds()).Build()
		values, err := q.client.Do(ctx, cmd).ToArray()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				return "", false, nil
			}
			return "", false, err
		}
		if len(values) < 2 {
			return "", false, nil
		}
		raw, err := values[1].ToString()
		if err != nil {
			return "", false, err
		}
		return raw, true, nil
	}
}

// activeHandler returns the handler for the next pop, or nil after marking the
// worker stopped.
func (q *ValkeyQueue) activeHandler() Handler {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handler == nil || q.ctx.Err() != nil {
		q.running = false
		return nil
	}
	return q.handler
}

func (q *ValkeyQueue) consume() {
	backoff := minPopBackoff
	for {
		handler := q.activeHandler()
		if handler == nil {
			return
		}
		raw, ok, err := q.pop(q.ctx)
		if err != nil {
			if q.ctx.Err() != nil {
				continue
			}
			q.logger.Warn("valkey queue pop failed", "error", err, "retry_in", backoff)
			select {
			case <-q.ctx.Done():
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxPopBackoff)
			continue
		}
		backoff = minPopBackoff
		if !ok {
			continue
		}
		job, err := decodeEnvelope([]byte(raw))
		if err != nil {
			q.logger.Warn("valkey queue unmarshal failed", "error", err)
			continue
		}
		handler(q.ctx, job.Name, job.Payload)
	}
}

var _ HandlerQueue = (*ValkeyQueue)(nil)
