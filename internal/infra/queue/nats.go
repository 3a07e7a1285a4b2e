package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSOptions tunes the connection to the broker.
type NATSOptions struct {
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	WorkerGroup    string
}

// NATSQueue publishes jobs to a subject and optionally consumes them as part
// of a queue group.
type NATSQueue struct {
	conn    *nats.Conn
	subject string
	group   string
	logger  *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNATSQueue connects to url and publishes jobs to subject.
func NewNATSQueue(url, subject string, opts NATSOptions, logger *slog.Logger) (*NATSQueue, error) {
	if opts.Name == "" {
		opts.Name = "health-assistant"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 60
	}
	if opts.WorkerGroup == "" {
		opts.WorkerGroup = "reinforce-workers"
	}
	logger = logger.With("component", "queue.nats")

	conn, err := nats.Connect(
		url,
		nats.Name(opts.Name),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSQueue{conn: conn, subject: subject, group: opts.WorkerGroup, logger: logger}, nil
}

// Enqueue publishes the job envelope.
func (q *NATSQueue) Enqueue(_ context.Context, name string, payload any) error {
	encoded, err := encodeEnvelope(name, payload)
	if err != nil {
		return err
	}
	if err := q.conn.Publish(q.subject, encoded); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// SetHandler subscribes to the subject in the worker queue group, draining
// any previous subscription. A nil handler only unsubscribes.
func (q *NATSQueue) SetHandler(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drainLocked()
	if handler == nil {
		return
	}
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		job, err := decodeEnvelope(msg.Data)
		if err != nil {
			q.logger.Warn("nats job unmarshal failed", "error", err)
			return
		}
		handler(context.Background(), job.Name, job.Payload)
	})
	if err != nil {
		q.logger.Error("nats subscribe failed", "subject", q.subject, "error", err)
		return
	}
	q.sub = sub
}

// Close drains the subscription and closes the connection.
func (q *NATSQueue) Close() {
	q.mu.Lock()
	q.drainLocked()
	q.mu.Unlock()
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *NATSQueue) drainLocked() {
	if q.sub == nil {
		return
	}
	if err := q.sub.Drain(); err != nil {
		q.logger.Warn("nats drain failed", "error", err)
	}
	q.sub = nil
}

var _ HandlerQueue = (*NATSQueue)(nil)
