package queue

import (
	"context"
	"sync"
)

// ImmediateQueue calls the handler in a goroutine on enqueue.
type ImmediateQueue struct {
	mu      sync.RWMutex
	handler Handler
}

// NewImmediateQueue constructs the queue.
func NewImmediateQueue(handler Handler) *ImmediateQueue {
	return &ImmediateQueue{handler: handler}
}

// SetHandler replaces the handler used for queued jobs.
func (q *ImmediateQueue) SetHandler(handler Handler) {
	q.mu.Lock()
	q.handler = handler
	q.mu.Unlock()
}

// Enqueue invokes the handler asynchronously. Jobs are dropped when no
// handler is set.
func (q *ImmediateQueue) Enqueue(ctx context.Context, name string, payload any) error {
	object, err := payloadObject(payload)
	if err != nil {
		return err
	}
	q.mu.RLock()
	handler := q.handler
	q.mu.RUnlock()
	if handler == nil {
		return nil
	}
	go handler(context.WithoutCancel(ctx), name, object)
	return nil
}

var _ HandlerQueue = (*ImmediateQueue)(nil)
