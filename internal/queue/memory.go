package queue

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultBufferSize     = 1000
	DefaultRedeliverDelay = time.Second
)

// MemoryQueue is a buffered channel for single-process deployments. Nacked
// ids come back after a delay; nothing survives a restart, the replay job
// covers that.
type MemoryQueue struct {
	ch             chan string
	done           chan struct{}
	redeliverDelay time.Duration

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

func NewMemoryQueue(bufferSize int, redeliverDelay time.Duration) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if redeliverDelay <= 0 {
		redeliverDelay = DefaultRedeliverDelay
	}
	return &MemoryQueue{
		ch:             make(chan string, bufferSize),
		done:           make(chan struct{}),
		redeliverDelay: redeliverDelay,
		timers:         make(map[*time.Timer]struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, id string) error {
	if q.isClosed() {
		return ErrClosed
	}
	select {
	case q.ch <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-q.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	var t *time.Timer
	t = time.AfterFunc(q.redeliverDelay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		_ = q.Publish(context.Background(), id)
	})
	q.timers[t] = struct{}{}
	return nil
}

func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	close(q.done)
	return nil
}

func (q *MemoryQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
