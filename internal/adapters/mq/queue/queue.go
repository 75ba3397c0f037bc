// Package queue carries fetched raw items from the ingestion task to the
// worker pool through an in-memory bounded queue.
package queue

import (
	"context"
	"sync"

	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/pkg/metrics"
)

// Default queue configuration constants.
const defaultCapacity = 10000

// Item is the payload type flowing through the queue.
type Item = model.RawItem

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an item to the queue. Returns false when the queue is
	// full or closed; it never blocks.
	Enqueue(ctx context.Context, item Item) bool

	// Dequeue returns a channel that receives items as they become
	// available. The channel closes when the queue closes.
	Dequeue(ctx context.Context) <-chan Item

	// Len returns the current number of queued items.
	Len(ctx context.Context) int

	// Close stops the queue. Queued items still drain to consumers.
	Close() error

	// IsClosed reports whether the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Item
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.items = make(chan Item, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds an item without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, item Item) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.items <- item:
		q.publishGauges()
		return true
	case <-ctx.Done():
		return false
	default:
		// Full: backpressure is the caller's problem.
		return false
	}
}

// Dequeue returns a channel that receives items until the queue closes or
// ctx is canceled.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for item := range q.items {
			select {
			case out <- item:
				q.publishGauges()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued items.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.items)
}

// Close stops the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed reports whether the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) publishGauges() {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
