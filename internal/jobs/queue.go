package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"prover-api/internal/claim"
)

// ErrQueueFull is returned by TryEnqueue when the queue cannot take another
// message, either because it is at capacity or because it has been closed.
var ErrQueueFull = errors.New("job queue full")

// Message is a unit of work handed from the orchestrator to the worker pool.
type Message struct {
	JobID       string
	Request     claim.ValidatedRequest
	Fingerprint string
	EnqueuedAt  time.Time
}

// Queue is a bounded FIFO of pending proof jobs. The depth counter is kept
// separately from the channel so fullness can be checked without blocking.
type Queue struct {
	ch       chan Message
	capacity int64
	depth    atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:       make(chan Message, capacity),
		capacity: int64(capacity),
	}
}

// TryEnqueue adds msg to the queue without blocking.
func (q *Queue) TryEnqueue(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueFull
	}

	// Reserve a slot first so concurrent producers cannot overshoot.
	for {
		cur := q.depth.Load()
		if cur >= q.capacity {
			return ErrQueueFull
		}
		if q.depth.CompareAndSwap(cur, cur+1) {
			break
		}
	}

	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}

	select {
	case q.ch <- msg:
		return nil
	default:
		q.depth.Add(-1)
		return ErrQueueFull
	}
}

// Receive blocks until a message is available, the queue is closed and
// drained, or ctx is done. The depth counter is decremented as soon as the
// message is taken.
func (q *Queue) Receive(ctx context.Context) (Message, bool) {
	select {
	case msg, ok := <-q.ch:
		if !ok {
			return Message{}, false
		}
		q.depth.Add(-1)
		return msg, true
	case <-ctx.Done():
		return Message{}, false
	}
}

// Close stops admission. Messages already queued can still be received.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Len is the number of queued messages not yet received.
func (q *Queue) Len() int {
	return int(q.depth.Load())
}

func (q *Queue) Cap() int {
	return int(q.capacity)
}
