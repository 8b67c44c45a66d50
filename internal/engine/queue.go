package engine

import (
	"sync"

	"github.com/xll-gen/rtd/internal/ir"
)

// Update is a value pushed into a FeedProducer for one topic.
type Update struct {
	Key   int32
	Value ir.Value
}

// updateQueue is a thread-safe FIFO of pending updates.
//
// The queue is unbounded so that feeds never block on a slow consumer; the
// worker collapses everything queued since its last wakeup into one batch.
//
// The signal channel (buffered, size 1) coalesces wakeups and lets the worker
// wait in a select alongside its stop channel.
type updateQueue struct {
	mu      sync.Mutex
	updates []Update
	closed  bool
	signal  chan struct{}
}

// newUpdateQueue creates an empty queue.
func newUpdateQueue() *updateQueue {
	return &updateQueue{
		updates: make([]Update, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an update to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *updateQueue) Enqueue(u Update) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.updates = append(q.updates, u)

	// Non-blocking: a pending signal already covers this update.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TakeAll removes and returns every queued update in FIFO order.
// Returns nil if the queue is empty.
func (q *updateQueue) TakeAll() []Update {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.updates) == 0 {
		return nil
	}

	out := q.updates
	q.updates = make([]Update, 0, cap(out))
	return out
}

// Wait returns a channel that signals when updates may be available.
//
//	select {
//	case <-stop:
//	    return
//	case <-q.Wait():
//	    batch := q.TakeAll()
//	}
func (q *updateQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.updates)
}

// Close rejects further updates and wakes any waiter. Idempotent.
func (q *updateQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
