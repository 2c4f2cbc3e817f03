package engine

import "sync"

// RecalcRequest asks for one return to be recalculated.
type RecalcRequest struct {
	ReturnID string
}

// recalcQueue is a thread-safe FIFO queue for recalculation requests.
//
// The queue is unbounded so a burst of field updates can enqueue
// without blocking the writers.
//
// Thread-safety is provided for external enqueuing (e.g., API
// handlers) while the engine's Run loop dequeues. In practice, most
// usage is single-threaded.
//
// The queue uses a channel for signaling to enable context-aware
// waiting in the Run loop (prevents goroutine hangs on context
// cancellation).
type recalcQueue struct {
	mu       sync.Mutex
	requests []RecalcRequest
	closed   bool
	signal   chan struct{} // Signals request availability (buffered, size 1)
}

// newRecalcQueue creates an empty queue.
func newRecalcQueue() *recalcQueue {
	return &recalcQueue{
		requests: make([]RecalcRequest, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue. A return already
// waiting in the queue is not enqueued again; one pass recalculates
// everything, so back-to-back duplicates add no information.
//
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *recalcQueue) Enqueue(r RecalcRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	for _, pending := range q.requests {
		if pending.ReturnID == r.ReturnID {
			return true
		}
	}
	q.requests = append(q.requests, r)

	// Non-blocking signal - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (RecalcRequest{}, false) if the queue is empty.
func (q *recalcQueue) TryDequeue() (RecalcRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return RecalcRequest{}, false
	}

	r := q.requests[0]
	q.requests[0] = RecalcRequest{}
	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}

	return r, true
}

// Wait returns a channel that signals when requests may be available.
// Use with select for context-aware waiting.
func (q *recalcQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *recalcQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close signals that no more requests will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *recalcQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
