package engine

import (
	"sync"

	"github.com/COMEONSOM/stargrid/internal/state"
)

// requestKind distinguishes the request types the loop handles.
type requestKind int

const (
	// requestToggle flips the star state of one card.
	requestToggle requestKind = iota + 1
	// requestState asks for a snapshot of the registry.
	requestState
	// requestSettle is a barrier: it replies only after every request
	// ahead of it has been processed and deferred mutations flushed.
	requestSettle
	// requestReload ends the loop after a cross-tab identity conflict.
	requestReload
)

// request is one unit of work for the Run loop. reply is buffered
// (size 1) so the loop never blocks on a caller that gave up.
type request struct {
	kind  requestKind
	card  string
	reply chan response
}

// response carries the loop's answer back to the enqueuing caller.
type response struct {
	toggle ToggleResult
	snap   state.Snapshot
}

// requestQueue is a thread-safe FIFO queue feeding the Run loop.
//
// Unbounded on purpose: enqueuing must never block a caller, and the
// single consumer drains quickly. A buffered signal channel (size 1)
// lets the loop wait for work without spinning and stays select-able
// against context cancellation.
type requestQueue struct {
	mu     sync.Mutex
	items  []request
	closed bool
	signal chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		items:  make([]request, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Thread-safe. Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, r)

	// Non-blocking: the size-1 buffer coalesces repeated signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front request without blocking.
func (q *requestQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return request{}, false
	}
	r := q.items[0]

	// Zero the vacated slot so the reply channel it held can be
	// collected; the backing array lives as long as the queue.
	q.items[0] = request{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return r, true
}

// Wait returns the signal channel for select-based waiting. The channel
// can hold a stale token after a direct dequeue, so an empty queue after
// Wait fires does not mean closed; check Closed explicitly.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close was called.
func (q *requestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further enqueues and wakes all waiters by closing the
// signal channel. Idempotent.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
