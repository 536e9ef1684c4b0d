package journal

import (
	"sync"
	"time"

	"github.com/roach88/onelane/internal/bridge"
)

// pending is an event waiting to be written.
type pending struct {
	event      bridge.Event
	recordedAt time.Time
}

// eventQueue is a thread-safe unbounded FIFO between bridge observers and
// the recorder's writer goroutine.
//
// The queue is unbounded so Observe never blocks the bridge. The signal
// channel enables context-aware waiting in Recorder.Run.
type eventQueue struct {
	mu     sync.Mutex
	items  []pending
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		items:  make([]pending, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(p pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, p)

	// Non-blocking: the size-1 buffer coalesces signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front item without blocking.
func (q *eventQueue) TryDequeue() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return pending{}, false
	}
	p := q.items[0]
	// Drop the reference so the snapshot slices can be collected.
	q.items[0] = pending{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return p, true
}

// Wait returns a channel that signals when items may be available. It is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further items and wakes the waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
