// Package queue provides the unbounded FIFO used for both the outgoing
// (pending) and incoming (raw envelope) message queues.
package queue

import (
	"sync"
)

const minCapacity = 16

// Queue is a thread-safe, unbounded FIFO ring buffer. The backing slice
// doubles whenever it is full, so Push never drops or blocks.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int // next pop
	tail   int // next push
	count  int
	closed bool

	pushed  int64
	popped  int64
	resizes int
}

// New creates a queue with the given initial capacity hint.
func New[T any](capacity int) *Queue[T] {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	q := &Queue[T]{
		buf: make([]T, capacity),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item at the tail. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.count == len(q.buf) {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.pushed++

	q.cond.Signal()
	return true
}

// TryPop removes and returns the oldest item without blocking.
// An empty queue returns the zero value and false.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Pop removes and returns the oldest item, blocking until one is available.
// It returns false once the queue is closed and empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Drain removes up to max items (all items when max <= 0) in FIFO order.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = q.popLocked()
	}
	return out
}

// Close wakes blocked Pop callers. Items already queued can still be popped;
// further Push calls fail.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the current size of the backing buffer.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Stats returns a point-in-time snapshot of queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:     q.count,
		Cap:     len(q.buf),
		Pushed:  q.pushed,
		Popped:  q.popped,
		Resizes: q.resizes,
	}
}

// Stats contains queue counters.
type Stats struct {
	Len     int
	Cap     int
	Pushed  int64
	Popped  int64
	Resizes int
}

// popLocked must be called with q.mu held and q.count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // release reference
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.popped++
	return item
}

// grow doubles the backing buffer, unwrapping the ring. Lock must be held.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.buf)*2)

	if q.count > 0 {
		if q.head < q.tail {
			copy(next, q.buf[q.head:q.tail])
		} else {
			n := copy(next, q.buf[q.head:])
			copy(next[n:], q.buf[:q.tail])
		}
	}

	q.buf = next
	q.head = 0
	q.tail = q.count
	q.resizes++
}
