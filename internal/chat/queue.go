package chat

import (
	"context"
	"sync"
)

// Outbound is the per-session delivery queue. Any goroutine may Push; only
// the owning session's relay may Pop. The queue is unbounded, so a client
// that stops reading grows it without limit until its session ends.
type Outbound struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool
	ready  chan struct{}

	pushed  uint64
	dropped uint64
}

// NewOutbound creates an empty open queue.
func NewOutbound() *Outbound {
	return &Outbound{ready: make(chan struct{}, 1)}
}

// Push appends a frame. It returns false, without error, when the queue has
// already been closed by its session.
func (q *Outbound) Push(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped++
		return false
	}
	q.items = append(q.items, frame)
	q.pushed++

	// ready is closed only under mu, so this send cannot race with Close.
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest frame, blocking until one is available, ctx is done
// or the queue is closed.
func (q *Outbound) Pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if len(q.items) > 0 {
			frame := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return frame, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Close discards pending frames and turns later pushes into no-ops.
func (q *Outbound) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.dropped += uint64(len(q.items))
	q.items = nil
	close(q.ready)
}

// Len returns the number of frames waiting to be written.
func (q *Outbound) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether the owning session has released the queue.
func (q *Outbound) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats returns how many frames were accepted and how many were discarded.
func (q *Outbound) Stats() (pushed, dropped uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed, q.dropped
}
