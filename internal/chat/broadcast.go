package chat

import (
	"context"
	"sync"
)

// DefaultBroadcastCapacity is the number of messages a subscriber may fall
// behind before it starts losing the oldest ones.
const DefaultBroadcastCapacity = 100

// Broadcast is a lossy fan-out channel backed by a ring buffer. Publishers
// never block; a subscriber that falls more than the capacity behind skips
// ahead and is told how many messages it missed.
type Broadcast struct {
	mu          sync.Mutex
	buf         [][]byte
	next        uint64 // sequence number of the next published message
	wake        chan struct{}
	subscribers int
	closed      bool
}

// NewBroadcast creates a channel retaining up to capacity messages.
func NewBroadcast(capacity int) *Broadcast {
	if capacity <= 0 {
		capacity = DefaultBroadcastCapacity
	}
	return &Broadcast{
		buf:  make([][]byte, capacity),
		wake: make(chan struct{}),
	}
}

// Publish appends frame to the backlog and wakes every waiting subscriber.
// It returns the number of subscribers at publication time.
func (b *Broadcast) Publish(frame []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}
	b.buf[b.next%uint64(len(b.buf))] = frame
	b.next++
	close(b.wake)
	b.wake = make(chan struct{})
	return b.subscribers
}

// Subscribe returns a subscription that sees only messages published after
// this call.
func (b *Broadcast) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers++
	return &Subscription{b: b, next: b.next}
}

// Subscribers returns the number of open subscriptions.
func (b *Broadcast) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribers
}

// Close ends every subscription once its backlog is drained.
func (b *Broadcast) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.wake)
}

// oldest returns the sequence number of the oldest retained message.
// Callers hold mu.
func (b *Broadcast) oldest() uint64 {
	capacity := uint64(len(b.buf))
	if b.next <= capacity {
		return 0
	}
	return b.next - capacity
}

// Subscription is one reader's cursor into a Broadcast. It must only be used
// from a single goroutine.
type Subscription struct {
	b      *Broadcast
	next   uint64
	closed bool
}

// Recv returns the next message. If messages were overwritten before this
// subscriber read them it returns a *LaggedError and resumes at the oldest
// retained message on the following call.
func (s *Subscription) Recv(ctx context.Context) ([]byte, error) {
	b := s.b
	for {
		b.mu.Lock()
		if s.closed {
			b.mu.Unlock()
			return nil, ErrBroadcastClosed
		}
		if oldest := b.oldest(); s.next < oldest {
			skipped := oldest - s.next
			s.next = oldest
			b.mu.Unlock()
			return nil, &LaggedError{Skipped: skipped}
		}
		if s.next < b.next {
			frame := b.buf[s.next%uint64(len(b.buf))]
			s.next++
			b.mu.Unlock()
			return frame, nil
		}
		if b.closed {
			b.mu.Unlock()
			return nil, ErrBroadcastClosed
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Close releases the subscription.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.b.subscribers--
}
