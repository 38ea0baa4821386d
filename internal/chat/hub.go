package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub owns the registry and broadcast channel shared by every session and
// tracks running sessions so they can be shut down together.
type Hub struct {
	registry  *Registry
	broadcast *Broadcast
	store     MessageStore
	log       *slog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option customises a Hub.
type Option func(*hubOptions)

type hubOptions struct {
	capacity int
	now      func() time.Time
}

// WithBroadcastCapacity sets how many messages a subscriber may lag behind.
func WithBroadcastCapacity(n int) Option {
	return func(o *hubOptions) { o.capacity = n }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *hubOptions) { o.now = now }
}

// NewHub creates a hub persisting messages to store.
func NewHub(store MessageStore, log *slog.Logger, opts ...Option) *Hub {
	o := hubOptions{capacity: DefaultBroadcastCapacity, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = slog.Default()
	}

	broadcast := NewBroadcast(o.capacity)
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:  NewRegistry(broadcast, log),
		broadcast: broadcast,
		store:     store,
		log:       log,
		now:       o.now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Broadcast returns the hub's fan-out channel.
func (h *Hub) Broadcast() *Broadcast { return h.broadcast }

// Online returns the display names of every connected session.
func (h *Hub) Online() []string { return h.registry.SnapshotNames() }

// NewSession prepares a session for name on t without starting it.
func (h *Hub) NewSession(name string, t Transport) *Session {
	return &Session{
		name:      name,
		transport: t,
		registry:  h.registry,
		broadcast: h.broadcast,
		store:     h.store,
		log:       h.log,
		now:       h.now,
		id:        uuid.New(),
		out:       NewOutbound(),
	}
}

// Serve starts a session for name on t in its own goroutine and returns it.
// After Shutdown it closes t and returns ErrHubClosed.
func (h *Hub) Serve(name string, t Transport) (*Session, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = t.Close(ErrHubClosed)
		return nil, ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()

	session := h.NewSession(name, t)
	go func() {
		defer h.wg.Done()
		_ = session.Run(h.ctx)
	}()
	return session, nil
}

// Shutdown stops accepting sessions, ends every running one and waits for
// them to finish tearing down, up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown", "sessions", h.registry.Len())

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.broadcast.Close()
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timed out; some sessions may still be running")
		return context.DeadlineExceeded
	}
}
