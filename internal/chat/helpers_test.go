package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const frameTimeout = time.Second

var errWriteFailed = errors.New("write failed")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport is an in-memory client connection. The test plays the client:
// send pushes a frame to the server, nextFrame reads what the server wrote.
type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	cause     error
	failWrite bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case raw := <-f.in:
		return raw, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeTransport) WriteFrame(frame []byte) error {
	f.mu.Lock()
	fail := f.failWrite
	f.mu.Unlock()
	if fail {
		return errWriteFailed
	}
	select {
	case f.out <- frame:
		return nil
	case <-f.closed:
		return io.ErrClosedPipe
	}
}

func (f *fakeTransport) Close(cause error) error {
	f.once.Do(func() {
		f.mu.Lock()
		f.cause = cause
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) closeCause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cause
}

func (f *fakeTransport) breakWrites() {
	f.mu.Lock()
	f.failWrite = true
	f.mu.Unlock()
}

func (f *fakeTransport) send(t *testing.T, raw string) {
	t.Helper()
	select {
	case f.in <- []byte(raw):
	case <-f.closed:
		t.Fatalf("transport closed before %s could be sent", raw)
	case <-time.After(frameTimeout):
		t.Fatalf("server did not read %s", raw)
	}
}

func (f *fakeTransport) hangUp() {
	_ = f.Close(nil)
}

func (f *fakeTransport) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-f.out:
		return string(frame)
	case <-time.After(frameTimeout):
		t.Fatal("timed out waiting for a frame")
		return ""
	}
}

func (f *fakeTransport) expectFrame(t *testing.T, want string) {
	t.Helper()
	require.JSONEq(t, want, f.nextFrame(t))
}

func (f *fakeTransport) expectNoFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case frame := <-f.out:
		t.Fatalf("expected no frame, got %s", frame)
	case <-time.After(wait):
	}
}

// memoryStore is a MessageStore kept in a slice.
type memoryStore struct {
	mu       sync.Mutex
	messages []chat.MessageEvent
}

func (m *memoryStore) Save(_ context.Context, ev chat.MessageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	m.messages = append(m.messages, ev)
	return nil
}

func (m *memoryStore) QueryPublic(_ context.Context, limit int) ([]chat.MessageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []chat.MessageEvent
	for _, ev := range m.messages {
		if ev.Kind == chat.KindChat {
			out = append(out, ev)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memoryStore) QueryDirect(_ context.Context, a, b string) ([]chat.MessageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []chat.MessageEvent
	for _, ev := range m.messages {
		if ev.Kind != chat.KindDirect {
			continue
		}
		if (chat.SameName(ev.Sender, a) && chat.SameName(ev.Target, b)) ||
			(chat.SameName(ev.Sender, b) && chat.SameName(ev.Target, a)) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// connect serves a session on hub and waits until it is registered and
// subscribed, so broadcasts published afterwards reach it.
func connect(t *testing.T, hub *chat.Hub, name string) *fakeTransport {
	t.Helper()
	tr := newFakeTransport()
	want := hub.Registry().Len() + 1
	_, err := hub.Serve(name, tr)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return hub.Registry().Len() == want && hub.Broadcast().Subscribers() == want
	}, frameTimeout, 5*time.Millisecond)
	return tr
}

func newTestHub(t *testing.T, store chat.MessageStore, opts ...chat.Option) *chat.Hub {
	t.Helper()
	hub := chat.NewHub(store, quietLogger(), opts...)
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })
	return hub
}
