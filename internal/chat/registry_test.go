package chat_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAnnouncesJoin(t *testing.T) {
	req := require.New(t)
	b := chat.NewBroadcast(10)
	watcher := b.Subscribe()
	r := chat.NewRegistry(b, quietLogger())

	id := uuid.New()
	req.NoError(r.Register(id, "alice", chat.NewOutbound()))

	req.True(r.Contains(id))
	req.Equal(1, r.Len())
	req.JSONEq(`{"type":"system","message":"alice joined"}`, recvString(t, watcher))
}

func TestRegistry_RegisterRejectsDuplicateID(t *testing.T) {
	req := require.New(t)
	r := chat.NewRegistry(chat.NewBroadcast(10), quietLogger())
	id := uuid.New()

	req.NoError(r.Register(id, "alice", chat.NewOutbound()))
	req.ErrorIs(r.Register(id, "mallory", chat.NewOutbound()), chat.ErrDuplicateSession)
	req.Equal([]string{"alice"}, r.SnapshotNames())
}

func TestRegistry_UnregisterAnnouncesLeaveOnce(t *testing.T) {
	req := require.New(t)
	b := chat.NewBroadcast(10)
	r := chat.NewRegistry(b, quietLogger())
	id := uuid.New()
	req.NoError(r.Register(id, "alice", chat.NewOutbound()))

	watcher := b.Subscribe()
	req.True(r.Unregister(id))
	req.False(r.Unregister(id))

	req.False(r.Contains(id))
	req.JSONEq(`{"type":"system","message":"alice left"}`, recvString(t, watcher))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := watcher.Recv(ctx)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestRegistry_LookupPrefersEarliestJoin(t *testing.T) {
	req := require.New(t)
	r := chat.NewRegistry(chat.NewBroadcast(10), quietLogger())

	first, second := chat.NewOutbound(), chat.NewOutbound()
	firstID := uuid.New()
	req.NoError(r.Register(firstID, "bob", first))
	req.NoError(r.Register(uuid.New(), "bob", second))
	req.NoError(r.Register(uuid.New(), "carol", chat.NewOutbound()))

	got, ok := r.LookupHandleByName("bob")
	req.True(ok)
	req.Same(first, got)

	all := r.LookupHandlesByName("bob")
	req.Len(all, 2)
	req.Same(first, all[0])
	req.Same(second, all[1])

	r.Unregister(firstID)
	got, ok = r.LookupHandleByName("bob")
	req.True(ok)
	req.Same(second, got)

	_, ok = r.LookupHandleByName("Bob")
	req.False(ok, "live lookup matches names exactly")
	_, ok = r.LookupHandleByName("dave")
	req.False(ok)
}

func TestRegistry_SnapshotNamesIsSortedAndUnique(t *testing.T) {
	r := chat.NewRegistry(chat.NewBroadcast(10), quietLogger())
	for _, name := range []string{"carol", "alice", "bob", "alice"} {
		require.NoError(t, r.Register(uuid.New(), name, chat.NewOutbound()))
	}

	require.Equal(t, []string{"alice", "bob", "carol"}, r.SnapshotNames())
}

func TestRegistry_SnapshotIsDetached(t *testing.T) {
	req := require.New(t)
	r := chat.NewRegistry(chat.NewBroadcast(10), quietLogger())
	id := uuid.New()
	out := chat.NewOutbound()
	req.NoError(r.Register(id, "bob", out))

	snap := r.Snapshot()
	r.Unregister(id)

	req.Empty(r.LookupHandlesByName("bob"))
	handles := snap.LookupHandlesByName("bob")
	req.Len(handles, 1)
	req.Same(out, handles[0])
}

func TestRegistry_ConcurrentChurnStaysConsistent(t *testing.T) {
	req := require.New(t)
	b := chat.NewBroadcast(chat.DefaultBroadcastCapacity)
	r := chat.NewRegistry(b, quietLogger())

	const workers = 16
	const rounds = 50

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("user-%d", w%4)
			for range rounds {
				id := uuid.New()
				if err := r.Register(id, name, chat.NewOutbound()); err != nil {
					t.Error(err)
					return
				}
				r.LookupHandlesByName(name)
				r.SnapshotNames()
				if !r.Unregister(id) {
					t.Errorf("session %s vanished before unregister", id)
					return
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				if err := r.CheckConsistency(); err != nil {
					t.Error(err)
					return
				}
			}
		}
	}()

	wg.Wait()
	close(done)

	req.NoError(r.CheckConsistency())
	req.Zero(r.Len())
	req.Empty(r.SnapshotNames())
}
