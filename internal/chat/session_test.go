package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/Tyrowin/relaychat/internal/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const quiet = 100 * time.Millisecond

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestSession_PublicChatReachesEveryone(t *testing.T) {
	req := require.New(t)
	store := &memoryStore{}
	hub := newTestHub(t, store, chat.WithClock(fixedClock()))

	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	alice.expectFrame(t, `{"type":"system","message":"bob joined"}`)

	alice.send(t, `{"type":"chat","message":"hello"}`)

	want := `{"type":"chat","username":"alice","message":"hello","upload_url":""}`
	alice.expectFrame(t, want)
	bob.expectFrame(t, want)

	req.Equal(1, store.count())
	history, err := store.QueryPublic(context.Background(), chat.DefaultHistoryLimit)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("alice", history[0].Sender)
	req.NotZero(history[0].ID)
}

func TestSession_DirectMessageReachesOnlyRecipient(t *testing.T) {
	req := require.New(t)
	store := &memoryStore{}
	hub := newTestHub(t, store)

	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	carol := connect(t, hub, "carol")
	alice.expectFrame(t, `{"type":"system","message":"bob joined"}`)
	alice.expectFrame(t, `{"type":"system","message":"carol joined"}`)
	bob.expectFrame(t, `{"type":"system","message":"carol joined"}`)

	alice.send(t, `{"type":"dm","to":"bob","message":"psst","upload_url":"/uploads/a.png"}`)

	bob.expectFrame(t, `{"type":"dm","from":"alice","message":"psst","upload_url":"/uploads/a.png"}`)
	alice.expectNoFrame(t, quiet)
	carol.expectNoFrame(t, quiet)

	dms, err := store.QueryDirect(context.Background(), "BOB", " alice ")
	req.NoError(err)
	req.Len(dms, 1)
}

func TestSession_DirectMessageToOfflineUserIsOnlyPersisted(t *testing.T) {
	store := &memoryStore{}
	hub := newTestHub(t, store)
	alice := connect(t, hub, "alice")

	alice.send(t, `{"type":"dm","to":"dave","message":"are you there"}`)

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	alice.expectNoFrame(t, quiet)
}

func TestSession_DisconnectAnnouncesDeparture(t *testing.T) {
	hub := newTestHub(t, &memoryStore{})
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	alice.expectFrame(t, `{"type":"system","message":"bob joined"}`)

	bob.hangUp()

	alice.expectFrame(t, `{"type":"system","message":"bob left"}`)
	require.Eventually(t, func() bool { return hub.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"alice"}, hub.Online())
}

func TestSession_MalformedFramesAreIgnored(t *testing.T) {
	store := &memoryStore{}
	hub := newTestHub(t, store)
	alice := connect(t, hub, "alice")

	alice.send(t, `not json`)
	alice.send(t, `{"type":"dm","message":"nobody"}`)
	alice.send(t, `{"type":"chat","message":"still here"}`)

	alice.expectFrame(t, `{"type":"chat","username":"alice","message":"still here","upload_url":""}`)
	require.Equal(t, 1, store.count())
}

func TestSession_SelfDirectMessageEndsSession(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Times(0)

	hub := newTestHub(t, store)
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	alice.expectFrame(t, `{"type":"system","message":"bob joined"}`)

	bob.send(t, `{"type":"dm","to":" BOB ","message":"note to self"}`)

	alice.expectFrame(t, `{"type":"system","message":"bob left"}`)
	req.ErrorIs(bob.closeCause(), chat.ErrSelfTarget)
	req.Eventually(func() bool { return hub.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSession_PersistenceFailureStillDelivers(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).Times(1)

	hub := newTestHub(t, store)
	alice := connect(t, hub, "alice")

	alice.send(t, `{"type":"chat","message":"unsaved"}`)

	alice.expectFrame(t, `{"type":"chat","username":"alice","message":"unsaved","upload_url":""}`)
}

func TestSession_SavesBeforeDelivering(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)

	hub := newTestHub(t, store)
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	alice.expectFrame(t, `{"type":"system","message":"bob joined"}`)

	var deliveredEarly atomic.Bool
	store.EXPECT().Save(gomock.Any(), gomock.Any()).
		Do(func(context.Context, chat.MessageEvent) {
			deliveredEarly.Store(len(alice.out) > 0 || len(bob.out) > 0)
		}).
		Return(nil).
		Times(2)

	alice.send(t, `{"type":"chat","message":"first"}`)
	bob.expectFrame(t, `{"type":"chat","username":"alice","message":"first","upload_url":""}`)
	alice.expectFrame(t, `{"type":"chat","username":"alice","message":"first","upload_url":""}`)
	require.False(t, deliveredEarly.Load(), "chat frame written before Save returned")

	alice.send(t, `{"type":"dm","to":"bob","message":"second"}`)
	bob.expectFrame(t, `{"type":"dm","from":"alice","message":"second","upload_url":""}`)
	require.False(t, deliveredEarly.Load(), "dm frame written before Save returned")
}

func TestSession_LaggingSubscriberIsToldAndStaysConnected(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, &memoryStore{}, chat.WithBroadcastCapacity(1))
	alice := connect(t, hub, "alice")

	// Flood the broadcast faster than alice's subscriber can drain a
	// one-slot backlog.
	stop := make(chan struct{})
	flooded := make(chan struct{})
	go func() {
		defer close(flooded)
		for range 100_000 {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast().Publish(chat.EncodeSystem("noise"))
			}
		}
	}()

	var lagFrame string
	for lagFrame == "" {
		frame := alice.nextFrame(t)
		if strings.Contains(frame, "messages were skipped") {
			lagFrame = frame
		}
	}
	close(stop)
	<-flooded

	req.Regexp(`^\{"type":"system","message":"[1-9][0-9]* messages were skipped"\}$`, lagFrame)
	req.Equal([]string{"alice"}, hub.Online())
	req.Equal(1, hub.Broadcast().Subscribers())

	alice.send(t, `{"type":"chat","message":"still here"}`)
	for {
		frame := alice.nextFrame(t)
		if strings.Contains(frame, "still here") {
			req.JSONEq(`{"type":"chat","username":"alice","message":"still here","upload_url":""}`, frame)
			break
		}
	}
}

func TestSession_WriteFailureAnnouncesDepartureOnce(t *testing.T) {
	hub := newTestHub(t, &memoryStore{})
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	alice.expectFrame(t, `{"type":"system","message":"bob joined"}`)

	bob.breakWrites()
	alice.send(t, `{"type":"chat","message":"anyone?"}`)

	alice.expectFrame(t, `{"type":"chat","username":"alice","message":"anyone?","upload_url":""}`)
	alice.expectFrame(t, `{"type":"system","message":"bob left"}`)
	alice.expectNoFrame(t, quiet)

	require.ErrorIs(t, bob.closeCause(), chat.ErrTransport)
	require.Equal(t, []string{"alice"}, hub.Online())
}

func TestSession_DirectMessageToDepartedSessionIsDropped(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, &memoryStore{})
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")
	alice.expectFrame(t, `{"type":"system","message":"bob joined"}`)

	// Resolve bob's queue before he leaves, as a router racing his
	// departure would.
	snap := hub.Registry().Snapshot()
	bob.hangUp()
	alice.expectFrame(t, `{"type":"system","message":"bob left"}`)

	plan := chat.Route(chat.MessageEvent{Kind: chat.KindDirect, Sender: "alice", Target: "bob", Body: "late"}, snap)
	req.Equal(1, plan.Recipients())
	req.Eventually(func() bool { return plan.Targets[0].Closed() }, time.Second, 5*time.Millisecond)
	req.False(plan.Targets[0].Push(plan.Frame))
}

func TestSession_RunsOnce(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t, &memoryStore{})
	tr := newFakeTransport()
	session := hub.NewSession("alice", tr)
	req.Equal(chat.StateConnecting, session.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.Error(session.Run(ctx))

	req.Equal(chat.StateClosed, session.State())
	req.False(hub.Registry().Contains(session.ID()))
	req.ErrorIs(session.Run(context.Background()), chat.ErrSessionClosed)
}

func TestHub_ShutdownClosesEverySession(t *testing.T) {
	req := require.New(t)
	hub := chat.NewHub(&memoryStore{}, quietLogger())
	alice := connect(t, hub, "alice")
	bob := connect(t, hub, "bob")

	req.NoError(hub.Shutdown(time.Second))

	req.Zero(hub.Registry().Len())
	req.NoError(hub.Registry().CheckConsistency())
	for _, tr := range []*fakeTransport{alice, bob} {
		select {
		case <-tr.closed:
		default:
			t.Fatal("transport left open after shutdown")
		}
	}

	late := newFakeTransport()
	_, err := hub.Serve("carol", late)
	req.ErrorIs(err, chat.ErrHubClosed)
	req.ErrorIs(late.closeCause(), chat.ErrHubClosed)
}
