package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Transport is one framed, bidirectional client connection. ReadFrame and
// WriteFrame are each called from a single goroutine; Close may be called
// concurrently with both and must unblock them.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	// Close ends the connection. cause is the error that ended the session,
	// or nil for an orderly shutdown.
	Close(cause error) error
}

// State is a session lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session is one connected user. It is created by a Hub and runs until its
// transport fails, its client leaves, or the hub shuts down.
type Session struct {
	name      string
	transport Transport
	registry  *Registry
	broadcast *Broadcast
	store     MessageStore
	log       *slog.Logger
	now       func() time.Time

	id    SessionID
	out   *Outbound
	state atomic.Int32
}

// ID returns the id allocated when the session was accepted.
func (s *Session) ID() SessionID { return s.id }

// Name returns the display name the session connected with.
func (s *Session) Name() string { return s.name }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// Run registers the session, runs its relay, inbound and subscriber tasks
// until the first of them stops, then tears everything down. It returns the
// error that ended the session. A session runs at most once.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return ErrSessionClosed
	}

	log := s.log.With("session", s.id, "name", s.name)

	if err := s.registry.Register(s.id, s.name, s.out); err != nil {
		s.state.Store(int32(StateClosed))
		_ = s.transport.Close(err)
		return err
	}
	sub := s.broadcast.Subscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.relay(gctx) })
	g.Go(func() error { return s.inbound(gctx, log) })
	g.Go(func() error { return s.subscribe(gctx, sub, log) })
	g.Go(func() error {
		<-gctx.Done()
		if err := s.transport.Close(context.Cause(gctx)); err != nil {
			log.Debug("closing transport", "error", err)
		}
		return nil
	})
	cause := g.Wait()

	s.state.Store(int32(StateClosing))
	s.out.Close()
	sub.Close()
	s.registry.Unregister(s.id)
	s.state.Store(int32(StateClosed))

	log.Info("session closed", "cause", cause)
	return cause
}

// relay is the outbound relay: it drains the session's queue to the client.
func (s *Session) relay(ctx context.Context) error {
	for {
		frame, err := s.out.Pop(ctx)
		if err != nil {
			return fmt.Errorf("outbound relay: %w", err)
		}
		if err := s.transport.WriteFrame(frame); err != nil {
			return fmt.Errorf("%w: write: %w", ErrTransport, err)
		}
	}
}

// inbound is the inbound processor: decode, persist, route, deliver.
func (s *Session) inbound(ctx context.Context, log *slog.Logger) error {
	for {
		raw, err := s.transport.ReadFrame()
		if err != nil {
			return fmt.Errorf("%w: read: %w", ErrTransport, err)
		}
		if err := s.handleFrame(ctx, raw, log); err != nil {
			if errors.Is(err, ErrSelfTarget) {
				log.Warn("rejecting self-addressed direct message", "error", err)
				return err
			}
			log.Debug("discarding frame", "error", err)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, raw []byte, log *slog.Logger) error {
	ev, err := DecodeInbound(s.name, raw, s.now())
	if err != nil {
		return err
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	if err := s.store.Save(ctx, ev); err != nil {
		log.Error("persisting message failed; delivering anyway", "kind", ev.Kind, "error", err)
	}

	s.deliver(Route(ev, s.registry), ev, log)
	return nil
}

func (s *Session) deliver(plan Plan, ev MessageEvent, log *slog.Logger) {
	if plan.Broadcast {
		s.broadcast.Publish(plan.Frame)
		return
	}
	if len(plan.Targets) == 0 {
		log.Debug("direct message recipient offline", "to", ev.Target)
		return
	}
	for _, target := range plan.Targets {
		if !target.Push(plan.Frame) {
			log.Debug("direct message recipient already gone", "to", ev.Target)
		}
	}
}

// subscribe is the broadcast subscriber: it forwards fan-out traffic into
// the session's own queue and reports lag to the client.
func (s *Session) subscribe(ctx context.Context, sub *Subscription, log *slog.Logger) error {
	for {
		frame, err := sub.Recv(ctx)
		var lagged *LaggedError
		switch {
		case errors.As(err, &lagged):
			log.Warn("broadcast subscriber lagged", "skipped", lagged.Skipped)
			frame = EncodeSystem(lagged.Error())
		case err != nil:
			return fmt.Errorf("broadcast subscriber: %w", err)
		}
		if !s.out.Push(frame) {
			return fmt.Errorf("broadcast subscriber: %w", ErrQueueClosed)
		}
	}
}
