package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/gorilla/websocket"
)

// wsTransport adapts a websocket connection to chat.Transport. It owns the
// connection's deadlines, keepalive pings and inbound rate limiting.
type wsTransport struct {
	conn      *websocket.Conn
	limiter   *rateLimiter
	log       *slog.Logger
	writeWait time.Duration
	pongWait  time.Duration

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newWSTransport(conn *websocket.Conn, cfg Config, log *slog.Logger) *wsTransport {
	t := &wsTransport{
		conn:      conn,
		limiter:   newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefillInterval),
		log:       log,
		writeWait: cfg.WriteTimeout,
		pongWait:  cfg.pongWait(),
		done:      make(chan struct{}),
	}

	conn.SetReadLimit(int64(cfg.MaxMessageSize))
	t.setupReadConnection()
	go t.keepalive(cfg.KeepaliveInterval)
	return t
}

// setupReadConnection arms the read deadline and extends it on every pong.
func (t *wsTransport) setupReadConnection() {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.pongWait)); err != nil {
		t.log.Debug("setting initial read deadline", "error", err)
	}
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})
}

func (t *wsTransport) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait)); err != nil {
				if !isExpectedCloseError(err) {
					t.log.Debug("writing ping", "error", err)
				}
				return
			}
		}
	}
}

// ReadFrame returns the next inbound text frame. Frames over the rate limit
// are discarded.
func (t *wsTransport) ReadFrame() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.logReadError(err)
			return nil, err
		}
		if msgType != websocket.TextMessage {
			t.log.Debug("ignoring non-text frame", "type", msgType)
			continue
		}
		if !t.limiter.allow() {
			t.log.Warn("rate limit exceeded; discarding frame", "burst", t.limiter.capacity)
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		t.log.Warn("frame exceeded maximum size", "error", err)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		t.log.Debug("client disconnected", "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		t.log.Debug("connection closed", "error", err)
	default:
		t.log.Warn("websocket read error", "error", err)
	}
}

// WriteFrame writes one text frame.
func (t *wsTransport) WriteFrame(frame []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a close frame describing cause, then closes the connection.
// Only the first call has any effect.
func (t *wsTransport) Close(cause error) error {
	t.closeOnce.Do(func() {
		close(t.done)

		code, reason := closeCode(cause)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeWait)); err != nil && !isExpectedCloseError(err) {
			t.log.Debug("writing close frame", "error", err)
		}
		if err := t.conn.Close(); err != nil && !isExpectedCloseError(err) {
			t.closeErr = err
		}
	})
	return t.closeErr
}

// closeCode maps the error that ended a session to a close status.
func closeCode(cause error) (int, string) {
	switch {
	case cause == nil:
		return websocket.CloseNormalClosure, ""
	case errors.Is(cause, chat.ErrSelfTarget):
		return websocket.ClosePolicyViolation, "direct message addressed to sender"
	case errors.Is(cause, websocket.ErrReadLimit):
		return websocket.CloseMessageTooBig, "frame too large"
	case errors.Is(cause, chat.ErrHubClosed), errors.Is(cause, context.Canceled):
		return websocket.CloseGoingAway, "server shutting down"
	case errors.Is(cause, chat.ErrTransport):
		return websocket.CloseNormalClosure, ""
	default:
		return websocket.CloseInternalServerErr, ""
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
