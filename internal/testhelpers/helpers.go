// Package testhelpers provides common utilities for exercising the RelayChat
// HTTP and websocket surface from tests.
//
// It wraps the gorilla dialer and net/http client with short timeouts and
// testify assertions so that server tests stay focused on behaviour.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every blocking helper.
const DefaultTimeout = 2 * time.Second

// WebSocketURL converts an httptest server URL into a ws:// URL for path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// DialWebSocket opens a websocket connection sending origin as the Origin
// header. The handshake response is returned even when dialing fails.
func DialWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ConnectWebSocket dials url and fails the test if the handshake does not
// succeed. The connection is closed on cleanup.
func ConnectWebSocket(t *testing.T, url, origin string) *websocket.Conn {
	t.Helper()

	conn, _, err := DialWebSocket(url, origin)
	require.NoError(t, err, "dialing %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendFrame writes v as a JSON text frame.
func SendFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)))
	require.NoError(t, conn.WriteJSON(v))
}

// SendRawMessage writes data as a single frame of messageType.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReadFrame reads the next frame and decodes it into a generic map.
func ReadFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame), "reading frame")
	return frame
}

// ReadFrameWhere reads frames until match accepts one, discarding the rest.
func ReadFrameWhere(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		frame := ReadFrame(t, conn)
		if match(frame) {
			return frame
		}
	}
	require.FailNow(t, "no matching frame before deadline")
	return nil
}

// ExpectNoFrame fails the test if a frame arrives within wait.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		require.FailNow(t, "unexpected frame", "%s", data)
	}
	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected read timeout, got %v", err)
}

// ReadCloseError reads until the connection closes and returns the close
// error sent by the server.
func ReadCloseError(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Request describes an HTTP call made by MakeRequest.
type Request struct {
	Method  string
	URL     string
	Body    io.Reader
	Headers map[string]string
	Token   string
}

// MakeRequest executes req with a five second timeout. The response body is
// closed on cleanup.
func MakeRequest(t *testing.T, req Request) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	body := req.Body
	if body == nil {
		body = http.NoBody
	}
	httpReq, err := http.NewRequest(req.Method, req.URL, body)
	require.NoError(t, err, "creating request")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := client.Do(httpReq)
	require.NoError(t, err, "making request")
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// JSONBody encodes v for use as a request body.
func JSONBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

// DecodeJSON decodes the response body into a value of type T.
func DecodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertContentType checks that the Content-Type header starts with expected.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	require.True(t, strings.HasPrefix(contentType, expected), "expected content type %s, got %s", expected, contentType)
}
