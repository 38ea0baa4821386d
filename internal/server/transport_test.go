package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Tyrowin/relaychat/internal/chat"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestCloseCode(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		code  int
	}{
		{"clean", nil, websocket.CloseNormalClosure},
		{"self target", fmt.Errorf("session: %w", chat.ErrSelfTarget), websocket.ClosePolicyViolation},
		{"read limit", websocket.ErrReadLimit, websocket.CloseMessageTooBig},
		{"hub closed", chat.ErrHubClosed, websocket.CloseGoingAway},
		{"cancelled", context.Canceled, websocket.CloseGoingAway},
		{"transport", fmt.Errorf("%w: broken pipe", chat.ErrTransport), websocket.CloseNormalClosure},
		{"other", errors.New("boom"), websocket.CloseInternalServerErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := closeCode(tt.cause)
			require.Equal(t, tt.code, code)
		})
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	require.True(t, isExpectedCloseError(nil))
	require.True(t, isExpectedCloseError(websocket.ErrCloseSent))
	require.True(t, isExpectedCloseError(errors.New("write tcp: use of closed network connection")))
	require.True(t, isExpectedCloseError(errors.New("write: broken pipe")))
	require.False(t, isExpectedCloseError(errors.New("unexpected EOF")))
}
