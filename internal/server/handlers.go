package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/chat"
)

// WebSocketHandler upgrades GET /ws/{username} and hands the connection to
// the hub as a new session under that display name.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("username")
	if err := auth.ValidateUsername(name); err != nil {
		http.Error(w, "Invalid username.", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	log := s.log.With("remote", r.RemoteAddr, "name", name)
	transport := newWSTransport(conn, s.cfg, log)
	session, err := s.hub.Serve(name, transport)
	if err != nil {
		if errors.Is(err, chat.ErrHubClosed) {
			log.Info("rejecting connection during shutdown")
			return
		}
		log.Error("starting session", "error", err)
		return
	}
	log.Debug("session started", "session", session.ID())
}

// HealthHandler responds with a plain status line.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "RelayChat server is running! %d online", s.hub.Registry().Len())
}

// TestPageHandler serves a small HTML client for trying the websocket
// endpoint by hand.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Debug("writing test page", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>RelayChat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>RelayChat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="nameInput" placeholder="Your name">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="toInput" placeholder="DM to (empty for everyone)" disabled>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const nameInput = document.getElementById('nameInput');
        const toInput = document.getElementById('toInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            line.style.color = color;
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function render(frame) {
            switch (frame.type) {
            case 'chat':
                addLine(frame.username + ': ' + frame.message, 'green');
                break;
            case 'dm':
                addLine('(dm) ' + frame.from + ': ' + frame.message, 'purple');
                break;
            default:
                addLine(frame.message, 'gray');
            }
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            toInput.disabled = !connected;
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            nameInput.disabled = connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const name = nameInput.value.trim();
            if (!name) {
                addLine('Pick a name first', 'gray');
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws/' + encodeURIComponent(name));
            ws.onopen = () => { addLine('Connected as ' + name, 'gray'); updateStatus(true); };
            ws.onmessage = (event) => render(JSON.parse(event.data));
            ws.onclose = (event) => {
                addLine('Connection closed' + (event.reason ? ': ' + event.reason : ''), 'gray');
                updateStatus(false);
                ws = null;
            };
            ws.onerror = () => addLine('Connection error', 'red');
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (!message || !ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            const to = toInput.value.trim();
            const frame = to ? { type: 'dm', to: to, message: message } : { type: 'chat', message: message };
            ws.send(JSON.stringify(frame));
            if (to) {
                addLine('(dm to ' + to + ') ' + message, 'blue');
            }
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', (e) => {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
