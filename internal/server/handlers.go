// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, state inspection, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-presence/internal/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Stats is the body of the /stats endpoint.
type Stats struct {
	Clients     int             `json:"clients"`
	Connections int             `json:"connections"`
	Online      int             `json:"online"`
	Rooms       int             `json:"rooms"`
	History     int             `json:"history"`
	Typing      []string        `json:"typing"`
	Users       []presence.User `json:"users"`
}

// WebSocketHandler returns the handler for WebSocket upgrade requests. It
// validates that the request uses the GET method, upgrades the connection,
// and registers a new Client with the hub, which starts its pumps. A
// username query parameter joins the connection right away.
func WebSocketHandler(hub *Hub, dispatcher Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, dispatcher, r.RemoteAddr)
		if username := strings.TrimSpace(r.URL.Query().Get("username")); username != "" {
			client.claimUsername(username)
		}

		if !hub.registerClient(client) {
			slog.Warn("Rejecting connection during shutdown", "remote", r.RemoteAddr)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat presence server is running!")
}

// StatsHandler reports a consistent snapshot of the presence state.
func StatsHandler(hub *Hub, dispatcher Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := dispatcher.Snapshot(r.Context())
		if err != nil {
			slog.Error("Error taking presence snapshot", "error", err)
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, Stats{
			Clients:     hub.ClientCount(),
			Connections: snap.Connections,
			Online:      len(snap.Users),
			Rooms:       len(snap.Rooms),
			History:     snap.History,
			Typing:      snap.Typing,
			Users:       snap.Users,
		})
	}
}

// HistoryHandler returns the most recent public messages. The limit query
// parameter defaults to the replay size.
func HistoryHandler(dispatcher Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		messages, err := dispatcher.History(r.Context(), limit)
		if err != nil {
			slog.Error("Error reading message history", "error", err)
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, messages)
	}
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error writing JSON response", "error", err)
	}
}

// TestPageHandler serves an HTML test page for the WebSocket protocol.
// It provides a simple web interface to join, chat publicly and privately,
// and watch presence updates.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		slog.Error("Error writing HTML response", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>GoChat Presence Test</title>
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
        #sidebar { float: right; width: 240px; margin-left: 20px; }
        input[type="text"] { width: 260px; padding: 5px; margin-right: 10px; }
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
        .private { color: purple; }
    </style>
</head>
<body>
    <h1>GoChat Presence Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div id="sidebar">
        <h3>Online</h3>
        <ul id="users"></ul>
        <div id="typing"></div>
    </div>

    <div>
        <input type="text" id="usernameInput" placeholder="Username">
        <button id="connectButton" onclick="toggleConnection()">Join</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div>
        <input type="text" id="toInput" placeholder="Private: recipient id" disabled>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        let nextId = 1;
        let typing = false;
        const pending = {};
        const $ = (id) => document.getElementById(id);

        function addLine(text, cls) {
            const el = document.createElement('div');
            el.textContent = text;
            if (cls) el.className = cls;
            $('messages').appendChild(el);
            $('messages').scrollTop = $('messages').scrollHeight;
        }

        function emit(event, data, onAck) {
            const env = { event: event, data: data };
            if (onAck) {
                env.id = nextId++;
                pending[env.id] = onAck;
            }
            ws.send(JSON.stringify(env));
        }

        function setConnected(connected) {
            $('status').textContent = connected ? 'Connected' : 'Disconnected';
            $('status').className = 'status ' + (connected ? 'connected' : 'disconnected');
            $('messageInput').disabled = !connected;
            $('sendButton').disabled = !connected;
            $('toInput').disabled = !connected;
            $('connectButton').textContent = connected ? 'Leave' : 'Join';
        }

        function render(msg) {
            if (msg.isPrivate) {
                addLine('[private] ' + msg.sender + ' -> ' + msg.recipient + ': ' + msg.message, 'private');
            } else {
                addLine(msg.sender + ': ' + msg.message);
            }
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() {
                emit('join', $('usernameInput').value, function(ack) {
                    if (ack.status === 'success') {
                        addLine('Joined as ' + $('usernameInput').value + ' (' + ack.userId + ')');
                        setConnected(true);
                    } else {
                        addLine('Join failed: ' + ack.message);
                    }
                });
            };

            ws.onmessage = function(event) {
                const env = JSON.parse(event.data);
                switch (env.event) {
                case 'ack':
                    if (pending[env.id]) { pending[env.id](env.data); delete pending[env.id]; }
                    break;
                case 'user_list':
                    $('users').innerHTML = '';
                    env.data.forEach(function(u) {
                        const li = document.createElement('li');
                        li.textContent = u.username + ' (' + u.id + ')';
                        $('users').appendChild(li);
                    });
                    break;
                case 'user_joined':
                    addLine(env.data.username + ' joined');
                    break;
                case 'user_left':
                    addLine(env.data.username + ' left');
                    break;
                case 'message_history':
                    env.data.forEach(render);
                    break;
                case 'receive_message':
                case 'private_message':
                    render(env.data);
                    break;
                case 'typing_users':
                    $('typing').textContent = env.data.length ? env.data.join(', ') + ' typing...' : '';
                    break;
                default:
                    addLine(event.data);
                }
            };

            ws.onclose = function() {
                addLine('Connection closed');
                setConnected(false);
                ws = null;
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                emit('disconnect');
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = $('messageInput').value.trim();
            if (!message || !ws) return;
            const to = $('toInput').value.trim();
            const done = function(ack) {
                if (ack.status !== 'success') addLine('Error: ' + ack.message);
            };
            if (to) {
                emit('private_message', { to: to, message: message }, done);
            } else {
                emit('send_message', { message: message }, done);
            }
            $('messageInput').value = '';
            if (typing) { typing = false; emit('typing', false); }
        }

        $('messageInput').addEventListener('input', function() {
            const now = $('messageInput').value.length > 0;
            if (ws && now !== typing) { typing = now; emit('typing', now); }
        });
        $('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
