// Package testhelpers provides common utilities for end-to-end tests of the
// presence server.
//
// It starts a complete App behind an httptest server and wraps WebSocket
// connections in Peer, which speaks the JSON envelope protocol: emitting
// events with or without an ack id, and reading until an expected event
// arrives.
package testhelpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-presence/internal/presence"
	"github.com/Tyrowin/gochat-presence/internal/server"
)

// TestOrigin is the origin every test client presents.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every wait for an expected frame.
const ReadTimeout = 3 * time.Second

// Envelope is an outbound frame as seen by a client.
type Envelope struct {
	Event string          `json:"event"`
	ID    json.RawMessage `json:"id,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v), "decoding %s data %s", e.Event, e.Data)
}

// Ack decodes the envelope data as an ack.
func (e Envelope) Ack(t *testing.T) presence.Ack {
	t.Helper()
	require.Equal(t, server.EventAck, e.Event)
	var ack presence.Ack
	e.Decode(t, &ack)
	return ack
}

// NewTestConfig returns a configuration suited to tests: the test origin is
// allowed and the throttle is loose enough not to interfere.
func NewTestConfig() *server.Config {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	cfg.RateLimit.Burst = 1000
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

// StartApp starts an App configured by cfg behind an httptest server. The
// app and server are shut down when the test ends.
func StartApp(t *testing.T, cfg *server.Config) (*server.App, *httptest.Server) {
	t.Helper()
	if cfg == nil {
		cfg = NewTestConfig()
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := server.NewApp(cfg, log)
	app.Start()

	ts := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.ShutdownHub(ctx)
		_ = app.ShutdownDispatcher(ctx)
		ts.Close()
		server.SetConfig(nil)
	})
	return app, ts
}

// WebSocketURL converts an http(s) test server URL into its /ws endpoint.
func WebSocketURL(t *testing.T, serverURL string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}

// DialWebSocket opens a WebSocket connection presenting origin. An empty
// origin omits the header.
func DialWebSocket(wsURL, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, target string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, target, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// Peer is a test client speaking the envelope protocol.
type Peer struct {
	t      *testing.T
	conn   *websocket.Conn
	nextID atomic.Int64
	// ID is the connection id returned by a successful join.
	ID string
}

// Connect dials serverURL's /ws endpoint with the test origin. Extra query
// parameters are appended to the URL.
func Connect(t *testing.T, serverURL string, query url.Values) *Peer {
	t.Helper()

	wsURL := WebSocketURL(t, serverURL)
	if len(query) > 0 {
		wsURL += "?" + query.Encode()
	}

	conn, _, err := DialWebSocket(wsURL, TestOrigin)
	require.NoError(t, err)

	p := &Peer{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return p
}

// Conn exposes the underlying connection.
func (p *Peer) Conn() *websocket.Conn {
	return p.conn
}

// Emit sends an event without an ack id.
func (p *Peer) Emit(event string, data any) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// Request sends an event with a fresh ack id and waits for its ack. Frames
// received before the ack are discarded.
func (p *Peer) Request(event string, data any) presence.Ack {
	p.t.Helper()
	ack, _ := p.RequestFrames(event, data)
	return ack
}

// RequestFrames is Request that also returns the frames received before the
// ack, which include every broadcast the event caused.
func (p *Peer) RequestFrames(event string, data any) (presence.Ack, []Envelope) {
	p.t.Helper()
	id := p.nextID.Add(1)
	require.NoError(p.t, p.conn.WriteJSON(map[string]any{"event": event, "id": id, "data": data}))

	want := fmt.Sprint(id)
	var before []Envelope
	env := p.ExpectMatch(func(e Envelope) bool {
		if e.Event == server.EventAck && strings.Trim(string(e.ID), `"`) == want {
			return true
		}
		before = append(before, e)
		return false
	})
	return env.Ack(p.t), before
}

// Find returns the first frame for event in frames.
func Find(t *testing.T, frames []Envelope, event string) Envelope {
	t.Helper()
	for _, f := range frames {
		if f.Event == event {
			return f
		}
	}
	require.Failf(t, "frame not found", "no %s among %d frames", event, len(frames))
	return Envelope{}
}

// Join joins as username and requires success.
func (p *Peer) Join(username string) {
	p.t.Helper()
	ack := p.Request(presence.EventJoin, username)
	require.Equal(p.t, presence.StatusSuccess, ack.Status, "join %q: %s", username, ack.Message)
	require.NotEmpty(p.t, ack.UserID)
	p.ID = ack.UserID
}

// Read returns the next frame.
func (p *Peer) Read() (Envelope, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	err := p.conn.ReadJSON(&env)
	return env, err
}

// Expect reads until a frame for event arrives.
func (p *Peer) Expect(event string) Envelope {
	p.t.Helper()
	return p.ExpectMatch(func(e Envelope) bool { return e.Event == event })
}

// ExpectMatch reads until match accepts a frame.
func (p *Peer) ExpectMatch(match func(Envelope) bool) Envelope {
	p.t.Helper()
	for {
		env, err := p.Read()
		require.NoError(p.t, err, "waiting for frame")
		if match(env) {
			return env
		}
	}
}

// ExpectNone requires that no frame for event arrives within wait. A read
// timeout leaves a gorilla connection unusable, so this must be the last read
// on the peer.
func (p *Peer) ExpectNone(event string, wait time.Duration) {
	p.t.Helper()
	deadline := time.Now().Add(wait)
	for {
		require.NoError(p.t, p.conn.SetReadDeadline(deadline))
		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			require.NoError(p.t, err)
		}
		require.NotEqual(p.t, event, env.Event, "unexpected %s: %s", env.Event, env.Data)
	}
}

// Close sends a close frame and closes the connection.
func (p *Peer) Close() {
	_ = p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = p.conn.Close()
}
