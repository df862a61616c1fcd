package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-presence/internal/presence"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDispatcher records events and answers with canned results.
type fakeDispatcher struct {
	mu        sync.Mutex
	connected []string
	events    []presence.Event
	gone      []string
	ack       *presence.Ack
	err       error
	snapshot  presence.Snapshot
	history   []presence.Message
	limit     int
}

func (f *fakeDispatcher) Connect(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, id)
	return f.err
}

func (f *fakeDispatcher) Handle(_ context.Context, _ string, ev presence.Event) (*presence.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.ack, f.err
}

func (f *fakeDispatcher) Disconnect(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone = append(f.gone, id)
	return nil
}

func (f *fakeDispatcher) Snapshot(context.Context) (presence.Snapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeDispatcher) History(_ context.Context, n int) ([]presence.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = n
	return f.history, f.err
}

func (f *fakeDispatcher) handled() []presence.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presence.Event(nil), f.events...)
}

// newTestClient builds a client without a connection, registered in hub.
func newTestClient(hub *Hub, id string, buffer int) *Client {
	c := &Client{
		id:   id,
		send: make(chan []byte, buffer),
		hub:  hub,
		log:  hub.log.With("conn", id),
		addr: "test:" + id,
	}
	hub.clients[id] = c
	return c
}

// frame is a decoded outbound envelope.
type frame struct {
	Event string          `json:"event"`
	ID    json.RawMessage `json:"id"`
	Data  json.RawMessage `json:"data"`
}

func decodeFrame(t *testing.T, raw []byte) frame {
	t.Helper()
	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

// drain applies every queued delivery.
func drain(h *Hub) {
	for {
		select {
		case d := <-h.deliveries:
			h.handleDelivery(d)
		default:
			return
		}
	}
}

// received returns the frames queued on c's send channel.
func received(t *testing.T, c *Client) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			frames = append(frames, decodeFrame(t, raw))
		default:
			return frames
		}
	}
}
