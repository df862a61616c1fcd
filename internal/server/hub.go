// Package server coordinates client registration, event fan-out, and
// connection cleanup for the presence WebSocket system via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-presence/internal/presence"
)

type deliveryKind int

const (
	deliverPublish deliveryKind = iota
	deliverSubscribe
	deliverUnsubscribe
)

// delivery is one unit of work for the hub loop. Publishes carry an encoded
// envelope; subscription changes carry the room and its connections.
type delivery struct {
	kind          deliveryKind
	scope         presence.Scope
	target        string
	exclude       string
	connectionIDs []string
	payload       []byte
}

// Hub manages all WebSocket client connections and fans out outbound events.
// It implements presence.Publisher: publishing only enqueues, and the Run
// loop writes to per-client send queues without ever blocking on a client.
type Hub struct {
	log        *slog.Logger
	clients    map[string]*Client
	rooms      map[string]map[string]struct{}
	deliveries chan delivery
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

var _ presence.Publisher = (*Hub)(nil)

// NewHub creates and initializes a new Hub whose delivery queue holds
// queueSize pending deliveries.
func NewHub(log *slog.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultConfig().DeliveryQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]struct{}),
		deliveries: make(chan delivery, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Publish encodes out and queues it for delivery.
func (h *Hub) Publish(out presence.Outbound) {
	payload, err := encodeEvent(out.Event, out.Payload)
	if err != nil {
		h.log.Error("Error encoding outbound event", "event", out.Event, "error", err)
		return
	}
	h.enqueue(delivery{
		kind:    deliverPublish,
		scope:   out.Scope,
		target:  out.Target,
		exclude: out.Exclude,
		payload: payload,
	})
}

// Subscribe adds connectionIDs to the listeners of roomID.
func (h *Hub) Subscribe(roomID string, connectionIDs ...string) {
	h.enqueue(delivery{kind: deliverSubscribe, target: roomID, connectionIDs: connectionIDs})
}

// Unsubscribe removes connectionIDs from the listeners of roomID.
func (h *Hub) Unsubscribe(roomID string, connectionIDs ...string) {
	h.enqueue(delivery{kind: deliverUnsubscribe, target: roomID, connectionIDs: connectionIDs})
}

// SendTo queues an already encoded frame for a single connection. It shares
// the delivery queue with Publish so the frame is written after everything
// published before it.
func (h *Hub) SendTo(connectionID string, payload []byte) {
	h.enqueue(delivery{
		kind:    deliverPublish,
		scope:   presence.ScopeConnection,
		target:  connectionID,
		payload: payload,
	})
}

// enqueue blocks only while the delivery queue is full, and gives up once
// the hub is shutting down.
func (h *Hub) enqueue(d delivery) {
	select {
	case h.deliveries <- d:
	case <-h.ctx.Done():
		h.log.Debug("Dropping delivery after hub shutdown", "target", d.target)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomListeners returns the connections currently listening on roomID.
func (h *Hub) RoomListeners(roomID string) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	listeners := make([]string, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		listeners = append(listeners, id)
	}
	return listeners
}

func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if registered, exists := h.clients[client.id]; !exists || registered != client || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and deliveries. It should be called in a separate
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case d := <-h.deliveries:
			h.handleDelivery(d)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("Client registered", "conn", client.id, "remote", client.addr, "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	registered, ok := h.clients[client.id]
	if !ok || registered != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	for roomID, listeners := range h.rooms {
		delete(listeners, client.id)
		if len(listeners) == 0 {
			delete(h.rooms, roomID)
		}
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.log.Info("Client unregistered", "conn", client.id, "remote", client.addr, "clients", clientCount)
}

func (h *Hub) handleDelivery(d delivery) {
	switch d.kind {
	case deliverSubscribe:
		h.subscribe(d.target, d.connectionIDs)
	case deliverUnsubscribe:
		h.unsubscribe(d.target, d.connectionIDs)
	default:
		targets := h.resolveTargets(d)
		h.log.Debug("Delivering event", "scope", d.scope.String(), "target", d.target, "clients", len(targets))
		h.removeFailedClients(h.sendToClients(targets, d.payload))
	}
}

func (h *Hub) subscribe(roomID string, connectionIDs []string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	listeners, ok := h.rooms[roomID]
	if !ok {
		listeners = make(map[string]struct{}, len(connectionIDs))
		h.rooms[roomID] = listeners
	}
	for _, id := range connectionIDs {
		listeners[id] = struct{}{}
	}
}

func (h *Hub) unsubscribe(roomID string, connectionIDs []string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	listeners, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for _, id := range connectionIDs {
		delete(listeners, id)
	}
	if len(listeners) == 0 {
		delete(h.rooms, roomID)
	}
}

// resolveTargets returns the clients a delivery is addressed to.
func (h *Hub) resolveTargets(d delivery) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var targets []*Client
	switch d.scope {
	case presence.ScopeConnection:
		if client, ok := h.clients[d.target]; ok {
			targets = append(targets, client)
		}
	case presence.ScopeRoom:
		for id := range h.rooms[d.target] {
			if client, ok := h.clients[id]; ok && id != d.exclude {
				targets = append(targets, client)
			}
		}
	default:
		targets = make([]*Client, 0, len(h.clients))
		for id, client := range h.clients {
			if id != d.exclude {
				targets = append(targets, client)
			}
		}
	}
	return targets
}

// sendToClients queues payload on every target and returns the clients whose
// send queue was full.
func (h *Hub) sendToClients(clients []*Client, payload []byte) []*Client {
	var clientsToRemove []*Client

	for _, client := range clients {
		if !h.safeSend(client, payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	return clientsToRemove
}

// removeFailedClients drops slow consumers. Closing the send channel makes
// the write pump close the connection, which in turn ends the read pump and
// disconnects the client from the dispatcher.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if registered, exists := h.clients[client.id]; exists && registered == client {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("Client removed due to full send buffer", "conn", client.id, "remote", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		client.closed = true
		delete(h.clients, id)
	}
	clear(h.rooms)
	h.mutex.Unlock()

	// Closing send stops the write pumps; closing the connection stops the
	// read pumps.
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("Error closing client connection", "conn", client.id, "remote", client.addr, "error", err)
			}
		}
		close(client.send)
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
