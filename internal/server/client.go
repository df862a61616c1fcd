// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-presence/internal/presence"
)

// Client represents a WebSocket connection. Its read pump feeds inbound
// events to the dispatcher one at a time; its write pump drains send.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	dispatcher     Dispatcher
	log            *slog.Logger
	addr           string
	username       string
	closed         bool
	maxMessageSize int64
	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client with a fresh connection id. The client's
// send channel is buffered to handle message queuing; its size and the
// connection timings come from the active configuration.
func NewClient(conn *websocket.Conn, hub *Hub, dispatcher Dispatcher, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		dispatcher:     dispatcher,
		log:            hub.log.With("conn", id, "remote", addr),
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		pingInterval:   cfg.PingInterval,
		pongWait:       cfg.PongWait,
		writeWait:      cfg.WriteWait,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// claimUsername makes the read pump join as username before reading any
// event.
func (c *Client) claimUsername(username string) {
	c.username = username
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("Client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("Client connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("Unexpected WebSocket error", "error", err)
	default:
		c.log.Warn("WebSocket read error", "error", err)
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("Rate limit exceeded; discarding event", "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes one inbound frame, runs it through the dispatcher
// and queues the ack. It returns false when the client asked to disconnect.
func (c *Client) processMessage(ctx context.Context, rawMessage []byte) bool {
	env, err := parseEnvelope(rawMessage)
	if err != nil {
		c.log.Debug("Invalid envelope", "error", err)
		c.sendError(errMalformedEnvelope)
		return true
	}

	if env.Event == presence.EventDisconnect {
		c.log.Info("Client requested disconnect")
		return false
	}

	if !c.checkRateLimit() {
		if env.WantsAck() {
			c.reply(env.ID, presence.ErrorAck(ErrRateLimited))
		}
		return true
	}

	ev, err := decodeEvent(env)
	if err != nil {
		c.log.Debug("Unsupported event", "event", env.Event)
		if env.WantsAck() {
			c.reply(env.ID, presence.ErrorAck(err))
		} else {
			c.sendError(err)
		}
		return true
	}

	ack := c.dispatch(ctx, ev)
	if ack != nil && env.WantsAck() {
		c.reply(env.ID, ack)
	}
	return true
}

// dispatch hands ev to the dispatcher and waits for the ack.
func (c *Client) dispatch(ctx context.Context, ev presence.Event) *presence.Ack {
	ack, err := c.dispatcher.Handle(ctx, c.id, ev)
	if err != nil {
		c.log.Error("Error dispatching event", "event", ev.EventName(), "error", err)
		if errors.Is(err, presence.ErrDispatcherStopped) {
			return presence.ErrorAck(err)
		}
		return presence.ErrorAck(presence.ErrInternal)
	}
	return ack
}

func (c *Client) reply(id json.RawMessage, ack *presence.Ack) {
	data, err := encodeAck(id, ack)
	if err != nil {
		c.log.Error("Error encoding ack", "error", err)
		return
	}
	c.hub.SendTo(c.id, data)
}

func (c *Client) sendError(err error) {
	data, encodeErr := encodeEvent(EventError, ErrorPayload{Message: err.Error()})
	if encodeErr != nil {
		c.log.Error("Error encoding error event", "error", encodeErr)
		return
	}
	c.hub.SendTo(c.id, data)
}

func (c *Client) readPump() {
	ctx := context.Background()
	defer func() {
		if err := c.dispatcher.Disconnect(ctx, c.id); err != nil {
			c.log.Warn("Error disconnecting client from dispatcher", "error", err)
		}
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	if err := c.dispatcher.Connect(ctx, c.id); err != nil {
		c.log.Error("Error connecting client to dispatcher", "error", err)
		return
	}

	if c.username != "" {
		// The claimed join is acked without an id.
		c.reply(nil, c.dispatch(ctx, presence.Join{Username: c.username}))
	}

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.processMessage(ctx, rawMessage) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection in writePump", "error", err)
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error writing close message", "error", err)
	}
	return false
}

// writeTextMessage writes one envelope per frame.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}
