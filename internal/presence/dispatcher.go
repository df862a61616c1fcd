package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Options tunes the Dispatcher. Zero values fall back to the defaults.
type Options struct {
	HistoryCapacity   int
	HistoryReplay     int
	MaxUsernameLength int
	MaxContentLength  int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Snapshot is a consistent copy of the dispatcher state.
type Snapshot struct {
	Connections int
	Users       []User
	Typing      []string
	Rooms       map[string][]string
	History     int
}

// Dispatcher owns the presence state and executes every inbound event on a
// single loop. Handle, Connect and Disconnect block the caller until the
// loop has processed the request; they must not be called from a Publisher.
type Dispatcher struct {
	log         *slog.Logger
	publisher   Publisher
	validate    *validator.Validate
	contentRule string
	replay      int
	now         func() time.Time
	ids         *idGenerator

	conns    map[string]struct{}
	sessions *SessionRegistry
	history  *MessageLog
	typing   *TypingTracker
	rooms    *RoomManager

	requests chan func()
	done     chan struct{}
}

// NewDispatcher creates a dispatcher publishing through publisher. Run must be
// started before any other method is used.
func NewDispatcher(log *slog.Logger, publisher Publisher, opts Options) *Dispatcher {
	if opts.HistoryReplay <= 0 {
		opts.HistoryReplay = DefaultHistoryReplay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	contentRule := "required"
	if opts.MaxContentLength > 0 {
		contentRule = fmt.Sprintf("required,max=%d", opts.MaxContentLength)
	}

	return &Dispatcher{
		log:         log,
		publisher:   publisher,
		validate:    validator.New(),
		contentRule: contentRule,
		replay:      opts.HistoryReplay,
		now:         opts.Now,
		ids:         newIDGenerator(opts.Now),
		conns:       make(map[string]struct{}),
		sessions:    NewSessionRegistry(opts.MaxUsernameLength),
		history:     NewMessageLog(opts.HistoryCapacity),
		typing:      NewTypingTracker(),
		rooms:       NewRoomManager(),
		requests:    make(chan func()),
		done:        make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	d.log.Info("Dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Dispatcher stopped", "connections", len(d.conns), "online", d.sessions.Len())
			return
		case req := <-d.requests:
			d.step(req)
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) step(req func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Recovered from panic in dispatcher", "panic", r)
		}
	}()
	req()
}

// exec runs fn on the loop and waits for it to finish. Once the loop has
// accepted fn it always runs it to completion.
func (d *Dispatcher) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	req := func() {
		defer close(finished)
		fn()
	}

	select {
	case d.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherStopped
	}
	<-finished
	return nil
}

// Connect registers a new anonymous connection.
func (d *Dispatcher) Connect(ctx context.Context, connectionID string) error {
	return d.exec(ctx, func() {
		d.conns[connectionID] = struct{}{}
		d.log.Debug("Connection registered", "conn", connectionID, "connections", len(d.conns))
	})
}

// Handle executes ev for connectionID and returns its ack. Typing events
// never produce an ack, so the ack is nil for them.
func (d *Dispatcher) Handle(ctx context.Context, connectionID string, ev Event) (*Ack, error) {
	var ack *Ack
	completed := false
	err := d.exec(ctx, func() {
		ack = d.handle(connectionID, ev)
		completed = true
	})
	if err != nil {
		return nil, err
	}
	// Publisher failures are absorbed by the handlers, so an incomplete
	// step failed before committing anything.
	if !completed {
		if _, typing := ev.(Typing); typing {
			return nil, nil
		}
		return ErrorAck(ErrInternal), nil
	}
	return ack, nil
}

// Disconnect purges every trace of connectionID and notifies the remaining
// connections. It is idempotent.
func (d *Dispatcher) Disconnect(ctx context.Context, connectionID string) error {
	return d.exec(ctx, func() {
		d.disconnect(connectionID)
	})
}

// Snapshot returns a consistent copy of the current state.
func (d *Dispatcher) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := d.exec(ctx, func() {
		rooms := make(map[string][]string, d.rooms.Len())
		for id, room := range d.rooms.rooms {
			rooms[id] = room.Members()
		}
		snap = Snapshot{
			Connections: len(d.conns),
			Users:       d.sessions.Users(),
			Typing:      d.typing.Snapshot(),
			Rooms:       rooms,
			History:     d.history.Len(),
		}
	})
	return snap, err
}

// History returns the last n public messages.
func (d *Dispatcher) History(ctx context.Context, n int) ([]Message, error) {
	var messages []Message
	err := d.exec(ctx, func() {
		messages = d.history.RecentHistory(n)
	})
	return messages, err
}

func (d *Dispatcher) handle(connectionID string, ev Event) *Ack {
	if _, ok := d.conns[connectionID]; !ok {
		d.log.Debug("Event from unknown connection", "conn", connectionID, "event", ev.EventName())
		if _, typing := ev.(Typing); typing {
			return nil
		}
		return ErrorAck(ErrConnectionClosed)
	}

	switch e := ev.(type) {
	case Join:
		return d.join(connectionID, e)
	case SendMessage:
		return d.sendMessage(connectionID, e)
	case Typing:
		d.setTyping(connectionID, e)
		return nil
	case PrivateMessage:
		return d.privateMessage(connectionID, e)
	default:
		d.log.Warn("Unsupported event", "conn", connectionID, "event", ev.EventName())
		return ErrorAck(ErrUnknownEvent)
	}
}

func (d *Dispatcher) join(connectionID string, e Join) *Ack {
	session, err := d.sessions.Join(connectionID, e.Username, d.now())
	if err != nil {
		d.log.Debug("Join rejected", "conn", connectionID, "username", e.Username, "error", err)
		return ErrorAck(err)
	}

	d.publishAll(EventUserList, d.sessions.Users(), "")
	d.publishAll(EventUserJoined, Notice{
		Username:  session.Username,
		ID:        connectionID,
		Timestamp: formatTime(d.now()),
	}, "")
	d.publish(Outbound{
		Event:   EventMessageHistory,
		Scope:   ScopeConnection,
		Target:  connectionID,
		Payload: d.history.RecentHistory(d.replay),
	})

	d.log.Info("User joined", "conn", connectionID, "username", session.Username, "online", d.sessions.Len())
	return &Ack{Status: StatusSuccess, UserID: connectionID}
}

func (d *Dispatcher) sendMessage(connectionID string, e SendMessage) *Ack {
	session, ok := d.sessions.Get(connectionID)
	if !ok {
		return ErrorAck(ErrNotAuthenticated)
	}

	content, err := d.content(e.Message)
	if err != nil {
		d.log.Debug("Message rejected", "conn", connectionID, "error", err)
		return ErrorAck(ErrInvalidMessage)
	}

	msg := Message{
		ID:        d.ids.next(),
		Sender:    session.Username,
		SenderID:  connectionID,
		Content:   content,
		Timestamp: formatTime(d.now()),
	}
	d.history.Append(msg)
	d.publishAll(EventReceiveMessage, msg, "")

	return &Ack{Status: StatusSuccess, MessageID: msg.ID}
}

func (d *Dispatcher) setTyping(connectionID string, e Typing) {
	session, ok := d.sessions.Get(connectionID)
	if !ok {
		d.log.Debug("Typing ignored for connection without session", "conn", connectionID)
		return
	}

	d.typing.SetTyping(connectionID, session.Username, e.IsTyping)
	d.publishAll(EventTypingUsers, d.typing.Snapshot(), "")
}

func (d *Dispatcher) privateMessage(connectionID string, e PrivateMessage) *Ack {
	sender, ok := d.sessions.Get(connectionID)
	if !ok {
		return ErrorAck(ErrNotAuthenticated)
	}

	recipient, ok := d.sessions.Get(e.To)
	if !ok || e.To == connectionID {
		d.log.Debug("Private message rejected", "conn", connectionID, "to", e.To, "error", ErrInvalidRecipient)
		return ErrorAck(ErrInvalidRecipient)
	}

	content, err := d.content(e.Message)
	if err != nil {
		d.log.Debug("Private message rejected", "conn", connectionID, "to", e.To, "error", err)
		return ErrorAck(ErrInvalidMessage)
	}

	roomID, created := d.rooms.EnsureRoom(connectionID, e.To)
	if created {
		d.subscribe(roomID, connectionID, e.To)
		d.log.Debug("Private room created", "room", roomID)
	}

	msg := Message{
		ID:          d.ids.next(),
		Sender:      sender.Username,
		SenderID:    connectionID,
		Content:     content,
		Timestamp:   formatTime(d.now()),
		IsPrivate:   true,
		RecipientID: e.To,
		Recipient:   recipient.Username,
	}
	d.publish(Outbound{
		Event:   EventPrivateMessage,
		Scope:   ScopeRoom,
		Target:  roomID,
		Payload: msg,
	})

	return &Ack{Status: StatusSuccess, MessageID: msg.ID}
}

func (d *Dispatcher) disconnect(connectionID string) {
	if _, ok := d.conns[connectionID]; !ok {
		return
	}
	delete(d.conns, connectionID)

	for _, change := range d.rooms.Remove(connectionID) {
		d.unsubscribe(change.RoomID, change.Unsubscribed...)
		if change.Destroyed {
			d.log.Debug("Private room destroyed", "room", change.RoomID)
		}
	}
	d.typing.Clear(connectionID)

	session, ok := d.sessions.Leave(connectionID)
	if !ok {
		d.log.Debug("Anonymous connection left", "conn", connectionID)
		return
	}

	d.publishAll(EventUserLeft, Notice{
		Username:  session.Username,
		ID:        connectionID,
		Timestamp: formatTime(d.now()),
	}, connectionID)
	d.publishAll(EventUserList, d.sessions.Users(), connectionID)
	d.publishAll(EventTypingUsers, d.typing.Snapshot(), connectionID)

	d.log.Info("User left", "conn", connectionID, "username", session.Username, "online", d.sessions.Len())
}

// content trims raw and checks it against the content rule.
func (d *Dispatcher) content(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if err := d.validate.Var(content, d.contentRule); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return content, nil
}

func (d *Dispatcher) publishAll(event string, payload any, exclude string) {
	d.publish(Outbound{
		Event:   event,
		Scope:   ScopeAll,
		Exclude: exclude,
		Payload: payload,
	})
}

// publish hands out to the publisher. A publisher failure happens after the
// state change it reports has been committed, so it is logged and never
// turned into an error ack.
func (d *Dispatcher) publish(out Outbound) {
	defer d.recoverPublisher("publish", out.Event)
	d.publisher.Publish(out)
}

func (d *Dispatcher) subscribe(roomID string, connectionIDs ...string) {
	defer d.recoverPublisher("subscribe", roomID)
	d.publisher.Subscribe(roomID, connectionIDs...)
}

func (d *Dispatcher) unsubscribe(roomID string, connectionIDs ...string) {
	defer d.recoverPublisher("unsubscribe", roomID)
	d.publisher.Unsubscribe(roomID, connectionIDs...)
}

func (d *Dispatcher) recoverPublisher(op, target string) {
	if r := recover(); r != nil {
		d.log.Error("Publisher failed", "op", op, "target", target, "panic", r)
	}
}
