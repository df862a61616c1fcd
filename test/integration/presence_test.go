// Package integration exercises the presence server end to end over real
// WebSocket connections.
package integration

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-presence/internal/presence"
	"github.com/Tyrowin/gochat-presence/internal/server"
	"github.com/Tyrowin/gochat-presence/test/testhelpers"
)

const quietPeriod = 300 * time.Millisecond

func TestJoin_DuplicateUsernameDiffersOnlyInCase(t *testing.T) {
	r := require.New(t)
	_, ts := testhelpers.StartApp(t, nil)

	// Given alice is online
	a := testhelpers.Connect(t, ts.URL, nil)
	a.Join("alice")

	// When another connection claims Alice
	b := testhelpers.Connect(t, ts.URL, nil)
	ack := b.Request(presence.EventJoin, "Alice")

	// Then the join is rejected and the connection stays usable
	r.Equal(presence.StatusError, ack.Status)
	r.Equal(presence.ErrUsernameTaken.Error(), ack.Message)

	b.Join("bob")
}

func TestJoin_BroadcastsPresenceAndReplaysHistory(t *testing.T) {
	r := require.New(t)
	_, ts := testhelpers.StartApp(t, nil)

	a := testhelpers.Connect(t, ts.URL, nil)
	a.Join("alice")
	for i := range 3 {
		ack := a.Request(presence.EventSendMessage, map[string]string{"message": fmt.Sprintf("hello %d", i)})
		r.True(ack.OK())
	}

	b := testhelpers.Connect(t, ts.URL, nil)
	ack, frames := b.RequestFrames(presence.EventJoin, "bob")
	r.True(ack.OK())
	b.ID = ack.UserID

	var history []presence.Message
	testhelpers.Find(t, frames, presence.EventMessageHistory).Decode(t, &history)
	r.Len(history, 3)
	r.Equal("hello 0", history[0].Content)
	r.Equal("hello 2", history[2].Content)

	var users []presence.User
	testhelpers.Find(t, frames, presence.EventUserList).Decode(t, &users)
	r.Len(users, 2)

	// alice hears about bob
	var notice presence.Notice
	a.Expect(presence.EventUserJoined).Decode(t, &notice)
	r.Equal("bob", notice.Username)
	r.Equal(b.ID, notice.ID)
}

func TestJoin_IdentityClaimOnUpgrade(t *testing.T) {
	r := require.New(t)
	_, ts := testhelpers.StartApp(t, nil)

	p := testhelpers.Connect(t, ts.URL, url.Values{"username": {"carol"}})

	env := p.Expect(server.EventAck)
	r.Empty(env.ID)
	ack := env.Ack(t)
	r.True(ack.OK())
	r.NotEmpty(ack.UserID)

	again := p.Request(presence.EventJoin, "carol")
	r.Equal(presence.ErrAlreadyJoined.Error(), again.Message)
}

func TestSendMessage_LogKeepsMostRecent200(t *testing.T) {
	r := require.New(t)
	app, ts := testhelpers.StartApp(t, nil)

	a := testhelpers.Connect(t, ts.URL, nil)
	a.Join("alice")

	var lastID int64
	for i := range 201 {
		ack := a.Request(presence.EventSendMessage, map[string]string{"message": fmt.Sprintf("message %d", i)})
		r.True(ack.OK(), ack.Message)
		r.Greater(ack.MessageID, lastID)
		lastID = ack.MessageID
	}

	messages, err := app.Dispatcher().History(context.Background(), 200)
	r.NoError(err)
	r.Len(messages, 200)
	r.Equal("message 1", messages[0].Content)
	r.Equal("message 200", messages[199].Content)
	for _, m := range messages {
		r.NotEqual("message 0", m.Content)
	}
}

func TestSendMessage_RejectedWithoutJoin(t *testing.T) {
	r := require.New(t)
	_, ts := testhelpers.StartApp(t, nil)

	watcher := testhelpers.Connect(t, ts.URL, nil)
	watcher.Join("watcher")

	anon := testhelpers.Connect(t, ts.URL, nil)
	ack := anon.Request(presence.EventSendMessage, map[string]string{"message": "hi"})
	r.Equal(presence.ErrNotAuthenticated.Error(), ack.Message)

	ack = anon.Request(presence.EventPrivateMessage, map[string]string{"to": watcher.ID, "message": "hi"})
	r.Equal(presence.ErrNotAuthenticated.Error(), ack.Message)

	anon.Emit(presence.EventTyping, true)

	watcher.ExpectNone(presence.EventReceiveMessage, quietPeriod)
}

func TestSendMessage_InvalidPayloads(t *testing.T) {
	r := require.New(t)
	_, ts := testhelpers.StartApp(t, nil)

	a := testhelpers.Connect(t, ts.URL, nil)
	a.Join("alice")

	for _, data := range []any{
		map[string]string{"message": ""},
		map[string]string{"message": "   "},
		map[string]int{"message": 5},
		"",
		nil,
	} {
		ack := a.Request(presence.EventSendMessage, data)
		r.Equal(presence.ErrInvalidMessage.Error(), ack.Message, "payload %v", data)
	}
}

func TestPrivateMessage_OnlyReachesThePair(t *testing.T) {
	r := require.New(t)
	_, ts := testhelpers.StartApp(t, nil)

	a := testhelpers.Connect(t, ts.URL, nil)
	a.Join("alice")
	b := testhelpers.Connect(t, ts.URL, nil)
	b.Join("bob")
	c := testhelpers.Connect(t, ts.URL, nil)
	c.Join("carol")

	ack, frames := a.RequestFrames(presence.EventPrivateMessage, map[string]string{"to": b.ID, "message": "hi"})
	r.True(ack.OK(), ack.Message)

	var sent presence.Message
	testhelpers.Find(t, frames, presence.EventPrivateMessage).Decode(t, &sent)
	r.Equal(ack.MessageID, sent.ID)

	var received presence.Message
	b.Expect(presence.EventPrivateMessage).Decode(t, &received)
	r.Equal("hi", received.Content)
	r.True(received.IsPrivate)
	r.Equal("alice", received.Sender)
	r.Equal(a.ID, received.SenderID)
	r.Equal(b.ID, received.RecipientID)
	r.Equal("bob", received.Recipient)
	r.Equal(sent, received)

	c.ExpectNone(presence.EventPrivateMessage, quietPeriod)
}

func TestPrivateMessage_RoomDestroyedWhenPeerLeaves(t *testing.T) {
	r := require.New(t)
	app, ts := testhelpers.StartApp(t, nil)

	a := testhelpers.Connect(t, ts.URL, nil)
	a.Join("alice")
	b := testhelpers.Connect(t, ts.URL, nil)
	b.Join("bob")

	ack := a.Request(presence.EventPrivateMessage, map[string]string{"to": b.ID, "message": "hi"})
	r.True(ack.OK())
	roomID := presence.RoomID(a.ID, b.ID)
	r.Eventually(func() bool {
		return len(app.Hub().RoomListeners(roomID)) == 2
	}, time.Second, 10*time.Millisecond)

	// When bob goes away
	b.Close()

	// Then alice sees him leave and the room is gone
	var left presence.Notice
	a.Expect(presence.EventUserLeft).Decode(t, &left)
	r.Equal("bob", left.Username)

	snap, err := app.Dispatcher().Snapshot(context.Background())
	r.NoError(err)
	r.Empty(snap.Rooms)
	r.Eventually(func() bool {
		return len(app.Hub().RoomListeners(roomID)) == 0
	}, time.Second, 10*time.Millisecond)

	ack = a.Request(presence.EventPrivateMessage, map[string]string{"to": b.ID, "message": "still there?"})
	r.Equal(presence.ErrInvalidRecipient.Error(), ack.Message)
}

func TestTyping_BroadcastsBothTransitions(t *testing.T) {
	r := require.New(t)
	_, ts := testhelpers.StartApp(t, nil)

	a := testhelpers.Connect(t, ts.URL, nil)
	a.Join("alice")
	b := testhelpers.Connect(t, ts.URL, nil)
	b.Join("bob")

	a.Emit(presence.EventTyping, true)
	var typing []string
	b.Expect(presence.EventTypingUsers).Decode(t, &typing)
	r.Equal([]string{"alice"}, typing)

	a.Emit(presence.EventTyping, false)
	b.Expect(presence.EventTypingUsers).Decode(t, &typing)
	r.Empty(typing)
}

func TestDisconnect_ClientRequestedCleansUp(t *testing.T) {
	r := require.New(t)
	app, ts := testhelpers.StartApp(t, nil)

	a := testhelpers.Connect(t, ts.URL, nil)
	a.Join("alice")
	b := testhelpers.Connect(t, ts.URL, nil)
	b.Join("bob")
	b.Emit(presence.EventTyping, true)
	a.Expect(presence.EventTypingUsers)

	b.Emit(presence.EventDisconnect, nil)

	a.Expect(presence.EventUserLeft)
	var users []presence.User
	a.Expect(presence.EventUserList).Decode(t, &users)
	r.Len(users, 1)
	r.Equal("alice", users[0].Username)
	var typing []string
	a.Expect(presence.EventTypingUsers).Decode(t, &typing)
	r.Empty(typing)

	// The server closes bob's connection
	for {
		if _, err := b.Read(); err != nil {
			break
		}
	}

	r.Eventually(func() bool {
		return app.Hub().ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	// bob's name is free again
	c := testhelpers.Connect(t, ts.URL, nil)
	c.Join("bob")
}

func TestEnvelope_UnknownAndMalformed(t *testing.T) {
	r := require.New(t)
	_, ts := testhelpers.StartApp(t, nil)

	p := testhelpers.Connect(t, ts.URL, nil)
	ack := p.Request("shout", "hey")
	r.Equal(presence.ErrUnknownEvent.Error(), ack.Message)

	r.NoError(p.Conn().WriteMessage(websocket.TextMessage, []byte("not json")))
	var payload server.ErrorPayload
	p.Expect(server.EventError).Decode(t, &payload)
	r.NotEmpty(payload.Message)

	// The connection is still usable
	p.Join("alice")
}
