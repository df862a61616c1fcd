// Package server defines the JSON envelopes exchanged with clients and the
// decoding of inbound envelopes into presence events.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Tyrowin/gochat-presence/internal/presence"
)

// Envelope events that only exist on the wire.
const (
	EventAck   = "ack"
	EventError = "error"
)

// InboundEnvelope is a client event. A non-empty ID asks for an ack carrying
// the same ID.
type InboundEnvelope struct {
	Event string          `json:"event"`
	ID    json.RawMessage `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WantsAck reports whether the client supplied an ack id.
func (e InboundEnvelope) WantsAck() bool {
	id := bytes.TrimSpace(e.ID)
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

// OutboundEnvelope is a server event.
type OutboundEnvelope struct {
	Event string          `json:"event"`
	ID    json.RawMessage `json:"id,omitempty"`
	Data  any             `json:"data"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

var errMalformedEnvelope = errors.New("malformed envelope")

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(OutboundEnvelope{Event: event, Data: data})
}

func encodeAck(id json.RawMessage, ack *presence.Ack) ([]byte, error) {
	return json.Marshal(OutboundEnvelope{Event: EventAck, ID: id, Data: ack})
}

func parseEnvelope(raw []byte) (InboundEnvelope, error) {
	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return InboundEnvelope{}, errors.Join(errMalformedEnvelope, err)
	}
	env.Event = strings.TrimSpace(env.Event)
	if env.Event == "" {
		return InboundEnvelope{}, errMalformedEnvelope
	}
	return env, nil
}

// decodeEvent turns an envelope into a presence event. Payloads that do not
// have the expected shape decode to zero values so the dispatcher reports the
// state error before the payload error.
func decodeEvent(env InboundEnvelope) (presence.Event, error) {
	switch env.Event {
	case presence.EventJoin:
		return presence.Join{Username: decodeUsername(env.Data)}, nil
	case presence.EventSendMessage:
		var ev presence.SendMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			var text string
			if json.Unmarshal(env.Data, &text) == nil {
				ev.Message = text
			}
		}
		return ev, nil
	case presence.EventTyping:
		return presence.Typing{IsTyping: decodeTyping(env.Data)}, nil
	case presence.EventPrivateMessage:
		var ev presence.PrivateMessage
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return presence.PrivateMessage{}, nil
		}
		return ev, nil
	default:
		return nil, presence.ErrUnknownEvent
	}
}

// decodeUsername accepts either "name" or {"username":"name"}.
func decodeUsername(data json.RawMessage) string {
	var username string
	if json.Unmarshal(data, &username) == nil {
		return username
	}
	var obj struct {
		Username string `json:"username"`
	}
	if json.Unmarshal(data, &obj) == nil {
		return obj.Username
	}
	return ""
}

// decodeTyping accepts either a boolean or {"isTyping":bool}. Anything else
// counts as not typing.
func decodeTyping(data json.RawMessage) bool {
	var isTyping bool
	if json.Unmarshal(data, &isTyping) == nil {
		return isTyping
	}
	var obj struct {
		IsTyping bool `json:"isTyping"`
	}
	if json.Unmarshal(data, &obj) == nil {
		return obj.IsTyping
	}
	return false
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
