package presence

// Inbound event names.
const (
	EventJoin           = "join"
	EventSendMessage    = "send_message"
	EventTyping         = "typing"
	EventPrivateMessage = "private_message"
	EventDisconnect     = "disconnect"
)

// Outbound event names.
const (
	EventUserList       = "user_list"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventMessageHistory = "message_history"
	EventReceiveMessage = "receive_message"
	EventTypingUsers    = "typing_users"
	// EventPrivateMessage is also the outbound name of a relayed private message.
)

// Event is an inbound event from a connection.
type Event interface {
	EventName() string
}

// Join asks for a session under Username.
type Join struct {
	Username string
}

// SendMessage posts a public message.
type SendMessage struct {
	Message string `json:"message"`
}

// Typing toggles the typing indicator.
type Typing struct {
	IsTyping bool
}

// PrivateMessage sends Message to the connection To.
type PrivateMessage struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (Join) EventName() string           { return EventJoin }
func (SendMessage) EventName() string    { return EventSendMessage }
func (Typing) EventName() string         { return EventTyping }
func (PrivateMessage) EventName() string { return EventPrivateMessage }

// Ack statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Ack is the result of an event, returned to the originating connection
// only.
type Ack struct {
	Status    string `json:"status"`
	UserID    string `json:"userId,omitempty"`
	MessageID int64  `json:"messageId,omitempty"`
	Message   string `json:"message,omitempty"`

	err error
}

// Err returns the error the ack reports, or nil on success.
func (a Ack) Err() error {
	return a.err
}

// OK reports whether the ack is a success.
func (a Ack) OK() bool {
	return a.Status == StatusSuccess
}

// ErrorAck builds an error ack for err.
func ErrorAck(err error) *Ack {
	return &Ack{Status: StatusError, Message: err.Error(), err: err}
}
