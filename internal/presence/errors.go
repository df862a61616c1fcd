package presence

import "errors"

// Join errors
var (
	// ErrInvalidUsername is returned when the username is empty after trimming
	// or exceeds the configured length.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrUsernameTaken is returned when another live session already uses the
	// username, compared case-insensitively.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrAlreadyJoined is returned when a joined connection sends join again.
	ErrAlreadyJoined = errors.New("user already joined")
)

// Messaging errors
var (
	// ErrNotAuthenticated is returned for events that require a session.
	ErrNotAuthenticated = errors.New("user not authenticated")

	// ErrInvalidMessage is returned for empty, blank or oversized content.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidRecipient is returned when the private message target has no
	// live session or is the sender itself.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// Lifecycle errors
var (
	// ErrConnectionClosed is returned for events from a connection the
	// dispatcher does not know, either never connected or already gone.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrDispatcherStopped is returned when the dispatcher loop is no longer
	// running.
	ErrDispatcherStopped = errors.New("dispatcher stopped")

	// ErrInternal is reported in place of an unexpected failure inside a
	// dispatcher step.
	ErrInternal = errors.New("internal error")
)

// ErrUnknownEvent is returned for events the dispatcher does not handle.
var ErrUnknownEvent = errors.New("unknown event")
