//go:generate go run go.uber.org/mock/mockgen -source=publisher.go -destination=mocks/mock_publisher.go -package=mocks

package presence

// Scope selects the recipients of an Outbound.
type Scope int

const (
	// ScopeAll addresses every registered connection.
	ScopeAll Scope = iota
	// ScopeConnection addresses the single connection in Target.
	ScopeConnection
	// ScopeRoom addresses the listeners of the room in Target.
	ScopeRoom
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeConnection:
		return "connection"
	case ScopeRoom:
		return "room"
	default:
		return "unknown"
	}
}

// Outbound is one event leaving the core.
type Outbound struct {
	Event   string
	Scope   Scope
	Target  string
	Exclude string
	Payload any
}

// Publisher fans outbound events out to connections. Implementations must
// not block on slow connections and must not call back into the Dispatcher.
// Subscribe and Unsubscribe take effect in order with Publish calls.
type Publisher interface {
	Publish(out Outbound)
	Subscribe(roomID string, connectionIDs ...string)
	Unsubscribe(roomID string, connectionIDs ...string)
}
