package presence

const (
	// DefaultHistoryCapacity is the number of public messages retained.
	DefaultHistoryCapacity = 200
	// DefaultHistoryReplay is the number of messages replayed to a joiner.
	DefaultHistoryReplay = 50
)

// MessageLog is a bounded, append-only log of public messages. Once the log
// grows past its capacity the oldest messages are evicted first.
type MessageLog struct {
	messages []Message
	capacity int
}

// NewMessageLog creates an empty log holding at most capacity messages.
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &MessageLog{
		messages: make([]Message, 0, capacity),
		capacity: capacity,
	}
}

// Append adds msg to the end of the log and trims the front down to the
// capacity.
func (l *MessageLog) Append(msg Message) {
	l.messages = append(l.messages, msg)
	if over := len(l.messages) - l.capacity; over > 0 {
		// Shift in place so the backing array does not creep forward forever.
		n := copy(l.messages, l.messages[over:])
		clear(l.messages[n:])
		l.messages = l.messages[:n]
	}
}

// RecentHistory returns a copy of the last n messages, oldest first. A
// non-positive n yields DefaultHistoryReplay messages.
func (l *MessageLog) RecentHistory(n int) []Message {
	if n <= 0 {
		n = DefaultHistoryReplay
	}
	if n > len(l.messages) {
		n = len(l.messages)
	}

	result := make([]Message, n)
	copy(result, l.messages[len(l.messages)-n:])
	return result
}

// Len returns the number of messages currently retained.
func (l *MessageLog) Len() int {
	return len(l.messages)
}

// Capacity returns the maximum number of retained messages.
func (l *MessageLog) Capacity() int {
	return l.capacity
}
