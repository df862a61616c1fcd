package presence

import (
	"sync"
	"time"
)

// TimeFormat is the wire format of every timestamp emitted by the core.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Message is a chat message. Public messages are kept in the MessageLog;
// private ones are only relayed to the pair's room.
type Message struct {
	ID          int64  `json:"id"`
	Sender      string `json:"sender"`
	SenderID    string `json:"senderId"`
	Content     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	IsPrivate   bool   `json:"isPrivate"`
	RecipientID string `json:"recipientId,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
}

// Notice announces a session joining or leaving.
type Notice struct {
	Username  string `json:"username"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// formatTime renders t in UTC with millisecond precision.
func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// idGenerator hands out message ids derived from the wall clock in
// milliseconds. Ids are strictly increasing within a process: when the clock
// has not advanced past the previous id the previous id plus one is used.
type idGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newIDGenerator(now func() time.Time) *idGenerator {
	if now == nil {
		now = time.Now
	}
	return &idGenerator{now: now}
}

func (g *idGenerator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}
