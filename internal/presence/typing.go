package presence

import (
	"sort"

	"github.com/samber/lo"
)

// TypingTracker records which connections are currently typing.
type TypingTracker struct {
	typing map[string]string // connectionID -> username
}

// NewTypingTracker creates an empty tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{typing: make(map[string]string)}
}

// SetTyping marks connectionID as typing under username, or clears it when
// isTyping is false.
func (t *TypingTracker) SetTyping(connectionID, username string, isTyping bool) {
	if isTyping {
		t.typing[connectionID] = username
		return
	}
	delete(t.typing, connectionID)
}

// Clear forgets connectionID. It is a no-op for unknown connections.
func (t *TypingTracker) Clear(connectionID string) {
	delete(t.typing, connectionID)
}

// IsTyping reports whether connectionID is marked as typing.
func (t *TypingTracker) IsTyping(connectionID string) bool {
	_, ok := t.typing[connectionID]
	return ok
}

// Snapshot returns the usernames of everyone typing, sorted for stable output.
func (t *TypingTracker) Snapshot() []string {
	names := lo.Values(t.typing)
	sort.Strings(names)
	return names
}
