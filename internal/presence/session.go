package presence

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Session is the presence record of a joined connection. It is immutable
// once created.
type Session struct {
	ConnectionID string
	Username     string
	JoinedAt     time.Time
}

// User is the wire form of a Session in user_list broadcasts.
type User struct {
	Username string `json:"username"`
	ID       string `json:"id"`
	JoinedAt string `json:"joinedAt"`
}

// ToUser converts the session to its broadcast form.
func (s Session) ToUser() User {
	return User{
		Username: s.Username,
		ID:       s.ConnectionID,
		JoinedAt: formatTime(s.JoinedAt),
	}
}

// SessionRegistry maps live connections to their sessions and keeps
// usernames unique regardless of case.
type SessionRegistry struct {
	sessions map[string]Session // connectionID -> Session
	names    map[string]string  // lower-cased username -> connectionID
	maxLen   int
}

// NewSessionRegistry creates an empty registry. maxUsernameLength <= 0
// disables the length check.
func NewSessionRegistry(maxUsernameLength int) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]Session),
		names:    make(map[string]string),
		maxLen:   maxUsernameLength,
	}
}

// Join creates a session for connectionID. The username is trimmed before it
// is checked and stored.
func (r *SessionRegistry) Join(connectionID, rawUsername string, at time.Time) (Session, error) {
	if _, joined := r.sessions[connectionID]; joined {
		return Session{}, ErrAlreadyJoined
	}

	username := strings.TrimSpace(rawUsername)
	if username == "" {
		return Session{}, ErrInvalidUsername
	}
	if r.maxLen > 0 && len([]rune(username)) > r.maxLen {
		return Session{}, ErrInvalidUsername
	}

	key := strings.ToLower(username)
	if _, taken := r.names[key]; taken {
		return Session{}, ErrUsernameTaken
	}

	session := Session{
		ConnectionID: connectionID,
		Username:     username,
		JoinedAt:     at,
	}
	r.sessions[connectionID] = session
	r.names[key] = connectionID
	return session, nil
}

// Leave removes the session of connectionID. It reports whether a session
// was removed.
func (r *SessionRegistry) Leave(connectionID string) (Session, bool) {
	session, ok := r.sessions[connectionID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connectionID)
	delete(r.names, strings.ToLower(session.Username))
	return session, true
}

// Get looks up the session of connectionID.
func (r *SessionRegistry) Get(connectionID string) (Session, bool) {
	session, ok := r.sessions[connectionID]
	return session, ok
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	return len(r.sessions)
}

// ListAll returns a snapshot of every live session ordered by join time,
// ties broken by connection id.
func (r *SessionRegistry) ListAll() []Session {
	sessions := lo.Values(r.sessions)
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].JoinedAt.Equal(sessions[j].JoinedAt) {
			return sessions[i].JoinedAt.Before(sessions[j].JoinedAt)
		}
		return sessions[i].ConnectionID < sessions[j].ConnectionID
	})
	return sessions
}

// Users returns ListAll in broadcast form.
func (r *SessionRegistry) Users() []User {
	return lo.Map(r.ListAll(), func(s Session, _ int) User {
		return s.ToUser()
	})
}
