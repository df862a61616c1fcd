package presence

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// roomSeparator joins the two sorted connection ids of a private room.
const roomSeparator = "-"

// roomEscaper escapes the separator inside ids so distinct pairs never
// collapse onto the same room id.
var roomEscaper = strings.NewReplacer(`\`, `\\`, roomSeparator, `\`+roomSeparator)

// RoomID derives the identifier of the private room shared by a and b. The
// result does not depend on argument order and is distinct for every pair.
func RoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return roomEscaper.Replace(pair[0]) + roomSeparator + roomEscaper.Replace(pair[1])
}

// PrivateRoom is an ephemeral two-party broadcast scope.
type PrivateRoom struct {
	ID           string
	Participants map[string]struct{}
}

// Has reports whether connectionID is a participant.
func (r *PrivateRoom) Has(connectionID string) bool {
	_, ok := r.Participants[connectionID]
	return ok
}

// Members returns the participants in sorted order.
func (r *PrivateRoom) Members() []string {
	members := lo.Keys(r.Participants)
	sort.Strings(members)
	return members
}

// RoomChange describes what Remove did to one room.
type RoomChange struct {
	RoomID string
	// Destroyed is set when membership fell below two and the room is gone.
	Destroyed bool
	// Unsubscribed lists every connection that no longer listens to the room,
	// including the removed one.
	Unsubscribed []string
}

// RoomManager tracks the private rooms between pairs of connections.
type RoomManager struct {
	rooms  map[string]*PrivateRoom        // roomID -> room
	byConn map[string]map[string]struct{} // connectionID -> roomIDs
}

// NewRoomManager creates an empty manager.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:  make(map[string]*PrivateRoom),
		byConn: make(map[string]map[string]struct{}),
	}
}

// EnsureRoom returns the room shared by a and b, creating it on first use.
// created reports whether a new room was made; the caller subscribes both
// connections to it in that case.
func (m *RoomManager) EnsureRoom(a, b string) (roomID string, created bool) {
	roomID = RoomID(a, b)
	if _, ok := m.rooms[roomID]; ok {
		return roomID, false
	}

	m.rooms[roomID] = &PrivateRoom{
		ID:           roomID,
		Participants: map[string]struct{}{a: {}, b: {}},
	}
	m.index(a, roomID)
	m.index(b, roomID)
	return roomID, true
}

// Remove drops connectionID from every room it belongs to. Rooms left with
// fewer than two participants are destroyed and their remaining participant
// is reported for unsubscription.
func (m *RoomManager) Remove(connectionID string) []RoomChange {
	roomIDs := lo.Keys(m.byConn[connectionID])
	sort.Strings(roomIDs)
	delete(m.byConn, connectionID)

	changes := make([]RoomChange, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		room, ok := m.rooms[roomID]
		if !ok {
			continue
		}
		delete(room.Participants, connectionID)
		change := RoomChange{RoomID: roomID, Unsubscribed: []string{connectionID}}

		if len(room.Participants) < 2 {
			for _, remaining := range room.Members() {
				m.unindex(remaining, roomID)
				change.Unsubscribed = append(change.Unsubscribed, remaining)
			}
			delete(m.rooms, roomID)
			change.Destroyed = true
		}
		changes = append(changes, change)
	}
	return changes
}

// Get returns the room with roomID.
func (m *RoomManager) Get(roomID string) (*PrivateRoom, bool) {
	room, ok := m.rooms[roomID]
	return room, ok
}

// RoomsOf returns the ids of every room connectionID participates in.
func (m *RoomManager) RoomsOf(connectionID string) []string {
	roomIDs := lo.Keys(m.byConn[connectionID])
	sort.Strings(roomIDs)
	return roomIDs
}

// Len returns the number of live rooms.
func (m *RoomManager) Len() int {
	return len(m.rooms)
}

func (m *RoomManager) index(connectionID, roomID string) {
	if m.byConn[connectionID] == nil {
		m.byConn[connectionID] = make(map[string]struct{})
	}
	m.byConn[connectionID][roomID] = struct{}{}
}

func (m *RoomManager) unindex(connectionID, roomID string) {
	rooms, ok := m.byConn[connectionID]
	if !ok {
		return
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(m.byConn, connectionID)
	}
}
