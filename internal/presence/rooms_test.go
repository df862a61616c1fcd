package presence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRoomID_IsSymmetric(t *testing.T) {
	for i := 0; i < 100; i++ {
		a, b := uuid.NewString(), uuid.NewString()
		require.Equal(t, RoomID(a, b), RoomID(b, a))
		require.NotEqual(t, RoomID(a, b), RoomID(a, uuid.NewString()))
	}
	require.Equal(t, "a-b", RoomID("b", "a"))
}

func TestRoomID_DistinguishesIdsContainingTheSeparator(t *testing.T) {
	req := require.New(t)

	req.NotEqual(RoomID("a-b", "c"), RoomID("a", "b-c"))
	req.NotEqual(RoomID(`a\`, "b"), RoomID("a", `\b`))
	req.NotEqual(RoomID(`a\-`, "b"), RoomID(`a\`, "-b"))
	req.Equal(RoomID("a-b", "c"), RoomID("c", "a-b"))
}

func TestRoomManager_EnsureRoomIsIdempotent(t *testing.T) {
	req := require.New(t)
	manager := NewRoomManager()

	roomID, created := manager.EnsureRoom("a", "b")
	req.True(created)
	req.Equal(RoomID("a", "b"), roomID)

	again, created := manager.EnsureRoom("b", "a")
	req.False(created)
	req.Equal(roomID, again)
	req.Equal(1, manager.Len())

	room, ok := manager.Get(roomID)
	req.True(ok)
	req.Equal([]string{"a", "b"}, room.Members())
	req.Equal([]string{roomID}, manager.RoomsOf("a"))
	req.Equal([]string{roomID}, manager.RoomsOf("b"))
}

func TestRoomManager_RemoveDestroysRoomsBelowTwo(t *testing.T) {
	req := require.New(t)
	manager := NewRoomManager()
	ab, _ := manager.EnsureRoom("a", "b")
	ac, _ := manager.EnsureRoom("a", "c")
	bc, _ := manager.EnsureRoom("b", "c")

	changes := manager.Remove("a")

	req.Equal([]RoomChange{
		{RoomID: ab, Destroyed: true, Unsubscribed: []string{"a", "b"}},
		{RoomID: ac, Destroyed: true, Unsubscribed: []string{"a", "c"}},
	}, changes)
	req.Equal(1, manager.Len())
	_, ok := manager.Get(bc)
	req.True(ok)
	req.Empty(manager.RoomsOf("a"))
	req.Equal([]string{bc}, manager.RoomsOf("b"))
	req.Equal([]string{bc}, manager.RoomsOf("c"))
}

func TestRoomManager_RemoveUnknownConnection(t *testing.T) {
	manager := NewRoomManager()
	manager.EnsureRoom("a", "b")

	require.Empty(t, manager.Remove("z"))
	require.Equal(t, 1, manager.Len())
}
