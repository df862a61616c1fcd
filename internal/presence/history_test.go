package presence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func messageN(i int) Message {
	return Message{ID: int64(i), Content: fmt.Sprintf("message %d", i)}
}

func TestMessageLog_AppendEvictsOldestFirst(t *testing.T) {
	req := require.New(t)
	log := NewMessageLog(DefaultHistoryCapacity)

	for i := 1; i <= 201; i++ {
		log.Append(messageN(i))
	}

	req.Equal(200, log.Len())
	all := log.RecentHistory(log.Capacity())
	req.Equal(int64(2), all[0].ID)
	req.Equal(int64(201), all[len(all)-1].ID)
	for i := 1; i < len(all); i++ {
		req.Less(all[i-1].ID, all[i].ID)
	}
}

func TestMessageLog_NeverExceedsCapacity(t *testing.T) {
	log := NewMessageLog(5)

	for i := 1; i <= 23; i++ {
		log.Append(messageN(i))
		require.LessOrEqual(t, log.Len(), 5)
	}

	got := log.RecentHistory(5)
	require.Equal(t, []int64{19, 20, 21, 22, 23}, ids(got))
}

func TestMessageLog_RecentHistory(t *testing.T) {
	tests := []struct {
		name  string
		sent  int
		n     int
		first int64
		want  int
	}{
		{name: "empty log", sent: 0, n: 50, want: 0},
		{name: "fewer than replay size", sent: 10, n: 50, first: 1, want: 10},
		{name: "more than replay size", sent: 120, n: 50, first: 71, want: 50},
		{name: "default size", sent: 80, n: 0, first: 31, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewMessageLog(DefaultHistoryCapacity)
			for i := 1; i <= tt.sent; i++ {
				log.Append(messageN(i))
			}

			got := log.RecentHistory(tt.n)

			require.Len(t, got, tt.want)
			if tt.want > 0 {
				require.Equal(t, tt.first, got[0].ID)
				require.Equal(t, int64(tt.sent), got[len(got)-1].ID)
			}
			require.Equal(t, tt.sent, log.Len())
		})
	}
}

func TestMessageLog_RecentHistoryReturnsACopy(t *testing.T) {
	log := NewMessageLog(DefaultHistoryCapacity)
	log.Append(messageN(1))

	got := log.RecentHistory(1)
	got[0].Content = "changed"

	require.Equal(t, "message 1", log.RecentHistory(1)[0].Content)
}

func ids(messages []Message) []int64 {
	result := make([]int64, len(messages))
	for i, m := range messages {
		result[i] = m.ID
	}
	return result
}
