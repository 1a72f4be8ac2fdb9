package hubwire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomRegistryJoinDeduplicates(t *testing.T) {
	r := NewRoomRegistry("v1")

	assert.True(t, r.Join("room-a"))
	assert.False(t, r.Join("room-a"))
	assert.True(t, r.Has("room-a"))
	assert.Equal(t, 1, r.Len())
}

func TestRoomRegistryRejectsEmptyRoom(t *testing.T) {
	r := NewRoomRegistry("v1")

	assert.False(t, r.Join(""))
	assert.Zero(t, r.Len())
}

func TestRoomRegistryLeave(t *testing.T) {
	r := NewRoomRegistry("v1")
	r.Join("room-a")
	r.Join("room-b")

	assert.True(t, r.Leave("room-a"))
	assert.False(t, r.Leave("room-a"))
	assert.False(t, r.Has("room-a"))
	assert.Equal(t, []string{"room-b"}, r.Rooms())
}

func TestRoomRegistryReplayAllInJoinOrder(t *testing.T) {
	r := NewRoomRegistry("visitor-7")
	r.Join("alpha")
	r.Join("beta")
	r.Join("gamma")
	r.Leave("beta")

	var joins []*JoinPayload
	err := r.ReplayAll(func(event EventName, payload any) error {
		require.Equal(t, EventJoin, event)
		joins = append(joins, payload.(*JoinPayload))
		return nil
	})

	require.NoError(t, err)
	require.Len(t, joins, 2)
	assert.Equal(t, "alpha", joins[0].RoomID)
	assert.Equal(t, "gamma", joins[1].RoomID)
	assert.Equal(t, "visitor-7", joins[0].VisitorID)
}

func TestRoomRegistryReplayAllStopsOnError(t *testing.T) {
	r := NewRoomRegistry("v1")
	r.Join("alpha")
	r.Join("beta")

	boom := errors.New("write failed")
	emitted := 0
	err := r.ReplayAll(func(EventName, any) error {
		emitted++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, emitted)
	// The registry keeps everything for the next reconnect.
	assert.Equal(t, 2, r.Len())
}
