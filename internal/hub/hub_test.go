package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectRoomNameIsCommutative(t *testing.T) {
	assert.Equal(t, DirectRoomName("alice", "bob"), DirectRoomName("bob", "alice"))
	assert.Equal(t, "alice_bob", DirectRoomName("bob", "alice"))
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-c.Send:
			out = append(out, b)
		default:
			return out
		}
	}
}

func TestBindUserJoinsUserRoom(t *testing.T) {
	r := NewRouter(nil)
	c := NewClient("c1", 8)
	r.BindUser(c, "alice")

	assert.Equal(t, "alice", c.UserID())
	r.BroadcastLocal("alice", []byte("hello"))
	frames := drain(c)
	require.Len(t, frames, 1)
	assert.Equal(t, "hello", string(frames[0]))
}

func TestJoinTwiceDeliversOnce(t *testing.T) {
	r := NewRouter(nil)
	c := NewClient("c1", 8)
	r.BindUser(c, "alice")
	r.BindUser(c, "alice")

	r.BroadcastLocal("alice", []byte("x"))
	assert.Len(t, drain(c), 1)
}

func TestBroadcastIsScopedToRoom(t *testing.T) {
	r := NewRouter(nil)
	a := NewClient("ca", 8)
	b := NewClient("cb", 8)
	other := NewClient("co", 8)
	r.JoinDirect(a, "alice", "bob")
	r.JoinDirect(b, "bob", "alice")
	r.JoinDirect(other, "carol", "dave")

	r.BroadcastLocal(DirectRoomName("alice", "bob"), []byte("hi"))
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(other))
}

func TestDropRemovesClientFromEveryRoom(t *testing.T) {
	r := NewRouter(nil)
	c := NewClient("c1", 8)
	r.BindUser(c, "alice")
	r.JoinDirect(c, "alice", "bob")
	r.JoinGroup(context.Background(), c, "alice", "g1")
	assert.Equal(t, 1, r.RoomSize("g1"))

	r.Drop(c)
	assert.Equal(t, 0, r.RoomSize("alice"))
	assert.Equal(t, 0, r.RoomSize(DirectRoomName("alice", "bob")))
	assert.Equal(t, 0, r.RoomSize("g1"))

	r.BroadcastLocal("alice", []byte("x"))
	assert.Empty(t, drain(c))
}

func TestLeaveRoom(t *testing.T) {
	r := NewRouter(nil)
	c := NewClient("c1", 8)
	r.JoinDirect(c, "alice", "bob")
	r.LeaveDirect(c, "bob", "alice") // either argument order works

	r.BroadcastLocal(DirectRoomName("alice", "bob"), []byte("x"))
	assert.Empty(t, drain(c))
}

type denyGuard struct{}

func (denyGuard) CanJoinGroup(context.Context, string, string) bool { return false }

func TestJoinGroupHonorsGuard(t *testing.T) {
	r := NewRouter(denyGuard{})
	c := NewClient("c1", 8)

	ok := r.JoinGroup(context.Background(), c, "alice", "g1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.RoomSize("g1"))
}

func TestSlowClientDoesNotBlockBroadcast(t *testing.T) {
	r := NewRouter(nil)
	c := NewClient("c1", 1)
	r.BindUser(c, "alice")

	// second frame overflows the buffer and must be dropped, not block
	r.BroadcastLocal("alice", []byte("one"))
	r.BroadcastLocal("alice", []byte("two"))

	frames := drain(c)
	require.Len(t, frames, 1)
	assert.Equal(t, "one", string(frames[0]))
}

func TestEnqueueAfterCloseIsSafe(t *testing.T) {
	r := NewRouter(nil)
	c := NewClient("c1", 8)
	r.BindUser(c, "alice")
	c.Close()
	c.Close() // double close must not panic

	assert.NotPanics(t, func() {
		r.BroadcastLocal("alice", []byte("x"))
	})
}
