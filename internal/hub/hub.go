package hub

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// RoomDelimiter joins the sorted participant ids of a direct room.
const RoomDelimiter = "_"

// DirectRoomName returns the canonical room name for a user pair. It is
// commutative: DirectRoomName(a, b) == DirectRoomName(b, a).
func DirectRoomName(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, RoomDelimiter)
}

// Client is one live duplex connection. Frames queued on Send are drained by
// the connection's write pump; slow clients get frames dropped rather than
// blocking a broadcast.
type Client struct {
	ID        string
	Send      chan []byte
	Connected time.Time

	mu     sync.Mutex
	userID string
	closed bool
}

func NewClient(id string, buffer int) *Client {
	return &Client{
		ID:        id,
		Send:      make(chan []byte, buffer),
		Connected: time.Now().UTC(),
	}
}

// UserID returns the user bound via BindUser, or "" before an explicit join.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) bindUser(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *Client) enqueue(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- frame:
	default:
		// client moving slow — drop rather than block the broadcast
	}
}

// Close releases the send channel; safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
	c.mu.Unlock()
}

// JoinGuard is the capability check consulted before a connection may enter a
// group room. AllowAll preserves the historical unchecked behavior.
type JoinGuard interface {
	CanJoinGroup(ctx context.Context, userID, groupID string) bool
}

type allowAll struct{}

func (allowAll) CanJoinGroup(context.Context, string, string) bool { return true }

func AllowAll() JoinGuard { return allowAll{} }

// Router tracks live connections and their room memberships: per-user rooms,
// canonical direct rooms and group rooms. It mutates nothing but its own
// tables and never persists.
type Router struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	byClient map[*Client]map[string]struct{}
	guard    JoinGuard

	// Publish, when set, forwards every broadcast to peer instances.
	Publish func(ctx context.Context, room string, frame []byte)
}

func NewRouter(guard JoinGuard) *Router {
	if guard == nil {
		guard = AllowAll()
	}
	return &Router{
		rooms:    make(map[string]map[*Client]struct{}),
		byClient: make(map[*Client]map[string]struct{}),
		guard:    guard,
	}
}

func (r *Router) join(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[*Client]struct{})
	}
	r.rooms[room][c] = struct{}{}
	if _, ok := r.byClient[c]; !ok {
		r.byClient[c] = make(map[string]struct{})
	}
	r.byClient[c][room] = struct{}{}
}

func (r *Router) leave(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.rooms, room)
		}
	}
	if set, ok := r.byClient[c]; ok {
		delete(set, room)
	}
}

// BindUser subscribes the connection to its private user room. Joining twice
// is a no-op.
func (r *Router) BindUser(c *Client, userID string) {
	c.bindUser(userID)
	r.join(c, userID)
}

func (r *Router) JoinDirect(c *Client, userID, friendID string) {
	r.join(c, DirectRoomName(userID, friendID))
}

func (r *Router) LeaveDirect(c *Client, userID, friendID string) {
	r.leave(c, DirectRoomName(userID, friendID))
}

// JoinGroup subscribes the connection to the group room if the guard admits
// the user. It checks nothing against group membership itself.
func (r *Router) JoinGroup(ctx context.Context, c *Client, userID, groupID string) bool {
	if !r.guard.CanJoinGroup(ctx, userID, groupID) {
		return false
	}
	r.join(c, groupID)
	return true
}

func (r *Router) LeaveGroup(c *Client, groupID string) {
	r.leave(c, groupID)
}

// Drop removes the connection from every room it joined; called on
// disconnect.
func (r *Router) Drop(c *Client) {
	r.mu.Lock()
	rooms := r.byClient[c]
	delete(r.byClient, c)
	for room := range rooms {
		if set, ok := r.rooms[room]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	r.mu.Unlock()
}

// BroadcastLocal fans a frame out to every local connection in the room.
func (r *Router) BroadcastLocal(room string, frame []byte) {
	r.mu.RLock()
	set := r.rooms[room]
	members := make([]*Client, 0, len(set))
	for c := range set {
		members = append(members, c)
	}
	r.mu.RUnlock()
	for _, c := range members {
		c.enqueue(frame)
	}
}

// Broadcast fans out locally and, when configured, publishes the frame for
// peer instances.
func (r *Router) Broadcast(ctx context.Context, room string, frame []byte) {
	r.BroadcastLocal(room, frame)
	if r.Publish != nil {
		r.Publish(ctx, room, frame)
	}
}

// RoomSize reports the local member count of a room.
func (r *Router) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
