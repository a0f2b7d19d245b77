package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

func seedDirect(t *testing.T, s *Store, sender, receiver string, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := s.SaveDirect(context.Background(), &domain.DirectMessage{
			ID:         fmt.Sprintf("%s-%s-%d", sender, receiver, i),
			Sender:     sender,
			Receiver:   receiver,
			Body:       fmt.Sprintf("msg %d", i),
			Kind:       domain.KindText,
			Status:     domain.StatusSent,
			ReadStatus: domain.ReadStatusUnread,
			CreatedAt:  start.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
}

func TestDirectBetweenMatchesBothOrderings(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDirect(t, s, "alice", "bob", 2, base)
	seedDirect(t, s, "bob", "alice", 3, base.Add(time.Hour))
	seedDirect(t, s, "alice", "carol", 4, base)

	msgs, total, err := s.DirectBetween(context.Background(), "alice", "bob", 0, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, msgs, 5)
}

func TestDirectBetweenPaginationWindows(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDirect(t, s, "alice", "bob", 25, base)

	var all []*domain.DirectMessage
	for skip := int64(0); ; skip += 10 {
		page, total, err := s.DirectBetween(context.Background(), "bob", "alice", skip, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 25, total)
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
	}
	require.Len(t, all, 25)
	// newest first, no duplicates across windows
	seen := make(map[string]bool)
	for i, m := range all {
		assert.False(t, seen[m.ID], "duplicate %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			assert.False(t, m.CreatedAt.After(all[i-1].CreatedAt))
		}
	}
}

func TestDirectBetweenSkipPastEnd(t *testing.T) {
	s := New()
	seedDirect(t, s, "a", "b", 3, time.Now().UTC())
	page, total, err := s.DirectBetween(context.Background(), "a", "b", 10, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Empty(t, page)
}

func TestRecallDirectIsIdempotent(t *testing.T) {
	s := New()
	seedDirect(t, s, "a", "b", 1, time.Now().UTC())

	require.NoError(t, s.RecallDirect(context.Background(), "a-b-0"))
	require.NoError(t, s.RecallDirect(context.Background(), "a-b-0"))

	m, err := s.GetDirectByID(context.Background(), "a-b-0")
	require.NoError(t, err)
	assert.True(t, m.Recalled)

	err = s.RecallDirect(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkRead(t *testing.T) {
	s := New()
	base := time.Now().UTC()
	seedDirect(t, s, "alice", "bob", 3, base)
	seedDirect(t, s, "bob", "alice", 2, base)

	n, err := s.MarkRead(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// second call finds nothing left unread
	n, err = s.MarkRead(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	// the reverse direction is untouched
	n, err = s.MarkRead(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestLatestPerConversation(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDirect(t, s, "bob", "alice", 3, base)           // 3 unread for alice
	seedDirect(t, s, "alice", "carol", 1, base.Add(time.Hour))
	seedDirect(t, s, "carol", "alice", 2, base.Add(2*time.Hour))

	sums, err := s.LatestPerConversation(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, sums, 2)

	// newest conversation first
	assert.Equal(t, "carol", sums[0].FriendID)
	assert.Equal(t, "msg 1", sums[0].Body)
	assert.EqualValues(t, 2, sums[0].Unread)

	assert.Equal(t, "bob", sums[1].FriendID)
	assert.EqualValues(t, 3, sums[1].Unread)
}

func TestGroupHistoryPagination(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		require.NoError(t, s.SaveGroup(context.Background(), &domain.GroupMessage{
			ID:        fmt.Sprintf("g-%d", i),
			GroupID:   "g1",
			Sender:    "alice",
			Body:      fmt.Sprintf("msg %d", i),
			Kind:      domain.KindText,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, total, err := s.GroupHistory(context.Background(), "g1", 0, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
	require.Len(t, page, 3)
	assert.Equal(t, "g-6", page[0].ID)

	page, _, err = s.GroupHistory(context.Background(), "g1", 6, 3)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "g-0", page[0].ID)
}

func TestRecallGroupNotFound(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.RecallGroup(context.Background(), "nope"), store.ErrNotFound)
}

func TestDirectoryLookups(t *testing.T) {
	s := New()
	s.AddUser(&domain.User{ID: "u1", Username: "alice", PushToken: "tok"})
	s.AddGroup(&domain.Group{ID: "g1", Name: "team", Members: []string{"u1"}})

	u, err := s.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = s.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)

	g, err := s.GetGroup(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, g.Members)

	_, err = s.GetGroup(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
