// Package memory is the in-process implementation of the store ports, used
// by tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

type Store struct {
	mu     sync.RWMutex
	direct []*domain.DirectMessage
	group  []*domain.GroupMessage
	users  map[string]*domain.User
	groups map[string]*domain.Group
}

func New() *Store {
	return &Store{
		users:  make(map[string]*domain.User),
		groups: make(map[string]*domain.Group),
	}
}

// Seed helpers for externally-owned records.

func (s *Store) AddUser(u *domain.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *Store) AddGroup(g *domain.Group) {
	s.mu.Lock()
	s.groups[g.ID] = g
	s.mu.Unlock()
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetGroup(_ context.Context, id string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Store) SaveDirect(_ context.Context, m *domain.DirectMessage) error {
	s.mu.Lock()
	cp := *m
	s.direct = append(s.direct, &cp)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetDirectByID(_ context.Context, id string) (*domain.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.direct {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func betweenPair(m *domain.DirectMessage, a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}

func (s *Store) DirectBetween(_ context.Context, userA, userB string, skip, limit int64) ([]*domain.DirectMessage, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*domain.DirectMessage, 0)
	for _, m := range s.direct {
		if betweenPair(m, userA, userB) {
			matched = append(matched, m)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	if skip >= total {
		return []*domain.DirectMessage{}, total, nil
	}
	end := skip + limit
	if end > total {
		end = total
	}
	out := make([]*domain.DirectMessage, 0, end-skip)
	for _, m := range matched[skip:end] {
		cp := *m
		out = append(out, &cp)
	}
	return out, total, nil
}

func (s *Store) RecallDirect(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.direct {
		if m.ID == id {
			m.Recalled = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) MarkRead(_ context.Context, senderID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.direct {
		if m.Sender == senderID && m.Receiver == receiverID && m.ReadStatus == domain.ReadStatusUnread {
			m.ReadStatus = domain.ReadStatusRead
			m.Status = domain.StatusRead
			n++
		}
	}
	return n, nil
}

func (s *Store) LatestPerConversation(_ context.Context, userID string) ([]*store.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byFriend := make(map[string]*store.ConversationSummary)
	for _, m := range s.direct {
		if m.Sender != userID && m.Receiver != userID {
			continue
		}
		friend := m.Sender
		if m.Sender == userID {
			friend = m.Receiver
		}
		cur, ok := byFriend[friend]
		if !ok {
			cur = &store.ConversationSummary{FriendID: friend}
			byFriend[friend] = cur
		}
		if !ok || m.CreatedAt.After(cur.Timestamp) || cur.Timestamp.IsZero() {
			cur.Body = m.Body
			cur.Kind = m.Kind
			cur.Recalled = m.Recalled
			cur.Timestamp = m.CreatedAt
		}
		if m.Receiver == userID && m.ReadStatus == domain.ReadStatusUnread {
			cur.Unread++
		}
	}
	out := make([]*store.ConversationSummary, 0, len(byFriend))
	for _, c := range byFriend {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *Store) SaveGroup(_ context.Context, m *domain.GroupMessage) error {
	s.mu.Lock()
	cp := *m
	s.group = append(s.group, &cp)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetGroupByID(_ context.Context, id string) (*domain.GroupMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.group {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GroupHistory(_ context.Context, groupID string, skip, limit int64) ([]*domain.GroupMessage, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*domain.GroupMessage, 0)
	for _, m := range s.group {
		if m.GroupID == groupID {
			matched = append(matched, m)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	if skip >= total {
		return []*domain.GroupMessage{}, total, nil
	}
	end := skip + limit
	if end > total {
		end = total
	}
	out := make([]*domain.GroupMessage, 0, end-skip)
	for _, m := range matched[skip:end] {
		cp := *m
		out = append(out, &cp)
	}
	return out, total, nil
}

func (s *Store) RecallGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.group {
		if m.ID == id {
			m.Recalled = true
			return nil
		}
	}
	return store.ErrNotFound
}
