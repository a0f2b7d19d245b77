package service

import (
	"context"
	"time"

	"github.com/CCVpopular/appchatonlinev2/internal/apperr"
	"github.com/CCVpopular/appchatonlinev2/internal/domain"
)

// Message is a history item with the body already rendered readable:
// decrypted for text, locator for media, recall marker for recalled.
type Message struct {
	ID         string             `json:"id"`
	Sender     string             `json:"sender,omitempty"`
	Receiver   string             `json:"receiver,omitempty"`
	SenderName string             `json:"senderName,omitempty"`
	Message    string             `json:"message"`
	Kind       domain.MessageKind `json:"type"`
	Recalled   bool               `json:"isRecalled"`
	ReadStatus string             `json:"readStatus,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

type DirectHistory struct {
	Messages []Message `json:"messages"`
	Total    int64     `json:"total"`
	HasMore  bool      `json:"hasMore"`
}

type GroupHistory struct {
	Messages      []Message `json:"messages"`
	TotalMessages int64     `json:"totalMessages"`
	CurrentPage   int64     `json:"currentPage"`
	TotalPages    int64     `json:"totalPages"`
}

type ConversationPreview struct {
	FriendID  string    `json:"friendId"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Recalled  bool      `json:"isRecalled"`
	Unread    int64     `json:"unreadCount"`
	Timestamp time.Time `json:"timestamp"`
}

// GetDirectHistory returns one window of a 1:1 conversation in ascending
// time order. The window is cut newest-first, so skip=0 is always the most
// recent page.
func (s *Service) GetDirectHistory(ctx context.Context, userA, userB string, skip, limit int64) (*DirectHistory, error) {
	if userA == "" || userB == "" {
		return nil, apperr.Validation("both participant ids required")
	}
	if limit <= 0 {
		limit = 20
	}
	if skip < 0 {
		skip = 0
	}
	msgs, total, err := s.direct.DirectBetween(ctx, userA, userB, skip, limit)
	if err != nil {
		return nil, apperr.Persistence("load direct history", err)
	}
	out := make([]Message, 0, len(msgs))
	// reverse the newest-first window into ascending order
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		out = append(out, Message{
			ID:         m.ID,
			Sender:     m.Sender,
			Receiver:   m.Receiver,
			Message:    s.readableBody(m.Kind, m.Body, m.Recalled),
			Kind:       m.Kind,
			Recalled:   m.Recalled,
			ReadStatus: string(m.ReadStatus),
			Timestamp:  m.CreatedAt,
		})
	}
	return &DirectHistory{
		Messages: out,
		Total:    total,
		HasMore:  skip+int64(len(msgs)) < total,
	}, nil
}

// GetGroupHistory returns page (1-based) of a group conversation in
// ascending time order with page bookkeeping.
func (s *Service) GetGroupHistory(ctx context.Context, groupID string, page, limit int64) (*GroupHistory, error) {
	if groupID == "" {
		return nil, apperr.Validation("groupId required")
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 30
	}
	skip := (page - 1) * limit
	msgs, total, err := s.groups.GroupHistory(ctx, groupID, skip, limit)
	if err != nil {
		return nil, apperr.Persistence("load group history", err)
	}
	out := make([]Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		out = append(out, Message{
			ID:         m.ID,
			Sender:     m.Sender,
			SenderName: m.SenderName,
			Message:    s.readableBody(m.Kind, m.Body, m.Recalled),
			Kind:       m.Kind,
			Recalled:   m.Recalled,
			Timestamp:  m.CreatedAt,
		})
	}
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return &GroupHistory{
		Messages:      out,
		TotalMessages: total,
		CurrentPage:   page,
		TotalPages:    totalPages,
	}, nil
}

// GetLatestConversations returns one preview per direct conversation the
// user participates in, newest first, with unread counts.
func (s *Service) GetLatestConversations(ctx context.Context, userID string) ([]ConversationPreview, error) {
	if userID == "" {
		return nil, apperr.Validation("userId required")
	}
	sums, err := s.direct.LatestPerConversation(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("load conversation summaries", err)
	}
	out := make([]ConversationPreview, 0, len(sums))
	for _, sum := range sums {
		out = append(out, ConversationPreview{
			FriendID:  sum.FriendID,
			Message:   s.previewBody(sum.Kind, sum.Body, sum.Recalled),
			Type:      string(sum.Kind),
			Recalled:  sum.Recalled,
			Unread:    sum.Unread,
			Timestamp: sum.Timestamp,
		})
	}
	return out, nil
}
