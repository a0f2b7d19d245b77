// Package store defines the durable ports of the delivery engine. The mongo
// subpackage backs production; the memory subpackage backs tests and local
// development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/CCVpopular/appchatonlinev2/internal/domain"
)

var ErrNotFound = errors.New("not found")

// ConversationSummary is the newest message of one direct conversation plus
// the unread count for the querying user. Body is returned as stored
// (ciphertext or locator); decryption is the read service's job.
type ConversationSummary struct {
	FriendID  string
	Body      string
	Kind      domain.MessageKind
	Recalled  bool
	Timestamp time.Time
	Unread    int64
}

type DirectStore interface {
	SaveDirect(ctx context.Context, m *domain.DirectMessage) error
	GetDirectByID(ctx context.Context, id string) (*domain.DirectMessage, error)
	// DirectBetween returns the most-recent-first window matching either
	// ordering of the pair, plus the total match count.
	DirectBetween(ctx context.Context, userA, userB string, skip, limit int64) ([]*domain.DirectMessage, int64, error)
	// RecallDirect marks a message recalled. Recalling an already-recalled
	// message is a no-op; the transition is one-way.
	RecallDirect(ctx context.Context, id string) error
	// MarkRead flips every unread message from sender to receiver to read
	// and returns how many were updated.
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)
	LatestPerConversation(ctx context.Context, userID string) ([]*ConversationSummary, error)
}

type GroupStore interface {
	SaveGroup(ctx context.Context, m *domain.GroupMessage) error
	GetGroupByID(ctx context.Context, id string) (*domain.GroupMessage, error)
	GroupHistory(ctx context.Context, groupID string, skip, limit int64) ([]*domain.GroupMessage, int64, error)
	RecallGroup(ctx context.Context, id string) error
}

// UserDirectory reads externally-owned user and group records.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetGroup(ctx context.Context, id string) (*domain.Group, error)
}
