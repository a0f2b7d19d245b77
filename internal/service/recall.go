package service

import (
	"context"
	"errors"
	"time"

	"github.com/CCVpopular/appchatonlinev2/internal/apperr"
	"github.com/CCVpopular/appchatonlinev2/internal/hub"
	"github.com/CCVpopular/appchatonlinev2/internal/protocol"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

// RecallDirect flags the message recalled, tells the pair room and refreshes
// both participants' conversation summaries with the recall marker. The flag
// is one-way and recalling twice is a no-op, so retries are safe.
func (s *Service) RecallDirect(ctx context.Context, in *protocol.RecallMessage) error {
	if err := in.Validate(); err != nil {
		return apperr.Validation(err.Error())
	}
	if err := s.direct.RecallDirect(ctx, in.MessageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("message not found")
		}
		return apperr.Persistence("recall direct message", err)
	}
	now := time.Now().UTC()
	room := hub.DirectRoomName(in.Sender, in.Receiver)
	s.router.Broadcast(ctx, room, protocol.Frame(protocol.EvMessageRecalled, &protocol.MessageRecalled{
		MessageID:  in.MessageID,
		IsRecalled: true,
		Timestamp:  now,
	}))

	latestFor := func(friendID string) []byte {
		return protocol.Frame(protocol.EvLatestMessage, &protocol.LatestMessage{
			FriendID:   friendID,
			Message:    RecalledBody,
			Timestamp:  now,
			Type:       "text",
			IsRecalled: true,
		})
	}
	s.router.Broadcast(ctx, in.Receiver, latestFor(in.Sender))
	s.router.Broadcast(ctx, in.Sender, latestFor(in.Receiver))
	return nil
}

// RecallGroup flags the message recalled and tells the group room. Member
// conversation summaries are left alone; they refresh on the next history
// load.
func (s *Service) RecallGroup(ctx context.Context, in *protocol.RecallGroupMessage) error {
	if err := in.Validate(); err != nil {
		return apperr.Validation(err.Error())
	}
	if err := s.groups.RecallGroup(ctx, in.MessageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("message not found")
		}
		return apperr.Persistence("recall group message", err)
	}
	s.router.Broadcast(ctx, in.GroupID, protocol.Frame(protocol.EvGroupMessageRecalled, &protocol.GroupMessageRecalled{
		MessageID:  in.MessageID,
		GroupID:    in.GroupID,
		IsRecalled: true,
		Timestamp:  time.Now().UTC(),
	}))
	return nil
}
