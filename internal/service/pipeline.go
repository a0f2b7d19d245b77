package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CCVpopular/appchatonlinev2/internal/apperr"
	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/hub"
	"github.com/CCVpopular/appchatonlinev2/internal/metrics"
	"github.com/CCVpopular/appchatonlinev2/internal/protocol"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

// SendDirect runs the full 1:1 pipeline: encrypt, persist, fan out to the
// pair room, push-notify the receiver and refresh both conversation
// summaries. A persistence failure aborts before any delivery; a notification
// failure is logged and swallowed.
func (s *Service) SendDirect(ctx context.Context, in *protocol.SendMessage) (*domain.DirectMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	body, err := s.cipher.EncryptString(in.Message)
	if err != nil {
		return nil, apperr.Internal("encrypt message body", err)
	}
	m := &domain.DirectMessage{
		ID:         uuid.NewString(),
		Sender:     in.Sender,
		Receiver:   in.Receiver,
		Body:       body,
		Kind:       domain.KindText,
		Status:     domain.StatusSent,
		ReadStatus: domain.ReadStatusUnread,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.direct.SaveDirect(ctx, m); err != nil {
		return nil, apperr.Persistence("save direct message", err)
	}
	s.journalDirect(ctx, m)
	s.deliverDirect(ctx, m, in.Message, in.Message)
	metrics.MessagesSent.WithLabelValues("direct", string(domain.KindText)).Inc()
	return m, nil
}

// deliverDirect fans the persisted message out to the pair room, pushes a
// notification and emits latestMessage to both participants' user rooms.
// body is what room members see; preview is what summaries and the push
// notification carry.
func (s *Service) deliverDirect(ctx context.Context, m *domain.DirectMessage, body, preview string) {
	room := hub.DirectRoomName(m.Sender, m.Receiver)
	s.router.Broadcast(ctx, room, protocol.Frame(protocol.EvReceiveMessage, &protocol.ReceiveMessage{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Message:   body,
		Type:      string(m.Kind),
		Timestamp: m.CreatedAt,
	}))

	s.notifyDirect(ctx, m, preview)

	s.router.Broadcast(ctx, m.Receiver, protocol.Frame(protocol.EvLatestMessage, &protocol.LatestMessage{
		FriendID:  m.Sender,
		Message:   preview,
		Timestamp: m.CreatedAt,
		Type:      string(m.Kind),
	}))
	s.router.Broadcast(ctx, m.Sender, protocol.Frame(protocol.EvLatestMessage, &protocol.LatestMessage{
		FriendID:  m.Receiver,
		Message:   preview,
		Timestamp: m.CreatedAt,
		Type:      string(m.Kind),
	}))
}

func (s *Service) notifyDirect(ctx context.Context, m *domain.DirectMessage, preview string) {
	receiver, err := s.users.GetUser(ctx, m.Receiver)
	if err != nil {
		s.log.Warnw("notify: receiver lookup failed", "receiver", m.Receiver, "err", err)
		return
	}
	senderName := m.Sender
	if sender, err := s.users.GetUser(ctx, m.Sender); err == nil {
		senderName = sender.Username
	}
	if err := s.notifier.DirectMessage(ctx, m.Sender, senderName, receiver, preview); err != nil {
		s.log.Warnw("notify: direct push failed", "receiver", m.Receiver, "err", err)
	}
}

// SendGroup encrypts, persists with a sender-name snapshot, fans the message
// and its summary out to the group room and notifies every member but the
// sender. Each member's notification is isolated: one failure never blocks
// the others.
func (s *Service) SendGroup(ctx context.Context, in *protocol.SendGroupMessage) (*domain.GroupMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	group, err := s.users.GetGroup(ctx, in.GroupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("group not found")
		}
		return nil, apperr.Persistence("load group", err)
	}
	senderName := in.Sender
	if sender, err := s.users.GetUser(ctx, in.Sender); err == nil {
		senderName = sender.Username
	}
	body, err := s.cipher.EncryptString(in.Message)
	if err != nil {
		return nil, apperr.Internal("encrypt message body", err)
	}
	m := &domain.GroupMessage{
		ID:         uuid.NewString(),
		GroupID:    in.GroupID,
		Sender:     in.Sender,
		SenderName: senderName,
		Body:       body,
		Kind:       domain.KindText,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.groups.SaveGroup(ctx, m); err != nil {
		return nil, apperr.Persistence("save group message", err)
	}
	s.journalGroup(ctx, m)
	s.deliverGroup(ctx, group, m, in.Message, in.Message)
	metrics.MessagesSent.WithLabelValues("group", string(domain.KindText)).Inc()
	return m, nil
}

func (s *Service) deliverGroup(ctx context.Context, group *domain.Group, m *domain.GroupMessage, body, preview string) {
	s.router.Broadcast(ctx, m.GroupID, protocol.Frame(protocol.EvReceiveGroupMessage, &protocol.ReceiveGroupMessage{
		ID:         m.ID,
		GroupID:    m.GroupID,
		Sender:     m.Sender,
		SenderName: m.SenderName,
		Message:    body,
		Type:       string(m.Kind),
		Timestamp:  m.CreatedAt,
	}))

	s.router.Broadcast(ctx, m.GroupID, protocol.Frame(protocol.EvLatestGroupMessage, &protocol.LatestGroupMessage{
		GroupID:   m.GroupID,
		Message:   preview,
		Timestamp: m.CreatedAt,
		Type:      string(m.Kind),
	}))

	for _, memberID := range group.Members {
		if memberID == m.Sender {
			continue
		}
		member, err := s.users.GetUser(ctx, memberID)
		if err != nil {
			s.log.Warnw("notify: member lookup failed", "member", memberID, "err", err)
			continue
		}
		if err := s.notifier.GroupMessage(ctx, group, m.SenderName, preview, member); err != nil {
			s.log.Warnw("notify: group push failed", "member", memberID, "err", err)
		}
	}
}

// MarkRead flips every unread message from sender to receiver and tells the
// sender's user room so their open views can update read ticks.
func (s *Service) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	if senderID == "" || receiverID == "" {
		return 0, apperr.Validation("senderId and receiverId required")
	}
	n, err := s.direct.MarkRead(ctx, senderID, receiverID)
	if err != nil {
		return 0, apperr.Persistence("mark messages read", err)
	}
	// emitted even when nothing changed, so retries keep views consistent
	s.router.Broadcast(ctx, senderID, protocol.Frame(protocol.EvMessagesRead, &protocol.MessagesRead{
		SenderID:   senderID,
		ReceiverID: receiverID,
	}))
	return n, nil
}

// StartCall notifies the receiver of an incoming 1:1 call and returns the
// RTC channel both ends should join.
func (s *Service) StartCall(ctx context.Context, callerID, receiverID string) (string, error) {
	if callerID == "" || receiverID == "" {
		return "", apperr.Validation("callerId and receiverId required")
	}
	caller, err := s.users.GetUser(ctx, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.NotFound("caller not found")
		}
		return "", apperr.Persistence("load caller", err)
	}
	receiver, err := s.users.GetUser(ctx, receiverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.NotFound("receiver not found")
		}
		return "", apperr.Persistence("load receiver", err)
	}
	channel, err := s.notifier.CallInvite(ctx, caller, receiver)
	if err != nil {
		return "", apperr.External("call invite", err)
	}
	return channel, nil
}

// StartGroupCall pushes a call invite to every member but the initiator,
// records a system message in the group's history and announces the call in
// the group room. The channel is the group id.
func (s *Service) StartGroupCall(ctx context.Context, groupID, initiatorID string) (string, error) {
	if groupID == "" || initiatorID == "" {
		return "", apperr.Validation("groupId and initiatorId required")
	}
	group, err := s.users.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.NotFound("group not found")
		}
		return "", apperr.Persistence("load group", err)
	}
	initiatorName := initiatorID
	if u, err := s.users.GetUser(ctx, initiatorID); err == nil {
		initiatorName = u.Username
	}

	// system messages carry no sender; the body is sealed like any text
	announcement := fmt.Sprintf("%s started a call", initiatorName)
	body, err := s.cipher.EncryptString(announcement)
	if err != nil {
		return "", apperr.Internal("encrypt call announcement", err)
	}
	m := &domain.GroupMessage{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Body:      body,
		Kind:      domain.KindSystem,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.groups.SaveGroup(ctx, m); err != nil {
		return "", apperr.Persistence("save call announcement", err)
	}
	s.journalGroup(ctx, m)
	s.router.Broadcast(ctx, groupID, protocol.Frame(protocol.EvReceiveGroupMessage, &protocol.ReceiveGroupMessage{
		ID:        m.ID,
		GroupID:   groupID,
		Message:   announcement,
		Type:      string(domain.KindSystem),
		Timestamp: m.CreatedAt,
	}))
	metrics.MessagesSent.WithLabelValues("group", string(domain.KindSystem)).Inc()

	for _, memberID := range group.Members {
		if memberID == initiatorID {
			continue
		}
		member, err := s.users.GetUser(ctx, memberID)
		if err != nil {
			s.log.Warnw("group call: member lookup failed", "member", memberID, "err", err)
			continue
		}
		if err := s.notifier.GroupCallInvite(ctx, group, initiatorName, member); err != nil {
			s.log.Warnw("group call: invite failed", "member", memberID, "err", err)
		}
	}
	s.router.Broadcast(ctx, groupID, protocol.Frame(protocol.EvGroupCallStarted, &protocol.GroupCallStarted{
		GroupID:       groupID,
		InitiatorName: initiatorName,
		GroupName:     group.Name,
	}))
	return groupID, nil
}

// NotifyGroupsChanged pokes a user's connections to re-fetch their group
// list after membership changes.
func (s *Service) NotifyGroupsChanged(ctx context.Context, userID string) {
	s.router.Broadcast(ctx, userID, protocol.Frame(protocol.EvUpdateGroups, nil))
}
