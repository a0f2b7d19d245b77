// Package notify builds provider-agnostic push payloads and submits them to
// the push gateway. Delivery mechanics live behind the PushGateway port.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/hub"
	"github.com/CCVpopular/appchatonlinev2/internal/metrics"
)

type Payload struct {
	Token   string            `json:"token"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
	Android AndroidConfig     `json:"android"`
}

type AndroidConfig struct {
	Priority     string              `json:"priority,omitempty"`
	CollapseKey  string              `json:"collapseKey,omitempty"`
	Notification AndroidNotification `json:"notification"`
}

type AndroidNotification struct {
	Tag       string `json:"tag,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Priority  string `json:"priority,omitempty"`
}

type PushGateway interface {
	Send(ctx context.Context, p *Payload) error
}

// RTCTokenService issues short-lived tokens for call channels.
type RTCTokenService interface {
	Token(ctx context.Context, channel string, ttl time.Duration) (string, error)
}

type Dispatcher struct {
	gateway PushGateway
	rtc     RTCTokenService
	rtcTTL  time.Duration
	log     *zap.SugaredLogger
}

func NewDispatcher(gateway PushGateway, rtc RTCTokenService, rtcTTL time.Duration, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{gateway: gateway, rtc: rtc, rtcTTL: rtcTTL, log: log}
}

// ErrNoToken is never returned: a missing push token is not an error, the
// dispatch is skipped silently and counted.
func (d *Dispatcher) send(ctx context.Context, p *Payload) error {
	if p.Token == "" {
		metrics.NotificationsSkipped.Inc()
		return nil
	}
	if err := d.gateway.Send(ctx, p); err != nil {
		metrics.NotificationsFailed.Inc()
		return err
	}
	metrics.NotificationsSent.Inc()
	return nil
}

// DirectMessage collapses per receiver and tags per sender, so pending
// notifications merge per recipient and repeats from one sender replace
// rather than stack.
func (d *Dispatcher) DirectMessage(ctx context.Context, senderID, senderName string, receiver *domain.User, body string) error {
	p := &Payload{
		Token: receiver.PushToken,
		Title: fmt.Sprintf("New message from %s", senderName),
		Body:  body,
		Android: AndroidConfig{
			CollapseKey:  "chat_" + receiver.ID,
			Notification: AndroidNotification{Tag: "user_" + senderID},
		},
	}
	return d.send(ctx, p)
}

// GroupMessage collapses and tags per group.
func (d *Dispatcher) GroupMessage(ctx context.Context, group *domain.Group, senderName, body string, member *domain.User) error {
	p := &Payload{
		Token: member.PushToken,
		Title: group.Name,
		Body:  fmt.Sprintf("%s: %s", senderName, body),
		Android: AndroidConfig{
			CollapseKey:  "group_" + group.ID,
			Notification: AndroidNotification{Tag: "group_" + group.ID},
		},
	}
	return d.send(ctx, p)
}

// CallInvite builds the canonical channel name for the pair, fetches a
// short-lived RTC token and pushes a high-priority data notification.
func (d *Dispatcher) CallInvite(ctx context.Context, caller *domain.User, receiver *domain.User) (string, error) {
	channel := hub.DirectRoomName(caller.ID, receiver.ID)
	token, err := d.rtc.Token(ctx, channel, d.rtcTTL)
	if err != nil {
		return "", err
	}
	p := &Payload{
		Token: receiver.PushToken,
		Title: "Incoming Video Call",
		Body:  fmt.Sprintf("%s is calling you", caller.Username),
		Data: map[string]string{
			"type":        "video_call",
			"callerId":    caller.ID,
			"callerName":  caller.Username,
			"channelName": channel,
			"rtcToken":    token,
		},
		Android: AndroidConfig{
			Priority:     "high",
			Notification: AndroidNotification{ChannelID: "call_channel", Priority: "high"},
		},
	}
	if err := d.send(ctx, p); err != nil {
		return "", err
	}
	return channel, nil
}

// GroupCallInvite notifies one member of a call starting in a group; the
// channel name is the group id.
func (d *Dispatcher) GroupCallInvite(ctx context.Context, group *domain.Group, initiatorName string, member *domain.User) error {
	token, err := d.rtc.Token(ctx, group.ID, d.rtcTTL)
	if err != nil {
		return err
	}
	p := &Payload{
		Token: member.PushToken,
		Title: group.Name,
		Body:  fmt.Sprintf("%s started a call", initiatorName),
		Data: map[string]string{
			"type":        "group_call",
			"channelName": group.ID,
			"rtcToken":    token,
		},
		Android: AndroidConfig{
			Priority:     "high",
			CollapseKey:  "group_" + group.ID,
			Notification: AndroidNotification{ChannelID: "call_channel", Priority: "high"},
		},
	}
	return d.send(ctx, p)
}
