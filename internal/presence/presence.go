// Package presence keeps connection and online/offline state in Redis so
// sibling instances can route, and bridges room broadcasts between
// instances over pub/sub.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/CCVpopular/appchatonlinev2/internal/hub"
)

const fanoutChannel = "fanout"

type Store struct {
	client     *redis.Client
	prefix     string
	instanceID string
	ttl        time.Duration
}

func NewStore(client *redis.Client, prefix, instanceID string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, instanceID: instanceID, ttl: ttl}
}

func (s *Store) connKey(userID string) string {
	return fmt.Sprintf("%s:conn:%s", s.prefix, userID)
}

func (s *Store) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *Store) fanoutKey() string {
	return fmt.Sprintf("%s:%s", s.prefix, fanoutChannel)
}

func (s *Store) SetOnline(ctx context.Context, userID, socketID string) error {
	if err := s.client.SAdd(ctx, s.connKey(userID), socketID).Err(); err != nil {
		return err
	}
	_ = s.client.Expire(ctx, s.connKey(userID), s.ttl).Err()
	pres, _ := json.Marshal(map[string]any{"status": "online", "last_seen": time.Now().Unix()})
	return s.client.Set(ctx, s.presenceKey(userID), pres, s.ttl).Err()
}

// SetOffline drops the socket; the user goes offline when the last socket is
// gone.
func (s *Store) SetOffline(ctx context.Context, userID, socketID string) error {
	if err := s.client.SRem(ctx, s.connKey(userID), socketID).Err(); err != nil {
		return err
	}
	cnt, err := s.client.SCard(ctx, s.connKey(userID)).Result()
	if err != nil {
		return err
	}
	if cnt == 0 {
		pres, _ := json.Marshal(map[string]any{"status": "offline", "last_seen": time.Now().Unix()})
		return s.client.Set(ctx, s.presenceKey(userID), pres, 0).Err()
	}
	return nil
}

type fanoutFrame struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Frame  json.RawMessage `json:"frame"`
}

// PublishFanout forwards a room broadcast to sibling instances.
func (s *Store) PublishFanout(ctx context.Context, room string, frame []byte) error {
	b, err := json.Marshal(fanoutFrame{Origin: s.instanceID, Room: room, Frame: frame})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.fanoutKey(), b).Err()
}

// RunFanoutBridge re-delivers frames published by sibling instances to local
// rooms. Frames this instance published are skipped. Blocks until ctx ends.
func (s *Store) RunFanoutBridge(ctx context.Context, router *hub.Router, log *zap.SugaredLogger) {
	sub := s.client.Subscribe(ctx, s.fanoutKey())
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ff fanoutFrame
			if err := json.Unmarshal([]byte(msg.Payload), &ff); err != nil {
				log.Warnw("fanout bridge: bad frame", "err", err)
				continue
			}
			if ff.Origin == s.instanceID {
				continue
			}
			router.BroadcastLocal(ff.Room, ff.Frame)
		}
	}
}
