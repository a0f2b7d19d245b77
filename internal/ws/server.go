// Package ws owns the websocket endpoint: connection lifecycle, the
// read/write pumps and dispatch of inbound events to the service layer.
package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CCVpopular/appchatonlinev2/internal/hub"
	"github.com/CCVpopular/appchatonlinev2/internal/metrics"
	"github.com/CCVpopular/appchatonlinev2/internal/protocol"
	"github.com/CCVpopular/appchatonlinev2/internal/service"
)

// Presence is the optional presence tracker consulted on join/disconnect.
type Presence interface {
	SetOnline(ctx context.Context, userID, socketID string) error
	SetOffline(ctx context.Context, userID, socketID string) error
}

type Config struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

type Server struct {
	router   *hub.Router
	svc      *service.Service
	presence Presence
	cfg      Config
	log      *zap.SugaredLogger
}

func NewServer(router *hub.Router, svc *service.Service, presence Presence, cfg Config, log *zap.SugaredLogger) *Server {
	return &Server{router: router, svc: svc, presence: presence, cfg: cfg, log: log}
}

// Handle runs one connection to completion. It blocks until the peer goes
// away or the read pump fails.
func (s *Server) Handle(conn *websocket.Conn) {
	client := hub.NewClient(uuid.NewString(), s.cfg.SendBuffer)
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	done := make(chan struct{})
	go s.writePump(conn, client, done)

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	readWait := s.cfg.PingInterval * 2
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Debugw("ws read ended", "client", client.ID, "err", err)
			break
		}
		env, err := protocol.Decode(data)
		if err != nil {
			s.log.Debugw("ws bad frame", "client", client.ID, "err", err)
			continue
		}
		s.dispatch(client, env)
	}

	s.disconnect(client)
	client.Close()
	<-done
}

func (s *Server) writePump(conn *websocket.Conn, client *hub.Client, done chan<- struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		close(done)
	}()
	for {
		select {
		case frame, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteDeadline))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if len(frame) == 0 {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) disconnect(client *hub.Client) {
	s.router.Drop(client)
	if s.presence != nil {
		if userID := client.UserID(); userID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.presence.SetOffline(ctx, userID, client.ID); err != nil {
				s.log.Warnw("presence offline failed", "user", userID, "err", err)
			}
		}
	}
}

func decodePayload[T any](env *protocol.Envelope) (*T, error) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// dispatch routes one inbound envelope. Join/leave events mutate the router
// inline; pipeline events run on their own goroutine with a fresh context so
// a dropped connection never cancels a half-finished send.
func (s *Server) dispatch(client *hub.Client, env *protocol.Envelope) {
	switch env.Type {
	case protocol.EvJoinUser:
		p, err := decodePayload[protocol.JoinUser](env)
		if err != nil || p.Validate() != nil {
			s.log.Debugw("joinUser rejected", "client", client.ID, "err", err)
			return
		}
		s.router.BindUser(client, p.UserID)
		if s.presence != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.presence.SetOnline(ctx, p.UserID, client.ID); err != nil {
				s.log.Warnw("presence online failed", "user", p.UserID, "err", err)
			}
		}

	case protocol.EvJoinRoom:
		p, err := decodePayload[protocol.JoinRoom](env)
		if err != nil || p.Validate() != nil {
			return
		}
		s.router.JoinDirect(client, p.UserID, p.FriendID)

	case protocol.EvLeaveRoom:
		p, err := decodePayload[protocol.LeaveRoom](env)
		if err != nil || p.Validate() != nil {
			return
		}
		s.router.LeaveDirect(client, p.UserID, p.FriendID)

	case protocol.EvJoinGroup:
		p, err := decodePayload[protocol.JoinGroup](env)
		if err != nil || p.Validate() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if !s.router.JoinGroup(ctx, client, client.UserID(), p.GroupID) {
			s.log.Infow("group join denied", "user", client.UserID(), "group", p.GroupID)
		}

	case protocol.EvLeaveGroup:
		p, err := decodePayload[protocol.LeaveGroup](env)
		if err != nil || p.Validate() != nil {
			return
		}
		s.router.LeaveGroup(client, p.GroupID)

	case protocol.EvGroupUpdated:
		p, err := decodePayload[protocol.GroupUpdated](env)
		if err != nil || p.Validate() != nil {
			return
		}
		go s.svc.NotifyGroupsChanged(context.Background(), p.UserID)

	case protocol.EvSendMessage:
		p, err := decodePayload[protocol.SendMessage](env)
		if err != nil {
			return
		}
		go s.run(client, env.Type, func(ctx context.Context) error {
			_, err := s.svc.SendDirect(ctx, p)
			return err
		})

	case protocol.EvSendImage:
		p, err := decodePayload[protocol.SendImage](env)
		if err != nil {
			return
		}
		go s.run(client, env.Type, func(ctx context.Context) error {
			_, err := s.svc.SendDirectImage(ctx, p)
			return err
		})

	case protocol.EvSendFile:
		p, err := decodePayload[protocol.SendFile](env)
		if err != nil {
			return
		}
		go s.run(client, env.Type, func(ctx context.Context) error {
			_, err := s.svc.SendDirectFile(ctx, p)
			return err
		})

	case protocol.EvSendGroupMessage:
		p, err := decodePayload[protocol.SendGroupMessage](env)
		if err != nil {
			return
		}
		go s.run(client, env.Type, func(ctx context.Context) error {
			_, err := s.svc.SendGroup(ctx, p)
			return err
		})

	case protocol.EvSendGroupImage:
		p, err := decodePayload[protocol.SendGroupImage](env)
		if err != nil {
			return
		}
		go s.run(client, env.Type, func(ctx context.Context) error {
			_, err := s.svc.SendGroupImage(ctx, p)
			return err
		})

	case protocol.EvSendGroupFile:
		p, err := decodePayload[protocol.SendGroupFile](env)
		if err != nil {
			return
		}
		go s.run(client, env.Type, func(ctx context.Context) error {
			_, err := s.svc.SendGroupFile(ctx, p)
			return err
		})

	case protocol.EvRecallMessage:
		p, err := decodePayload[protocol.RecallMessage](env)
		if err != nil {
			return
		}
		go s.run(client, env.Type, func(ctx context.Context) error {
			return s.svc.RecallDirect(ctx, p)
		})

	case protocol.EvRecallGroupMessage:
		p, err := decodePayload[protocol.RecallGroupMessage](env)
		if err != nil {
			return
		}
		go s.run(client, env.Type, func(ctx context.Context) error {
			return s.svc.RecallGroup(ctx, p)
		})

	default:
		s.log.Debugw("unknown event", "client", client.ID, "type", env.Type)
	}
}

// run executes one pipeline operation detached from the connection's
// lifetime.
func (s *Server) run(client *hub.Client, event string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.log.Warnw("event failed", "client", client.ID, "event", event, "err", err)
	}
}
