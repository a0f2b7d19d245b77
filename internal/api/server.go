// Package api exposes the HTTP surface: the websocket upgrade endpoint, the
// history read endpoints and the call-signalling endpoints.
package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/CCVpopular/appchatonlinev2/internal/apperr"
	"github.com/CCVpopular/appchatonlinev2/internal/service"
	"github.com/CCVpopular/appchatonlinev2/internal/ws"
)

type Server struct {
	svc *service.Service
	ws  *ws.Server
	log *zap.SugaredLogger
}

func NewServer(svc *service.Service, wsServer *ws.Server, log *zap.SugaredLogger) *Server {
	return &Server{svc: svc, ws: wsServer, log: log}
}

func (s *Server) App(rateLimitPerMin int) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: s.errorHandler,
	})
	app.Use(recover.New())
	app.Use(rateLimitMiddleware(rateLimitPerMin))

	v1 := app.Group("/v1")
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	v1.Get("/ws", fiberws.New(s.ws.Handle))

	v1.Get("/messages/latest/:user_id", s.latestConversations)
	v1.Get("/messages/:sender/:receiver", s.directHistory)
	v1.Post("/messages/read", s.markRead)
	v1.Get("/groups/:group_id/messages", s.groupHistory)
	v1.Post("/calls/notify", s.notifyCall)
	v1.Post("/calls/group", s.notifyGroupCall)

	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return c.Status(statusOf(err)).JSON(fiber.Map{"error": err.Error()})
}

func statusOf(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		return fiber.StatusBadRequest
	case apperr.CodeNotFound:
		return fiber.StatusNotFound
	case apperr.CodeExternal:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func queryInt64(c *fiber.Ctx, key string, def int64) int64 {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) directHistory(c *fiber.Ctx) error {
	page := queryInt64(c, "page", 1)
	limit := queryInt64(c, "limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	h, err := s.svc.GetDirectHistory(c.Context(), c.Params("sender"), c.Params("receiver"), (page-1)*limit, limit)
	if err != nil {
		return err
	}
	return c.JSON(h)
}

func (s *Server) groupHistory(c *fiber.Ctx) error {
	page := queryInt64(c, "page", 1)
	limit := queryInt64(c, "limit", 30)
	h, err := s.svc.GetGroupHistory(c.Context(), c.Params("group_id"), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(h)
}

func (s *Server) latestConversations(c *fiber.Ctx) error {
	previews, err := s.svc.GetLatestConversations(c.Context(), c.Params("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(previews)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	var body struct {
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	n, err := s.svc.MarkRead(c.Context(), body.SenderID, body.ReceiverID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updatedCount": n})
}

func (s *Server) notifyCall(c *fiber.Ctx) error {
	var body struct {
		CallerID   string `json:"callerId"`
		ReceiverID string `json:"receiverId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	channel, err := s.svc.StartCall(c.Context(), body.CallerID, body.ReceiverID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "channelName": channel})
}

func (s *Server) notifyGroupCall(c *fiber.Ctx) error {
	var body struct {
		GroupID     string `json:"groupId"`
		InitiatorID string `json:"initiatorId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.Validation("invalid request body")
	}
	channel, err := s.svc.StartGroupCall(c.Context(), body.GroupID, body.InitiatorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "channelName": channel})
}
