// Package handlers implements the qcchat control-plane HTTP handlers,
// grounded on the teacher's internal/api/handlers/session.go: the same
// fiber.Map{"success", "data"} / fiber.Map{"success": false, "error"}
// envelope convention, the same constructor-takes-dependencies-and-
// logger shape, one handler struct per resource.
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/api/registry"
	"github.com/qcchat/qcchat/internal/protocol"
	"github.com/qcchat/qcchat/internal/sessionfactory"
)

// SessionHandler exposes the session lifecycle spec.md §4.5/§4.6
// describe: dialing out, listing, inspecting, and ending sessions.
type SessionHandler struct {
	factory  *sessionfactory.Factory
	registry *registry.Registry
	keys     *protocol.KeyPair
	logger   *zap.SugaredLogger
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(factory *sessionfactory.Factory, reg *registry.Registry, keys *protocol.KeyPair, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{factory: factory, registry: reg, keys: keys, logger: logger}
}

// ConnectRequest is the body of POST /api/v1/sessions.
type ConnectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Connect dials host:port and registers the resulting session as
// outbound. The handshake itself runs asynchronously: the caller polls
// Get or watches for the session leaving "connected" phase.
func (h *SessionHandler) Connect(c *fiber.Ctx) error {
	var req ConnectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if req.Host == "" || req.Port <= 0 || req.Port > 65535 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "host and a valid port are required",
		})
	}

	sess := h.factory.TryConnect(req.Host, req.Port)
	id := h.registry.Register(sess, registry.DirectionOutbound)

	sess.OnConnectionEstablished(func() {
		processor := protocol.NewInitiatorProcessor(h.keys, sess.OwnUserInfo())
		if err := sess.Initialize(processor); err != nil {
			h.logger.Errorw("session: failed to start outbound handshake", "id", id, "error", err)
		}
	})
	sess.OnSessionInitializationError(func(err error) {
		h.logger.Warnw("session: outbound handshake failed", "id", id, "error", err)
	})

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"id": id},
	})
}

// List returns a snapshot of every live session.
func (h *SessionHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.registry.List(),
	})
}

// Get returns one session's current state.
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	sess, ok := h.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "session not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":           c.Params("id"),
			"phase":        sess.Phase().String(),
			"peerUsername": sess.PeerInfo().Username,
			"remoteAddr":   sess.RemoteAddr(),
		},
	})
}

// Disconnect ends a session and drops it from the registry.
func (h *SessionHandler) Disconnect(c *fiber.Ctx) error {
	id := c.Params("id")
	sess, ok := h.registry.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "session not found",
		})
	}

	sess.End()
	h.registry.Forget(id)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"id": id, "phase": "ended"},
	})
}
