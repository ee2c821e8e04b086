package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/api/registry"
	"github.com/qcchat/qcchat/internal/protocol"
)

// MessageHandler sends chat data messages (spec.md §3/§4.2 NewChatMessage
// and EditChatMessage) over an already-initialized session.
type MessageHandler struct {
	registry *registry.Registry
	logger   *zap.SugaredLogger
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(reg *registry.Registry, logger *zap.SugaredLogger) *MessageHandler {
	return &MessageHandler{registry: reg, logger: logger}
}

// SendChatRequest is the body of POST /api/v1/sessions/:id/messages.
type SendChatRequest struct {
	Content string `json:"content"`
}

// Send posts a new chat message, generating a fresh id for it.
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	sess, ok := h.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "session not found",
		})
	}

	var req SendChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}

	msg := protocol.NewNewChatMessage(req.Content)
	sess.SendMessage(msg)
	h.logger.Debugw("message: sent new chat message", "id", msg.ID, "session", c.Params("id"))

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"id": msg.ID},
	})
}

// EditChatRequest is the body of PATCH /api/v1/sessions/:id/messages.
type EditChatRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Edit posts an edit to a previously sent chat message.
func (h *MessageHandler) Edit(c *fiber.Ctx) error {
	sess, ok := h.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "session not found",
		})
	}

	var req EditChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid request body",
		})
	}
	if req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "id is required",
		})
	}

	sess.SendMessage(protocol.EditChatMessage{ID: req.ID, Content: req.Content})
	h.logger.Debugw("message: sent chat edit", "id", req.ID, "session", c.Params("id"))

	return c.JSON(fiber.Map{"success": true})
}
