package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/qcchat/qcchat/internal/pairing"
	"github.com/qcchat/qcchat/internal/protocol"
)

// PairingHandler exposes the local identity's fingerprint and QR code,
// grounded on the teacher's GetQR session handler, but surfacing the
// process's own long-term key rather than a per-session login QR.
type PairingHandler struct {
	keys *protocol.KeyPair
	qr   *pairing.Generator
}

// NewPairingHandler constructs a PairingHandler.
func NewPairingHandler(keys *protocol.KeyPair, qr *pairing.Generator) *PairingHandler {
	return &PairingHandler{keys: keys, qr: qr}
}

// Fingerprint returns the local public key's fingerprint and a QR code
// encoding it, for out-of-band verification before accepting a peer.
func (h *PairingHandler) Fingerprint(c *fiber.Ctx) error {
	fp, err := pairing.Fingerprint(h.keys.PublicKey())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	qrImage, err := h.qr.EncodeBase64PNG(fp)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"fingerprint": fp,
			"qr":          qrImage,
		},
	})
}
