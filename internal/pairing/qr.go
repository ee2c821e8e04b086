// Package pairing renders a responder's public-key fingerprint as a QR
// code, for out-of-band first-connect verification. This does not
// change the wire protocol in any way — spec.md's handshake (§4.4)
// never looks at it — it's a display helper a host process can offer
// the user before accepting (or dialing into) a handshake, addressing
// spec.md §9's Open Question about the protocol having no PKI: two
// users who compare fingerprints out of band can detect a MITM a bare
// first-connect cannot.
//
// Grounded on the teacher's internal/core/qrcode.go QRGenerator, which
// renders a WhatsApp pairing string the same way.
package pairing

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/qcchat/qcchat/internal/protocol"
)

// Generator renders QR codes at a fixed pixel size.
type Generator struct {
	size int
}

// NewGenerator returns a Generator producing size x size PNGs.
func NewGenerator(size int) *Generator {
	if size <= 0 {
		size = 256
	}
	return &Generator{size: size}
}

// Fingerprint returns a short, human-comparable hex digest of a public
// key's PEM encoding: the first 16 bytes of its SHA-256 hash, grouped
// into colon-separated octets.
func Fingerprint(pub *protocol.PublicKey) (string, error) {
	encoded, err := pub.Encode()
	if err != nil {
		return "", fmt.Errorf("pairing: encode public key: %w", err)
	}
	sum := sha256.Sum256([]byte(encoded))
	digest := sum[:16]

	hexDigest := hex.EncodeToString(digest)
	grouped := make([]byte, 0, len(hexDigest)+len(hexDigest)/2)
	for i := 0; i < len(hexDigest); i += 2 {
		if i > 0 {
			grouped = append(grouped, ':')
		}
		grouped = append(grouped, hexDigest[i:i+2]...)
	}
	return string(grouped), nil
}

// EncodePNG renders data (typically a Fingerprint, or the raw PEM key)
// as a QR code PNG.
func (g *Generator) EncodePNG(data string) ([]byte, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("pairing: create qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(g.size)); err != nil {
		return nil, fmt.Errorf("pairing: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64PNG renders data as a QR code and returns it as a
// data: URI, convenient for embedding directly in an HTML img tag.
func (g *Generator) EncodeBase64PNG(data string) (string, error) {
	png, err := g.EncodePNG(data)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
