package pairing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcchat/qcchat/internal/pairing"
	"github.com/qcchat/qcchat/internal/protocol"
)

func TestFingerprintIsStableAndDistinguishesKeys(t *testing.T) {
	keyA, err := protocol.GenerateKeyPair(protocol.DefaultRSAKeyBits)
	require.NoError(t, err)
	keyB, err := protocol.GenerateKeyPair(protocol.DefaultRSAKeyBits)
	require.NoError(t, err)

	fpA1, err := pairing.Fingerprint(keyA.PublicKey())
	require.NoError(t, err)
	fpA2, err := pairing.Fingerprint(keyA.PublicKey())
	require.NoError(t, err)
	fpB, err := pairing.Fingerprint(keyB.PublicKey())
	require.NoError(t, err)

	assert.Equal(t, fpA1, fpA2)
	assert.NotEqual(t, fpA1, fpB)
}

func TestEncodePNGProducesPNGHeader(t *testing.T) {
	gen := pairing.NewGenerator(128)
	png, err := gen.EncodePNG("qcchat-test-fingerprint")
	require.NoError(t, err)

	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	require.GreaterOrEqual(t, len(png), len(pngMagic))
	assert.Equal(t, pngMagic, png[:len(pngMagic)])
}

func TestEncodeBase64PNGHasDataURIPrefix(t *testing.T) {
	gen := pairing.NewGenerator(0) // zero falls back to the default size
	uri, err := gen.EncodeBase64PNG("qcchat-test-fingerprint")
	require.NoError(t, err)
	assert.Contains(t, uri, "data:image/png;base64,")
}
