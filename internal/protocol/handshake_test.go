package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeFullExchange(t *testing.T) {
	responderKeys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)
	initiatorKeys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)

	responder := NewResponderProcessor(responderKeys, UserInfo{Username: "bob"})
	initiator := NewInitiatorProcessor(initiatorKeys, UserInfo{Username: "alice"})

	// Responder speaks first.
	res := responder.StartHandshake()
	require.NoError(t, res.Err)
	require.Len(t, res.Emit, 1)
	require.False(t, res.Finished)

	// Initiator has nothing to send yet.
	res = initiator.StartHandshake()
	require.NoError(t, res.Err)
	assert.Empty(t, res.Emit)
	assert.False(t, res.Finished)

	// Initiator receives the responder's public key, replies with a
	// sealed symmetric key.
	res = initiator.ProcessMessage(responderPubFrame(t, responder))
	require.NoError(t, res.Err)
	require.Len(t, res.Emit, 1)
	require.False(t, res.Finished)
	sealedKeyFrame := res.Emit[0]

	// Responder receives the sealed symmetric key, replies with its
	// UserInfo, still not finished (waiting on the initiator's own
	// UserInfo).
	res = responder.ProcessMessage(sealedKeyFrame)
	require.NoError(t, res.Err)
	require.Len(t, res.Emit, 1)
	require.False(t, res.Finished)
	responderUserInfoFrame := res.Emit[0]

	// Initiator receives the responder's UserInfo: finishes, emits its
	// own UserInfo.
	res = initiator.ProcessMessage(responderUserInfoFrame)
	require.NoError(t, res.Err)
	require.True(t, res.Finished)
	require.Len(t, res.Emit, 1)
	require.NotNil(t, res.Converter)
	assert.Equal(t, UserInfo{Username: "bob"}, res.PeerInfo)
	initiatorUserInfoFrame := res.Emit[0]

	// Responder receives the initiator's UserInfo: finishes.
	res = responder.ProcessMessage(initiatorUserInfoFrame)
	require.NoError(t, res.Err)
	require.True(t, res.Finished)
	require.NotNil(t, res.Converter)
	assert.Equal(t, UserInfo{Username: "alice"}, res.PeerInfo)

	// Both sides now share a working encrypted converter.
	plaintext := NewChatMessage{ID: "abcdefgh", Content: "hi bob"}
	encoded, err := res.Converter.EncodeMessage(plaintext)
	require.NoError(t, err)

	decoded, err := res.Converter.DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decoded)
}

func responderPubFrame(t *testing.T, responder *Processor) []byte {
	t.Helper()
	res := responder.StartHandshake()
	require.NoError(t, res.Err)
	require.Len(t, res.Emit, 1)
	return res.Emit[0]
}

func TestHandshakeRejectsDuplicateKey(t *testing.T) {
	responderKeys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)
	responder := NewResponderProcessor(responderKeys, UserInfo{Username: "bob"})

	initiatorKeys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)
	sym, err := GenerateSymmetricKey()
	require.NoError(t, err)
	sealer := NewEncryptedConverter(responderKeys.PublicKey(), initiatorKeys.PrivateKeyDecryptor())
	keyFrame, err := sealer.EncodeMessage(KeyMessage{EncodedKey: string(sym.Encode())})
	require.NoError(t, err)

	res := responder.StartHandshake()
	require.NoError(t, res.Err)

	res = responder.ProcessMessage(keyFrame)
	require.NoError(t, res.Err)

	// The responder now decodes with the symmetric key it just received,
	// so a second Key message arrives sealed with that key.
	dupFrame, err := NewEncryptedConverter(sym, nil).EncodeMessage(KeyMessage{EncodedKey: string(sym.Encode())})
	require.NoError(t, err)

	res = responder.ProcessMessage(dupFrame)
	require.Error(t, res.Err)
	var pErr *Error
	require.ErrorAs(t, res.Err, &pErr)
	assert.Equal(t, ErrDuplicateKey, pErr.Kind)
}

func TestHandshakeRejectsDataBeforeKey(t *testing.T) {
	responderKeys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)
	responder := NewResponderProcessor(responderKeys, UserInfo{Username: "bob"})

	res := responder.StartHandshake()
	require.NoError(t, res.Err)

	// Responder's converter decrypts with its private key; route the
	// frame through the matching asymmetric converter so the body
	// decrypts cleanly and the handshake-level check is what actually
	// fires.
	sealed, err := NewEncryptedConverter(responderKeys.PublicKey(), nil).EncodeMessage(UserInfoMessage{Info: UserInfo{Username: "eve"}})
	require.NoError(t, err)

	res = responder.ProcessMessage(sealed)
	require.Error(t, res.Err)
	var pErr *Error
	require.ErrorAs(t, res.Err, &pErr)
	assert.Equal(t, ErrDataBeforeKey, pErr.Kind)
}

func TestHandshakeRejectsChatTrafficDuringHandshake(t *testing.T) {
	responderKeys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)
	responder := NewResponderProcessor(responderKeys, UserInfo{Username: "bob"})

	res := responder.StartHandshake()
	require.NoError(t, res.Err)

	sealed, err := NewEncryptedConverter(responderKeys.PublicKey(), nil).EncodeMessage(NewChatMessage{ID: "abcdefgh", Content: "x"})
	require.NoError(t, err)

	res = responder.ProcessMessage(sealed)
	require.Error(t, res.Err)
	var pErr *Error
	require.ErrorAs(t, res.Err, &pErr)
	assert.Equal(t, ErrMalformedFrame, pErr.Kind)
}

func TestHandshakeTerminatedBySessionEnd(t *testing.T) {
	responderKeys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)
	responder := NewResponderProcessor(responderKeys, UserInfo{Username: "bob"})

	res := responder.StartHandshake()
	require.NoError(t, res.Err)

	sealed, err := NewEncryptedConverter(responderKeys.PublicKey(), nil).EncodeMessage(SessionEndMessage{})
	require.NoError(t, err)

	res = responder.ProcessMessage(sealed)
	require.Error(t, res.Err)
	var pErr *Error
	require.ErrorAs(t, res.Err, &pErr)
	assert.Equal(t, ErrHandshakeTerminated, pErr.Kind)

	// Processor is now finished; further input is rejected outright.
	res = responder.ProcessMessage(sealed)
	require.Error(t, res.Err)
	require.ErrorAs(t, res.Err, &pErr)
	assert.Equal(t, ErrHandshakeAlreadyFinished, pErr.Kind)
}

func TestProcessorEndEmitsSessionEnd(t *testing.T) {
	keys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)
	p := NewResponderProcessor(keys, UserInfo{Username: "bob"})

	frame := p.End()
	require.NotNil(t, frame)

	plain := NewPlainConverter()
	msg, err := plain.DecodeMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, SessionEndMessage{}, msg)
}
