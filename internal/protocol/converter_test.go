package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainConverterRoundTrip(t *testing.T) {
	c := NewPlainConverter()

	cases := []Message{
		KeyMessage{EncodedKey: "pem-data"},
		SessionEndMessage{},
		UserInfoMessage{Info: UserInfo{Username: "alice"}},
		NewChatMessage{ID: "abcdefgh", Content: "hi"},
		EditChatMessage{ID: "abcdefgh", Content: "hello"},
	}

	for _, m := range cases {
		encoded, err := c.EncodeMessage(m)
		require.NoError(t, err)

		decoded, err := c.DecodeMessage(encoded)
		require.NoError(t, err)
		assert.Equal(t, m, decoded)
	}
}

func TestPlainConverterRejectsShortChatBody(t *testing.T) {
	c := NewPlainConverter()
	// id only, zero-length content: body length 8, needs >= 9.
	frame := EncodeFrame(TagNewChatMessage, []byte("abcdefgh"))
	_, err := c.DecodeMessage(frame)
	require.Error(t, err)
	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrMalformedFrame, pErr.Kind)
}

func TestPlainConverterAcceptsMinimalChatBody(t *testing.T) {
	c := NewPlainConverter()
	frame := EncodeFrame(TagNewChatMessage, []byte("abcdefghX"))
	msg, err := c.DecodeMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, NewChatMessage{ID: "abcdefgh", Content: "X"}, msg)
}

func TestPlainConverterUnknownType(t *testing.T) {
	c := NewPlainConverter()
	frame := EncodeFrame(Tag('X'), []byte("data"))
	_, err := c.DecodeMessage(frame)
	require.Error(t, err)
	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrUnknownType, pErr.Kind)
}

func TestEncryptedConverterRoundTrip(t *testing.T) {
	key, err := GenerateSymmetricKey()
	require.NoError(t, err)

	c := NewEncryptedConverter(key, key)

	m := NewChatMessage{ID: "abcdefgh", Content: "hello there"}
	encoded, err := c.EncodeMessage(m)
	require.NoError(t, err)

	// Magic and tag stay plaintext; the length field is rewritten for the
	// longer ciphertext body, and the body differs from the plaintext
	// encoding.
	plain := NewPlainConverter()
	plaintextFrame, err := plain.EncodeMessage(m)
	require.NoError(t, err)
	assert.Equal(t, plaintextFrame[5:HeaderSize], encoded[5:HeaderSize])
	assert.NotEqual(t, plaintextFrame[HeaderSize:], encoded[HeaderSize:])

	decoded, err := c.DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestEncryptedConverterFallsThroughWithoutEncryptor(t *testing.T) {
	key, err := GenerateSymmetricKey()
	require.NoError(t, err)

	// Decryptor only: encoding falls through to plaintext.
	c := NewEncryptedConverter(nil, key)
	m := UserInfoMessage{Info: UserInfo{Username: "bob"}}
	encoded, err := c.EncodeMessage(m)
	require.NoError(t, err)

	plain := NewPlainConverter()
	decoded, err := plain.DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestEncryptedConverterFallsThroughWithoutDecryptor(t *testing.T) {
	key, err := GenerateSymmetricKey()
	require.NoError(t, err)

	plain := NewPlainConverter()
	plaintextFrame, err := plain.EncodeMessage(UserInfoMessage{Info: UserInfo{Username: "carol"}})
	require.NoError(t, err)

	// Encryptor only: decoding falls through to plaintext parsing.
	c := NewEncryptedConverter(key, nil)
	decoded, err := c.DecodeMessage(plaintextFrame)
	require.NoError(t, err)
	assert.Equal(t, UserInfoMessage{Info: UserInfo{Username: "carol"}}, decoded)
}

func TestRSAEncryptedConverterRoundTrip(t *testing.T) {
	keys, err := GenerateKeyPair(DefaultRSAKeyBits)
	require.NoError(t, err)

	sealer := NewEncryptedConverter(keys.PublicKey(), keys.PrivateKeyDecryptor())
	m := KeyMessage{EncodedKey: "raw-aes-key-bytes"}
	encoded, err := sealer.EncodeMessage(m)
	require.NoError(t, err)

	opener := NewEncryptedConverter(nil, keys.PrivateKeyDecryptor())
	decoded, err := opener.DecodeMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}
