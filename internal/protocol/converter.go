package protocol

import "fmt"

// Converter maps typed Messages to framed wire bytes and back. Plain and
// Encrypted converters both implement it; the session holds exactly one
// at a time in this slot (see internal/session), swapping it once at
// handshake completion and never again.
type Converter interface {
	EncodeMessage(m Message) ([]byte, error)
	DecodeMessage(frame []byte) (Message, error)
}

// PlainConverter implements the plaintext wire layout described in
// spec.md §4.2: [5-hex length] QC [tag] [body], body interpretation
// fixed per tag.
type PlainConverter struct{}

// NewPlainConverter returns a converter that neither encrypts nor
// decrypts; it is the handshake's first-leg converter and the base that
// EncryptedConverter wraps.
func NewPlainConverter() *PlainConverter {
	return &PlainConverter{}
}

// EncodeMessage serializes m into a complete plaintext frame.
func (c *PlainConverter) EncodeMessage(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case KeyMessage:
		return EncodeFrame(TagKey, []byte(msg.EncodedKey)), nil
	case SessionEndMessage:
		return EncodeFrame(TagSessionEnd, nil), nil
	case UserInfoMessage:
		return EncodeFrame(TagUserInfo, []byte(msg.Info.Username)), nil
	case NewChatMessage:
		return EncodeFrame(TagNewChatMessage, append([]byte(msg.ID), msg.Content...)), nil
	case EditChatMessage:
		return EncodeFrame(TagEditChatMessage, append([]byte(msg.ID), msg.Content...)), nil
	default:
		return nil, newErrorf(ErrUnknownType, "unrecognized message type %T", m)
	}
}

// DecodeMessage parses a complete plaintext frame into a Message.
func (c *PlainConverter) DecodeMessage(frame []byte) (Message, error) {
	length, tag, err := ParseFrameHeader(frame)
	if err != nil {
		return nil, err
	}
	if len(frame) < length {
		return nil, newErrorf(ErrMalformedFrame, "frame shorter than declared length %d", length)
	}
	body := frame[HeaderSize:length]

	switch tag {
	case TagKey:
		return KeyMessage{EncodedKey: string(body)}, nil
	case TagUserInfo:
		return UserInfoMessage{Info: UserInfo{Username: string(body)}}, nil
	case TagSessionEnd:
		return SessionEndMessage{}, nil
	case TagNewChatMessage:
		if len(body) < chatIDLength+1 {
			return nil, newErrorf(ErrMalformedFrame, "chat message body length %d is less than minimum %d", len(body), chatIDLength+1)
		}
		return NewChatMessage{ID: string(body[:chatIDLength]), Content: string(body[chatIDLength:])}, nil
	case TagEditChatMessage:
		if len(body) < chatIDLength+1 {
			return nil, newErrorf(ErrMalformedFrame, "chat message body length %d is less than minimum %d", len(body), chatIDLength+1)
		}
		return EditChatMessage{ID: string(body[:chatIDLength]), Content: string(body[chatIDLength:])}, nil
	default:
		return nil, newErrorf(ErrUnknownType, "unrecognized type tag %q", byte(tag))
	}
}

// EncryptedConverter wraps a PlainConverter, encrypting/decrypting only
// the frame body. Either key may be nil: during partial handshake
// states the session has only sent or only received a key so far, and
// per spec.md §4.2 this asymmetry is required, not a bug.
type EncryptedConverter struct {
	plain     *PlainConverter
	encryptor Encryptor
	decryptor Decryptor
}

// NewEncryptedConverter builds a converter around the given keys. Pass
// nil for either argument to leave that direction in plaintext.
func NewEncryptedConverter(encryptor Encryptor, decryptor Decryptor) *EncryptedConverter {
	return &EncryptedConverter{
		plain:     NewPlainConverter(),
		encryptor: encryptor,
		decryptor: decryptor,
	}
}

// EncodeMessage serializes m with the plain converter, then — if an
// encryptor is installed — replaces the body with its ciphertext and
// rewrites the length header to match.
func (c *EncryptedConverter) EncodeMessage(m Message) ([]byte, error) {
	plaintextFrame, err := c.plain.EncodeMessage(m)
	if err != nil {
		return nil, err
	}
	if c.encryptor == nil {
		return plaintextFrame, nil
	}

	tag := Tag(plaintextFrame[7])
	body := plaintextFrame[HeaderSize:]
	cipherBody, err := c.encryptor.Encrypt(body)
	if err != nil {
		return nil, fmt.Errorf("encrypt message body: %w", err)
	}
	return EncodeFrame(tag, cipherBody), nil
}

// DecodeMessage reads the 8-byte header off the (possibly ciphertext)
// frame and — if a decryptor is installed — decrypts the body before
// splicing it back behind a plaintext header and handing it to the
// plain converter.
func (c *EncryptedConverter) DecodeMessage(frame []byte) (Message, error) {
	if c.decryptor == nil {
		return c.plain.DecodeMessage(frame)
	}

	length, tag, err := ParseFrameHeader(frame)
	if err != nil {
		return nil, err
	}
	if len(frame) < length {
		return nil, newErrorf(ErrMalformedFrame, "frame shorter than declared length %d", length)
	}
	cipherBody := frame[HeaderSize:length]

	plaintextBody, err := c.decryptor.Decrypt(cipherBody)
	if err != nil {
		return nil, fmt.Errorf("decrypt message body: %w", err)
	}

	plaintextFrame := EncodeFrame(tag, plaintextBody)
	return c.plain.DecodeMessage(plaintextFrame)
}
