package protocol

import "fmt"

// Role distinguishes the two ends of a handshake: the peer that
// accepted the connection (Responder) and the peer that dialed it
// (Initiator). spec.md §4.4 describes their transition tables; this
// keeps both in one state machine keyed by Role rather than modeling
// them as a base class with two subclasses.
type Role int

const (
	RoleResponder Role = iota
	RoleInitiator
)

// HandshakeResult is the outcome of feeding one inbound frame, or of
// starting the handshake, to a Processor. It is the "result type at
// each boundary" spec.md §9 calls for in place of exceptions: callers
// inspect Err first, then Finished, then drain Emit in order.
type HandshakeResult struct {
	// Emit holds zero or more complete outbound frames to write to the
	// transport, in order.
	Emit [][]byte
	// Finished is true once the handshake has produced a converter and
	// peer identity for the session to adopt.
	Finished bool
	// Converter is set iff Finished is true and Err is nil.
	Converter Converter
	// PeerInfo is set iff Finished is true and Err is nil.
	PeerInfo UserInfo
	// Err is set when the handshake cannot continue. The processor must
	// not be used again after an error.
	Err error
}

// Processor drives one side of the handshake described in spec.md §4.4.
// A Processor is single-use: once it reports Finished or Err it is
// discarded by the session.
type Processor struct {
	role        Role
	keys        *KeyPair
	ownUserInfo UserInfo

	converter         Converter
	publicKeyReceived bool
	finished          bool

	symmetricKey *SymmetricKey
}

// NewResponderProcessor builds a handshake processor for the peer that
// accepted the connection.
func NewResponderProcessor(keys *KeyPair, ownUserInfo UserInfo) *Processor {
	return &Processor{role: RoleResponder, keys: keys, ownUserInfo: ownUserInfo}
}

// NewInitiatorProcessor builds a handshake processor for the peer that
// dialed the connection. Its first inbound frame is the responder's
// plaintext Key message, so it starts with a plain converter rather
// than a nil one.
func NewInitiatorProcessor(keys *KeyPair, ownUserInfo UserInfo) *Processor {
	return &Processor{role: RoleInitiator, keys: keys, ownUserInfo: ownUserInfo, converter: NewPlainConverter()}
}

// StartHandshake performs the role's opening move. The responder sends
// its public key immediately; the initiator has nothing to send yet and
// waits for the responder's Key message.
func (p *Processor) StartHandshake() HandshakeResult {
	if p.role == RoleInitiator {
		return HandshakeResult{}
	}

	pubPEM, err := p.keys.PublicKey().Encode()
	if err != nil {
		p.finished = true
		return HandshakeResult{Err: fmt.Errorf("encode own public key: %w", err)}
	}

	// Outgoing Key message travels in the clear; incoming ciphertext
	// (the initiator's sealed symmetric key) decrypts with our private
	// key. This asymmetric converter only exists until the symmetric
	// key arrives.
	p.converter = NewEncryptedConverter(nil, p.keys.PrivateKeyDecryptor())

	encoded, err := p.converter.EncodeMessage(KeyMessage{EncodedKey: pubPEM})
	if err != nil {
		p.finished = true
		return HandshakeResult{Err: fmt.Errorf("encode key message: %w", err)}
	}

	return HandshakeResult{Emit: [][]byte{encoded}}
}

// ProcessMessage feeds one inbound frame through the handshake's
// current converter and transition table.
func (p *Processor) ProcessMessage(frame []byte) HandshakeResult {
	if p.finished {
		return HandshakeResult{Err: newError(ErrHandshakeAlreadyFinished, "")}
	}

	msg, err := p.converter.DecodeMessage(frame)
	if err != nil {
		return HandshakeResult{Err: err}
	}

	switch m := msg.(type) {
	case SessionEndMessage:
		p.finished = true
		return HandshakeResult{Err: newError(ErrHandshakeTerminated, "")}
	case NewChatMessage:
		return HandshakeResult{Err: newError(ErrMalformedFrame, "chat traffic is illegal during handshake")}
	case EditChatMessage:
		return HandshakeResult{Err: newError(ErrMalformedFrame, "chat traffic is illegal during handshake")}
	case KeyMessage:
		return p.handleKey(m)
	case UserInfoMessage:
		return p.handleUserInfo(m)
	default:
		return HandshakeResult{Err: newErrorf(ErrUnknownType, "unexpected message type %T", msg)}
	}
}

func (p *Processor) handleKey(m KeyMessage) HandshakeResult {
	if p.publicKeyReceived {
		p.finished = true
		return HandshakeResult{Err: newError(ErrDuplicateKey, "")}
	}

	switch p.role {
	case RoleResponder:
		sym := DecodeSymmetricKey([]byte(m.EncodedKey))
		p.symmetricKey = sym
		p.converter = NewEncryptedConverter(sym, sym)
		p.publicKeyReceived = true

		encoded, err := p.converter.EncodeMessage(UserInfoMessage{Info: p.ownUserInfo})
		if err != nil {
			p.finished = true
			return HandshakeResult{Err: fmt.Errorf("encode user info: %w", err)}
		}
		return HandshakeResult{Emit: [][]byte{encoded}}

	default: // RoleInitiator
		peerPub, err := DecodePublicKeyPEM(m.EncodedKey)
		if err != nil {
			p.finished = true
			return HandshakeResult{Err: fmt.Errorf("decode peer public key: %w", err)}
		}

		sym, err := GenerateSymmetricKey()
		if err != nil {
			p.finished = true
			return HandshakeResult{Err: fmt.Errorf("generate symmetric key: %w", err)}
		}
		p.symmetricKey = sym

		// One-shot converter: seal the symmetric key to the peer's
		// public key. Its decryptor (our own private key) is never
		// exercised on this leg, but installing it matches spec.md's
		// stated converter shape and costs nothing.
		sealer := NewEncryptedConverter(peerPub, p.keys.PrivateKeyDecryptor())
		encoded, err := sealer.EncodeMessage(KeyMessage{EncodedKey: string(sym.Encode())})
		if err != nil {
			p.finished = true
			return HandshakeResult{Err: fmt.Errorf("seal symmetric key: %w", err)}
		}

		p.converter = NewEncryptedConverter(sym, sym)
		p.publicKeyReceived = true
		return HandshakeResult{Emit: [][]byte{encoded}}
	}
}

func (p *Processor) handleUserInfo(m UserInfoMessage) HandshakeResult {
	switch p.role {
	case RoleResponder:
		if !p.publicKeyReceived {
			p.finished = true
			return HandshakeResult{Err: newError(ErrDataBeforeKey, "")}
		}
		p.finished = true
		return HandshakeResult{Finished: true, Converter: p.converter, PeerInfo: m.Info}

	default: // RoleInitiator
		encoded, err := p.converter.EncodeMessage(UserInfoMessage{Info: p.ownUserInfo})
		if err != nil {
			p.finished = true
			return HandshakeResult{Err: fmt.Errorf("encode user info: %w", err)}
		}
		p.finished = true
		return HandshakeResult{Emit: [][]byte{encoded}, Finished: true, Converter: p.converter, PeerInfo: m.Info}
	}
}

// End emits a SessionEnd frame through whatever converter the processor
// has reached, so a peer who has already progressed to symmetric
// encryption still decodes it. The caller must not use the processor
// afterward.
func (p *Processor) End() []byte {
	converter := p.converter
	if converter == nil {
		converter = NewPlainConverter()
	}
	p.finished = true
	encoded, err := converter.EncodeMessage(SessionEndMessage{})
	if err != nil {
		return nil
	}
	return encoded
}
